// Command docqa is the entry point for the document question-answering
// service. It provides a CLI interface (via Cobra) and an HTTP server with
// a REST/SSE API for uploading documents and asking questions about them.
package main

import (
	"fmt"
	"os"

	"github.com/mahmoudramadan155/qa-queue-service/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
