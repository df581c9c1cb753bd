package commands

import (
	"errors"
	"testing"
	"time"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

func Test_Commands_ChainConfigsRejectUnknownProvider(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "olama")

	_, err := chainConfigsFromEnv()
	if !errors.Is(err, qa.ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters for a misspelled provider, got %v", err)
	}
}

func Test_Commands_ChainConfigsPreserveOrder(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "azure, ollama ,extractive")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o")

	cfgs, err := chainConfigsFromEnv()
	if err != nil {
		t.Fatalf("chainConfigsFromEnv: %v", err)
	}
	if len(cfgs) != 3 {
		t.Fatalf("expected 3 configs, got %d", len(cfgs))
	}
	if cfgs[0].Kind != "azure" || cfgs[1].Kind != "ollama" || cfgs[2].Kind != "extractive" {
		t.Errorf("order not preserved: %+v", cfgs)
	}
}

func Test_Commands_GenerationTimeoutFromEnv(t *testing.T) {
	t.Setenv("DOCQA_GENERATION_TIMEOUT", "90s")
	if d := getEnvDuration("DOCQA_GENERATION_TIMEOUT", time.Minute); d != 90*time.Second {
		t.Errorf("parsed timeout = %v", d)
	}

	t.Setenv("DOCQA_GENERATION_TIMEOUT", "not-a-duration")
	if d := getEnvDuration("DOCQA_GENERATION_TIMEOUT", time.Minute); d != time.Minute {
		t.Errorf("unparsable value should fall back, got %v", d)
	}
}
