package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.UserMessage("hello world"),
	}
	got := EstimateMessages(msgs)
	// Each message: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2 = 7.
	// Two messages: 14.
	if got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func bundleOf(texts ...string) qa.ContextBundle {
	b := qa.ContextBundle{Question: "q"}
	for i, txt := range texts {
		b.Items = append(b.Items, qa.ContextItem{
			ChunkID: string(rune('a' + i)),
			Text:    txt,
		})
		b.Length += len(txt)
	}
	return b
}

func Test_TrimBundle_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	b := bundleOf("alpha", "beta", "gamma")
	got := TrimBundle(b, "short question", DefaultMaxContextTokens)
	if len(got.Items) != 3 {
		t.Errorf("want 3 items, got %d", len(got.Items))
	}
}

func Test_TrimBundle_DropsWeakestFirst(t *testing.T) {
	t.Parallel()
	// Each item is 40 chars = 10 tokens; the question is 4 chars = 1 token.
	// Three items: 31 tokens. Budget of 22 fits two (21) but not three.
	b := bundleOf(
		strings.Repeat("a", 40),
		strings.Repeat("b", 40),
		strings.Repeat("c", 40),
	)
	got := TrimBundle(b, "why?", 22)
	if len(got.Items) != 2 {
		t.Fatalf("want 2 items after trim, got %d", len(got.Items))
	}
	if got.Items[0].Text[0] != 'a' || got.Items[1].Text[0] != 'b' {
		t.Errorf("trim removed the wrong end: kept %q, %q", got.Items[0].ChunkID, got.Items[1].ChunkID)
	}
}

func Test_TrimBundle_NeverDropsFirstItem(t *testing.T) {
	t.Parallel()
	// A single item far over budget survives: some context beats none.
	b := bundleOf(strings.Repeat("x", 4*10000), "tail")
	got := TrimBundle(b, "q", 100)
	if len(got.Items) != 1 {
		t.Fatalf("want 1 item, got %d", len(got.Items))
	}
	if got.Items[0].ChunkID != "a" {
		t.Errorf("want the best-ranked item kept, got %q", got.Items[0].ChunkID)
	}
}

func Test_TrimBundle_ZeroBudgetUsesDefault(t *testing.T) {
	t.Parallel()
	b := bundleOf("alpha", "beta")
	got := TrimBundle(b, "q", 0)
	if len(got.Items) != 2 {
		t.Errorf("want 2 items under the default budget, got %d", len(got.Items))
	}
}
