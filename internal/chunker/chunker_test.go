package chunker

import (
	"strings"
	"testing"
)

// synthetic returns n characters of repeating a-z0-9 with no whitespace or
// sentence boundaries, so window arithmetic is exact (no snapping, no trim).
func synthetic(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(alphabet)
	}
	return sb.String()[:n]
}

func Test_Split_InvalidParameters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		p    Params
	}{
		{"zero target", Params{TargetSize: 0, Overlap: 0, LookBack: 10}},
		{"negative target", Params{TargetSize: -5}},
		{"negative overlap", Params{TargetSize: 100, Overlap: -1}},
		{"overlap equals target", Params{TargetSize: 100, Overlap: 100}},
		{"overlap exceeds target", Params{TargetSize: 100, Overlap: 150}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Split("some text", tc.p); err == nil {
				t.Errorf("want error for %+v, got nil", tc.p)
			}
		})
	}
}

func Test_Split_EmptyTextYieldsNoChunks(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "\n\t\n"} {
		chunks, err := Split(text, Params{TargetSize: 100, Overlap: 10})
		if err != nil {
			t.Fatalf("split: %v", err)
		}
		if len(chunks) != 0 {
			t.Errorf("want 0 chunks for %q, got %d", text, len(chunks))
		}
	}
}

func Test_Split_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()

	chunks, err := Split("  hello world  ", Params{TargetSize: 100, Overlap: 10})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "hello world" {
		t.Errorf("want trimmed text, got %q", chunks[0].Text)
	}
	if chunks[0].Seq != 0 {
		t.Errorf("want seq 0, got %d", chunks[0].Seq)
	}
}

func Test_Split_Deterministic(t *testing.T) {
	t.Parallel()

	text := synthetic(5000)
	p := Params{TargetSize: 800, Overlap: 150}

	first, err := Split(text, p)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	second, err := Split(text, p)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text {
			t.Errorf("chunk %d text differs", i)
		}
		if first[i].Fingerprint != second[i].Fingerprint {
			t.Errorf("chunk %d fingerprint differs", i)
		}
	}
}

func Test_Split_OverlapAndCoverage(t *testing.T) {
	t.Parallel()

	text := synthetic(2500)
	chunks, err := Split(text, Params{TargetSize: 1000, Overlap: 100})
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Text) != 1000 || len(chunks[1].Text) != 1000 {
		t.Errorf("want full windows of 1000, got %d and %d", len(chunks[0].Text), len(chunks[1].Text))
	}
	if len(chunks[2].Text) >= 1000 {
		t.Errorf("final window should be short, got %d", len(chunks[2].Text))
	}

	// Each chunk's final 100 characters equal the next chunk's first 100.
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i].Text[len(chunks[i].Text)-100:]
		head := chunks[i+1].Text[:100]
		if tail != head {
			t.Errorf("overlap mismatch between chunks %d and %d", i, i+1)
		}
	}

	// Dropping the overlapping prefix of every chunk after the first
	// reconstructs the original text.
	var sb strings.Builder
	sb.WriteString(chunks[0].Text)
	for _, c := range chunks[1:] {
		sb.WriteString(c.Text[100:])
	}
	if sb.String() != text {
		t.Error("concatenation with overlaps removed does not reconstruct input")
	}

	for i, c := range chunks {
		if c.Seq != i {
			t.Errorf("chunk %d has seq %d", i, c.Seq)
		}
	}
}

func Test_Split_SnapsToSentenceBoundary(t *testing.T) {
	t.Parallel()

	// A period sits 30 characters before the hard cutoff — inside the
	// look-back distance — so the first window must end right after it.
	text := synthetic(170) + "." + synthetic(600)
	chunks, err := Split(text, Params{TargetSize: 200, Overlap: 20, LookBack: 50})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, ".") {
		t.Errorf("first chunk should end at the sentence boundary, got tail %q",
			chunks[0].Text[len(chunks[0].Text)-5:])
	}
	if len(chunks[0].Text) != 171 {
		t.Errorf("want first chunk length 171, got %d", len(chunks[0].Text))
	}
}

func Test_Split_NoBoundaryBreaksAtCutoff(t *testing.T) {
	t.Parallel()

	text := synthetic(450)
	chunks, err := Split(text, Params{TargetSize: 200, Overlap: 50, LookBack: 50})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks[0].Text) != 200 {
		t.Errorf("want hard cutoff at 200, got %d", len(chunks[0].Text))
	}
}

func Test_Params_Normalized(t *testing.T) {
	t.Parallel()

	p := Params{}.Normalized()
	if p.TargetSize != DefaultTargetSize || p.Overlap != DefaultOverlap || p.LookBack != DefaultLookBack {
		t.Errorf("zero params should take defaults, got %+v", p)
	}

	// Explicit values survive normalisation.
	q := Params{TargetSize: 300, Overlap: 30}.Normalized()
	if q.TargetSize != 300 || q.Overlap != 30 {
		t.Errorf("explicit params should pass through, got %+v", q)
	}
}
