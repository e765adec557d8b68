package router

import (
	"errors"
	"testing"

	"github.com/moegate-ai/moegate/internal/expert"
)

// stubScorer returns a fixed distribution regardless of input.
type stubScorer struct {
	dist []float32
}

func (s *stubScorer) Score(_ []float32) []float32 {
	return s.dist
}

func testRegistry(t *testing.T, names ...string) *expert.Registry {
	t.Helper()
	experts := make([]expert.Expert, len(names))
	for i, n := range names {
		experts[i] = expert.NewEcho(n)
	}
	r, err := expert.NewRegistry(names, experts)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestSelectArgmax(t *testing.T) {
	reg := testRegistry(t, "byt5", "longformer", "codegen")
	r := New(reg, &stubScorer{dist: []float32{0.1, 0.7, 0.2}})

	d, err := r.Select([]float32{0, 0, 0, 0, 0}, "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Expert != "longformer" || d.Index != 1 {
		t.Fatalf("got %q (index %d), want longformer (index 1)", d.Expert, d.Index)
	}
	if d.Confidence != 0.7 {
		t.Fatalf("confidence: got %v, want 0.7", d.Confidence)
	}
	if d.Forced {
		t.Fatalf("scored decision should not be marked forced")
	}
	if len(d.Distribution) != 3 {
		t.Fatalf("distribution should be exposed on scored decisions")
	}
}

func TestSelectTieGoesToLowestIndex(t *testing.T) {
	reg := testRegistry(t, "byt5", "longformer", "codegen")
	r := New(reg, &stubScorer{dist: []float32{0.4, 0.4, 0.2}})

	d, err := r.Select([]float32{0, 0, 0, 0, 0}, "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Index != 0 || d.Expert != "byt5" {
		t.Fatalf("tie should pick lowest index, got %q (index %d)", d.Expert, d.Index)
	}
}

func TestSelectAllEqualTie(t *testing.T) {
	reg := testRegistry(t, "a", "b", "c", "d")
	third := float32(0.25)
	r := New(reg, &stubScorer{dist: []float32{third, third, third, third}})

	d, err := r.Select([]float32{0, 0, 0, 0, 0}, "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Index != 0 {
		t.Fatalf("all-equal tie should pick index 0, got %d", d.Index)
	}
}

func TestSelectOverride(t *testing.T) {
	reg := testRegistry(t, "byt5", "longformer")
	// Scorer would pick index 0; the override must win without scoring.
	r := New(reg, &stubScorer{dist: []float32{0.9, 0.1}})

	d, err := r.Select([]float32{0, 0, 0, 0, 0}, "longformer")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Expert != "longformer" || d.Index != 1 {
		t.Fatalf("override not honored: got %q (index %d)", d.Expert, d.Index)
	}
	if !d.Forced {
		t.Fatalf("override decision should be marked forced")
	}
	if d.Confidence != 1.0 {
		t.Fatalf("override confidence: got %v, want 1.0", d.Confidence)
	}
	if d.Distribution != nil {
		t.Fatalf("override should not carry a distribution")
	}
}

func TestSelectUnknownOverride(t *testing.T) {
	reg := testRegistry(t, "byt5", "longformer")
	r := New(reg, &stubScorer{dist: []float32{0.5, 0.5}})

	_, err := r.Select([]float32{0, 0, 0, 0, 0}, "gpt9")
	var unknown *UnknownExpertError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownExpertError, got %v", err)
	}
	if unknown.Name != "gpt9" {
		t.Fatalf("error should name the requested expert, got %q", unknown.Name)
	}
}

func TestSelectScorerLengthMismatch(t *testing.T) {
	reg := testRegistry(t, "byt5", "longformer")
	r := New(reg, &stubScorer{dist: []float32{1.0}})

	if _, err := r.Select([]float32{0, 0, 0, 0, 0}, ""); err == nil {
		t.Fatalf("expected error for scorer/registry size mismatch")
	}
}
