package gate

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func testVec() []float32 {
	return []float32{0.011, 0.55, 0.1, 0.2, 0}
}

func TestScoreIsDistribution(t *testing.T) {
	g, err := New(4, 42)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dist := g.Score(testVec())
	if len(dist) != 4 {
		t.Fatalf("distribution length: got %d, want 4", len(dist))
	}

	var sum float64
	for i, p := range dist {
		if p < 0 || p > 1 {
			t.Fatalf("dist[%d]=%v out of [0,1]", i, p)
		}
		sum += float64(p)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Fatalf("distribution sums to %v, want 1", sum)
	}
}

func TestScoreDeterministic(t *testing.T) {
	g1, err := New(3, 7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g2, err := New(3, 7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := g1.Score(testVec())
	b := g2.Score(testVec())
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed, different scores at %d: %v vs %v", i, a[i], b[i])
		}
	}

	c := g1.Score(testVec())
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("repeated scoring diverged at %d: %v vs %v", i, a[i], c[i])
		}
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	g1, _ := New(3, 1)
	g2, _ := New(3, 2)
	a := g1.Score(testVec())
	b := g2.Score(testVec())
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical distributions")
	}
}

func TestNewRejectsZeroExperts(t *testing.T) {
	if _, err := New(0, 42); err == nil {
		t.Fatalf("expected error for zero experts")
	}
}

func TestSwap(t *testing.T) {
	g, err := New(3, 42)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := g.Score(testVec())

	next, err := NewParameters(3, 99)
	if err != nil {
		t.Fatalf("NewParameters: %v", err)
	}
	if err := g.Swap(next); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	after := g.Score(testVec())
	same := true
	for i := range before {
		if before[i] != after[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("swap did not change scoring")
	}
}

func TestSwapRejectsExpertCountMismatch(t *testing.T) {
	g, err := New(3, 42)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wrong, err := NewParameters(5, 42)
	if err != nil {
		t.Fatalf("NewParameters: %v", err)
	}
	if err := g.Swap(wrong); err == nil {
		t.Fatalf("expected error swapping in snapshot with different expert count")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	p, err := NewParameters(3, 42)
	if err != nil {
		t.Fatalf("NewParameters: %v", err)
	}

	path := filepath.Join(t.TempDir(), "weights.json")
	if err := SaveParameters(path, p); err != nil {
		t.Fatalf("SaveParameters: %v", err)
	}

	loaded, err := LoadParameters(path)
	if err != nil {
		t.Fatalf("LoadParameters: %v", err)
	}
	if loaded.Experts != p.Experts || loaded.Seed != p.Seed {
		t.Fatalf("metadata mismatch: got %d/%d, want %d/%d", loaded.Experts, loaded.Seed, p.Experts, p.Seed)
	}

	a := p.Forward(testVec())
	b := loaded.Forward(testVec())
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("loaded snapshot scores differently at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestLoadMissingWeights(t *testing.T) {
	_, err := LoadParameters(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrWeightsNotFound) {
		t.Fatalf("expected ErrWeightsNotFound, got %v", err)
	}
}

func TestSoftmax(t *testing.T) {
	out := Softmax([]float32{1, 1, 1})
	for i, p := range out {
		if math.Abs(float64(p)-1.0/3) > 1e-6 {
			t.Fatalf("uniform logits: out[%d]=%v, want ~1/3", i, p)
		}
	}

	// Large logits must not overflow.
	out = Softmax([]float32{1000, 999})
	if math.IsNaN(float64(out[0])) || out[0] <= out[1] {
		t.Fatalf("large logits mishandled: %v", out)
	}
}
