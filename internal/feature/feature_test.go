package feature

import (
	"encoding/hex"
	"math"
	"testing"
)

func TestCanonicalizeValidUTF8(t *testing.T) {
	text, binary := Canonicalize([]byte("hello world"))
	if binary {
		t.Fatalf("valid UTF-8 should not trigger the hex fallback")
	}
	if text != "hello world" {
		t.Fatalf("expected passthrough, got %q", text)
	}
}

func TestCanonicalizeBinaryFallback(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0x00, 0x01}
	text, binary := Canonicalize(raw)
	if !binary {
		t.Fatalf("invalid UTF-8 should trigger the hex fallback")
	}
	if text != hex.EncodeToString(raw) {
		t.Fatalf("expected hex encoding, got %q", text)
	}
}

func TestAnalyzeHello(t *testing.T) {
	f := Analyze("Hello", false)

	if f.Length != 5 {
		t.Fatalf("length: got %v, want 5", f.Length)
	}
	if f.AvgTokenLength != 5 {
		t.Fatalf("avg token length: got %v, want 5", f.AvgTokenLength)
	}
	if f.SpecialCharRatio != 0 {
		t.Fatalf("special char ratio: got %v, want 0", f.SpecialCharRatio)
	}
	if got, want := f.UppercaseRatio, float32(0.2); got != want {
		t.Fatalf("uppercase ratio: got %v, want %v", got, want)
	}
	if f.IsBinary != 0 {
		t.Fatalf("is_binary: got %v, want 0", f.IsBinary)
	}

	vec := f.Vector()
	if len(vec) != Dim {
		t.Fatalf("vector length: got %d, want %d", len(vec), Dim)
	}
	want := []float32{0.005, 0.5, 0, 0.2, 0}
	for i := range want {
		if vec[i] != want[i] {
			t.Fatalf("vector[%d]: got %v, want %v", i, vec[i], want[i])
		}
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	f := Analyze("", false)
	vec := f.Vector()
	if len(vec) != Dim {
		t.Fatalf("vector length: got %d, want %d", len(vec), Dim)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("empty input should produce all-zero features, vec[%d]=%v", i, v)
		}
	}
}

func TestAnalyzeSpecialAndWhitespace(t *testing.T) {
	f := Analyze("a! b?", false)
	// 5 runes, 2 special, 0 upper, tokens "a!" and "b?" of length 2.
	if f.Length != 5 {
		t.Fatalf("length: got %v, want 5", f.Length)
	}
	if got, want := f.SpecialCharRatio, float32(2)/5; got != want {
		t.Fatalf("special char ratio: got %v, want %v", got, want)
	}
	if f.AvgTokenLength != 2 {
		t.Fatalf("avg token length: got %v, want 2", f.AvgTokenLength)
	}
}

func TestAnalyzeBinaryFlag(t *testing.T) {
	f := Analyze("fffe", true)
	if f.IsBinary != 1 {
		t.Fatalf("is_binary: got %v, want 1", f.IsBinary)
	}
	if f.Vector()[4] != 1 {
		t.Fatalf("vector is_binary slot should be 1")
	}
}

func TestVectorFinite(t *testing.T) {
	inputs := []string{"", "a", "Hello, World!", "   ", "\n\t", "ALLCAPS TEXT 123"}
	for _, in := range inputs {
		vec := Analyze(in, false).Vector()
		for i, v := range vec {
			f64 := float64(v)
			if math.IsNaN(f64) || math.IsInf(f64, 0) {
				t.Fatalf("input %q produced non-finite vec[%d]=%v", in, i, v)
			}
		}
	}
}

func TestMapKeys(t *testing.T) {
	m := Analyze("Hello World", false).Map()
	for _, key := range []string{"length", "avg_word_length", "special_char_ratio", "uppercase_ratio", "is_binary"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("missing feature key %q", key)
		}
	}
	if len(m) != Dim {
		t.Fatalf("map size: got %d, want %d", len(m), Dim)
	}
}
