package feature

import (
	"encoding/hex"
	"unicode"
	"unicode/utf8"
)

// Dim is the fixed width of the routing feature vector.
const Dim = 5

// Normalization constants applied before the vector reaches the gate.
// Fixed design constants, not learned.
const (
	lengthScale   = 1000
	avgTokenScale = 10
)

// Features is the per-request routing summary of one canonical text.
// It is created fresh per request and discarded after routing.
type Features struct {
	Length           float32 `json:"length"`
	AvgTokenLength   float32 `json:"avg_word_length"`
	SpecialCharRatio float32 `json:"special_char_ratio"`
	UppercaseRatio   float32 `json:"uppercase_ratio"`
	IsBinary         float32 `json:"is_binary"`
}

// Canonicalize converts an arbitrary payload into the canonical text form
// used by both feature extraction and the experts. Payloads that are not
// valid UTF-8 are re-encoded as printable hex; the second return reports
// whether that fallback fired. It never fails.
func Canonicalize(raw []byte) (string, bool) {
	if utf8.Valid(raw) {
		return string(raw), false
	}
	return hex.EncodeToString(raw), true
}

// Analyze extracts routing features from canonical text. binary marks
// whether the hex fallback was applied upstream.
func Analyze(text string, binary bool) Features {
	runes := []rune(text)
	length := len(runes)

	var special, upper int
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
		if unicode.IsUpper(r) {
			upper++
		}
	}

	denom := length
	if denom < 1 {
		denom = 1
	}

	f := Features{
		Length:           float32(length),
		AvgTokenLength:   avgTokenLength(runes),
		SpecialCharRatio: float32(special) / float32(denom),
		UppercaseRatio:   float32(upper) / float32(denom),
	}
	if binary {
		f.IsBinary = 1
	}
	return f
}

// avgTokenLength averages the lengths of whitespace-delimited tokens.
// The denominator never drops below 1.
func avgTokenLength(runes []rune) float32 {
	var tokens, total, cur int
	for _, r := range runes {
		if unicode.IsSpace(r) {
			if cur > 0 {
				tokens++
				total += cur
				cur = 0
			}
			continue
		}
		cur++
	}
	if cur > 0 {
		tokens++
		total += cur
	}
	if tokens < 1 {
		tokens = 1
	}
	return float32(total) / float32(tokens)
}

// Vector returns the normalized fixed-order form fed to the gate.
func (f Features) Vector() []float32 {
	return []float32{
		f.Length / lengthScale,
		f.AvgTokenLength / avgTokenScale,
		f.SpecialCharRatio,
		f.UppercaseRatio,
		f.IsBinary,
	}
}

// Map returns the normalized features keyed by name, as exposed in the
// response envelope for observability.
func (f Features) Map() map[string]float32 {
	return map[string]float32{
		"length":             f.Length / lengthScale,
		"avg_word_length":    f.AvgTokenLength / avgTokenScale,
		"special_char_ratio": f.SpecialCharRatio,
		"uppercase_ratio":    f.UppercaseRatio,
		"is_binary":          f.IsBinary,
	}
}
