package pipeline

import "strings"

// Option keys recognized by the pipeline. Anything else in the options
// map is ignored.
const (
	OptionTruncateLength = "truncate_length"
	OptionToUppercase    = "to_uppercase"
	OptionForceExpert    = "force_expert"
)

// Options is the caller-supplied named option map. Values arrive
// untyped from JSON, so the accessors tolerate the usual decodings
// (float64 for numbers, bool for booleans).
type Options map[string]any

// TruncateLength returns the postprocess truncation bound, if set to a
// usable number.
func (o Options) TruncateLength() (int, bool) {
	v, ok := o[OptionTruncateLength]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	default:
		return 0, false
	}
}

// ToUppercase reports whether the result should be uppercased.
func (o Options) ToUppercase() bool {
	v, ok := o[OptionToUppercase]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// ForceExpert returns the router override, if present.
func (o Options) ForceExpert() string {
	v, ok := o[OptionForceExpert]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
