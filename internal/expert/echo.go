package expert

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// echoExpert is a deterministic local backend. It stands in for a real
// model during tests and serves as a safe default when no remote or
// local model is configured.
type echoExpert struct {
	name string
}

// NewEcho creates an echo expert.
func NewEcho(name string) Expert {
	return &echoExpert{name: name}
}

func (e *echoExpert) Invoke(ctx context.Context, text string, task Task) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch task {
	case TaskProcess:
		return fmt.Sprintf("Processed %d characters with %s", len([]rune(text)), e.name), nil
	case TaskEmbed:
		return fmt.Sprintf("%s embedding generated for %d characters", e.name, len([]rune(text))), nil
	case TaskAnalyze:
		return e.analyze(text), nil
	default:
		return "", &UnsupportedTaskError{Expert: e.name, Task: task}
	}
}

func (e *echoExpert) analyze(text string) string {
	var letters, digits, spaces int
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		case unicode.IsSpace(r):
			spaces++
		}
	}
	tokens := len(strings.Fields(text))
	return fmt.Sprintf("%s analysis: %d tokens, %d letters, %d digits, %d spaces",
		e.name, tokens, letters, digits, spaces)
}
