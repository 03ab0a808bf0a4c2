package llm

import (
	"errors"
	"fmt"
)

// Kind classifies model call failures.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTransport     Kind = "transport"
	KindParse         Kind = "parse"
)

var (
	ErrMissingAPIKey = errors.New("llm: missing api key")
	ErrNoText        = errors.New("llm: response has no text")
)

// Error wraps a failure with its Kind. Status is the upstream HTTP status when known.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm %s %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("llm %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// ParseError marks a structured-output failure. It is never retried.
func ParseError(op string, err error) error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}
