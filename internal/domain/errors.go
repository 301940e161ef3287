package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed completion call.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindAuth
	KindProvider
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindProvider:
		return "provider"
	case KindMalformed:
		return "malformed_response"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// LLMError is returned by every LLMClient implementation.
type LLMError struct {
	Kind       ErrorKind
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *LLMError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s error (HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm %s error: %v", e.Kind, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// KindOf reports the ErrorKind of err, defaulting to KindNetwork for
// errors that are not an *LLMError.
func KindOf(err error) ErrorKind {
	var e *LLMError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetwork
}
