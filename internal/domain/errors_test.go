package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := &LLMError{Kind: KindAuth, StatusCode: 401, Err: errors.New("bad key")}
	err := fmt.Errorf("query: %w", base)
	if KindOf(err) != KindAuth {
		t.Fatalf("expected auth kind through wrapping, got %v", KindOf(err))
	}
	if KindOf(errors.New("opaque")) != KindNetwork {
		t.Fatal("foreign errors should default to network kind")
	}
	if got := base.Error(); got != "llm auth error (HTTP 401): bad key" {
		t.Fatalf("unexpected message %q", got)
	}
}
