package bot

import (
	"errors"
	"strings"

	"snotra/internal/domain"
)

const payloadDelimiter = "\n"

var ErrTooFewSegments = errors.New("message does not have at least 2 parts")

// ParsePayload splits body on line breaks. The first segment is the phrase,
// the second its gloss. extra reports whether further segments were dropped.
func ParsePayload(body string) (p domain.ParsedPayload, extra bool, err error) {
	segments := strings.Split(body, payloadDelimiter)
	if len(segments) < 2 {
		return domain.ParsedPayload{}, false, ErrTooFewSegments
	}
	return domain.ParsedPayload{Primary: segments[0], Secondary: segments[1]}, len(segments) > 2, nil
}

// HasDelimiter reports whether body is shaped like a two-line payload.
func HasDelimiter(body string) bool {
	return strings.Contains(body, payloadDelimiter)
}
