package provider

import (
	"encoding/json"
	"errors"
	"net/http"

	"snotra/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

// classify maps a go-openai failure onto a *domain.LLMError.
func classify(err error) error {
	var e *domain.LLMError
	if errors.As(err, &e) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.LLMError{Kind: domain.KindAuth, StatusCode: status, Err: err}
	case status != 0:
		return &domain.LLMError{Kind: domain.KindProvider, StatusCode: status, Err: err}
	case isDecodeError(err):
		return &domain.LLMError{Kind: domain.KindMalformed, Err: err}
	default:
		return &domain.LLMError{Kind: domain.KindNetwork, Err: err}
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
