// Package llm provides the text-completion service used to write replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Request is one completion call.
type Request struct {
	Prompt            string
	SystemInstruction string
	MaxOutputTokens   int
	Temperature       float64
}

// Completer produces reply text from a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

var (
	ErrRateLimited    = errors.New("completion rate limited")
	ErrInvalidRequest = errors.New("invalid completion request")
	ErrUnavailable    = errors.New("completion service unavailable")
)

// IsRateLimited reports whether err should be retried after a backoff.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Classify wraps err with the matching sentinel. Errors already classified
// are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if code, ok := apiErrorCode(err); ok {
		switch code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	msg := strings.ToUpper(err.Error())
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "RATE LIMIT") {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

// CheckQuota sends a minimal request to verify credentials and quota.
func CheckQuota(ctx context.Context, c Completer) error {
	_, err := c.Complete(ctx, Request{Prompt: "test", MaxOutputTokens: 1})
	if err != nil && errors.Is(err, errEmptyResponse) {
		// A one-token probe may legitimately come back empty.
		return nil
	}
	return err
}
