package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a request the core or a provider refuses to process.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited signals an HTTP 429-class rejection from the inference provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrResponseInvalid signals a payload that cannot be parsed into a BatchResult.
	ErrResponseInvalid = errors.New("response invalid")
	// ErrProviderError signals any other inference provider failure.
	ErrProviderError = errors.New("inference provider error")
	// ErrQuotaExceeded signals an exhausted local request budget.
	ErrQuotaExceeded = errors.New("inference quota exceeded")
	// ErrNotFound signals a missing archived resource.
	ErrNotFound = errors.New("not found")
)

// ProviderStatusError carries the upstream HTTP status of a failed inference call.
type ProviderStatusError struct {
	Provider string
	Status   int
	Message  string
	kind     error
}

// NewProviderStatusError classifies an upstream status: 429 wraps ErrRateLimited,
// everything else wraps ErrProviderError.
func NewProviderStatusError(provider string, status int, message string) error {
	kind := ErrProviderError
	if status == 429 {
		kind = ErrRateLimited
	}
	return &ProviderStatusError{Provider: provider, Status: status, Message: message, kind: kind}
}

func (e *ProviderStatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s upstream %d: %s", e.Provider, e.Status, e.kind.Error())
	}
	return fmt.Sprintf("%s upstream %d: %s: %s", e.Provider, e.Status, e.Message, e.kind.Error())
}

func (e *ProviderStatusError) Unwrap() error { return e.kind }
