package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrPlanNotFound marks a caller-correctable input error: the plan key
	// is unknown or its configured price reference is malformed.
	ErrPlanNotFound = errors.New("unknown plan")

	// ErrMissingSignature is returned before any verification is attempted
	// when the signature header is absent.
	ErrMissingSignature = errors.New("missing signature header")

	// ErrUnauthenticated wraps signature verification failures. The payload
	// must not be processed when this is returned.
	ErrUnauthenticated = errors.New("webhook not authenticated")
)

// ProviderError preserves Stripe's public diagnostics (message, type, code)
// for surfacing to callers. Secrets and internal details stay out of it.
type ProviderError struct {
	Message string
	Type    string
	Code    string
	err     error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment provider error (%s/%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("payment provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.err
}
