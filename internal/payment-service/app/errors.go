package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/storefront-integrity/internal/pkg/ratelimit"
)

var (
	ErrInvalidRequest = errors.New("invalid payment request")
	ErrRateLimited    = errors.New("too many payment requests")
	ErrForbidden      = errors.New("not allowed to pay for this order")
	ErrRejected       = errors.New("payment could not be processed")
	ErrGateway        = errors.New("payment gateway failure")
	ErrNotConfirmed   = errors.New("payment not completed")
)

// RateLimitError is returned when a limiter denies the request. It matches
// ErrRateLimited.
type RateLimitError struct {
	Scope   ratelimit.IdentifierType
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s limit until %s", ErrRateLimited, e.Scope, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
