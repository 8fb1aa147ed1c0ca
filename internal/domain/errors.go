package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")
	ErrNoRoute       = errors.New("no route between assets")
	ErrPathsNotReady = errors.New("path cache not ready")
	ErrMissingPrice  = errors.New("missing price for pair")
	ErrUnknownPair   = errors.New("unknown pair")
	ErrNoData        = errors.New("no data")
)

// ExchangeErrorKind classifies a venue-reported failure.
type ExchangeErrorKind int

const (
	KindOther ExchangeErrorKind = iota
	KindInsufficientBalance
	KindRateLimited
	KindNotFound
)

func (k ExchangeErrorKind) String() string {
	switch k {
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// ExchangeError is returned by exchange adapters for any venue-reported
// failure. Code carries the venue's own error code when one was present.
type ExchangeError struct {
	Kind       ExchangeErrorKind
	Code       int
	StatusCode int
	Message    string
	Cause      error
}

func (e *ExchangeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("exchange %s (code %d, status %d): %s: %v", e.Kind, e.Code, e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("exchange %s (code %d, status %d): %s", e.Kind, e.Code, e.StatusCode, e.Message)
}

func (e *ExchangeError) Unwrap() error { return e.Cause }

// Is lets errors.Is match the generic sentinels for the kinds that have one.
func (e *ExchangeError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// NewExchangeError builds an ExchangeError of the given kind.
func NewExchangeError(kind ExchangeErrorKind, code, status int, msg string) *ExchangeError {
	return &ExchangeError{Kind: kind, Code: code, StatusCode: status, Message: msg}
}

// ExchangeErrorKindOf returns the kind of the first ExchangeError in err's
// chain, or KindOther with ok=false when there is none.
func ExchangeErrorKindOf(err error) (ExchangeErrorKind, bool) {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return KindOther, false
}

// IsInsufficientBalance reports whether err is an insufficient-balance
// rejection from the venue.
func IsInsufficientBalance(err error) bool {
	kind, ok := ExchangeErrorKindOf(err)
	return ok && kind == KindInsufficientBalance
}

// IsRateLimited reports whether err is a venue rate-limit rejection.
func IsRateLimited(err error) bool {
	kind, ok := ExchangeErrorKindOf(err)
	return ok && kind == KindRateLimited
}
