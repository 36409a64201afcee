package market

import (
	"errors"
	"fmt"
)

// Kind classifies market API failures.
type Kind int

const (
	KindBadRequest       Kind = iota + 1 // request could not be built
	KindRateLimited                      // HTTP 429
	KindServerError                      // any other non-2xx, or breaker open
	KindNetwork                          // transport failure
	KindMalformed                        // body failed to decode
	KindThrottledNoCache                 // rate limited and no usable cached payload
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad request"
	case KindRateLimited:
		return "rate limited"
	case KindServerError:
		return "server error"
	case KindNetwork:
		return "network error"
	case KindMalformed:
		return "malformed response"
	case KindThrottledNoCache:
		return "rate limited, no cached data"
	default:
		return "unknown"
	}
}

// Error is returned by every Client operation.
type Error struct {
	Kind   Kind
	Op     string // e.g. "listings", "chart", "rates"
	Status int    // HTTP status, 0 when no response was received
	Err    error
}

// Sentinels for errors.Is.
var (
	ErrBadRequest       = &Error{Kind: KindBadRequest}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrServerError      = &Error{Kind: KindServerError}
	ErrNetwork          = &Error{Kind: KindNetwork}
	ErrMalformed        = &Error{Kind: KindMalformed}
	ErrThrottledNoCache = &Error{Kind: KindThrottledNoCache}
)

func (e *Error) Error() string {
	msg := "market"
	if e.Op != "" {
		msg += " " + e.Op
	}
	msg += ": " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or 0 if err is not a market error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// UserMessage turns err into the short text shown in the status line.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindRateLimited, KindThrottledNoCache:
		return "Request limit reached, please try again in a minute."
	case KindServerError:
		return "The market service is unavailable, please try again later."
	case KindNetwork:
		return "Network unavailable."
	case KindMalformed:
		return "The market service returned unreadable data."
	case KindBadRequest:
		return "Invalid request."
	default:
		return err.Error()
	}
}
