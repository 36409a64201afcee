package infra

import (
	"time"
)

// Backoff computes exponential delays: Base * 2^retry, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the backoff duration for a given retry count.
// A negative retry count returns Base.
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		return b.Base
	}

	// 2^30 * Base is beyond any sensible cap; avoid shifting into overflow.
	if retryCount > 30 {
		return b.Max
	}

	backoff := b.Base * time.Duration(1<<retryCount)

	if backoff > b.Max || backoff <= 0 {
		return b.Max
	}

	return backoff
}
