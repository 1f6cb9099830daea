// Package sentinel holds infrastructure-fact errors. Caches and outbound
// clients return these (optionally wrapped); services translate them into
// domain outcomes or fallbacks.
//
// For input validation failures use pkg/domain-errors instead.
package sentinel

import "errors"

var (
	// ErrNotFound reports a cache miss or an absent record.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable reports that a dependency is down or its circuit is open.
	ErrUnavailable = errors.New("unavailable")
	// ErrTimeout reports that a dependency did not answer within its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrInvalidPayload reports a response that failed schema checks.
	ErrInvalidPayload = errors.New("invalid payload")
)
