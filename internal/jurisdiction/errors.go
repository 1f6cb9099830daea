package jurisdiction

import (
	"errors"
	"fmt"
)

// LookupCategory classifies geolocation failures.
type LookupCategory string

const (
	CategoryTimeout     LookupCategory = "timeout"
	CategoryNetwork     LookupCategory = "network"
	CategoryStatus      LookupCategory = "status"
	CategoryParse       LookupCategory = "parse"
	CategoryInvalidIP   LookupCategory = "invalid_ip"
	CategoryCircuitOpen LookupCategory = "circuit_open"
)

// LookupError reports a failed geolocation lookup. It is never fatal: the
// resolver falls back to assuming the regime applies.
type LookupError struct {
	Category LookupCategory
	Message  string
	Err      error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geolocation %s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("geolocation %s: %s", e.Category, e.Message)
}

func (e *LookupError) Unwrap() error { return e.Err }

// countsAsOutage reports whether the failure says something about the
// provider's health. Bad input does not trip the breaker.
func (e *LookupError) countsAsOutage() bool {
	return e.Category != CategoryInvalidIP && e.Category != CategoryCircuitOpen
}

// LookupCategoryOf returns the category of a LookupError in err's chain.
func LookupCategoryOf(err error) LookupCategory {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Category
	}
	return ""
}
