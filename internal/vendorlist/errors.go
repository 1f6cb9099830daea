package vendorlist

import (
	"errors"
	"fmt"

	"tcfgate/pkg/platform/sentinel"
)

// FetchCategory classifies registry fetch failures.
type FetchCategory string

const (
	CategoryNetwork FetchCategory = "network"
	CategoryStatus  FetchCategory = "status"
	CategoryParse   FetchCategory = "parse"
	CategorySchema  FetchCategory = "schema"
)

// FetchError reports a failed registry fetch. It never reaches HTTP callers;
// the cache logs it and keeps serving what it has.
type FetchError struct {
	Category   FetchCategory
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vendor list %s error: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("vendor list %s error: %s", e.Category, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets callers match schema failures against sentinel.ErrInvalidPayload
// and transport failures against sentinel.ErrUnavailable.
func (e *FetchError) Is(target error) bool {
	switch target {
	case sentinel.ErrInvalidPayload:
		return e.Category == CategoryParse || e.Category == CategorySchema
	case sentinel.ErrUnavailable:
		return e.Category == CategoryNetwork || e.Category == CategoryStatus
	}
	return false
}

// CategoryOf returns the category of a FetchError in err's chain, or "".
func CategoryOf(err error) FetchCategory {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ""
}
