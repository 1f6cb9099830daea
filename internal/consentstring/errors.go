package consentstring

import (
	"errors"
	"fmt"
)

// ErrorKind classifies codec failures. It doubles as the wire discriminator.
type ErrorKind string

const (
	KindUnsupportedVersion   ErrorKind = "unsupported_version"
	KindTruncatedInput       ErrorKind = "truncated_input"
	KindMalformedVendorRange ErrorKind = "malformed_vendor_range"
	KindInvalidField         ErrorKind = "invalid_field"
)

// CodecError is returned by every failing Encode or Decode call.
type CodecError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CodecError) Error() string {
	if e.Message == "" {
		return "consentstring: " + string(e.Kind)
	}
	return fmt.Sprintf("consentstring: %s: %s", e.Kind, e.Message)
}

func (e *CodecError) Unwrap() error { return e.Err }

// Is matches any CodecError of the same kind, so callers can write
// errors.Is(err, consentstring.ErrTruncatedInput).
func (e *CodecError) Is(target error) bool {
	t, ok := target.(*CodecError)
	return ok && t.Kind == e.Kind
}

var (
	ErrUnsupportedVersion   = &CodecError{Kind: KindUnsupportedVersion}
	ErrTruncatedInput       = &CodecError{Kind: KindTruncatedInput}
	ErrMalformedVendorRange = &CodecError{Kind: KindMalformedVendorRange}
	ErrInvalidField         = &CodecError{Kind: KindInvalidField}
)

// KindOf extracts the ErrorKind from err.
func KindOf(err error) (ErrorKind, bool) {
	var ce *CodecError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

func newError(kind ErrorKind, format string, args ...any) *CodecError {
	return &CodecError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func invalidField(field, format string, args ...any) *CodecError {
	return &CodecError{Kind: KindInvalidField, Message: field + ": " + fmt.Sprintf(format, args...)}
}
