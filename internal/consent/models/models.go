// Package models holds the consent submission shape accepted over HTTP and
// the validation outcome returned for it.
package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// MaxPurposeID is the highest purpose a submission may flag.
const MaxPurposeID = 24

// RequiredPurpose must carry explicit consent in every submission.
const RequiredPurpose = 1

var purposeKey = regexp.MustCompile(`^purpose(\d+)_(consent|legitimate_interest)$`)

// Submission is a raw consent submission. On the wire purposes arrive as
// flat boolean keys (purpose1_consent, purpose3_legitimate_interest, ...)
// rather than arrays.
type Submission struct {
	Domain                     string
	PurposeConsents            []int
	PurposeLegitimateInterests []int
	// Vendors is nil when the submission carried no vendor list.
	Vendors                   []int
	VendorLegitimateInterests []int
}

type submissionWire struct {
	Domain                    string `json:"domain"`
	Vendors                   []int  `json:"vendors"`
	VendorLegitimateInterests []int  `json:"vendor_legitimate_interests"`
}

// UnmarshalJSON reads the flat purpose flags. Unknown keys are ignored;
// purpose flags outside 1..MaxPurposeID or with non-boolean values are
// rejected.
func (s *Submission) UnmarshalJSON(data []byte) error {
	var wire submissionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Submission{
		Domain:                    wire.Domain,
		Vendors:                   wire.Vendors,
		VendorLegitimateInterests: wire.VendorLegitimateInterests,
	}
	for key, value := range raw {
		m := purposeKey.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil || id < 1 || id > MaxPurposeID {
			return fmt.Errorf("%s: purpose id must be between 1 and %d", key, MaxPurposeID)
		}
		var flag *bool
		if err := json.Unmarshal(value, &flag); err != nil {
			return fmt.Errorf("%s: must be a boolean", key)
		}
		if flag == nil || !*flag {
			continue
		}
		if m[2] == "consent" {
			out.PurposeConsents = append(out.PurposeConsents, id)
		} else {
			out.PurposeLegitimateInterests = append(out.PurposeLegitimateInterests, id)
		}
	}
	sort.Ints(out.PurposeConsents)
	sort.Ints(out.PurposeLegitimateInterests)
	*s = out
	return nil
}

// MarshalJSON writes the same flat shape UnmarshalJSON reads.
func (s Submission) MarshalJSON() ([]byte, error) {
	m := map[string]any{"domain": s.Domain}
	if s.Vendors != nil {
		m["vendors"] = s.Vendors
	}
	if s.VendorLegitimateInterests != nil {
		m["vendor_legitimate_interests"] = s.VendorLegitimateInterests
	}
	for _, id := range s.PurposeConsents {
		m[fmt.Sprintf("purpose%d_consent", id)] = true
	}
	for _, id := range s.PurposeLegitimateInterests {
		m[fmt.Sprintf("purpose%d_legitimate_interest", id)] = true
	}
	return json.Marshal(m)
}

// Normalize trims the domain. Called by the HTTP decoder before validation.
func (s *Submission) Normalize() {
	s.Domain = strings.TrimSpace(s.Domain)
}

// HasPurposeConsent reports whether purpose id was flagged true.
func (s Submission) HasPurposeConsent(id int) bool {
	for _, p := range s.PurposeConsents {
		if p == id {
			return true
		}
	}
	return false
}

// ValidationCode discriminates validation failures on the wire.
type ValidationCode string

const (
	CodeMissingDomain          ValidationCode = "missing_domain"
	CodeMissingRequiredPurpose ValidationCode = "missing_required_purpose"
	CodeUnknownVendor          ValidationCode = "unknown_vendor"
)

// ValidationError is one defect found in a submission.
type ValidationError struct {
	Code      ValidationCode `json:"code"`
	Message   string         `json:"message"`
	PurposeID int            `json:"purposeId,omitempty"`
	VendorID  int            `json:"vendorId,omitempty"`
}

func (e ValidationError) Error() string { return e.Message }

func MissingDomain() ValidationError {
	return ValidationError{Code: CodeMissingDomain, Message: "Domain is required"}
}

func MissingRequiredPurpose(id int) ValidationError {
	return ValidationError{
		Code:      CodeMissingRequiredPurpose,
		Message:   fmt.Sprintf("Purpose %d consent is required", id),
		PurposeID: id,
	}
}

func UnknownVendor(id int) ValidationError {
	return ValidationError{
		Code:     CodeUnknownVendor,
		Message:  fmt.Sprintf("Invalid vendor ID: %d", id),
		VendorID: id,
	}
}

// Outcome is the result of validating a submission. Errors keeps rule order.
type Outcome struct {
	Errors []ValidationError
}

func (o Outcome) Valid() bool { return len(o.Errors) == 0 }

// Codes lists the error codes in order, mostly for logs and metrics.
func (o Outcome) Codes() []string {
	codes := make([]string, len(o.Errors))
	for i, e := range o.Errors {
		codes[i] = string(e.Code)
	}
	return codes
}

// InvalidSubmissionError carries a failed Outcome through error returns.
type InvalidSubmissionError struct {
	Outcome Outcome
}

func (e *InvalidSubmissionError) Error() string {
	if len(e.Outcome.Errors) == 1 {
		return "invalid consent submission: " + e.Outcome.Errors[0].Message
	}
	return fmt.Sprintf("invalid consent submission: %d errors", len(e.Outcome.Errors))
}

// DecodeRequest is the body of the decode endpoint.
type DecodeRequest struct {
	TCString string `json:"tcString"`
}

func (r *DecodeRequest) Normalize() {
	r.TCString = strings.TrimSpace(r.TCString)
}

// GenerateResponse is returned when a token was produced.
type GenerateResponse struct {
	Success  bool   `json:"success"`
	TCString string `json:"tcString"`
}

// ValidateResponse is the validate endpoint's body in both outcomes.
type ValidateResponse struct {
	Success bool              `json:"success"`
	IsValid bool              `json:"isValid"`
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// FailureResponse is the envelope for domain failures.
type FailureResponse struct {
	Success bool              `json:"success"`
	Code    string            `json:"code"`
	Error   string            `json:"error,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}
