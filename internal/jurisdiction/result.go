package jurisdiction

import "time"

// Reason records which signal decided a Result.
type Reason string

const (
	ReasonDomainMatch          Reason = "domain_match"
	ReasonGeoMatch             Reason = "geo_match"
	ReasonDefaultAssumed       Reason = "default_assumed"
	ReasonLookupErrorDefaulted Reason = "lookup_error_defaulted"
)

// Description is the human-readable form of the reason.
func (r Reason) Description() string {
	switch r {
	case ReasonDomainMatch:
		return "EU domain detected"
	case ReasonGeoMatch:
		return "EU IP detected"
	case ReasonLookupErrorDefaulted:
		return "Error during check - defaulting to GDPR compliance"
	default:
		return "Default: GDPR compliance assumed"
	}
}

// Result is an immutable, per-request applicability decision.
type Result struct {
	Applies     bool      `json:"applies"`
	Reason      Reason    `json:"reason"`
	Description string    `json:"description"`
	Country     string    `json:"country,omitempty"`
	Error       string    `json:"error,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

func newResult(reason Reason, at time.Time) Result {
	return Result{
		Applies:     true,
		Reason:      reason,
		Description: reason.Description(),
		EvaluatedAt: at,
	}
}
