// Package consentstring encodes and decodes TCF v2 core consent strings.
//
// A consent string is the bit-packed ConsentRecord rendered as URL-safe base64
// without padding. Encode is strict and always produces the canonical form;
// Decode is lenient about non-canonical vendor ranges but never about
// versions, declared lengths, or out-of-bounds vendor ids.
//
// The codec never consults the vendor list.
package consentstring

import (
	"encoding/json"
	"sort"
	"time"
)

// Version is the only schema version this codec reads or writes.
const Version = 2

// Field widths of the core segment, in bits.
const (
	versionBits          = 6
	timestampBits        = 36
	cmpIDBits            = 12
	cmpVersionBits       = 12
	consentScreenBits    = 6
	letterBits           = 6
	vendorListVerBits    = 12
	policyVersionBits    = 6
	SpecialFeatureWidth  = 12
	PurposeWidth         = 24
	vendorIDBits         = 16
	numEntriesBits       = 12
	restrictionCountBits = 12
	restrictPurposeBits  = 6
	restrictTypeBits     = 2
)

// MaxVendorID is the largest vendor id a 16-bit field can carry.
const MaxVendorID = 1<<vendorIDBits - 1

// MaxRestrictionVendors bounds the vendor ids listed across all publisher
// restrictions of one record.
const MaxRestrictionVendors = MaxVendorID

// ConsentRecord is the decoded form of a consent string.
type ConsentRecord struct {
	Version                    int                    `json:"version"`
	Created                    time.Time              `json:"created"`
	LastUpdated                time.Time              `json:"lastUpdated"`
	CmpID                      int                    `json:"cmpId"`
	CmpVersion                 int                    `json:"cmpVersion"`
	ConsentScreen              int                    `json:"consentScreen"`
	ConsentLanguage            string                 `json:"consentLanguage"`
	VendorListVersion          int                    `json:"vendorListVersion"`
	PolicyVersion              int                    `json:"policyVersion"`
	IsServiceSpecific          bool                   `json:"isServiceSpecific"`
	UseNonStandardStacks       bool                   `json:"useNonStandardStacks"`
	SpecialFeatureOptIns       FixedSet               `json:"specialFeatureOptins"`
	PurposeConsents            FixedSet               `json:"purposeConsents"`
	PurposeLegitimateInterests FixedSet               `json:"purposeLegitimateInterests"`
	PurposeOneTreatment        bool                   `json:"purposeOneTreatment"`
	PublisherCountryCode       string                 `json:"publisherCountryCode"`
	VendorConsents             VendorSet              `json:"vendorConsents"`
	VendorLegitimateInterests  VendorSet              `json:"vendorLegitimateInterests"`
	PublisherRestrictions      []PublisherRestriction `json:"publisherRestrictions,omitempty"`
}

// TruncateTimestamp drops everything below deci-second resolution and
// normalizes to UTC, matching what a round trip through the codec yields.
func TruncateTimestamp(t time.Time) time.Time {
	return fromDeciseconds(t.UnixMilli() / 100)
}

func fromDeciseconds(ds int64) time.Time {
	return time.UnixMilli(ds * 100).UTC()
}

// FixedSet is a 1-indexed set of up to 64 positions. The field it is written
// to decides the usable width.
type FixedSet uint64

// NewFixedSet returns a set holding positions. Positions outside 1..64 are
// ignored.
func NewFixedSet(positions ...int) FixedSet {
	var s FixedSet
	for _, p := range positions {
		s = s.With(p)
	}
	return s
}

// With returns a copy of s with pos set.
func (s FixedSet) With(pos int) FixedSet {
	if pos < 1 || pos > 64 {
		return s
	}
	return s | 1<<uint(pos-1)
}

// Has reports whether pos is set.
func (s FixedSet) Has(pos int) bool {
	if pos < 1 || pos > 64 {
		return false
	}
	return s&(1<<uint(pos-1)) != 0
}

// Positions returns the set positions in ascending order.
func (s FixedSet) Positions() []int {
	out := []int{}
	for p := 1; p <= 64; p++ {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// fits reports whether no position beyond width is set.
func (s FixedSet) fits(width int) bool {
	return width >= 64 || s>>uint(width) == 0
}

func (s FixedSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Positions())
}

func (s *FixedSet) UnmarshalJSON(data []byte) error {
	var positions []int
	if err := json.Unmarshal(data, &positions); err != nil {
		return err
	}
	*s = NewFixedSet(positions...)
	return nil
}

// VendorSet is an ascending, duplicate-free list of vendor ids. The empty set
// is nil.
type VendorSet []int

// NewVendorSet sorts and deduplicates ids.
func NewVendorSet(ids ...int) VendorSet {
	if len(ids) == 0 {
		return nil
	}
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.Ints(sorted)
	out := sorted[:1]
	for _, id := range sorted[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return VendorSet(out)
}

// Has reports whether id is in the set.
func (s VendorSet) Has(id int) bool {
	i := sort.SearchInts(s, id)
	return i < len(s) && s[i] == id
}

// Max returns the highest id, or 0 for the empty set. This is the declared
// maximum vendor id written ahead of a vendor section.
func (s VendorSet) Max() int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func (s VendorSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(s))
}

// RestrictionType is the publisher's override for a purpose.
type RestrictionType uint8

const (
	RestrictionNotAllowed RestrictionType = iota
	RestrictionRequireConsent
	RestrictionRequireLegitimateInterest
	RestrictionUndefined
)

func (t RestrictionType) String() string {
	switch t {
	case RestrictionNotAllowed:
		return "not_allowed"
	case RestrictionRequireConsent:
		return "require_consent"
	case RestrictionRequireLegitimateInterest:
		return "require_legitimate_interest"
	default:
		return "undefined"
	}
}

// PublisherRestriction overrides default vendor behavior for one purpose.
type PublisherRestriction struct {
	PurposeID int             `json:"purposeId"`
	Type      RestrictionType `json:"restrictionType"`
	Vendors   VendorSet       `json:"vendors"`
}
