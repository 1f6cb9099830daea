// Package vendorlist fetches and caches the Global Vendor List, the external
// registry of vendors and purposes that consent submissions are checked
// against.
package vendorlist

import "time"

// Vendor is the subset of registry vendor metadata this service reads.
type Vendor struct {
	ID               int        `json:"id"`
	Name             string     `json:"name"`
	Purposes         []int      `json:"purposes"`
	LegIntPurposes   []int      `json:"legIntPurposes"`
	FlexiblePurposes []int      `json:"flexiblePurposes"`
	SpecialPurposes  []int      `json:"specialPurposes"`
	Features         []int      `json:"features"`
	SpecialFeatures  []int      `json:"specialFeatures"`
	PolicyURL        string     `json:"policyUrl,omitempty"`
	DeletedDate      *time.Time `json:"deletedDate,omitempty"`
}

// Purpose describes a purpose or feature entry.
type Purpose struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Snapshot is one complete registry version. Snapshots are immutable once
// published by the Cache; a refresh replaces the whole value.
type Snapshot struct {
	Version       int             `json:"vendorListVersion"`
	PolicyVersion int             `json:"tcfPolicyVersion"`
	LastUpdated   time.Time       `json:"lastUpdated"`
	FetchedAt     time.Time       `json:"-"`
	Vendors       map[int]Vendor  `json:"vendors"`
	Purposes      map[int]Purpose `json:"purposes"`
	Features      map[int]Purpose `json:"features"`
}

// Empty is the fallback served when no registry has ever loaded. Every
// vendor lookup against it misses.
func Empty() *Snapshot {
	return &Snapshot{
		Vendors:  map[int]Vendor{},
		Purposes: map[int]Purpose{},
		Features: map[int]Purpose{},
	}
}

// HasVendor reports whether id is a known vendor. Safe on a nil receiver.
func (s *Snapshot) HasVendor(id int) bool {
	if s == nil {
		return false
	}
	_, ok := s.Vendors[id]
	return ok
}

// IsEmpty reports whether the snapshot is the empty fallback shape.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (s.Version == 0 && len(s.Vendors) == 0)
}
