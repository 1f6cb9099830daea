package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tcfgate/internal/consent/models"
	"tcfgate/internal/vendorlist"
)

func registry(ids ...int) *vendorlist.Snapshot {
	snap := vendorlist.Empty()
	snap.Version = 1
	for _, id := range ids {
		snap.Vendors[id] = vendorlist.Vendor{ID: id}
	}
	return snap
}

func TestValidate(t *testing.T) {
	known := registry(8, 755)

	tests := []struct {
		name     string
		sub      models.Submission
		registry VendorRegistry
		want     []models.ValidationError
	}{
		{
			name:     "valid without vendors",
			sub:      models.Submission{Domain: "example.de", PurposeConsents: []int{1}},
			registry: known,
		},
		{
			name:     "valid with known vendors",
			sub:      models.Submission{Domain: "example.de", PurposeConsents: []int{1, 2}, Vendors: []int{8, 755}},
			registry: known,
		},
		{
			name:     "blank domain",
			sub:      models.Submission{Domain: "   ", PurposeConsents: []int{1}},
			registry: known,
			want:     []models.ValidationError{models.MissingDomain()},
		},
		{
			name:     "purpose one only as legitimate interest",
			sub:      models.Submission{Domain: "a.com", PurposeLegitimateInterests: []int{1}},
			registry: known,
			want:     []models.ValidationError{models.MissingRequiredPurpose(1)},
		},
		{
			name:     "missing domain and unknown vendor reported together",
			sub:      models.Submission{Domain: "", PurposeConsents: []int{1}, Vendors: []int{999999}},
			registry: known,
			want:     []models.ValidationError{models.MissingDomain(), models.UnknownVendor(999999)},
		},
		{
			name:     "every unknown vendor reported once in order",
			sub:      models.Submission{Domain: "a.com", PurposeConsents: []int{1}, Vendors: []int{3, 8, 4, 3}, VendorLegitimateInterests: []int{4, 5}},
			registry: known,
			want: []models.ValidationError{
				models.UnknownVendor(3),
				models.UnknownVendor(4),
				models.UnknownVendor(5),
			},
		},
		{
			name:     "all rules fail in rule order",
			sub:      models.Submission{Vendors: []int{1}},
			registry: known,
			want: []models.ValidationError{
				models.MissingDomain(),
				models.MissingRequiredPurpose(1),
				models.UnknownVendor(1),
			},
		},
		{
			name:     "empty registry knows no vendor",
			sub:      models.Submission{Domain: "a.com", PurposeConsents: []int{1}, Vendors: []int{8}},
			registry: vendorlist.Empty(),
			want:     []models.ValidationError{models.UnknownVendor(8)},
		},
		{
			name: "nil registry knows no vendor",
			sub:  models.Submission{Domain: "a.com", PurposeConsents: []int{1}, Vendors: []int{8}},
			want: []models.ValidationError{models.UnknownVendor(8)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.sub, tt.registry)
			assert.Equal(t, tt.want, got.Errors)
			assert.Equal(t, len(tt.want) == 0, got.Valid())
		})
	}
}
