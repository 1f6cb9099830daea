package consentstring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVendorSectionCost(t *testing.T) {
	contiguous := make([]int, 0, 100)
	for id := 1; id <= 100; id++ {
		contiguous = append(contiguous, id)
	}

	cases := []struct {
		name     string
		set      VendorSet
		bitfield int
		ranges   int
		want     VendorEncoding
	}{
		{"empty set prefers empty bitfield", nil, 0, 12, BitFieldEncoding},
		{"sparse low ids", NewVendorSet(1, 3, 5), 5, 12 + 3*17, BitFieldEncoding},
		{"one long run", NewVendorSet(contiguous...), 100, 12 + 33, RangeEncoding},
		{"single high id", NewVendorSet(4000), 4000, 12 + 17, RangeEncoding},
		{"exact tie goes to bitfield", NewVendorSet(29), 29, 29, BitFieldEncoding},
		{"one past the tie switches to ranges", NewVendorSet(30), 30, 29, RangeEncoding},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cost := VendorSectionCost(tc.set)
			assert.Equal(t, tc.bitfield, cost.BitField)
			assert.Equal(t, tc.ranges, cost.Range)
			assert.Equal(t, tc.want, cost.Choice())
		})
	}
}

func TestVendorRanges_MaximalMerging(t *testing.T) {
	got := vendorRanges(NewVendorSet(1, 2, 3, 5, 7, 8, 20))
	assert.Equal(t, []vendorRange{{1, 3}, {5, 5}, {7, 8}, {20, 20}}, got)

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].start, got[i-1].end+1, "adjacent entries must not be mergeable")
	}

	assert.Nil(t, vendorRanges(nil))
}
