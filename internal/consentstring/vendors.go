package consentstring

import (
	"cmp"
	"slices"

	"tcfgate/internal/consentstring/bitstream"
)

// VendorEncoding is the representation chosen for a vendor section.
type VendorEncoding uint8

const (
	BitFieldEncoding VendorEncoding = iota
	RangeEncoding
)

func (e VendorEncoding) String() string {
	if e == RangeEncoding {
		return "range"
	}
	return "bitfield"
}

// VendorCost is the size in bits of each candidate representation of a
// vendor set, excluding the shared header (max vendor id and encoding flag).
type VendorCost struct {
	BitField int
	Range    int
}

// Choice picks the cheaper representation. Ties go to the bitfield.
func (c VendorCost) Choice() VendorEncoding {
	if c.Range < c.BitField {
		return RangeEncoding
	}
	return BitFieldEncoding
}

// VendorSectionCost computes both candidate sizes for set. set must be
// canonical (see NewVendorSet).
func VendorSectionCost(set VendorSet) VendorCost {
	return VendorCost{
		BitField: set.Max(),
		Range:    rangeEntriesBits(vendorRanges(set)),
	}
}

type vendorRange struct {
	start, end int
}

// vendorRanges merges a canonical set into maximal contiguous runs.
func vendorRanges(set VendorSet) []vendorRange {
	var out []vendorRange
	for _, id := range set {
		if n := len(out); n > 0 && out[n-1].end+1 == id {
			out[n-1].end = id
			continue
		}
		out = append(out, vendorRange{start: id, end: id})
	}
	return out
}

func rangeEntriesBits(ranges []vendorRange) int {
	bits := numEntriesBits
	for _, r := range ranges {
		bits += 1 + vendorIDBits
		if r.end > r.start {
			bits += vendorIDBits
		}
	}
	return bits
}

func (e *encoder) vendorSection(field string, set VendorSet) {
	e.vendorIDs(field, set)
	if e.err != nil {
		return
	}
	maxID := set.Max()
	e.uint(field+".maxVendorId", maxID, vendorIDBits)
	if VendorSectionCost(set).Choice() == RangeEncoding {
		e.w.WriteBool(true)
		e.rangeEntries(field, vendorRanges(set))
		return
	}
	e.w.WriteBool(false)
	e.w.WriteBitset(set.Has, maxID)
}

func (e *encoder) rangeEntries(field string, ranges []vendorRange) {
	e.uint(field+".numEntries", len(ranges), numEntriesBits)
	if e.err != nil {
		return
	}
	for _, r := range ranges {
		isRange := r.end > r.start
		e.w.WriteBool(isRange)
		e.w.WriteUint(uint64(r.start), vendorIDBits)
		if isRange {
			e.w.WriteUint(uint64(r.end), vendorIDBits)
		}
	}
}

func (e *encoder) vendorIDs(field string, set VendorSet) {
	if e.err != nil {
		return
	}
	for _, id := range set {
		if id < 1 || id > MaxVendorID {
			e.err = invalidField(field, "vendor id %d outside 1..%d", id, MaxVendorID)
			return
		}
	}
}

// readVendorSection reads a max-vendor-id header followed by either a
// bitfield or a range list.
func readVendorSection(r *bitstream.Reader, field string) (VendorSet, error) {
	maxID := r.ReadInt(vendorIDBits)
	isRange := r.ReadBool()
	if err := r.Err(); err != nil {
		return nil, readError(field, err)
	}
	if !isRange {
		if !r.Require(maxID) {
			return nil, readError(field, r.Err())
		}
		var ids []int
		r.ReadBitset(maxID, func(pos int) { ids = append(ids, pos) })
		if err := r.Err(); err != nil {
			return nil, readError(field, err)
		}
		return VendorSet(ids), nil
	}
	ranges, err := readRanges(r, field, maxID)
	if err != nil {
		return nil, err
	}
	return expandRanges(ranges), nil
}

// readRanges accepts unordered, overlapping or adjacent entries and merges
// them into sorted maximal runs. Every id must lie in 1..maxID.
func readRanges(r *bitstream.Reader, field string, maxID int) ([]vendorRange, error) {
	n := r.ReadInt(numEntriesBits)
	// every entry carries at least a flag and a start id
	if !r.Require(n * (1 + vendorIDBits)) {
		return nil, readError(field, r.Err())
	}
	if n == 0 {
		return nil, nil
	}
	entries := make([]vendorRange, 0, n)
	for i := 0; i < n; i++ {
		isRange := r.ReadBool()
		start := r.ReadInt(vendorIDBits)
		end := start
		if isRange {
			end = r.ReadInt(vendorIDBits)
		}
		if err := r.Err(); err != nil {
			return nil, readError(field, err)
		}
		if start < 1 || end < start || end > maxID {
			return nil, newError(KindMalformedVendorRange, "%s: entry %d [%d,%d] outside 1..%d", field, i, start, end, maxID)
		}
		entries = append(entries, vendorRange{start: start, end: end})
	}
	return mergeRanges(entries), nil
}

func mergeRanges(entries []vendorRange) []vendorRange {
	slices.SortFunc(entries, func(a, b vendorRange) int { return cmp.Compare(a.start, b.start) })
	out := entries[:1]
	for _, e := range entries[1:] {
		last := &out[len(out)-1]
		if e.start <= last.end+1 {
			last.end = max(last.end, e.end)
			continue
		}
		out = append(out, e)
	}
	return out
}

// rangesSize counts the ids covered by merged ranges.
func rangesSize(ranges []vendorRange) int {
	n := 0
	for _, r := range ranges {
		n += r.end - r.start + 1
	}
	return n
}

func expandRanges(ranges []vendorRange) VendorSet {
	if len(ranges) == 0 {
		return nil
	}
	ids := make([]int, 0, rangesSize(ranges))
	for _, r := range ranges {
		for id := r.start; id <= r.end; id++ {
			ids = append(ids, id)
		}
	}
	return VendorSet(ids)
}
