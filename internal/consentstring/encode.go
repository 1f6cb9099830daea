package consentstring

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"tcfgate/internal/consentstring/bitstream"
)

// Encode renders rec as a URL-safe, unpadded base64 consent string.
func Encode(rec ConsentRecord) (string, error) {
	buf, err := EncodeBytes(rec)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// EncodeBytes packs rec into its binary core segment. Vendor sets are
// canonicalized first, so equal sets always produce identical output.
func EncodeBytes(rec ConsentRecord) ([]byte, error) {
	if rec.Version != Version {
		return nil, newError(KindUnsupportedVersion, "version %d, want %d", rec.Version, Version)
	}
	if rec.Created.After(rec.LastUpdated) {
		return nil, invalidField("created", "after lastUpdated")
	}

	e := &encoder{}
	e.uint("version", rec.Version, versionBits)
	e.timestamp("created", rec.Created)
	e.timestamp("lastUpdated", rec.LastUpdated)
	e.uint("cmpId", rec.CmpID, cmpIDBits)
	e.uint("cmpVersion", rec.CmpVersion, cmpVersionBits)
	e.uint("consentScreen", rec.ConsentScreen, consentScreenBits)
	e.letters("consentLanguage", rec.ConsentLanguage)
	e.uint("vendorListVersion", rec.VendorListVersion, vendorListVerBits)
	e.uint("policyVersion", rec.PolicyVersion, policyVersionBits)
	e.w.WriteBool(rec.IsServiceSpecific)
	e.w.WriteBool(rec.UseNonStandardStacks)
	e.fixedSet("specialFeatureOptins", rec.SpecialFeatureOptIns, SpecialFeatureWidth)
	e.fixedSet("purposeConsents", rec.PurposeConsents, PurposeWidth)
	e.fixedSet("purposeLegitimateInterests", rec.PurposeLegitimateInterests, PurposeWidth)
	e.w.WriteBool(rec.PurposeOneTreatment)
	e.letters("publisherCountryCode", rec.PublisherCountryCode)
	e.vendorSection("vendorConsents", NewVendorSet(rec.VendorConsents...))
	e.vendorSection("vendorLegitimateInterests", NewVendorSet(rec.VendorLegitimateInterests...))
	e.restrictions(rec.PublisherRestrictions)

	if e.err != nil {
		return nil, e.err
	}
	buf, err := e.w.Bytes()
	if err != nil {
		return nil, &CodecError{Kind: KindInvalidField, Message: err.Error(), Err: err}
	}
	return buf, nil
}

// encoder validates each field against its width before handing it to the
// bit writer, so failures name the offending field.
type encoder struct {
	w   bitstream.Writer
	err error
}

func (e *encoder) uint(field string, v, width int) {
	if e.err != nil {
		return
	}
	if v < 0 || v >= 1<<uint(width) {
		e.err = invalidField(field, "%d does not fit in %d bits", v, width)
		return
	}
	e.w.WriteUint(uint64(v), width)
}

func (e *encoder) timestamp(field string, t time.Time) {
	if e.err != nil {
		return
	}
	ds := t.UnixMilli() / 100
	if ds < 0 || ds >= 1<<timestampBits {
		e.err = invalidField(field, "%s outside the encodable range", t.Format(time.RFC3339))
		return
	}
	e.w.WriteUint(uint64(ds), timestampBits)
}

// letters writes a two-letter code as two 6-bit offsets from 'A'.
func (e *encoder) letters(field, code string) {
	if e.err != nil {
		return
	}
	code = strings.ToUpper(code)
	if len(code) != 2 {
		e.err = invalidField(field, "%q is not a two-letter code", code)
		return
	}
	for i := 0; i < 2; i++ {
		c := code[i]
		if c < 'A' || c > 'Z' {
			e.err = invalidField(field, "%q contains a character outside A-Z", code)
			return
		}
		e.w.WriteUint(uint64(c-'A'), letterBits)
	}
}

func (e *encoder) fixedSet(field string, s FixedSet, width int) {
	if e.err != nil {
		return
	}
	if !s.fits(width) {
		e.err = invalidField(field, "position beyond %d", width)
		return
	}
	e.w.WriteBitset(s.Has, width)
}

func (e *encoder) restrictions(rs []PublisherRestriction) {
	e.uint("publisherRestrictions", len(rs), restrictionCountBits)
	seen := make(map[[2]int]bool, len(rs))
	total := 0
	for _, pr := range rs {
		if e.err != nil {
			return
		}
		key := [2]int{pr.PurposeID, int(pr.Type)}
		if seen[key] {
			e.err = invalidField("publisherRestrictions", "purpose %d listed twice for %s", pr.PurposeID, pr.Type)
			return
		}
		seen[key] = true
		e.uint("publisherRestrictions.purposeId", pr.PurposeID, restrictPurposeBits)
		e.uint("publisherRestrictions.restrictionType", int(pr.Type), restrictTypeBits)
		set := NewVendorSet(pr.Vendors...)
		if total += len(set); total > MaxRestrictionVendors {
			e.err = invalidField("publisherRestrictions.vendors", "more than %d vendor ids", MaxRestrictionVendors)
			return
		}
		e.vendorIDs("publisherRestrictions.vendors", set)
		e.rangeEntries("publisherRestrictions", vendorRanges(set))
	}
}

// readError converts a bit reader failure into a CodecError.
func readError(field string, err error) error {
	if errors.Is(err, bitstream.ErrTruncated) {
		return &CodecError{Kind: KindTruncatedInput, Message: field, Err: err}
	}
	return &CodecError{Kind: KindInvalidField, Message: field, Err: err}
}
