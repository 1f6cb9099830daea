package consentstring

import (
	"encoding/base64"
	"strings"

	"tcfgate/internal/consentstring/bitstream"
)

// Decode parses a consent string. Only the core segment (everything before
// the first '.') is decoded; trailing '=' padding is tolerated.
func Decode(token string) (ConsentRecord, error) {
	core, _, _ := strings.Cut(strings.TrimSpace(token), ".")
	core = strings.TrimRight(core, "=")
	buf, err := base64.RawURLEncoding.DecodeString(core)
	if err != nil {
		return ConsentRecord{}, &CodecError{Kind: KindInvalidField, Message: "token is not url-safe base64", Err: err}
	}
	return DecodeBytes(buf)
}

// DecodeBytes parses a binary core segment.
func DecodeBytes(buf []byte) (ConsentRecord, error) {
	r := bitstream.NewReader(buf)

	version := r.ReadInt(versionBits)
	if err := r.Err(); err != nil {
		return ConsentRecord{}, readError("version", err)
	}
	if version != Version {
		return ConsentRecord{}, newError(KindUnsupportedVersion, "version %d, want %d", version, Version)
	}

	rec := ConsentRecord{Version: version}
	rec.Created = fromDeciseconds(int64(r.ReadUint(timestampBits)))
	rec.LastUpdated = fromDeciseconds(int64(r.ReadUint(timestampBits)))
	rec.CmpID = r.ReadInt(cmpIDBits)
	rec.CmpVersion = r.ReadInt(cmpVersionBits)
	rec.ConsentScreen = r.ReadInt(consentScreenBits)
	lang := readLetters(r)
	rec.VendorListVersion = r.ReadInt(vendorListVerBits)
	rec.PolicyVersion = r.ReadInt(policyVersionBits)
	rec.IsServiceSpecific = r.ReadBool()
	rec.UseNonStandardStacks = r.ReadBool()
	rec.SpecialFeatureOptIns = readFixedSet(r, SpecialFeatureWidth)
	rec.PurposeConsents = readFixedSet(r, PurposeWidth)
	rec.PurposeLegitimateInterests = readFixedSet(r, PurposeWidth)
	rec.PurposeOneTreatment = r.ReadBool()
	country := readLetters(r)
	if err := r.Err(); err != nil {
		return ConsentRecord{}, readError("core fields", err)
	}

	var ok bool
	if rec.ConsentLanguage, ok = lettersString(lang); !ok {
		return ConsentRecord{}, invalidField("consentLanguage", "symbol outside A-Z")
	}
	if rec.PublisherCountryCode, ok = lettersString(country); !ok {
		return ConsentRecord{}, invalidField("publisherCountryCode", "symbol outside A-Z")
	}

	var err error
	if rec.VendorConsents, err = readVendorSection(r, "vendorConsents"); err != nil {
		return ConsentRecord{}, err
	}
	if rec.VendorLegitimateInterests, err = readVendorSection(r, "vendorLegitimateInterests"); err != nil {
		return ConsentRecord{}, err
	}
	if rec.PublisherRestrictions, err = readRestrictions(r); err != nil {
		return ConsentRecord{}, err
	}
	return rec, nil
}

func readLetters(r *bitstream.Reader) [2]int {
	return [2]int{r.ReadInt(letterBits), r.ReadInt(letterBits)}
}

func lettersString(l [2]int) (string, bool) {
	if l[0] > 25 || l[1] > 25 {
		return "", false
	}
	return string([]byte{byte('A' + l[0]), byte('A' + l[1])}), true
}

func readFixedSet(r *bitstream.Reader, width int) FixedSet {
	var s FixedSet
	r.ReadBitset(width, func(pos int) { s = s.With(pos) })
	return s
}

// minRestrictionBits is the shortest tail that can hold a restriction
// count. Anything shorter is byte padding and means the section is absent.
const minRestrictionBits = 8

func readRestrictions(r *bitstream.Reader) ([]PublisherRestriction, error) {
	if r.Remaining() < minRestrictionBits {
		return nil, nil
	}
	n := r.ReadInt(restrictionCountBits)
	if !r.Require(n * (restrictPurposeBits + restrictTypeBits + numEntriesBits)) {
		return nil, readError("publisherRestrictions", r.Err())
	}
	if n == 0 {
		return nil, nil
	}

	type pair struct {
		purpose int
		kind    RestrictionType
	}
	seen := make(map[pair]bool, n)
	ranges := make([][]vendorRange, 0, n)
	out := make([]PublisherRestriction, 0, n)
	total := 0
	for i := 0; i < n; i++ {
		pr := PublisherRestriction{
			PurposeID: r.ReadInt(restrictPurposeBits),
			Type:      RestrictionType(r.ReadUint(restrictTypeBits)),
		}
		key := pair{pr.PurposeID, pr.Type}
		if seen[key] {
			return nil, invalidField("publisherRestrictions", "purpose %d listed twice for %s", pr.PurposeID, pr.Type)
		}
		seen[key] = true

		rs, err := readRanges(r, "publisherRestrictions", MaxVendorID)
		if err != nil {
			return nil, err
		}
		total += rangesSize(rs)
		if total > MaxRestrictionVendors {
			return nil, newError(KindMalformedVendorRange, "publisherRestrictions: more than %d vendor ids", MaxRestrictionVendors)
		}
		ranges = append(ranges, rs)
		out = append(out, pr)
	}
	for i := range out {
		out[i].Vendors = expandRanges(ranges[i])
	}
	return out, nil
}
