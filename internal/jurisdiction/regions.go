package jurisdiction

import "strings"

// regulatedTLDs are the country-code suffixes (plus .eu) whose sites are
// treated as in scope without a geolocation lookup.
var regulatedTLDs = map[string]struct{}{
	"eu": {}, "at": {}, "be": {}, "bg": {}, "hr": {}, "cy": {}, "cz": {},
	"dk": {}, "ee": {}, "fi": {}, "fr": {}, "de": {}, "gr": {}, "hu": {},
	"ie": {}, "it": {}, "lv": {}, "lt": {}, "lu": {}, "mt": {}, "nl": {},
	"pl": {}, "pt": {}, "ro": {}, "sk": {}, "si": {}, "es": {}, "se": {},
}

// regulatedCountries are the EU member states plus the EEA members and GB.
var regulatedCountries = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {}, "DK": {},
	"EE": {}, "FI": {}, "FR": {}, "DE": {}, "GR": {}, "HU": {}, "IE": {},
	"IT": {}, "LV": {}, "LT": {}, "LU": {}, "MT": {}, "NL": {}, "PL": {},
	"PT": {}, "RO": {}, "SK": {}, "SI": {}, "ES": {}, "SE": {},
	"IS": {}, "LI": {}, "NO": {}, "GB": {},
}

// TopLevelDomain returns the lowercased last label of domain. It accepts bare
// hostnames as well as URLs with scheme, port, or path.
func TopLevelDomain(domain string) string {
	host := strings.TrimSpace(domain)
	if _, rest, ok := strings.Cut(host, "://"); ok {
		host = rest
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	host = strings.TrimSuffix(host, ".")
	i := strings.LastIndex(host, ".")
	if i < 0 || i == len(host)-1 {
		return ""
	}
	return strings.ToLower(host[i+1:])
}

// IsRegulatedDomain reports whether domain's TLD belongs to the regulated
// region.
func IsRegulatedDomain(domain string) bool {
	_, ok := regulatedTLDs[TopLevelDomain(domain)]
	return ok
}

// IsRegulatedCountry reports whether an ISO 3166-1 alpha-2 code is in scope.
func IsRegulatedCountry(code string) bool {
	_, ok := regulatedCountries[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}
