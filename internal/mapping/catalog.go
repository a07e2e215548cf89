package mapping

// knownRegions is the source's region code list, used when every page
// extraction strategy fails and discovery falls back to probing.
var knownRegions = []string{"af", "as", "aus-nzl", "can", "eur", "lat-a", "mid-e", "usa"}

// candidateCountries is the probe catalog: ISO country codes plus US
// state and Canadian province codes, grouped roughly by continent. The
// source keys US and Canadian listings by subnational codes, so those
// overlap with ISO entries (CA, DE, ...) on purpose.
var candidateCountries = []string{
	// Europe
	"DE", "FR", "GB", "IT", "ES", "NL", "BE", "CH", "AT", "PL", "SE", "NO", "DK", "FI",
	"IE", "PT", "GR", "CZ", "HU", "RO", "BG", "HR", "SI", "SK", "LT", "LV", "EE", "CY",
	"MT", "LU", "AL", "BA", "MK", "ME", "RS", "XK", "MD", "UA", "AM", "GE", "AZ", "TR",
	// Asia
	"CN", "JP", "KR", "IN", "ID", "TH", "VN", "MY", "SG", "PH", "TW", "HK", "MO", "KH",
	"MM", "BD", "PK", "LK", "NP", "BN", "MV", "MN", "KZ", "UZ",
	// Americas
	"US", "MX", "BR", "AR", "CO", "PE", "VE", "CL", "EC", "BO", "PY", "UY", "GY", "SR",
	"GF", "CR", "PA", "GT", "HN", "SV", "NI", "BZ", "DO", "HT", "JM", "TT", "BB", "BS", "CU",
	// US states
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA", "HI", "ID", "IL", "IN",
	"IA", "KS", "KY", "LA", "ME", "MD", "MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV",
	"NH", "NJ", "NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC", "SD", "TN",
	"TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
	// Canadian provinces and territories
	"AB", "BC", "MB", "NB", "NL", "NS", "NT", "NU", "ON", "PE", "QC", "SK", "YT",
	// Africa
	"ZA", "NG", "KE", "GH", "TZ", "UG", "ZW", "NA", "BW", "ZM", "MW", "MZ", "MG", "MU",
	"CD", "CM", "CI", "SN", "ML", "BF", "NE", "TD", "CF", "CG", "GA", "GQ", "ST", "AO",
	"LY", "DZ", "TN", "MA", "EG", "SD", "SS", "ET", "ER", "DJ", "SO",
	// Middle East
	"SA", "AE", "IL", "IQ", "IR", "JO", "LB", "SY", "YE", "OM", "QA", "KW", "BH", "AF",
	// Oceania
	"AU", "NZ", "FJ", "PG", "VU", "SB", "PF", "WS", "KI", "TO", "MH", "FM", "PW", "NR", "TV",
}
