package formatter

// GenericFlag is used for countries missing from the flag table.
const GenericFlag = "🏳️"

var flags = map[string]string{
	"Syria":                "🇸🇾",
	"Iraq":                 "🇮🇶",
	"Yemen":                "🇾🇪",
	"Libya":                "🇱🇾",
	"Lebanon":              "🇱🇧",
	"Sudan":                "🇸🇩",
	"South Sudan":          "🇸🇸",
	"Somalia":              "🇸🇴",
	"Algeria":              "🇩🇿",
	"Egypt":                "🇪🇬",
	"Tunisia":              "🇹🇳",
	"Morocco":              "🇲🇦",
	"Saudi Arabia":         "🇸🇦",
	"UAE":                  "🇦🇪",
	"United Arab Emirates": "🇦🇪",
	"Qatar":                "🇶🇦",
	"Bahrain":              "🇧🇭",
	"Oman":                 "🇴🇲",
	"Kuwait":               "🇰🇼",
	"Jordan":               "🇯🇴",
	"Palestine":            "🇵🇸",
	"Israel":               "🇮🇱",
	"Iran":                 "🇮🇷",
	"Turkey":               "🇹🇷",
	"Türkiye":              "🇹🇷",
	"Afghanistan":          "🇦🇫",
	"Pakistan":             "🇵🇰",
	"Mauritania":           "🇲🇷",
	"Djibouti":             "🇩🇯",
	"Comoros":              "🇰🇲",
	"Senegal":              "🇸🇳",
	"Mali":                 "🇲🇱",
	"Niger":                "🇳🇪",
	"Chad":                 "🇹🇩",
	"Gambia":               "🇬🇲",
	"Sierra Leone":         "🇸🇱",
	"Nigeria":              "🇳🇬",
	"Eritrea":              "🇪🇷",
	"Ethiopia":             "🇪🇹",
	"Burkina Faso":         "🇧🇫",
	"Ukraine":              "🇺🇦",
	"Russia":               "🇷🇺",
	"Myanmar":              "🇲🇲",
	"DR Congo":             "🇨🇩",
	"DRC":                  "🇨🇩",
}

// FlagFor returns the flag emoji for a country name. The lookup is exact and case-sensitive.
func FlagFor(country string) string {
	if f, ok := flags[country]; ok {
		return f
	}
	return GenericFlag
}
