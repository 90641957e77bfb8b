package weather

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aurorael/chat-backend/pkg/textx"
)

//go:embed countries.yaml
var countriesYAML []byte

var countryCodes = mustLoadCountries()

func mustLoadCountries() map[string]string {
	out := map[string]string{}
	if err := yaml.Unmarshal(countriesYAML, &out); err != nil {
		panic("weather: bad embedded countries.yaml: " + err.Error())
	}
	return out
}

// countryCode resolves a free-form country name to its ISO code, or "".
func countryCode(name string) string {
	return countryCodes[textx.Normalize(strings.TrimSpace(name))]
}

// splitPlaceCountry parses "<place>, <country-name>" and returns the place and
// the mapped ISO code. ok is false when there is no comma or the country name
// is not in the table.
func splitPlaceCountry(location string) (place, code string, ok bool) {
	i := strings.LastIndex(location, ",")
	if i < 0 {
		return "", "", false
	}
	place = strings.TrimSpace(location[:i])
	code = countryCode(location[i+1:])
	if place == "" || code == "" {
		return "", "", false
	}
	return place, code, true
}
