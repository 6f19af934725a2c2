package subscriptions

import (
	"strings"
)

// masculine first names which end like feminine ones in Czech
var masculineFirstNames = map[string]bool{
	"honza":  true,
	"jirka":  true,
	"kuba":   true,
	"jarda":  true,
	"franta": true,
	"pepa":   true,
	"standa": true,
	"vojta":  true,
	"nikola": true,
	"ilja":   true,
	"luka":   true,
	"luca":   true,
	"sasha":  true,
	"joshua": true,
}

// IsFeminineName guesses whether a full name is feminine using Czech naming
// conventions: feminine surnames end with "á" (Nováková, Novotná) and most
// feminine first names end with "a" or "ie".
func IsFeminineName(fullName string) bool {
	words := strings.Fields(strings.ToLower(fullName))
	if len(words) == 0 {
		return false
	}
	if len(words) > 1 && strings.HasSuffix(words[len(words)-1], "á") {
		return true
	}
	first := strings.Trim(words[0], ".,")
	if masculineFirstNames[first] {
		return false
	}
	return strings.HasSuffix(first, "a") || strings.HasSuffix(first, "ie")
}
