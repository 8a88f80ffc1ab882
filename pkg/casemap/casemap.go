package casemap

import (
	"strings"

	"golang.org/x/text/cases"
)

var rfc1459 = strings.NewReplacer("[", "{", "]", "}", "\\", "|", "~", "^")

// Fold returns the rfc1459 case-folded form of name, suitable as a map key
// for nicknames, channels and accounts.
func Fold(name string) string {
	return rfc1459.Replace(cases.Fold().String(name))
}

// Equal reports whether a and b name the same thing.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}
