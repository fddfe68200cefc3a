package env

import (
	"os"
	"regexp"
)

var refPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Expand replaces ${VAR} and ${VAR:-default} with values from the process
// environment. Unset variables without a default expand to "". A bare $VAR
// is left alone.
func Expand(s string) string {
	return ExpandWith(s, os.LookupEnv)
}

// ExpandWith is Expand with a custom lookup function.
func ExpandWith(s string, lookup func(string) (string, bool)) string {
	return refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		m := refPattern.FindStringSubmatch(ref)
		if v, ok := lookup(m[1]); ok && v != "" {
			return v
		}
		return m[2]
	})
}
