package discovery

import (
	"strconv"
	"strings"
)

// AlternativeName returns the next service name to try after a collision:
// "kiosk" becomes "kiosk #2", "kiosk #2" becomes "kiosk #3", and so on.
// Every instance applies the same transform, so retries converge instead of
// wandering.
func AlternativeName(name string) string {
	base := name
	n := 1

	if i := strings.LastIndex(name, " #"); i >= 0 {
		// Only a canonical " #<digits>" suffix counts; "kiosk #007" and
		// "kiosk #x" get a fresh counter appended instead.
		suffix := name[i+2:]
		if parsed, err := strconv.Atoi(suffix); err == nil && parsed >= 0 && suffix == strconv.Itoa(parsed) {
			base = name[:i]
			n = parsed
		}
	}

	return base + " #" + strconv.Itoa(n+1)
}
