package env

import (
	"os"
	"strings"
)

// Prefix namespaces every variable the newsletter binaries read.
const Prefix = "NEWSLETTER_"

// Get reads NEWSLETTER_<key>, then the bare key, and falls back when both are
// unset or blank. It serves settings needed before config.Load runs.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
