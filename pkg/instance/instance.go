package instance

import "os"

// EnvInstanceID overrides the identifier reported in logs and lock tokens.
const EnvInstanceID = "STOREFRONT_INSTANCE_ID"

// GetID returns the process instance identifier. Heroku-style DYNO names and
// the hostname are used when no explicit id is set.
func GetID() string {
	if id := os.Getenv(EnvInstanceID); id != "" {
		return id
	}
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
