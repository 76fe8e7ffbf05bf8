package config

import "strings"

// Environment variables read by ApplyEnv. The unprefixed names are the ones
// older deployments of the capture script used.
const (
	EnvTarget       = "TARGET_URL"
	EnvSinkEndpoint = "WORKER_UPDATE_URL"
	EnvSinkSecret   = "STREAMSCOUT_SINK_SECRET"
	EnvLegacySecret = "WORKER_SECRET"
	EnvHeadless     = "HEADLESS"
	EnvUserAgent    = "USER_AGENT"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables on c. TARGET_URL only fills an
// empty target; every other variable overrides what is there. The prefixed
// secret wins over the legacy one. Any HEADLESS value other than the exact
// string "false" keeps the browser headless.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	get := func(key string) string {
		v, ok := lookup(key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}

	if c.Target == "" {
		c.Target = get(EnvTarget)
	}
	if v := get(EnvSinkEndpoint); v != "" {
		c.SinkEndpoint = v
	}
	for _, key := range []string{EnvSinkSecret, EnvLegacySecret} {
		if v := get(key); v != "" {
			c.SinkSecret = v
			break
		}
	}
	if v := get(EnvHeadless); v != "" {
		c.Headless = v != "false"
	}
	if v := get(EnvUserAgent); v != "" {
		c.UserAgent = v
	}
}
