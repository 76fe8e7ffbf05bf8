// Package log provides slog loggers that never print secrets.
//
// SecureHandler masks attributes whose keys look sensitive (authorization,
// cookie, secret, token) and values that look like credentials (bearer
// strings, JWTs, long opaque keys). Stream URLs are logged with their
// auth-marker query values masked:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("candidate rejected", "url", "https://cdn.example/a.m3u8?token=abc")
//	// url=https://cdn.example/a.m3u8?token=***REDACTED***
//
// The same logger is handed to the embedded Tor daemon so its output is
// sanitized as well.
package log
