package config

import "errors"

// Configuration validation errors returned by Config.Validate. The CLI maps
// every one of them to the configuration exit status.
var (
	// ErrNoTarget is returned when neither an argument nor TARGET_URL names a page.
	ErrNoTarget = errors.New("no target specified: provide a page URL or set TARGET_URL")

	// ErrInvalidTargetURL is returned when the target is not an absolute http(s) URL.
	ErrInvalidTargetURL = errors.New("invalid target: must be an absolute http or https URL")

	// ErrNoSinkEndpoint is returned when delivery is enabled without an endpoint.
	ErrNoSinkEndpoint = errors.New("no sink endpoint: use --sink, set WORKER_UPDATE_URL, or pass --dry-run")

	// ErrInvalidSinkEndpoint is returned when the endpoint is not an http(s) URL.
	ErrInvalidSinkEndpoint = errors.New("invalid sink endpoint: must be an absolute http or https URL")

	// ErrNoSinkSecret is returned when delivery is enabled without a secret.
	ErrNoSinkSecret = errors.New("no sink secret: set STREAMSCOUT_SINK_SECRET or WORKER_SECRET, or pass --dry-run")

	// ErrInvalidMaxAttempts is returned when attempt limits are below one.
	ErrInvalidMaxAttempts = errors.New("invalid attempt limits: must be at least 1")

	// ErrInvalidTimeout is returned when a timeout is not positive or a wait is negative.
	ErrInvalidTimeout = errors.New("invalid timeout: timeouts must be positive and waits non-negative")

	// ErrInvalidWaitPolicy is returned for an unknown navigation wait policy.
	ErrInvalidWaitPolicy = errors.New("invalid wait policy: must be load or domcontentloaded")

	// ErrConflictingReportFormats is returned when both --json and --markdown are given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidProxy is returned when the proxy address is not host:port.
	ErrInvalidProxy = errors.New("invalid proxy: must be host:port")

	// ErrConflictingProxy is returned when both --proxy and --tor are given.
	ErrConflictingProxy = errors.New("conflicting proxies: --proxy and --tor cannot be used together")
)
