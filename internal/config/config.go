package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/streamscout/internal/proxy"
)

// Default configuration values. Timings follow the browser scripts the
// tool replaced; see the engine package for how each one is used.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "streamscout"

	// DefaultMaxAttempts is the number of navigate/interact/verify cycles.
	DefaultMaxAttempts = 5

	// DefaultMaxVerifyPerAttempt bounds verifier calls in one attempt.
	DefaultMaxVerifyPerAttempt = 3

	// DefaultNavigationTimeout bounds a single navigation or reload.
	DefaultNavigationTimeout = 60 * time.Second

	// DefaultPostLoadWait is the pause between load and interaction.
	DefaultPostLoadWait = 2 * time.Second

	// DefaultClickSettle is the pause after a successful click.
	DefaultClickSettle = 1500 * time.Millisecond

	// DefaultSignalTimeout is how long an attempt waits for a candidate.
	DefaultSignalTimeout = 25 * time.Second

	// DefaultPollInterval is how often in-page sources are sampled.
	DefaultPollInterval = 250 * time.Millisecond

	// DefaultVerifyTimeout bounds one verification.
	DefaultVerifyTimeout = 8 * time.Second

	// DefaultDeliveryTimeout bounds the delivery request.
	DefaultDeliveryTimeout = 15 * time.Second

	// DefaultBackoffBase is multiplied by the finished attempt's index.
	DefaultBackoffBase = 1500 * time.Millisecond

	// DefaultRunBudget is the wall-clock limit of a whole run.
	DefaultRunBudget = 5 * time.Minute

	// DefaultUserAgent is a desktop Chrome user agent.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	// DefaultLocale is passed to the browser as its UI language.
	DefaultLocale = "en-US"

	// DefaultViewportWidth and DefaultViewportHeight size the page.
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720

	// DefaultWaitPolicy is the load event navigation waits for.
	DefaultWaitPolicy = "domcontentloaded"

	// DefaultTorStartupTimeout is how long the embedded Tor daemon may take
	// to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultDBFile is the history database file name.
	DefaultDBFile = "streamscout.db"
)

// Config holds every option of a run. It is populated from defaults, the
// config file, site overrides, the environment and flags, in that order,
// and passed down explicitly.
type Config struct {
	// Target is the page URL to discover a manifest on.
	Target string

	// SinkEndpoint is the base URL of the receiving service. "/update" is
	// appended when delivering.
	SinkEndpoint string

	// SinkSecret is sent as a bearer token. Never logged.
	SinkSecret string

	// DryRun verifies without delivering.
	DryRun bool

	// IncludeContent embeds the normalized playlist in the delivery.
	IncludeContent bool

	// ContinueOnDeliveryError starts another attempt after a refused delivery.
	ContinueOnDeliveryError bool

	MaxAttempts         int
	MaxVerifyPerAttempt int
	NavigationTimeout   time.Duration
	PostLoadWait        time.Duration
	ClickSettle         time.Duration
	SignalTimeout       time.Duration
	PollInterval        time.Duration
	VerifyTimeout       time.Duration
	DeliveryTimeout     time.Duration
	BackoffBase         time.Duration
	RunBudget           time.Duration

	// WaitPolicy is "load" or "domcontentloaded".
	WaitPolicy string

	// Headless runs the browser without a window.
	Headless bool

	// BrowserBin is the browser executable. Empty lets rod manage one.
	BrowserBin string

	// BrowserURL connects to a running browser's DevTools endpoint.
	BrowserURL string

	UserAgent      string
	Locale         string
	ViewportWidth  int
	ViewportHeight int

	// Selectors replaces the default play controls when non-empty.
	Selectors []string

	// Denylist adds host/path patterns to the default denylist.
	Denylist []string

	// CookiesFile is a Netscape cookies.txt seeding the session.
	CookiesFile string

	// ProxyAddress is a SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes through it.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches the log format to JSON.
	LogJSON bool

	// ConfigFilePath is the config file given on the command line.
	ConfigFilePath string

	// SiteConfigs is the loaded config file, if any.
	SiteConfigs *File

	// JSONReport and MarkdownReport select the report format. They are
	// mutually exclusive; neither means the simple text report.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// DBDir is where the history database lives.
	DBDir string

	// SaveToDB persists the run.
	SaveToDB bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		IncludeContent:      true,
		MaxAttempts:         DefaultMaxAttempts,
		MaxVerifyPerAttempt: DefaultMaxVerifyPerAttempt,
		NavigationTimeout:   DefaultNavigationTimeout,
		PostLoadWait:        DefaultPostLoadWait,
		ClickSettle:         DefaultClickSettle,
		SignalTimeout:       DefaultSignalTimeout,
		PollInterval:        DefaultPollInterval,
		VerifyTimeout:       DefaultVerifyTimeout,
		DeliveryTimeout:     DefaultDeliveryTimeout,
		BackoffBase:         DefaultBackoffBase,
		RunBudget:           DefaultRunBudget,
		WaitPolicy:          DefaultWaitPolicy,
		Headless:            true,
		UserAgent:           DefaultUserAgent,
		Locale:              DefaultLocale,
		ViewportWidth:       DefaultViewportWidth,
		ViewportHeight:      DefaultViewportHeight,
		TorStartupTimeout:   DefaultTorStartupTimeout,
		DBDir:               XDGDataDir(),
		SaveToDB:            true,
	}
}

// XDGDataDir returns the XDG data directory, e.g. ~/.local/share/streamscout.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory, e.g. ~/.config/streamscout.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DBPath returns the history database path inside DBDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DBDir, DefaultDBFile)
}

// TargetHost returns the lower-cased host of Target, or "" when Target is
// not a URL. Site overrides are keyed by it.
func (c *Config) TargetHost() string {
	u, err := url.Parse(c.Target)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// ApplySite overlays a site configuration on c.
func (c *Config) ApplySite(site SiteConfig) {
	if len(site.Selectors) > 0 {
		c.Selectors = append([]string(nil), site.Selectors...)
	}
	c.Denylist = append(c.Denylist, site.Denylist...)
	if site.UserAgent != "" {
		c.UserAgent = site.UserAgent
	}
	if site.SignalTimeout > 0 {
		c.SignalTimeout = site.SignalTimeout
	}
	if site.MaxAttempts > 0 {
		c.MaxAttempts = site.MaxAttempts
	}
	if site.CookiesFile != "" {
		c.CookiesFile = site.CookiesFile
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Target == "" {
		return ErrNoTarget
	}
	u, err := url.Parse(c.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidTargetURL
	}

	if !c.DryRun {
		if c.SinkEndpoint == "" {
			return ErrNoSinkEndpoint
		}
		if s, err := url.Parse(c.SinkEndpoint); err != nil || (s.Scheme != "http" && s.Scheme != "https") || s.Host == "" {
			return ErrInvalidSinkEndpoint
		}
		if c.SinkSecret == "" {
			return ErrNoSinkSecret
		}
	}

	if c.MaxAttempts < 1 || c.MaxVerifyPerAttempt < 1 {
		return ErrInvalidMaxAttempts
	}

	for _, d := range []time.Duration{
		c.NavigationTimeout, c.SignalTimeout, c.PollInterval,
		c.VerifyTimeout, c.DeliveryTimeout, c.RunBudget,
	} {
		if d <= 0 {
			return ErrInvalidTimeout
		}
	}
	if c.PostLoadWait < 0 || c.ClickSettle < 0 || c.BackoffBase < 0 {
		return ErrInvalidTimeout
	}

	if c.WaitPolicy != "load" && c.WaitPolicy != "domcontentloaded" {
		return ErrInvalidWaitPolicy
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.ProxyAddress != "" {
		if c.UseTor {
			return ErrConflictingProxy
		}
		if err := proxy.ValidateAddress(c.ProxyAddress); err != nil {
			return ErrInvalidProxy
		}
	}

	return nil
}
