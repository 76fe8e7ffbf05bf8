package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// TestNewConfig tests that defaults match the documented timings.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("attempt policy defaults", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxAttempts != 5 || cfg.MaxVerifyPerAttempt != 3 {
			t.Errorf("expected 5 attempts and 3 verifications, got %d/%d", cfg.MaxAttempts, cfg.MaxVerifyPerAttempt)
		}
		if cfg.SignalTimeout != 25*time.Second {
			t.Errorf("expected SignalTimeout 25s, got %v", cfg.SignalTimeout)
		}
		if cfg.BackoffBase != 1500*time.Millisecond {
			t.Errorf("expected BackoffBase 1.5s, got %v", cfg.BackoffBase)
		}
		if cfg.RunBudget != 5*time.Minute {
			t.Errorf("expected RunBudget 5m, got %v", cfg.RunBudget)
		}
	})

	t.Run("browser defaults", func(t *testing.T) {
		t.Parallel()
		if !cfg.Headless {
			t.Error("expected headless by default")
		}
		if cfg.ViewportWidth != 1280 || cfg.ViewportHeight != 720 {
			t.Errorf("unexpected viewport %dx%d", cfg.ViewportWidth, cfg.ViewportHeight)
		}
		if cfg.WaitPolicy != "domcontentloaded" || cfg.Locale != "en-US" {
			t.Errorf("unexpected wait policy %q or locale %q", cfg.WaitPolicy, cfg.Locale)
		}
		if !strings.Contains(cfg.UserAgent, "Chrome/120.0") {
			t.Errorf("unexpected user agent %q", cfg.UserAgent)
		}
	})

	t.Run("delivery and history defaults", func(t *testing.T) {
		t.Parallel()
		if !cfg.IncludeContent || cfg.DryRun || cfg.ContinueOnDeliveryError {
			t.Error("unexpected delivery defaults")
		}
		if !cfg.SaveToDB || !strings.HasSuffix(cfg.DBPath(), filepath.Join(AppName, DefaultDBFile)) {
			t.Errorf("unexpected database path %q", cfg.DBPath())
		}
	})
}

// TestConfigValidate tests each validation rule in isolation.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Target = "https://site.example/watch/1"
		cfg.SinkEndpoint = "https://sink.example"
		cfg.SinkSecret = "s3cret"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid config returns nil", func(*Config) {}, nil},
		{"empty target returns ErrNoTarget", func(c *Config) { c.Target = "" }, ErrNoTarget},
		{"relative target returns ErrInvalidTargetURL", func(c *Config) { c.Target = "/watch/1" }, ErrInvalidTargetURL},
		{"non-http target returns ErrInvalidTargetURL", func(c *Config) { c.Target = "ftp://site.example/" }, ErrInvalidTargetURL},
		{"missing endpoint returns ErrNoSinkEndpoint", func(c *Config) { c.SinkEndpoint = "" }, ErrNoSinkEndpoint},
		{"bad endpoint returns ErrInvalidSinkEndpoint", func(c *Config) { c.SinkEndpoint = "sink.example" }, ErrInvalidSinkEndpoint},
		{"missing secret returns ErrNoSinkSecret", func(c *Config) { c.SinkSecret = "" }, ErrNoSinkSecret},
		{"dry run needs no sink", func(c *Config) { c.DryRun, c.SinkEndpoint, c.SinkSecret = true, "", "" }, nil},
		{"zero attempts returns ErrInvalidMaxAttempts", func(c *Config) { c.MaxAttempts = 0 }, ErrInvalidMaxAttempts},
		{"zero verifications returns ErrInvalidMaxAttempts", func(c *Config) { c.MaxVerifyPerAttempt = 0 }, ErrInvalidMaxAttempts},
		{"zero signal timeout returns ErrInvalidTimeout", func(c *Config) { c.SignalTimeout = 0 }, ErrInvalidTimeout},
		{"negative wait returns ErrInvalidTimeout", func(c *Config) { c.PostLoadWait = -time.Second }, ErrInvalidTimeout},
		{"zero wait is valid", func(c *Config) { c.PostLoadWait = 0 }, nil},
		{"unknown wait policy returns ErrInvalidWaitPolicy", func(c *Config) { c.WaitPolicy = "networkidle" }, ErrInvalidWaitPolicy},
		{"both report formats returns ErrConflictingReportFormats", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
		{"bad proxy returns ErrInvalidProxy", func(c *Config) { c.ProxyAddress = "localhost" }, ErrInvalidProxy},
		{"proxy and tor returns ErrConflictingProxy", func(c *Config) { c.ProxyAddress, c.UseTor = "127.0.0.1:9050", true }, ErrConflictingProxy},
		{"valid proxy", func(c *Config) { c.ProxyAddress = "127.0.0.1:9050" }, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

// TestConfigTargetHost tests host extraction for site lookups.
func TestConfigTargetHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target string
		want   string
	}{
		{"https://Site.Example:8443/watch", "site.example"},
		{"http://site.example", "site.example"},
		{"", ""},
		{"://bad", ""},
	}
	for _, tc := range tests {
		cfg := &Config{Target: tc.target}
		if got := cfg.TargetHost(); got != tc.want {
			t.Errorf("TargetHost(%q) = %q, want %q", tc.target, got, tc.want)
		}
	}
}

// TestFileGetSiteConfig tests merging of defaults and site sections.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	cf := &File{
		Defaults: SiteConfig{
			Denylist:      []string{`cdn-ads\.example`},
			SignalTimeout: 30 * time.Second,
		},
		Sites: map[string]SiteConfig{
			"site.example": {
				Selectors:   []string{".big-play"},
				Denylist:    []string{`teaser`},
				UserAgent:   "custom-agent",
				MaxAttempts: 2,
			},
		},
	}

	t.Run("unknown host gets defaults", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("other.example")
		if sc.SignalTimeout != 30*time.Second || len(sc.Denylist) != 1 || len(sc.Selectors) != 0 {
			t.Errorf("unexpected site config %+v", sc)
		}
	})

	t.Run("site section overrides and denylists accumulate", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("Site.Example")
		if !slices.Equal(sc.Selectors, []string{".big-play"}) {
			t.Errorf("unexpected selectors %v", sc.Selectors)
		}
		if !slices.Equal(sc.Denylist, []string{`cdn-ads\.example`, `teaser`}) {
			t.Errorf("unexpected denylist %v", sc.Denylist)
		}
		if sc.UserAgent != "custom-agent" || sc.MaxAttempts != 2 || sc.SignalTimeout != 30*time.Second {
			t.Errorf("unexpected site config %+v", sc)
		}
	})

	t.Run("merging does not mutate defaults", func(t *testing.T) {
		t.Parallel()

		_ = cf.GetSiteConfig("site.example")
		if len(cf.Defaults.Denylist) != 1 {
			t.Errorf("defaults were modified: %v", cf.Defaults.Denylist)
		}
	})
}

// TestFileApply tests that a loaded file reaches the Config.
func TestFileApply(t *testing.T) {
	t.Parallel()

	cf := &File{
		Sink: SinkConfig{Endpoint: "https://sink.example/", Secret: "from-file", ContinueOnError: true},
		Sites: map[string]SiteConfig{
			"site.example": {Selectors: []string{"#go"}, SignalTimeout: 5 * time.Second},
		},
	}
	cfg := NewConfig()
	cfg.Target = "https://site.example/watch/1"
	cf.Apply(cfg)

	if cfg.SinkEndpoint != "https://sink.example/" || cfg.SinkSecret != "from-file" || !cfg.ContinueOnDeliveryError {
		t.Errorf("sink settings not applied: %+v", cfg)
	}
	if !slices.Equal(cfg.Selectors, []string{"#go"}) || cfg.SignalTimeout != 5*time.Second {
		t.Errorf("site settings not applied: %v %v", cfg.Selectors, cfg.SignalTimeout)
	}
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("unset site field changed MaxAttempts to %d", cfg.MaxAttempts)
	}
}

// TestConfigApplyEnv tests the environment overlay.
func TestConfigApplyEnv(t *testing.T) {
	t.Parallel()

	lookupFrom := func(env map[string]string) LookupFunc {
		return func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		}
	}

	t.Run("fills target and overrides sink", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.SinkEndpoint = "https://file.example"
		cfg.ApplyEnv(lookupFrom(map[string]string{
			EnvTarget:       " https://site.example/live ",
			EnvSinkEndpoint: "https://env.example",
			EnvLegacySecret: "legacy",
			EnvHeadless:     "false",
			EnvUserAgent:    "env-agent",
		}))

		if cfg.Target != "https://site.example/live" {
			t.Errorf("unexpected target %q", cfg.Target)
		}
		if cfg.SinkEndpoint != "https://env.example" || cfg.SinkSecret != "legacy" {
			t.Errorf("unexpected sink %q/%q", cfg.SinkEndpoint, cfg.SinkSecret)
		}
		if cfg.Headless || cfg.UserAgent != "env-agent" {
			t.Errorf("unexpected browser settings headless=%v ua=%q", cfg.Headless, cfg.UserAgent)
		}
	})

	t.Run("argument target wins and prefixed secret wins", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.Target = "https://arg.example/"
		cfg.ApplyEnv(lookupFrom(map[string]string{
			EnvTarget:       "https://env.example/",
			EnvSinkSecret:   "prefixed",
			EnvLegacySecret: "legacy",
			EnvHeadless:     "maybe",
		}))

		if cfg.Target != "https://arg.example/" {
			t.Errorf("argument target was replaced by %q", cfg.Target)
		}
		if cfg.SinkSecret != "prefixed" {
			t.Errorf("expected the prefixed secret, got %q", cfg.SinkSecret)
		}
		if !cfg.Headless {
			t.Error("HEADLESS=maybe should keep the browser headless")
		}
	})

	t.Run("only the literal false disables headless", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			value    string
			headless bool
		}{
			{value: "false", headless: false},
			{value: " false ", headless: false},
			{value: "0", headless: true},
			{value: "False", headless: true},
			{value: "no", headless: true},
			{value: "true", headless: true},
		}
		for _, tc := range tests {
			cfg := NewConfig()
			cfg.ApplyEnv(lookupFrom(map[string]string{EnvHeadless: tc.value}))
			if cfg.Headless != tc.headless {
				t.Errorf("HEADLESS=%q: headless = %v, want %v", tc.value, cfg.Headless, tc.headless)
			}
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), DefaultConfigFile))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		content := `sink:
  endpoint: https://sink.example
defaults:
  signalTimeout: 40s
  denylist:
    - "promo\\.example"
sites:
  site.example:
    selectors:
      - ".start"
    maxAttempts: 3
    cookiesFile: /tmp/cookies.txt
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cf, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Sink.Endpoint != "https://sink.example" {
			t.Errorf("unexpected endpoint %q", cf.Sink.Endpoint)
		}
		if cf.Defaults.SignalTimeout != 40*time.Second {
			t.Errorf("expected 40s signal timeout, got %v", cf.Defaults.SignalTimeout)
		}
		if len(cf.Defaults.Denylist) != 1 || cf.Defaults.Denylist[0] != `promo\.example` {
			t.Errorf("unexpected denylist %v", cf.Defaults.Denylist)
		}
		site, ok := cf.Sites["site.example"]
		if !ok {
			t.Fatal("expected site.example in sites")
		}
		if site.MaxAttempts != 3 || site.CookiesFile != "/tmp/cookies.txt" || len(site.Selectors) != 1 {
			t.Errorf("unexpected site %+v", site)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(configPath, []byte("defaults:\n  maxAttempts: 2\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		cf, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for _, dir := range []string{XDGDataDir(), XDGConfigDir()} {
		if dir == "" || filepath.Base(dir) != AppName {
			t.Errorf("unexpected XDG dir %q", dir)
		}
	}
}
