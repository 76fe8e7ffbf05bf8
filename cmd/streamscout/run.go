package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/candidate"
	"github.com/nao1215/streamscout/internal/config"
	"github.com/nao1215/streamscout/internal/cookies"
	"github.com/nao1215/streamscout/internal/database"
	"github.com/nao1215/streamscout/internal/delivery"
	"github.com/nao1215/streamscout/internal/engine"
	"github.com/nao1215/streamscout/internal/fetch"
	"github.com/nao1215/streamscout/internal/instrument"
	"github.com/nao1215/streamscout/internal/model"
	"github.com/nao1215/streamscout/internal/pipeline"
	"github.com/nao1215/streamscout/internal/proxy"
	"github.com/nao1215/streamscout/internal/report"
	"github.com/nao1215/streamscout/internal/verify"
)

// postRunTimeout bounds persisting and reporting after the run ended.
const postRunTimeout = 30 * time.Second

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [target-url]",
		Short: "Discover, verify and deliver the playlist of a video page",
		Long: `Run opens the target page in a browser, presses play, and collects every
playlist URL the page reveals: network requests and responses, response
bodies, media elements, page variables, resource timings, WebSocket frames
and fetch/XHR calls. The most promising candidate is retrieved and accepted
only if it is a real playlist. The playlist is then posted to the
receiving service.

The target may also be given with the TARGET_URL environment variable.
The receiving service is configured with --endpoint or WORKER_UPDATE_URL
and the secret with STREAMSCOUT_SINK_SECRET (or WORKER_SECRET).
HEADLESS=false opens a visible browser; any other value keeps it
headless. The --headed flag overrides HEADLESS.

Exit status: 0 delivered, 1 no playlist found or delivery refused,
2 aborted by the time budget or a signal, 3 usage or configuration error.

Examples:
  # Discover and deliver
  WORKER_UPDATE_URL=https://sink.example STREAMSCOUT_SINK_SECRET=... \
    streamscout run https://site.example/watch/1

  # Only verify, print a Markdown report
  streamscout run --dry-run --markdown https://site.example/watch/1

  # Route browser and retrieval traffic through Tor
  streamscout run --tor https://site.example/watch/1`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: runRunCmd,
	}

	f := cmd.Flags()

	// Receiving service
	f.StringP("endpoint", "e", "", "Base URL of the receiving service (\"/update\" is appended)")
	f.String("secret", "", "Bearer secret for the receiving service (prefer the environment)")
	f.Bool("dry-run", false, "Verify without delivering")
	f.Bool("no-content", false, "Do not embed the playlist content in the delivery")
	f.Bool("continue-on-delivery-error", false, "Start another attempt when the delivery is refused")

	// Attempt loop
	f.IntP("max-attempts", "n", config.DefaultMaxAttempts, "Maximum navigate/interact/verify cycles")
	f.Int("max-verify", config.DefaultMaxVerifyPerAttempt, "Maximum candidates verified per attempt")
	f.Duration("nav-timeout", config.DefaultNavigationTimeout, "Timeout of one navigation")
	f.Duration("post-load-wait", config.DefaultPostLoadWait, "Pause between load and interaction")
	f.Duration("click-settle", config.DefaultClickSettle, "Pause after clicking a play control")
	f.Duration("signal-timeout", config.DefaultSignalTimeout, "How long an attempt waits for a candidate")
	f.Duration("poll-interval", config.DefaultPollInterval, "How often in-page sources are sampled")
	f.Duration("verify-timeout", config.DefaultVerifyTimeout, "Timeout of one playlist retrieval")
	f.Duration("delivery-timeout", config.DefaultDeliveryTimeout, "Timeout of the delivery request")
	f.Duration("backoff", config.DefaultBackoffBase, "Pause after attempt N is N times this value")
	f.DurationP("budget", "t", config.DefaultRunBudget, "Wall-clock limit of the whole run")
	f.String("wait", config.DefaultWaitPolicy, "Load event navigation waits for (load, domcontentloaded)")

	// Browser
	f.Bool("headed", false, "Show the browser window")
	f.String("browser-bin", "", "Browser executable (default: managed Chromium)")
	f.String("browser-url", "", "DevTools URL of an already running browser")
	f.String("user-agent", config.DefaultUserAgent, "Browser and retrieval user agent")
	f.String("locale", config.DefaultLocale, "Browser UI language")
	f.Int("width", config.DefaultViewportWidth, "Viewport width")
	f.Int("height", config.DefaultViewportHeight, "Viewport height")
	f.StringSlice("selector", nil, "Play control CSS selector, repeatable (replaces the defaults)")
	f.StringSlice("deny", nil, "Denylist regular expression, repeatable (added to the defaults)")
	f.String("cookies", "", "Netscape cookies.txt seeding the browser session")

	// Routing
	f.String("proxy", "", "SOCKS5 proxy host:port for browser and retrieval traffic")
	f.Bool("tor", false, "Start an embedded Tor daemon and route through it")
	f.Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")

	// Configuration and output
	f.StringP("config", "c", "", "Configuration file path (default: .streamscout.yaml in current, XDG config or home directory)")
	f.BoolP("json", "j", false, "Output JSON report (mutually exclusive with --markdown)")
	f.BoolP("markdown", "m", false, "Output Markdown report (mutually exclusive with --json)")
	f.StringP("output", "o", "", "Write report to specified file path (creates directories if needed)")
	f.Bool("candidates", false, "Include the candidate dump in successful reports")
	f.Bool("no-save", false, "Do not save the run to the history database")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args, os.LookupEnv)
	if err != nil {
		return usageError(err)
	}
	if err := cfg.Validate(); err != nil {
		return usageError(fmt.Errorf("configuration error: %w", err))
	}

	logger := setupLogger(cmd, os.Stderr)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, aborting run")
			cancel()
		case <-ctx.Done():
		}
	}()

	withCandidates, err := cmd.Flags().GetBool("candidates")
	if err != nil {
		return err
	}

	run, err := runDiscovery(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := postRun(ctx, cfg, run, withCandidates, cmd.OutOrStdout(), logger); err != nil {
		logger.Error("post-run steps failed", "error", err)
	}
	return resultError(run)
}

// buildConfig layers defaults, the config file, the environment and the
// flags the user actually set.
func buildConfig(cmd *cobra.Command, args []string, lookup config.LookupFunc) (*config.Config, error) {
	cfg := config.NewConfig()
	fs := cmd.Flags()

	if len(args) > 0 {
		cfg.Target = strings.TrimSpace(args[0])
	} else if v, ok := lookup(config.EnvTarget); ok {
		cfg.Target = strings.TrimSpace(v)
	}

	var err error
	cfg.ConfigFilePath, err = fs.GetString("config")
	if err != nil {
		return nil, err
	}
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.SiteConfigs.Apply(cfg)
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	cfg.ApplyEnv(lookup)

	if err := applyFlags(fs, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides cfg with every flag given on the command line.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var noContent, headed, noSave bool
	setters := []error{
		override(fs, "endpoint", fs.GetString, &cfg.SinkEndpoint),
		override(fs, "secret", fs.GetString, &cfg.SinkSecret),
		override(fs, "dry-run", fs.GetBool, &cfg.DryRun),
		override(fs, "no-content", fs.GetBool, &noContent),
		override(fs, "continue-on-delivery-error", fs.GetBool, &cfg.ContinueOnDeliveryError),
		override(fs, "max-attempts", fs.GetInt, &cfg.MaxAttempts),
		override(fs, "max-verify", fs.GetInt, &cfg.MaxVerifyPerAttempt),
		override(fs, "nav-timeout", fs.GetDuration, &cfg.NavigationTimeout),
		override(fs, "post-load-wait", fs.GetDuration, &cfg.PostLoadWait),
		override(fs, "click-settle", fs.GetDuration, &cfg.ClickSettle),
		override(fs, "signal-timeout", fs.GetDuration, &cfg.SignalTimeout),
		override(fs, "poll-interval", fs.GetDuration, &cfg.PollInterval),
		override(fs, "verify-timeout", fs.GetDuration, &cfg.VerifyTimeout),
		override(fs, "delivery-timeout", fs.GetDuration, &cfg.DeliveryTimeout),
		override(fs, "backoff", fs.GetDuration, &cfg.BackoffBase),
		override(fs, "budget", fs.GetDuration, &cfg.RunBudget),
		override(fs, "wait", fs.GetString, &cfg.WaitPolicy),
		override(fs, "headed", fs.GetBool, &headed),
		override(fs, "browser-bin", fs.GetString, &cfg.BrowserBin),
		override(fs, "browser-url", fs.GetString, &cfg.BrowserURL),
		override(fs, "user-agent", fs.GetString, &cfg.UserAgent),
		override(fs, "locale", fs.GetString, &cfg.Locale),
		override(fs, "width", fs.GetInt, &cfg.ViewportWidth),
		override(fs, "height", fs.GetInt, &cfg.ViewportHeight),
		override(fs, "selector", fs.GetStringSlice, &cfg.Selectors),
		override(fs, "cookies", fs.GetString, &cfg.CookiesFile),
		override(fs, "proxy", fs.GetString, &cfg.ProxyAddress),
		override(fs, "tor", fs.GetBool, &cfg.UseTor),
		override(fs, "tor-timeout", fs.GetDuration, &cfg.TorStartupTimeout),
		override(fs, "json", fs.GetBool, &cfg.JSONReport),
		override(fs, "markdown", fs.GetBool, &cfg.MarkdownReport),
		override(fs, "output", fs.GetString, &cfg.ReportFile),
		override(fs, "no-save", fs.GetBool, &noSave),
	}
	if err := errors.Join(setters...); err != nil {
		return err
	}

	if fs.Changed("deny") {
		deny, err := fs.GetStringSlice("deny")
		if err != nil {
			return err
		}
		cfg.Denylist = append(cfg.Denylist, deny...)
	}
	if fs.Changed("no-content") {
		cfg.IncludeContent = !noContent
	}
	if fs.Changed("headed") {
		cfg.Headless = !headed
	}
	if fs.Changed("no-save") {
		cfg.SaveToDB = !noSave
	}
	if v, err := fs.GetBool("verbose"); err == nil {
		cfg.Verbose = v
	}
	if v, err := fs.GetBool("log-json"); err == nil {
		cfg.LogJSON = v
	}
	return nil
}

// override stores the flag value in dst when the flag was given.
func override[T any](fs *pflag.FlagSet, name string, get func(string) (T, error), dst *T) error {
	if !fs.Changed(name) {
		return nil
	}
	v, err := get(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// policyFromConfig builds the attempt loop policy.
func policyFromConfig(cfg *config.Config) (engine.Policy, error) {
	wait, err := browser.ParseWaitPolicy(cfg.WaitPolicy)
	if err != nil {
		return engine.Policy{}, err
	}

	p := engine.DefaultPolicy()
	p.MaxAttempts = cfg.MaxAttempts
	p.MaxVerifyPerAttempt = cfg.MaxVerifyPerAttempt
	p.NavigationTimeout = cfg.NavigationTimeout
	p.PostLoadWait = cfg.PostLoadWait
	p.ClickSettle = cfg.ClickSettle
	p.SignalTimeout = cfg.SignalTimeout
	p.PollInterval = cfg.PollInterval
	p.VerifyTimeout = cfg.VerifyTimeout
	p.DeliveryTimeout = cfg.DeliveryTimeout
	p.BackoffBase = cfg.BackoffBase
	p.RunBudget = cfg.RunBudget
	p.WaitPolicy = wait
	p.DryRun = cfg.DryRun
	p.IncludeContent = cfg.IncludeContent
	p.ContinueOnDeliveryError = cfg.ContinueOnDeliveryError
	p.UserAgent = cfg.UserAgent
	if len(cfg.Selectors) > 0 {
		p.Selectors = append([]string(nil), cfg.Selectors...)
	}
	return p, p.Validate()
}

// newRanker builds the ranker with the default denylist plus cfg's.
func newRanker(cfg *config.Config) (*candidate.Ranker, error) {
	patterns := append(append([]string(nil), candidate.DefaultDenylist...), cfg.Denylist...)
	deny, err := candidate.CompileDenylist(patterns)
	if err != nil {
		return nil, err
	}
	return candidate.NewRanker(candidate.WithDenylist(deny)), nil
}

// runDiscovery sets up routing and the browser, then executes one run.
// Errors are returned only for failures before the run could start.
func runDiscovery(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*model.Run, error) {
	policy, err := policyFromConfig(cfg)
	if err != nil {
		return nil, usageError(fmt.Errorf("configuration error: %w", err))
	}
	ranker, err := newRanker(cfg)
	if err != nil {
		return nil, usageError(fmt.Errorf("configuration error: %w", err))
	}

	proxyAddr, stopProxy, err := setupProxy(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer stopProxy()

	fetchOpts := []fetch.Option{
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithTimeout(cfg.VerifyTimeout),
	}
	if proxyAddr != "" {
		fetchOpts = append(fetchOpts, fetch.WithProxy(proxyAddr))
	}
	retriever, err := fetch.NewClient(fetchOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval client: %w", err)
	}

	launch := browser.LaunchOptions{
		Bin:            cfg.BrowserBin,
		ControlURL:     cfg.BrowserURL,
		Headless:       cfg.Headless,
		UserAgent:      cfg.UserAgent,
		Locale:         cfg.Locale,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		Logger:         logger,
	}
	if proxyAddr != "" {
		launch.Proxy = proxy.URL(proxyAddr)
	}
	session, err := browser.Launch(ctx, launch)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Debug("browser close failed", "error", err)
		}
	}()

	if cfg.CookiesFile != "" {
		jar, err := cookies.LoadFile(cfg.CookiesFile, time.Now())
		if err != nil {
			return nil, usageError(fmt.Errorf("failed to load cookies: %w", err))
		}
		if err := session.SetCookies(ctx, jar); err != nil {
			return nil, fmt.Errorf("failed to seed browser cookies: %w", err)
		}
		logger.Debug("browser cookies seeded", "count", len(jar))
	}

	var deliverer engine.Deliverer
	if !cfg.DryRun {
		deliverer = delivery.NewClient(cfg.SinkEndpoint, cfg.SinkSecret,
			delivery.WithUserAgent(userAgent()),
			delivery.WithLogger(logger),
			delivery.WithHTTPClient(&http.Client{Timeout: cfg.DeliveryTimeout}),
		)
	}

	controller := engine.NewController(
		session,
		instrument.NewAdapter(
			instrument.WithLogger(logger),
			instrument.WithPollInterval(cfg.PollInterval),
		),
		verify.NewVerifier(retriever,
			verify.WithLogger(logger),
			verify.WithTimeout(cfg.VerifyTimeout),
		),
		deliverer,
		engine.WithPolicy(policy),
		engine.WithRanker(ranker),
		engine.WithLogger(logger),
		engine.WithStateHook(func(s engine.State, attempt int) {
			if s.Terminal() {
				logger.Info("run reached terminal state", "state", s.String(), "attempt", attempt)
			}
		}),
	)

	logger.Info("starting run", "target", cfg.Target, "dryRun", cfg.DryRun, "maxAttempts", cfg.MaxAttempts)
	run := controller.Run(ctx, cfg.Target)
	logger.Info("run finished", "result", run.Result.String(), "attempts", len(run.Attempts), "duration", run.Duration())
	return run, nil
}

// setupProxy resolves the SOCKS5 address traffic is routed through. The
// returned stop function is always safe to call.
func setupProxy(ctx context.Context, cfg *config.Config, logger *slog.Logger) (string, func(), error) {
	noop := func() {}

	if cfg.UseTor {
		logger.Warn("starting embedded Tor daemon, this may take a few minutes")
		tor := proxy.NewEmbeddedTor(proxy.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := tor.Start(ctx); err != nil {
			return "", noop, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop := func() {
			if err := tor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		addr, err := tor.Address()
		if err != nil {
			stop()
			return "", noop, err
		}
		if status := proxy.Check(ctx, addr); status != proxy.StatusOK {
			stop()
			return "", noop, fmt.Errorf("embedded Tor proxy check failed: %w", status.Err())
		}
		logger.Info("embedded Tor daemon started", "socksAddr", addr)
		return addr, stop, nil
	}

	if cfg.ProxyAddress != "" {
		if status := proxy.Check(ctx, cfg.ProxyAddress); status != proxy.StatusOK {
			return "", noop, fmt.Errorf("proxy check failed for %s: %w", cfg.ProxyAddress, status.Err())
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		return cfg.ProxyAddress, noop, nil
	}
	return "", noop, nil
}

// postRun saves and reports the finished run. It runs on a context that
// survives the cancellation of the run itself.
func postRun(ctx context.Context, cfg *config.Config, run *model.Run, withCandidates bool, stdout io.Writer, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postRunTimeout)
	defer cancel()

	var saver pipeline.RunSaver
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			logger.Error("failed to open history database", "dir", cfg.DBDir, "error", err)
		} else {
			defer db.Close()
			saver = db
		}
	}

	output, closeOutput, err := openReportOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer closeOutput()

	p := pipeline.PostRun(saver, newReportWriter(cfg, output, withCandidates),
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)
	return p.Execute(ctx, run)
}

// openReportOutput returns the report destination. Report files are created
// with owner-only permissions since they carry full candidate URLs.
func openReportOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // best effort
}

// newReportWriter selects the report format.
func newReportWriter(cfg *config.Config, output io.Writer, withCandidates bool) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output,
			report.WithPrettyPrint(),
			report.WithVersion(getVersion()),
			report.WithJSONCandidates(withCandidates),
		)
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output, report.WithMarkdownCandidates(withCandidates))
	default:
		return report.NewSimpleWriter(output,
			report.WithVerbose(cfg.Verbose),
			report.WithCandidates(withCandidates),
		)
	}
}
