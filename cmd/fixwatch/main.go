// fixwatch watches service log files for failures, rate-limits noisy
// services, and files sanitized incident reports as GitHub issues. When the
// repair oracle is enabled it also proposes and applies code fixes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/emonet/fixwatch/internal/classifier"
	"github.com/emonet/fixwatch/internal/config"
	"github.com/emonet/fixwatch/internal/escalate"
	"github.com/emonet/fixwatch/internal/event"
	"github.com/emonet/fixwatch/internal/format"
	"github.com/emonet/fixwatch/internal/oracle"
	"github.com/emonet/fixwatch/internal/remediate"
	"github.com/emonet/fixwatch/internal/reporter"
	"github.com/emonet/fixwatch/internal/sanitize"
	"github.com/emonet/fixwatch/internal/store"
	"github.com/emonet/fixwatch/internal/tail"
	"github.com/emonet/fixwatch/internal/watcher"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "query":
			runQuery(os.Args[2:])
			return
		case "digest":
			runDigest(os.Args[2:])
			return
		case "status":
			runStatus(os.Args[2:])
			return
		case "test-sink":
			runTestSink(os.Args[2:])
			return
		case "version":
			fmt.Println("fixwatch", version)
			return
		}
	}

	// Default: run daemon.
	runDaemon(os.Args[1:])
}

func runDaemon(args []string) {
	fs := flag.NewFlagSet("fixwatch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Parse(args)

	if *showVersion {
		fmt.Println("fixwatch", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log.Level)

	slog.Info("fixwatch starting",
		"version", version,
		"instance", cfg.Instance.ID,
		"services", len(cfg.Services),
	)

	if err := run(cfg); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// daemon wires the pipeline: watcher -> tail -> classifier -> escalator ->
// reporter (+ oracle/remediate), with the store auditing every decision.
type daemon struct {
	cfg       *config.Config
	db        *store.DB
	tracker   *tail.Tracker
	cls       *classifier.Classifier
	esc       *escalate.Escalator
	builder   *reporter.Builder
	sink      *reporter.GitHubSink
	oracle    *oracle.Client
	remediate *remediate.Runner
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shutdown on SIGINT/SIGTERM; SIGHUP clears lockouts after an operator
	// has repaired a crash-looping service.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening incident database: %w", err)
	}
	defer db.Close()

	slog.Info("incident database opened", "path", cfg.DBPath())

	if cfg.DB.Retention.Duration > 0 {
		purged, err := db.Purge(cfg.DB.Retention.Duration)
		if err != nil {
			slog.Warn("failed to purge old incidents", "error", err)
		} else if purged > 0 {
			slog.Info("purged old incidents", "count", purged, "retention", cfg.DB.Retention.Duration)
		}
	}

	cls, err := classifier.New(cfg.Services)
	if err != nil {
		return fmt.Errorf("building classifier: %w", err)
	}

	d := &daemon{
		cfg:     cfg,
		db:      db,
		tracker: tail.NewTracker(),
		cls:     cls,
		esc: escalate.New(
			cfg.Escalation.Cooldown.Duration,
			cfg.Escalation.CrashWindow.Duration,
			cfg.Escalation.CrashLimit,
		),
		builder:   reporter.NewBuilder(),
		sink:      reporter.NewGitHub(cfg),
		remediate: remediate.NewRunner(&cfg.Remediate),
	}

	if cfg.Oracle.Enabled {
		key := cfg.OracleKey()
		if key == "" {
			slog.Warn("oracle enabled but API key env is empty, disabling", "env", cfg.Oracle.APIKeyEnv)
		} else {
			d.oracle = oracle.New(key, cfg.Oracle.Model)
			slog.Info("repair oracle enabled", "model", cfg.Oracle.Model)
		}
	}

	// Cursors start at end of file: history is never reported.
	for _, svc := range cfg.Services {
		offset := d.tracker.Init(svc.LogPath)
		slog.Debug("tail cursor initialized", "service", svc.Name, "path", svc.LogPath, "offset", offset)
	}

	supervised := watcher.NewSupervisedSource(
		func() watcher.Source {
			return watcher.NewFSSource(cfg.Services)
		},
		5*time.Second, // restart wait
		0,             // unlimited restarts
	)

	changes, err := supervised.Events(ctx)
	if err != nil {
		return fmt.Errorf("starting log watcher: %w", err)
	}

	// Report dispatch runs off the event loop so a slow sink or oracle call
	// never delays tailing.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	sdNotify("READY=1")

	var watchdogTicker *time.Ticker
	if wdInterval := watchdogInterval(); wdInterval > 0 {
		// Ping at half the watchdog interval.
		watchdogTicker = time.NewTicker(wdInterval / 2)
		defer watchdogTicker.Stop()
		slog.Info("systemd watchdog enabled", "interval", wdInterval)
	}

	slog.Info("pipeline started, watching logs")

	for {
		var watchdogCh <-chan time.Time
		if watchdogTicker != nil {
			watchdogCh = watchdogTicker.C
		}

		select {
		case change, ok := <-changes:
			if !ok {
				slog.Warn("change channel closed")
				return g.Wait()
			}
			d.handleChange(gctx, g, change)

		case <-watchdogCh:
			sdNotify("WATCHDOG=1")

		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				locked := d.esc.LockedOutServices()
				for _, svc := range locked {
					d.esc.Reset(svc)
				}
				slog.Info("lockouts cleared on SIGHUP", "services", locked)
				continue
			}
			slog.Info("received signal, shutting down", "signal", sig)
			sdNotify("STOPPING=1")
			cancel()
			return g.Wait()
		}
	}
}

// handleChange reads the new log content and runs it through classification
// and escalation. Report building and delivery are dispatched to the group.
func (d *daemon) handleChange(ctx context.Context, g *errgroup.Group, change watcher.ChangeEvent) {
	increment, err := d.tracker.ReadIncrement(change.Path)
	if err != nil {
		slog.Error("failed to read log increment", "service", change.Service, "error", err)
		return
	}

	reportable, reason := d.cls.IsReportable(change.Service, increment)
	if !reportable {
		return
	}

	verdict := d.esc.Decide(change.Service)
	inc := event.New(change.Service, time.Now(), reason, boundedExcerpt(increment))

	switch verdict.Action {
	case escalate.ActionReport:
		inc.Decision = event.DecisionReport
		slog.Info("failure detected, reporting",
			"service", change.Service,
			"reason", reason,
			"crash_count", verdict.CrashCount,
		)
		svc := d.cfg.Service(change.Service)
		g.Go(func() error {
			d.report(ctx, svc, inc, increment)
			return nil
		})

	case escalate.ActionSuppress:
		inc.Decision = event.DecisionSuppressed
		if verdict.LockedOut {
			slog.Debug("report suppressed, service locked out", "service", change.Service)
		} else {
			slog.Debug("report suppressed by cooldown",
				"service", change.Service,
				"remaining", verdict.Remaining.Truncate(time.Second),
			)
		}

	case escalate.ActionLockout:
		inc.Decision = event.DecisionLockout
		slog.Warn("service locked out after repeated crashes",
			"service", change.Service,
			"crash_count", verdict.CrashCount,
			"window", d.cfg.Escalation.CrashWindow.Duration,
		)
	}

	if err := d.db.Insert(inc); err != nil {
		slog.Error("failed to store incident", "error", err)
	}
}

// report builds the sanitized bundle, files the issue, and runs the optional
// repair flow. Runs outside the event loop.
func (d *daemon) report(ctx context.Context, svc *config.ServiceConfig, inc *event.Incident, increment string) {
	bundle, err := d.builder.Build(svc, increment)
	if err != nil {
		switch e := err.(type) {
		case *reporter.LeakError:
			slog.Error("report aborted, sanitization leak", "service", svc.Name, "error", e)
		default:
			slog.Debug("report skipped", "service", svc.Name, "reason", err)
		}
		return
	}

	url, err := d.sink.Report(ctx, bundle)
	if err != nil {
		slog.Error("failed to file issue", "service", svc.Name, "error", err)
		return
	}
	if err := d.db.MarkDelivered(inc.ID, url); err != nil {
		slog.Error("failed to mark incident delivered", "error", err)
	}

	if d.oracle != nil && len(bundle.Snippets) > 0 {
		d.repair(ctx, svc, bundle)
	}
}

// repair asks the oracle to fix the most recently modified source file and
// applies the proposed fix.
func (d *daemon) repair(ctx context.Context, svc *config.ServiceConfig, bundle *reporter.Bundle) {
	target := bundle.Snippets[0]
	path := filepath.Join(svc.CodeDir, target.Filename)

	source, err := os.ReadFile(path)
	if err != nil {
		slog.Error("repair skipped, cannot read target", "path", path, "error", err)
		return
	}

	fixed, err := d.oracle.ProposeFix(ctx, &oracle.Request{
		Service:  svc.Name,
		Language: target.Lang,
		Excerpt:  bundle.Excerpt,
		Source:   sanitize.Sanitize(string(source)),
	})
	if err != nil {
		slog.Error("oracle call failed", "service", svc.Name, "error", err)
		return
	}

	// The fix gets committed and pushed, so it is held to the same leak
	// standard as an outgoing report.
	if findings := sanitize.Validate(fixed); len(findings) > 0 {
		slog.Error("repair discarded, proposed fix failed leak validation",
			"service", svc.Name, "findings", len(findings))
		return
	}

	if err := d.remediate.WriteFix(path, fixed); err != nil {
		slog.Error("failed to write fix", "path", path, "error", err)
		return
	}
	if err := d.remediate.SyncRepo(ctx, svc.CodeDir); err != nil {
		slog.Warn("repo sync failed", "service", svc.Name, "error", err)
	}
	if err := d.remediate.RestartService(ctx, svc.Name); err != nil {
		slog.Error("service restart failed", "service", svc.Name, "error", err)
		return
	}
	slog.Info("repair applied", "service", svc.Name, "path", path)
}

// boundedExcerpt sanitizes and bounds an increment for the audit log.
func boundedExcerpt(increment string) string {
	const maxAudit = 1000
	if len(increment) > maxAudit {
		increment = increment[len(increment)-maxAudit:]
	}
	return sanitize.Sanitize(increment)
}

// --- query subcommand ---

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	last := fs.String("last", "24h", "time window (e.g. 24h, 7d, 30d)")
	service := fs.String("service", "", "filter by service name")
	decision := fs.String("decision", "", "filter by decision (report, suppressed, lockout)")
	limit := fs.Int("limit", 50, "max incidents to show")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	setupLogging("error") // quiet for CLI output

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	since, err := parseDuration(*last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --last value %q: %v\n", *last, err)
		os.Exit(1)
	}

	incidents, err := db.Query(store.QueryFilter{
		Since:    time.Now().Add(-since),
		Service:  *service,
		Decision: strings.ToLower(*decision),
		Limit:    *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "query error: %v\n", err)
		os.Exit(1)
	}

	if len(incidents) == 0 {
		fmt.Println("No incidents found.")
		return
	}

	printIncidents(incidents)
}

func printIncidents(incidents []*event.Incident) {
	reportColor := color.New(color.FgRed, color.Bold)
	suppressColor := color.New(color.FgYellow)
	lockoutColor := color.New(color.FgMagenta, color.Bold)

	for _, inc := range incidents {
		ts := inc.Timestamp.Local().Format("2006-01-02 15:04:05")

		var label string
		switch inc.Decision {
		case event.DecisionReport:
			label = reportColor.Sprint(inc.Decision.Label())
		case event.DecisionLockout:
			label = lockoutColor.Sprint(inc.Decision.Label())
		default:
			label = suppressColor.Sprint(inc.Decision.Label())
		}

		fmt.Printf("%s  %-12s %-14s %s\n", ts, inc.Service, label, inc.Reason)
		if inc.IssueURL != "" {
			fmt.Printf("             Issue: %s\n", inc.IssueURL)
		}
		if inc.Excerpt != "" {
			lines := strings.SplitN(strings.TrimSpace(inc.Excerpt), "\n", 2)
			fmt.Printf("             %s\n", lines[0])
		}
		fmt.Println()
	}
	fmt.Printf("Total: %d incident(s)\n", len(incidents))
}

// --- digest subcommand ---

func runDigest(args []string) {
	fs := flag.NewFlagSet("digest", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	send := fs.Bool("send", false, "file digest as a GitHub issue (otherwise print to stdout)")
	last := fs.String("last", "7d", "time window for digest")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	setupLogging("error")

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	duration, err := parseDuration(*last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --last value: %v\n", err)
		os.Exit(1)
	}

	until := time.Now()
	since := until.Add(-duration)

	incidents, err := db.Query(store.QueryFilter{Since: since, Until: until})
	if err != nil {
		fmt.Fprintf(os.Stderr, "query error: %v\n", err)
		os.Exit(1)
	}

	digest := reporter.BuildDigest(cfg.Instance.ID, incidents, since, until)
	body := reporter.FormatDigest(digest)

	if !*send {
		fmt.Print(body)
		return
	}

	bundle := &reporter.Bundle{
		Service:   "fixwatch-digest",
		Timestamp: until,
		Title:     reporter.FormatDigestTitle(since, until),
		Body:      body,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sink := reporter.NewGitHub(cfg)
	url, err := sink.Report(ctx, bundle)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error sending digest: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Digest filed:", url)
}

// --- status subcommand ---

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	setupLogging("error")

	fmt.Printf("Instance:     %s\n", cfg.Instance.ID)
	fmt.Printf("Sink repo:    %s\n", cfg.Sink.Repo)

	ok := color.New(color.FgGreen).Sprint("ok")
	missing := color.New(color.FgRed).Sprint("missing")
	for _, svc := range cfg.Services {
		info, err := os.Stat(svc.LogPath)
		if err != nil {
			fmt.Printf("Service:      %-12s %s (%s)\n", svc.Name, missing, svc.LogPath)
			continue
		}
		fmt.Printf("Service:      %-12s %s (%s, %s)\n", svc.Name, ok, svc.LogPath, format.Bytes(info.Size()))
	}

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	lastIncidents, err := db.Query(store.QueryFilter{Limit: 1})
	if err == nil && len(lastIncidents) > 0 {
		inc := lastIncidents[0]
		ago := time.Since(inc.Timestamp).Truncate(time.Second)
		fmt.Printf("Last:         [%s] %s %s, %s ago\n",
			inc.Decision.Label(), inc.Service, inc.Reason, format.Ago(ago))
	} else {
		fmt.Println("Last:         none")
	}

	counts, _ := db.Count("", time.Now().Add(-24*time.Hour))
	fmt.Printf("Last 24h:     %d reported, %d suppressed, %d lockouts\n",
		counts[event.DecisionReport],
		counts[event.DecisionSuppressed],
		counts[event.DecisionLockout],
	)
	fmt.Printf("DB path:      %s\n", cfg.DBPath())
}

// --- test-sink subcommand ---

func runTestSink(args []string) {
	fs := flag.NewFlagSet("test-sink", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log.Level)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sink := reporter.NewGitHub(cfg)
	url, err := sink.Report(ctx, reporter.TestBundle(cfg.Instance.ID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error filing test issue: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Test issue filed:", url)
}

// --- utilities ---

// parseDuration extends time.ParseDuration with support for "d" (days) suffix.
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		s = strings.TrimSuffix(s, "d")
		var days int
		if _, err := fmt.Sscanf(s, "%d", &days); err != nil {
			return 0, fmt.Errorf("invalid days format: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// --- sd_notify support ---

// sdNotify sends a notification to systemd via the NOTIFY_SOCKET.
// This is a minimal implementation that doesn't require a C dependency.
func sdNotify(state string) {
	socketAddr := os.Getenv("NOTIFY_SOCKET")
	if socketAddr == "" {
		return
	}

	conn, err := net.Dial("unixgram", socketAddr)
	if err != nil {
		slog.Debug("sd_notify: failed to connect", "error", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		slog.Debug("sd_notify: failed to send", "error", err)
	}
}

// watchdogInterval reads WATCHDOG_USEC from the environment and returns the
// watchdog interval as a time.Duration. Returns 0 if not set.
func watchdogInterval() time.Duration {
	usecStr := os.Getenv("WATCHDOG_USEC")
	if usecStr == "" {
		return 0
	}
	var usec int64
	if _, err := fmt.Sscanf(usecStr, "%d", &usec); err != nil {
		return 0
	}
	return time.Duration(usec) * time.Microsecond
}
