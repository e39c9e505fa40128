// Package main provides the entry point for lynxsync.
// lynxsync keeps one NordLynx (WireGuard) profile per configured country,
// plus a quick-connect profile, pointed at the best server the NordVPN
// directory currently recommends.
//
// Features:
//   - Load-gated server switching for country profiles
//   - File or Consul KV profile storage
//   - D-Bus, command or desktop change notifications
//   - Private key lookup in the system keyring
//   - Run history in sqlite and Prometheus textfile metrics
//
// Usage:
//
//	lynxsync [options]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yllada/lynxsync/cli"
	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/config"
	"github.com/yllada/lynxsync/directory"
	"github.com/yllada/lynxsync/history"
	"github.com/yllada/lynxsync/keyring"
	"github.com/yllada/lynxsync/metrics"
	"github.com/yllada/lynxsync/notify"
	"github.com/yllada/lynxsync/store"
	"github.com/yllada/lynxsync/vpn"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

var (
	configPath  = flag.String("config", "", "Configuration file")
	showVersion = flag.Bool("version", false, "Show version and exit")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	showHelp    = flag.Bool("help", false, "Show help message")
	plain       = flag.Bool("plain", false, "Disable the progress view and colors")

	once     = flag.Bool("once", false, "Run a single reconciliation and exit")
	interval = flag.Duration("interval", 0, "Reconcile periodically at this interval")

	listProfiles = flag.Bool("list", false, "List persisted profiles")
	historyN     = flag.Int("history", 0, "Show the last N recorded outcomes")
	historyOf    = flag.String("profile", "", "Limit --history to one profile")
	renderID     = flag.String("render", "", "Print a profile as a wg-quick config")
	showKey      = flag.Bool("show-key", false, "Do not redact the private key in --render output")
	storeKey     = flag.Bool("store-key", false, "Save a private key read from stdin in the keyring")
)

func main() {
	flag.Usage = cli.PrintHelp
	flag.Parse()

	if *showHelp {
		cli.PrintHelp()
		os.Exit(0)
	}

	if *showVersion {
		fmt.Printf("lynxsync v%s\n", appVersion)
		if buildTime != "unknown" {
			fmt.Printf("  Build:  %s\n", buildTime)
			fmt.Printf("  Commit: %s\n", commitSHA)
		}
		os.Exit(0)
	}

	if *storeKey {
		if err := storePrivateKey(os.Stdin); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logLevel := common.LevelInfo
	if *verbose || cfg.Debug {
		logLevel = common.LevelDebug
	}
	if err := common.InitLogger(common.LogConfig{
		Level:       logLevel,
		FilePath:    cfg.LogFile,
		MaxFileSize: 5 * 1024 * 1024, // 5MB
		MaxBackups:  5,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	defer common.CloseLogger()

	// Setup graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	os.Exit(run(ctx, cfg))
}

// run dispatches to the selected mode and returns the exit code.
func run(ctx context.Context, cfg *config.Config) int {
	profiles, err := openStore(cfg)
	if err != nil {
		common.LogError("Opening profile store: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		// history is optional; a broken ledger must not block reconciliation
		common.LogWarn("Run history disabled: %v", err)
	}
	if ledger != nil {
		defer ledger.Close()
	}

	app := cli.New(os.Stdout, profiles, ledger)
	if *plain {
		app.SetColor(false)
	}

	var cliErr error
	switch {
	case *listProfiles:
		cliErr = app.ListProfiles(ctx)
	case *historyN > 0:
		cliErr = app.History(ctx, *historyN, *historyOf)
	case *renderID != "":
		cliErr = app.Render(ctx, *renderID, !*showKey)
	default:
		return reconcile(ctx, cfg, app, profiles, ledger)
	}

	if cliErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cliErr)
		return 1
	}
	return 0
}

// reconcile runs the manager once, or on every interval tick until the
// context is cancelled.
func reconcile(ctx context.Context, cfg *config.Config, app *cli.CLI, profiles vpn.ProfileStore, ledger *history.Ledger) int {
	privateKey, err := keyring.ResolvePrivateKey(cfg.PrivateKey)
	if err == nil {
		privateKey, err = vpn.ParsePrivateKey(privateKey)
	}
	if err != nil {
		common.LogError("Private key: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	notifier, closeNotifier, err := notify.New(cfg.Notifier)
	if err != nil {
		common.LogError("Notifier: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			common.LogWarn("Closing notifier: %v", err)
		}
	}()

	var observers []vpn.Observer
	if ledger != nil {
		observers = append(observers, ledger)
	}
	if cfg.MetricsFile != "" {
		observers = append(observers, metrics.NewExporter(cfg.MetricsFile))
	}

	dir := directory.New(cfg.APIBaseURL, cfg.RequestTimeout.Std(),
		directory.WithTunnelAddress(cfg.Address),
		directory.WithUserAgent(fmt.Sprintf("%s/%s", common.AppName, appVersion)),
	)
	mgr := vpn.NewManager(cfg, dir, profiles, notifier, privateKey, vpn.WithObservers(observers...))

	every := cfg.Interval.Std()
	if *interval > 0 {
		every = *interval
	}
	if *once {
		every = 0
	}

	if every <= 0 {
		interactive := !*plain && !*verbose && cli.IsTerminal(os.Stdout)
		if interactive {
			// log lines would tear the progress view
			common.GetLogger().SetConsole(false)
			defer common.GetLogger().SetConsole(true)
		}
		common.LogInfo("Starting %s v%s", common.AppName, appVersion)
		report := app.Run(ctx, mgr, interactive)
		if report.ErrExceptCancelled() != nil {
			return 1
		}
		return 0
	}

	return runScheduled(ctx, app, mgr, every)
}

func runScheduled(ctx context.Context, app *cli.CLI, mgr *vpn.Manager, every time.Duration) int {
	common.LogInfo("Starting %s v%s, reconciling every %s", common.AppName, appVersion, every)

	sched := vpn.NewScheduler(mgr, every, nil)
	lastFailed := false
	sched.SetOnReport(func(report *vpn.Report) {
		app.PrintReport(report)
		lastFailed = report.ErrExceptCancelled() != nil
	})
	sched.Start(ctx)

	<-ctx.Done()
	sched.Stop()
	common.LogInfo("Stopped after %d run(s)", sched.Runs())

	if lastFailed {
		return 1
	}
	return 0
}

// loadConfig loads path, or the default location when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		def, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || !common.FileExists(path) {
			return nil, fmt.Errorf("%w (create %s or pass --config)", err, path)
		}
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (vpn.ProfileStore, error) {
	switch cfg.Store.Type {
	case config.StoreConsul:
		return store.NewConsulStore(cfg.Store.ConsulAddr, cfg.Store.ConsulPrefix)
	default:
		return store.NewFileStore(cfg.ProfileDir), nil
	}
}

// openLedger returns nil without error when history is disabled.
func openLedger(ctx context.Context, cfg *config.Config) (*history.Ledger, error) {
	path, err := cfg.HistoryPath()
	if err != nil || path == "" {
		return nil, err
	}
	return history.Open(ctx, path, history.WithRetention(cfg.HistoryRetention.Std()))
}

// storePrivateKey reads a WireGuard private key from r, validates it and
// saves it in the keyring.
func storePrivateKey(r io.Reader) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading key: %w", err)
	}
	key, err := vpn.ParsePrivateKey(strings.TrimSpace(line))
	if err != nil {
		return err
	}
	if err := keyring.StorePrivateKey(key); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}
	pub, err := vpn.PublicKeyFor(key)
	if err != nil {
		return err
	}
	fmt.Printf("Private key stored. Public key: %s\n", pub)
	return nil
}

// setupSignalHandler configures graceful shutdown on SIGINT/SIGTERM.
// When a signal is received, it cancels the context; a run in flight
// stops before its next profile.
func setupSignalHandler(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		common.LogInfo("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()
}
