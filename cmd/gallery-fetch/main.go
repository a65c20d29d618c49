package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/handiism/gallery-fetch/internal/config"
	"github.com/handiism/gallery-fetch/internal/download"
	"github.com/handiism/gallery-fetch/internal/http"
	"github.com/handiism/gallery-fetch/internal/logger"
	"github.com/handiism/gallery-fetch/internal/manifest"
	"github.com/handiism/gallery-fetch/internal/metrics"
	"github.com/handiism/gallery-fetch/internal/tui"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Exit codes
const (
	exitOK        = 0
	exitFailed    = 1
	exitUsage     = 2
	exitCancelled = 130
)

// cookieEnv overrides the cookie from the settings file.
const cookieEnv = "GALLERY_FETCH_COOKIE"

func main() {
	// .env may carry proxy variables and the login cookie
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	os.Exit(run(ctx, cancel, os.Args[1:], os.Stdout, os.Stderr, sigCh))
}

// run executes one batch and returns the process exit code.
//
// The first signal on interrupts stops further passes and the second one
// cancels the running pass.
func run(ctx context.Context, cancel context.CancelFunc, args []string, stdout, stderr io.Writer, interrupts <-chan os.Signal) int {
	fs := flag.NewFlagSet("gallery-fetch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		manifestFlag  = fs.String("manifest", "", "Path to the task list (JSON or YAML)")
		outputFlag    = fs.String("output", "", "Destination directory (overrides config and manifest)")
		configFlag    = fs.String("config", "", "Path to config file")
		cookieFlag    = fs.String("cookie", "", "Raw Cookie header sent with every request")
		retryFlag     = fs.Bool("retry", false, "Re-run failed downloads until they all succeed")
		maxPassesFlag = fs.Int("max-passes", -1, "Maximum number of passes with -retry, 0 for no limit")
		workersFlag   = fs.Int("workers", 0, "Number of concurrent downloads (overrides config)")
		metricsFlag   = fs.String("metrics-file", "", "Write Prometheus metrics to this file")
		verboseFlag   = fs.Bool("verbose", false, "Show verbose output")
		dryRunFlag    = fs.Bool("dry-run", false, "Parse the task list without downloading")
	)

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	manifestPath := *manifestFlag
	if manifestPath == "" && fs.NArg() > 0 {
		manifestPath = fs.Arg(0)
	}
	if manifestPath == "" {
		fmt.Fprintln(stderr, "Gallery Fetch - Download the images of a resolved gallery")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  gallery-fetch -manifest <file> [options]")
		fmt.Fprintln(stderr, "  gallery-fetch <file> [options]")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
		return exitUsage
	}

	// Load config
	settings := config.DefaultSettings()
	if *configFlag != "" {
		var err error
		settings, err = config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(stderr, "Error loading config: %v\n", err)
			return exitFailed
		}
	}

	// Apply environment and flags
	if cookie, ok := os.LookupEnv(cookieEnv); ok {
		settings.Cookie = cookie
	}
	if *cookieFlag != "" {
		settings.Cookie = *cookieFlag
	}
	if *retryFlag {
		settings.OuterRetry = true
	}
	if *maxPassesFlag >= 0 {
		settings.MaxPasses = *maxPassesFlag
	}
	if *workersFlag > 0 {
		settings.MaxConcurrentDownloads = *workersFlag
	}
	if *metricsFlag != "" {
		settings.MetricsFile = *metricsFlag
	}
	if *verboseFlag {
		settings.LogLevel = "debug"
	}

	base := logger.New(logger.Config{
		Level:  settings.LogLevel,
		Format: settings.LogFormat,
		Path:   settings.LogPath,
		Out:    stderr,
	})
	defer base.Close()
	log := base.WithRun(uuid.NewString())

	m, err := manifest.Load(manifestPath)
	if err != nil {
		log.Error().Err(err).Str("manifest", manifestPath).Msg("Failed to load task list")
		return exitFailed
	}

	dir := destination(settings.DownloadsPath, m.Directory, *outputFlag)
	printer := tui.NewPrinter(stdout, *verboseFlag)
	printer.Title("Gallery Fetch")

	if *dryRunFlag {
		for _, task := range m.Tasks {
			fmt.Fprintf(stdout, "%s\n", task.Path(dir))
		}
		fmt.Fprintf(stdout, "\n[Dry run - %d files, not downloading]\n", len(m.Tasks))
		return exitOK
	}

	mt := metrics.New()
	manager := download.NewManager(settings, progressLogger(log.WithComponent("download"), printer),
		download.WithProxyEnv(http.ProxyEnvFromOS()),
		download.WithMetrics(mt),
	)

	go func() {
		for count := 0; ; count++ {
			select {
			case <-ctx.Done():
				return
			case <-interrupts:
			}
			if count == 0 {
				log.Warn().Msg("Interrupted, finishing the current pass. Interrupt again to cancel.")
				manager.StopRetrying()
				continue
			}
			log.Warn().Msg("Interrupted, cancelling...")
			cancel()
			return
		}
	}()

	log.Info().
		Str("dir", dir).
		Int("tasks", len(m.Tasks)).
		Int("workers", settings.Workers()).
		Bool("outer_retry", settings.OuterRetry).
		Msg("Starting downloads")

	summary, runErr := manager.RunToCompletion(ctx, dir, m.Tasks, settings.OuterRetry)
	log.Info().
		Int("passes", summary.Passes).
		Int("succeeded", len(summary.Succeeded)).
		Int("failed", len(summary.Failed)).
		Bool("proxy", manager.UsesProxy()).
		Msg("Downloads finished")

	if err := mt.WriteTextfile(settings.MetricsFile); err != nil {
		log.Warn().Err(err).Str("path", settings.MetricsFile).Msg("Failed to write metrics")
	}

	switch {
	case errors.Is(runErr, download.ErrNoTasks):
		log.Error().Msg("No downloadable resources found.")
		fmt.Fprintln(stderr, "Possible reasons:")
		fmt.Fprintln(stderr, "  - the gallery does not exist or was removed")
		fmt.Fprintln(stderr, "  - the content is restricted in your region")
		fmt.Fprintln(stderr, "  - the gallery needs a login cookie (set -cookie or "+cookieEnv+")")
		return exitFailed
	case runErr != nil && ctx.Err() != nil:
		log.Warn().Msg("Download cancelled.")
		return exitCancelled
	case runErr != nil:
		log.Error().Err(runErr).Msg("Error during download")
		return exitFailed
	}

	received, done, total := manager.GetProgress()
	printer.Progress(done, total, received)
	printer.Summary(summary, received)

	if len(summary.Failed) > 0 {
		return exitFailed
	}
	return exitOK
}

// destination picks the directory images are saved in. An explicit output
// wins; otherwise the manifest directory is placed under the downloads path.
func destination(downloadsPath, manifestDir, output string) string {
	if output != "" {
		return output
	}
	if manifestDir == "" {
		return downloadsPath
	}
	if filepath.IsAbs(manifestDir) {
		return manifestDir
	}
	return filepath.Join(downloadsPath, manifestDir)
}

// progressLogger forwards download events to log. Success and error events
// are also shown on printer.
func progressLogger(log *logger.Logger, printer *tui.Printer) func(download.ProgressEvent) {
	return func(event download.ProgressEvent) {
		if printer != nil && (event.Level == download.LevelSuccess || event.Level == download.LevelError) {
			printer.Event(event)
		}

		var e *zerolog.Event
		switch event.Level {
		case download.LevelVerbose:
			e = log.Debug()
		case download.LevelWarning:
			e = log.Warn()
		case download.LevelError:
			e = log.Error()
		default:
			e = log.Info()
		}
		if event.Task != "" {
			e = e.Str("task", event.Task)
		}
		e.Str("event", event.Level.String()).Msg(event.Message)
	}
}
