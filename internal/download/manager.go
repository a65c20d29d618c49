package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/handiism/gallery-fetch/internal/config"
	"github.com/handiism/gallery-fetch/internal/http"
	ioutils "github.com/handiism/gallery-fetch/internal/io"
	"github.com/handiism/gallery-fetch/internal/metrics"
	"github.com/handiism/gallery-fetch/internal/model"
	"golang.org/x/sync/errgroup"
)

// ErrNoTasks is returned when there is nothing to download.
var ErrNoTasks = errors.New("no downloadable resources")

// PassReport describes one pass of the worker pool.
type PassReport struct {
	Pass    int
	Outcome model.Outcome

	// Failures holds the exhausted tasks with their last error, in
	// completion order.
	Failures []TaskResult
}

// Summary describes a whole run.
type Summary struct {
	Passes    int
	Succeeded []model.Task

	// Failed holds the tasks still failing after the last pass.
	Failed []TaskResult
}

// Option configures a Manager.
type Option func(*Manager)

// WithProxyEnv sets the proxy variables the client is built from.
// Without it the Manager connects directly.
func WithProxyEnv(env http.ProxyEnv) Option {
	return func(m *Manager) { m.proxyEnv = env }
}

// WithMetrics records activity on m.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithSleep replaces the function used for backoff and inter-pass delays.
func WithSleep(sleep SleepFunc) Option {
	return func(m *Manager) { m.sleep = sleep }
}

// Manager coordinates image downloads.
//
// Each pass hands every pending task to a fixed-size worker pool. A worker
// runs one task's whole retry loop before it takes the next task. Exhausted
// tasks are sent to a single collector; the pass ends only when every task
// has reached a terminal state.
type Manager struct {
	settings *config.Settings
	policy   RetryPolicy
	proxyEnv http.ProxyEnv
	metrics  *metrics.Metrics
	sleep    SleepFunc

	resolver    *http.Resolver
	fetcherOnce sync.Once
	fetcher     *Fetcher
	retrier     *Retrier

	stopped         atomic.Bool
	totalFiles      atomic.Int32
	downloadedFiles atomic.Int32
	receivedBytes   atomic.Int64

	onProgress func(ProgressEvent)
}

// NewManager creates a new download Manager.
func NewManager(settings *config.Settings, onProgress func(ProgressEvent), opts ...Option) *Manager {
	m := &Manager{
		settings:   settings,
		policy:     PolicyFromSettings(settings),
		sleep:      Sleep,
		onProgress: onProgress,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.resolver = http.NewResolver(m.proxyEnv, http.ResolverOptions{
		ProbeTimeout:   settings.ProxyProbeTimeout(),
		RequestTimeout: settings.RequestTimeout(),
	})
	m.retrier = NewRetrier(m.policy, m.sleep, m.metrics, m.progress)
	return m
}

// PolicyFromSettings converts the retry settings to a RetryPolicy.
func PolicyFromSettings(s *config.Settings) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: s.DownloadMaxAttempts,
		BaseDelay:   time.Duration(s.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(s.RetryMaxDelayMs) * time.Millisecond,
		JitterMax:   time.Duration(s.RetryJitterMs) * time.Millisecond,
		ExponentCap: s.RetryExponentCap,
	}
}

// Policy returns the retry policy in use.
func (m *Manager) Policy() RetryPolicy {
	return m.policy
}

// UsesProxy reports whether downloads go through a proxy. It is only
// meaningful once a pass has started.
func (m *Manager) UsesProxy() bool {
	return m.resolver.UsesProxy()
}

// StopRetrying prevents any further pass from starting. The running pass
// is not interrupted. It may be called before RunToCompletion, and it stays
// in effect for the lifetime of the Manager.
func (m *Manager) StopRetrying() {
	m.stopped.Store(true)
}

func (m *Manager) retrying(allowOuterRetry bool) bool {
	return allowOuterRetry && !m.stopped.Load()
}

// GetProgress returns how many files have been completed and how many bytes
// were verified so far.
func (m *Manager) GetProgress() (received int64, filesReceived, filesTotal int32) {
	return m.receivedBytes.Load(), m.downloadedFiles.Load(), m.totalFiles.Load()
}

// RunToCompletion downloads tasks into dir.
//
// After each pass the failed tasks, and only those, become the input of the
// next pass, following a pause of settings.PassDelay. Passes continue while
// allowOuterRetry holds (see StopRetrying) and settings.MaxPasses, when
// non-zero, has not been reached. ErrNoTasks is returned for an empty task
// list; a cancelled ctx ends the run after the current pass.
func (m *Manager) RunToCompletion(ctx context.Context, dir string, tasks []model.Task, allowOuterRetry bool) (Summary, error) {
	var summary Summary
	if len(tasks) == 0 {
		return summary, ErrNoTasks
	}

	if err := ioutils.EnsureDir(dir); err != nil {
		return summary, fmt.Errorf("create destination %s: %w", dir, err)
	}

	m.totalFiles.Store(int32(len(tasks)))

	pending := tasks
	for pass := 1; ; pass++ {
		report := m.RunPass(ctx, dir, pending)
		report.Pass = pass

		summary.Passes = pass
		summary.Succeeded = append(summary.Succeeded, report.Outcome.Succeeded...)
		summary.Failed = report.Failures

		if report.Outcome.Done() {
			m.progress(ProgressEvent{Message: "All downloads completed successfully.", Level: LevelSuccess})
			return summary, nil
		}

		for _, f := range report.Failures {
			m.progress(ProgressEvent{Message: fmt.Sprintf("Failed: %s (%v)", f.Task, f.Err), Level: LevelError, Task: f.Task.Filename})
		}

		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if !m.retrying(allowOuterRetry) {
			m.progress(ProgressEvent{Message: fmt.Sprintf("%d of %d downloads failed, outer retry is disabled.", len(report.Failures), report.Outcome.Total()), Level: LevelWarning})
			return summary, nil
		}

		if m.settings.MaxPasses > 0 && pass >= m.settings.MaxPasses {
			m.progress(ProgressEvent{Message: fmt.Sprintf("%d downloads still failing after %d passes.", len(report.Failures), pass), Level: LevelWarning})
			return summary, nil
		}

		m.progress(ProgressEvent{Message: fmt.Sprintf("Retrying %d failed downloads after %v...", len(report.Failures), m.settings.PassDelay()), Level: LevelInfo})
		if err := m.sleep(ctx, m.settings.PassDelay()); err != nil {
			return summary, err
		}
		if !m.retrying(allowOuterRetry) {
			m.progress(ProgressEvent{Message: fmt.Sprintf("Retrying stopped, %d downloads still failing.", len(report.Failures)), Level: LevelWarning})
			return summary, nil
		}

		pending = report.Outcome.Failed
	}
}

// RunPass runs every task through the retry loop once, using
// settings.Workers concurrent workers, and returns when all are done.
func (m *Manager) RunPass(ctx context.Context, dir string, tasks []model.Task) PassReport {
	m.metrics.PassStarted(len(tasks))
	fetcher := m.getFetcher(ctx)
	attempt := func(ctx context.Context, task model.Task) (bool, error) {
		return fetcher.Download(ctx, task, dir)
	}

	results := make(chan TaskResult)
	collected := make(chan PassReport, 1)
	go func() {
		var report PassReport
		for res := range results {
			switch res.State {
			case StateSucceeded:
				report.Outcome.Succeeded = append(report.Outcome.Succeeded, res.Task)
			default:
				report.Outcome.Failed = append(report.Outcome.Failed, res.Task)
				report.Failures = append(report.Failures, res)
			}
		}
		collected <- report
	}()

	var g errgroup.Group
	g.SetLimit(m.settings.Workers())

	for _, task := range tasks {
		g.Go(func() error {
			res := m.retrier.Run(ctx, task, attempt)
			m.finish(res)
			results <- res
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	return <-collected
}

func (m *Manager) finish(res TaskResult) {
	switch {
	case res.State == StateExhausted:
		m.metrics.TaskFinished("exhausted")
	case res.Skipped:
		m.downloadedFiles.Add(1)
		m.metrics.TaskFinished("skipped")
	default:
		m.downloadedFiles.Add(1)
		m.metrics.TaskFinished("succeeded")
		m.progress(ProgressEvent{Message: fmt.Sprintf("Downloaded: %s", res.Task.Filename), Level: LevelVerbose, Task: res.Task.Filename})
	}
}

func (m *Manager) getFetcher(ctx context.Context) *Fetcher {
	m.fetcherOnce.Do(func() {
		client := http.NewClient(m.resolver.Client(ctx))
		if m.resolver.UsesProxy() {
			m.progress(ProgressEvent{Message: "Using proxy from environment", Level: LevelInfo})
		}
		m.fetcher = NewFetcher(client, m.settings.Cookie, m.progress)
		m.fetcher.onStream = m.metrics.AddReceived
		m.fetcher.onBytes = func(n int64) {
			m.receivedBytes.Add(n)
			m.metrics.AddBytes(n)
		}
	})
	return m.fetcher
}

func (m *Manager) progress(event ProgressEvent) {
	if m.onProgress != nil {
		m.onProgress(event)
	}
}
