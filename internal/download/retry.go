package download

import (
	"context"
	"fmt"
	"time"

	"github.com/handiism/gallery-fetch/internal/metrics"
	"github.com/handiism/gallery-fetch/internal/model"
)

// TaskState is the terminal state of a task within a pass.
type TaskState int

const (
	StateSucceeded TaskState = iota
	StateExhausted
)

func (s TaskState) String() string {
	if s == StateSucceeded {
		return "succeeded"
	}
	return "exhausted"
}

// TaskResult is what the retry loop reports for one task.
type TaskResult struct {
	Task     model.Task
	State    TaskState
	Attempts int
	Skipped  bool

	// Err is the last error of an exhausted task.
	Err *DownloadError
}

// AttemptFunc performs one attempt at a task. It reports whether an existing
// file made the attempt unnecessary.
type AttemptFunc func(ctx context.Context, task model.Task) (skipped bool, err error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc used outside of tests.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier runs the per-task retry loop.
//
// A task moves from pending to succeeded on the first successful attempt.
// A non-retryable error, or a retryable one on the last allowed attempt,
// makes it exhausted. Between attempts the Retrier sleeps for
// policy.DelayFor(attempt).
type Retrier struct {
	policy     RetryPolicy
	sleep      SleepFunc
	metrics    *metrics.Metrics
	onProgress func(ProgressEvent)
}

// NewRetrier creates a Retrier. A nil sleep selects Sleep.
func NewRetrier(policy RetryPolicy, sleep SleepFunc, m *metrics.Metrics, onProgress func(ProgressEvent)) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Retrier{
		policy:     policy,
		sleep:      sleep,
		metrics:    m,
		onProgress: onProgress,
	}
}

// Run drives task to a terminal state using attempt.
//
// Cancelling ctx ends the loop at the next backoff sleep; the task is then
// reported exhausted with the last error seen.
func (r *Retrier) Run(ctx context.Context, task model.Task, attempt AttemptFunc) TaskResult {
	result := TaskResult{Task: task}
	ceiling := r.policy.MaxAttempts

	for n := 1; n <= ceiling; n++ {
		result.Attempts = n

		start := time.Now()
		skipped, err := attempt(ctx, task)
		took := time.Since(start)

		if err == nil {
			r.metrics.ObserveAttempt("success", took)
			result.State = StateSucceeded
			result.Skipped = skipped
			return result
		}

		de := Classify(err)
		result.Err = de

		if !de.IsRetryable() {
			r.metrics.ObserveAttempt("permanent", took)
			r.progress(ProgressEvent{
				Message: fmt.Sprintf("Non-retryable error for %s: %v", task.Filename, de),
				Level:   LevelError,
				Task:    task.Filename,
			})
			break
		}
		r.metrics.ObserveAttempt("retryable", took)

		if n == ceiling {
			r.progress(ProgressEvent{
				Message: fmt.Sprintf("Failed after %d attempts: %s (%v)", ceiling, task.Filename, de),
				Level:   LevelError,
				Task:    task.Filename,
			})
			break
		}

		delay := r.policy.DelayFor(n)
		r.progress(ProgressEvent{
			Message: fmt.Sprintf("[Attempt %d/%d] %s failed: %v. Retrying in %v", n, ceiling, task.Filename, de, delay),
			Level:   LevelWarning,
			Task:    task.Filename,
		})
		r.metrics.ObserveBackoff(delay)

		if err := r.sleep(ctx, delay); err != nil {
			r.progress(ProgressEvent{Message: fmt.Sprintf("Giving up on %s: %v", task.Filename, err), Level: LevelWarning, Task: task.Filename})
			break
		}
	}

	result.State = StateExhausted
	return result
}

func (r *Retrier) progress(event ProgressEvent) {
	if r.onProgress != nil {
		r.onProgress(event)
	}
}
