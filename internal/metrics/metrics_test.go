package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.ObserveAttempt("success", 10*time.Millisecond)
	m.ObserveAttempt("retryable", 5*time.Millisecond)
	m.ObserveAttempt("retryable", 5*time.Millisecond)
	m.TaskFinished("succeeded")
	m.PassStarted(7)
	m.AddBytes(2048)
	m.AddBytes(-1)
	m.AddReceived(512)
	m.AddReceived(0)

	if got := testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("retryable")); got != 2 {
		t.Errorf("retryable attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TasksTotal.WithLabelValues("succeeded")); got != 1 {
		t.Errorf("succeeded tasks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PendingTasks); got != 7 {
		t.Errorf("pending tasks = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.BytesTotal); got != 2048 {
		t.Errorf("bytes = %v, want 2048", got)
	}
	if got := testutil.ToFloat64(m.ReceivedBytesTotal); got != 512 {
		t.Errorf("received bytes = %v, want 512", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("success", time.Second)
	m.ObserveBackoff(time.Second)
	m.TaskFinished("exhausted")
	m.PassStarted(1)
	m.AddBytes(1)
	m.AddReceived(1)
	if err := m.WriteTextfile("/nonexistent/metrics.prom"); err != nil {
		t.Errorf("WriteTextfile() on nil = %v, want nil", err)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.PassStarted(3)

	path := filepath.Join(t.TempDir(), "galleryfetch.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "galleryfetch_passes_total 1") {
		t.Errorf("textfile missing passes counter:\n%s", data)
	}
}
