package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/handiism/gallery-fetch/internal/config"
	ioutils "github.com/handiism/gallery-fetch/internal/io"
	"github.com/handiism/gallery-fetch/internal/metrics"
	"github.com/handiism/gallery-fetch/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// pngBody is a minimal payload that passes verification.
var pngBody = append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 2040)...)

type gallery struct {
	mu       sync.Mutex
	hits     map[string]int
	handlers map[string]func(w http.ResponseWriter, hit int)
}

func newGallery() *gallery {
	return &gallery{hits: map[string]int{}, handlers: map[string]func(http.ResponseWriter, int){}}
}

func (g *gallery) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.hits[r.URL.Path]++
	hit := g.hits[r.URL.Path]
	handler := g.handlers[r.URL.Path]
	g.mu.Unlock()

	if handler == nil {
		w.Write(pngBody)
		return
	}
	handler(w, hit)
}

func (g *gallery) hitCount(path string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hits[path]
}

func testSettings() *config.Settings {
	s := config.DefaultSettings()
	s.RequestTimeoutSeconds = 5
	return s
}

func TestManager_NotFoundIsNotRetried(t *testing.T) {
	g := newGallery()
	g.handlers["/b.jpg"] = func(w http.ResponseWriter, hit int) {
		http.NotFound(w, nil)
	}
	srv := httptest.NewServer(g)
	defer srv.Close()

	rec := &sleepRecorder{}
	m := NewManager(testSettings(), nil, WithSleep(rec.sleep))
	dir := t.TempDir()
	tasks := []model.Task{
		model.NewTask(srv.URL+"/a.jpg", "a.jpg"),
		model.NewTask(srv.URL+"/b.jpg", "b.jpg"),
	}

	summary, err := m.RunToCompletion(context.Background(), dir, tasks, false)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}

	if summary.Passes != 1 {
		t.Errorf("Passes = %d, want 1", summary.Passes)
	}
	if len(summary.Succeeded) != 1 || summary.Succeeded[0].Filename != "a.jpg" {
		t.Errorf("Succeeded = %v, want [a.jpg]", summary.Succeeded)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].Task.Filename != "b.jpg" {
		t.Fatalf("Failed = %v, want [b.jpg]", summary.Failed)
	}
	if summary.Failed[0].Attempts != 1 {
		t.Errorf("b.jpg attempts = %d, want 1", summary.Failed[0].Attempts)
	}
	if g.hitCount("/b.jpg") != 1 {
		t.Errorf("b.jpg requested %d times, want 1", g.hitCount("/b.jpg"))
	}
	if len(rec.recorded()) != 0 {
		t.Errorf("slept %v, want no sleeps", rec.recorded())
	}

	data, err := os.ReadFile(filepath.Join(dir, "a.jpg"))
	if err != nil || !bytes.Equal(data, pngBody) {
		t.Errorf("a.jpg not downloaded correctly: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Error("b.jpg should not exist")
	}
}

func TestManager_SkipsExistingFiles(t *testing.T) {
	g := newGallery()
	srv := httptest.NewServer(g)
	defer srv.Close()

	dir := t.TempDir()
	tasks := []model.Task{model.NewTask(srv.URL+"/a.jpg", "a.jpg")}

	if _, err := NewManager(testSettings(), nil).RunToCompletion(context.Background(), dir, tasks, false); err != nil {
		t.Fatalf("first run error = %v", err)
	}
	path := filepath.Join(dir, "a.jpg")
	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	summary, err := NewManager(testSettings(), nil).RunToCompletion(context.Background(), dir, tasks, false)
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if len(summary.Succeeded) != 1 {
		t.Errorf("Succeeded = %v, want the skipped task", summary.Succeeded)
	}
	if g.hitCount("/a.jpg") != 1 {
		t.Errorf("a.jpg requested %d times, want 1", g.hitCount("/a.jpg"))
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		t.Error("existing file should be left unchanged")
	}
}

func TestManager_InvalidContentIsDeleted(t *testing.T) {
	g := newGallery()
	g.handlers["/login.jpg"] = func(w http.ResponseWriter, hit int) {
		w.Write([]byte("<html>please log in</html>"))
	}
	srv := httptest.NewServer(g)
	defer srv.Close()

	dir := t.TempDir()
	summary, err := NewManager(testSettings(), nil).RunToCompletion(context.Background(), dir,
		[]model.Task{model.NewTask(srv.URL+"/login.jpg", "login.jpg")}, false)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}

	if len(summary.Failed) != 1 {
		t.Fatalf("Failed = %v, want one task", summary.Failed)
	}
	if summary.Failed[0].Err.Domain != VerificationFailure {
		t.Errorf("Domain = %s, want verification", summary.Failed[0].Err.Domain)
	}
	if g.hitCount("/login.jpg") != 1 {
		t.Errorf("requested %d times, want 1", g.hitCount("/login.jpg"))
	}
	if _, err := os.Stat(filepath.Join(dir, "login.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Error("invalid file should be deleted")
	}
}

func TestManager_OuterRetryRunsOnlyFailedTasks(t *testing.T) {
	g := newGallery()
	g.handlers["/flaky.jpg"] = func(w http.ResponseWriter, hit int) {
		if hit == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(pngBody)
	}
	srv := httptest.NewServer(g)
	defer srv.Close()

	settings := testSettings()
	settings.DownloadMaxAttempts = 1
	rec := &sleepRecorder{}
	mt := metrics.New()
	m := NewManager(settings, nil, WithSleep(rec.sleep), WithMetrics(mt))

	tasks := []model.Task{
		model.NewTask(srv.URL+"/ok.jpg", "ok.jpg"),
		model.NewTask(srv.URL+"/flaky.jpg", "flaky.jpg"),
	}
	summary, err := m.RunToCompletion(context.Background(), t.TempDir(), tasks, true)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}

	if summary.Passes != 2 {
		t.Errorf("Passes = %d, want 2", summary.Passes)
	}
	if len(summary.Failed) != 0 || len(summary.Succeeded) != 2 {
		t.Errorf("Succeeded = %v, Failed = %v, want 2 and 0", summary.Succeeded, summary.Failed)
	}
	if g.hitCount("/ok.jpg") != 1 {
		t.Errorf("ok.jpg requested %d times, want 1", g.hitCount("/ok.jpg"))
	}
	if g.hitCount("/flaky.jpg") != 2 {
		t.Errorf("flaky.jpg requested %d times, want 2", g.hitCount("/flaky.jpg"))
	}

	delays := rec.recorded()
	if len(delays) != 1 || delays[0] != 5*time.Second {
		t.Errorf("sleeps = %v, want one 5s pass delay", delays)
	}

	if got := testutil.ToFloat64(mt.PassesTotal); got != 2 {
		t.Errorf("passes metric = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mt.BytesTotal); got != float64(2*len(pngBody)) {
		t.Errorf("bytes metric = %v, want %d", got, 2*len(pngBody))
	}
	if got := testutil.ToFloat64(mt.ReceivedBytesTotal); got != float64(2*len(pngBody)) {
		t.Errorf("received bytes metric = %v, want %d", got, 2*len(pngBody))
	}

	received, files, total := m.GetProgress()
	if received != int64(2*len(pngBody)) || files != 2 || total != 2 {
		t.Errorf("GetProgress() = %d, %d, %d, want %d, 2, 2", received, files, total, 2*len(pngBody))
	}
}

func TestManager_MaxPasses(t *testing.T) {
	g := newGallery()
	g.handlers["/down.jpg"] = func(w http.ResponseWriter, hit int) {
		w.WriteHeader(http.StatusBadGateway)
	}
	srv := httptest.NewServer(g)
	defer srv.Close()

	settings := testSettings()
	settings.DownloadMaxAttempts = 2
	settings.MaxPasses = 3
	rec := &sleepRecorder{}
	m := NewManager(settings, nil, WithSleep(rec.sleep))

	summary, err := m.RunToCompletion(context.Background(), t.TempDir(),
		[]model.Task{model.NewTask(srv.URL+"/down.jpg", "down.jpg")}, true)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}

	if summary.Passes != 3 {
		t.Errorf("Passes = %d, want 3", summary.Passes)
	}
	if len(summary.Failed) != 1 {
		t.Errorf("Failed = %v, want one task", summary.Failed)
	}
	if g.hitCount("/down.jpg") != 6 {
		t.Errorf("requested %d times, want 6", g.hitCount("/down.jpg"))
	}
	// one backoff per pass plus two pass delays
	if len(rec.recorded()) != 5 {
		t.Errorf("slept %d times, want 5", len(rec.recorded()))
	}
}

func TestManager_StopRetrying(t *testing.T) {
	g := newGallery()
	g.handlers["/down.jpg"] = func(w http.ResponseWriter, hit int) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	srv := httptest.NewServer(g)
	defer srv.Close()

	settings := testSettings()
	settings.DownloadMaxAttempts = 1

	var m *Manager
	rec := &sleepRecorder{hook: func(d time.Duration) {
		if d == settings.PassDelay() {
			m.StopRetrying()
		}
	}}
	m = NewManager(settings, nil, WithSleep(rec.sleep))

	summary, err := m.RunToCompletion(context.Background(), t.TempDir(),
		[]model.Task{model.NewTask(srv.URL+"/down.jpg", "down.jpg")}, true)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}
	if summary.Passes != 1 {
		t.Errorf("Passes = %d, want 1", summary.Passes)
	}
	if g.hitCount("/down.jpg") != 1 {
		t.Errorf("requested %d times, want 1", g.hitCount("/down.jpg"))
	}
	if len(summary.Failed) != 1 {
		t.Errorf("Failed = %v, want one task", summary.Failed)
	}
}

func TestManager_StopRetryingBeforeRun(t *testing.T) {
	g := newGallery()
	g.handlers["/down.jpg"] = func(w http.ResponseWriter, hit int) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	srv := httptest.NewServer(g)
	defer srv.Close()

	settings := testSettings()
	settings.DownloadMaxAttempts = 1
	rec := &sleepRecorder{}
	m := NewManager(settings, nil, WithSleep(rec.sleep))
	m.StopRetrying()

	summary, err := m.RunToCompletion(context.Background(), t.TempDir(),
		[]model.Task{model.NewTask(srv.URL+"/down.jpg", "down.jpg")}, true)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}
	if summary.Passes != 1 {
		t.Errorf("Passes = %d, want 1", summary.Passes)
	}
	if len(rec.recorded()) != 0 {
		t.Errorf("slept %v, want no pass delay", rec.recorded())
	}
}

func TestManager_EmptyFilenameIsNotSkipped(t *testing.T) {
	g := newGallery()
	srv := httptest.NewServer(g)
	defer srv.Close()

	tasks := []model.Task{
		{URL: srv.URL + "/a.jpg", Filename: ""},
		model.NewTask(srv.URL+"/", ".."),
	}
	summary, err := NewManager(testSettings(), nil).RunToCompletion(context.Background(), t.TempDir(), tasks, false)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}

	if len(summary.Succeeded) != 0 || len(summary.Failed) != 2 {
		t.Fatalf("Succeeded = %v, Failed = %v, want 0 and 2", summary.Succeeded, summary.Failed)
	}
	for _, f := range summary.Failed {
		if f.Attempts != 1 || !errors.Is(f.Err, model.ErrEmptyFilename) {
			t.Errorf("%s: attempts = %d, err = %v, want one attempt with ErrEmptyFilename", f.Task, f.Attempts, f.Err)
		}
	}
	if g.hitCount("/a.jpg") != 0 {
		t.Errorf("requested %d times, want 0", g.hitCount("/a.jpg"))
	}
}

func TestManager_DirectoryAtDestinationIsNotSkipped(t *testing.T) {
	g := newGallery()
	srv := httptest.NewServer(g)
	defer srv.Close()

	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "a.jpg"), 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	summary, err := NewManager(testSettings(), nil).RunToCompletion(context.Background(), dir,
		[]model.Task{model.NewTask(srv.URL+"/a.jpg", "a.jpg")}, false)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}

	if len(summary.Failed) != 1 {
		t.Fatalf("Failed = %v, want one task", summary.Failed)
	}
	if !errors.Is(summary.Failed[0].Err, ioutils.ErrNotRegular) {
		t.Errorf("Err = %v, want ErrNotRegular", summary.Failed[0].Err)
	}
	if g.hitCount("/a.jpg") != 0 {
		t.Errorf("requested %d times, want 0", g.hitCount("/a.jpg"))
	}
}

func TestManager_NoTasks(t *testing.T) {
	_, err := NewManager(testSettings(), nil).RunToCompletion(context.Background(), t.TempDir(), nil, true)
	if !errors.Is(err, ErrNoTasks) {
		t.Errorf("RunToCompletion(nil) error = %v, want ErrNoTasks", err)
	}
}

func TestManager_RunPassBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		w.Write(pngBody)
	}))
	defer srv.Close()

	settings := testSettings()
	settings.MaxConcurrentDownloads = 4

	var tasks []model.Task
	for _, name := range []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"} {
		tasks = append(tasks, model.NewTask(srv.URL+"/"+name+".jpg", name+".jpg"))
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		close(release)
	}()

	report := NewManager(settings, nil).RunPass(context.Background(), t.TempDir(), tasks)
	if len(report.Outcome.Succeeded) != len(tasks) {
		t.Errorf("Succeeded = %d, want %d (failures %v)", len(report.Outcome.Succeeded), len(tasks), report.Failures)
	}
	if peak > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", peak)
	}
}

func TestManager_InvalidURLNeverHitsNetwork(t *testing.T) {
	var events []ProgressEvent
	var mu sync.Mutex
	m := NewManager(testSettings(), func(e ProgressEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	summary, err := m.RunToCompletion(context.Background(), t.TempDir(),
		[]model.Task{model.NewTask("::not a url::", "x.jpg")}, false)
	if err != nil {
		t.Fatalf("RunToCompletion() error = %v", err)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].Err.Request != KindInvalidURL {
		t.Fatalf("Failed = %+v, want one invalid-url failure", summary.Failed)
	}
	if summary.Failed[0].Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", summary.Failed[0].Attempts)
	}
}
