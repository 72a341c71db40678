package whispercpp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/scribe/internal/types"
)

const verboseJSON = `{"task":"transcribe","language":"english","duration":7.5,"text":" hello world",
"segments":[{"id":0,"start":0,"end":1.2,"text":" hello "},{"id":1,"start":1.2,"end":2.0,"text":"   "},{"id":2,"start":2.0,"end":3.4,"text":"world"}]}`

type fakeVideo struct{}

func (fakeVideo) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	return os.WriteFile(outWav, []byte("RIFF"), 0o644)
}

func (fakeVideo) ProbeDuration(ctx context.Context, in string) (time.Duration, error) {
	return 9 * time.Second, nil
}

type fakeServer struct {
	ts    *httptest.Server
	alive atomic.Bool
}

func (s *fakeServer) URL() string { return s.ts.URL }
func (s *fakeServer) Alive() bool { return s.alive.Load() }
func (s *fakeServer) Stop() error {
	s.alive.Store(false)
	s.ts.Close()
	return nil
}

type fakeLauncher struct {
	handler http.Handler
	delay   time.Duration
	err     error

	starts atomic.Int32
	mu     sync.Mutex
	last   *fakeServer
	spec   launchSpec
}

func (l *fakeLauncher) Start(ctx context.Context, spec launchSpec) (server, error) {
	l.starts.Add(1)
	time.Sleep(l.delay)
	if l.err != nil {
		return nil, l.err
	}
	s := &fakeServer{ts: httptest.NewServer(l.handler)}
	s.alive.Store(true)
	l.mu.Lock()
	l.last, l.spec = s, spec
	l.mu.Unlock()
	return s, nil
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("temperature") != "0.0" || r.FormValue("response_format") != "verbose_json" {
			http.Error(w, "non-deterministic decoding", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(body))
	})
}

func newTestEngine(t *testing.T, l *fakeLauncher, weights ...string) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	for _, w := range weights {
		if err := os.WriteFile(filepath.Join(dir, w), []byte("ggml"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	e := New(Config{ModelsDir: dir, Device: DeviceCPU}, fakeVideo{}, log)
	e.launcher = l
	return e, dir
}

func audioFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "abcd1234.mp3")
	if err := os.WriteFile(p, []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTranscribeLazyLoads(t *testing.T) {
	l := &fakeLauncher{handler: okHandler(verboseJSON)}
	e, _ := newTestEngine(t, l, "ggml-small-q8_0.bin")
	if e.IsLoaded() {
		t.Fatalf("engine must start unloaded")
	}

	audio := audioFile(t)
	tr, err := e.Transcribe(context.Background(), audio, types.TranscribeOptions{IncludeTimestamps: true})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Text != "hello world" || len(tr.Segments) != 2 {
		t.Fatalf("unexpected transcript %+v", tr)
	}
	if tr.Language != "en" || tr.Duration != 7.5 || tr.Provenance != "recognition-engine:small" {
		t.Fatalf("language=%q duration=%v provenance=%q", tr.Language, tr.Duration, tr.Provenance)
	}
	if !e.IsLoaded() {
		t.Fatalf("engine should be loaded")
	}
	h := e.Status()
	if h.Device != DeviceCPU || h.Precision != "int8" || !h.Loaded || h.ModelName != "small" {
		t.Fatalf("handle=%+v", h)
	}
	if l.spec.GPU || l.spec.BeamSize != 5 || !strings.HasSuffix(l.spec.ModelPath, "ggml-small-q8_0.bin") {
		t.Fatalf("spec=%+v", l.spec)
	}
	if _, err := os.Stat(strings.TrimSuffix(audio, ".wav") + ".16k.wav"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("converted audio should be removed, stat err=%v", err)
	}
}

func TestTranscribeWithoutTimestamps(t *testing.T) {
	l := &fakeLauncher{handler: okHandler(`{"text":"x","segments":[{"start":0,"end":1,"text":"x"}]}`)}
	e, _ := newTestEngine(t, l, "ggml-small.bin")
	tr, err := e.Transcribe(context.Background(), audioFile(t), types.TranscribeOptions{Language: "es"})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Segments != nil || tr.Text != "x" {
		t.Fatalf("unexpected transcript %+v", tr)
	}
	if tr.Language != "es" || tr.Duration != 9 {
		t.Fatalf("language=%q duration=%v", tr.Language, tr.Duration)
	}
}

func TestConcurrentFirstCallsLoadOnce(t *testing.T) {
	l := &fakeLauncher{handler: okHandler(verboseJSON), delay: 50 * time.Millisecond}
	e, _ := newTestEngine(t, l, "ggml-small.bin")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Transcribe(context.Background(), audioFile(t), types.TranscribeOptions{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if n := l.starts.Load(); n != 1 {
		t.Fatalf("model loaded %d times, want 1", n)
	}
}

func TestUnloadThenReload(t *testing.T) {
	l := &fakeLauncher{handler: okHandler(verboseJSON)}
	e, _ := newTestEngine(t, l, "ggml-small.bin")
	ctx := context.Background()

	if _, err := e.Transcribe(ctx, audioFile(t), types.TranscribeOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := e.Unload(); err != nil {
		t.Fatal(err)
	}
	if e.IsLoaded() {
		t.Fatalf("IsLoaded after Unload")
	}
	if _, err := e.Transcribe(ctx, audioFile(t), types.TranscribeOptions{}); err != nil {
		t.Fatalf("transcribe after unload: %v", err)
	}
	if n := l.starts.Load(); n != 2 {
		t.Fatalf("starts=%d want 2", n)
	}
	if err := e.Unload(); err != nil {
		t.Fatal(err)
	}
	if err := e.Unload(); err != nil {
		t.Fatalf("second unload should be a no-op: %v", err)
	}
}

func TestUnloadWaitsForInflight(t *testing.T) {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	l := &fakeLauncher{handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-proceed
		_, _ = w.Write([]byte(verboseJSON))
	})}
	e, _ := newTestEngine(t, l, "ggml-small.bin")

	done := make(chan error, 1)
	go func() {
		_, err := e.Transcribe(context.Background(), audioFile(t), types.TranscribeOptions{})
		done <- err
	}()
	<-entered

	unloaded := make(chan struct{})
	go func() {
		_ = e.Unload()
		close(unloaded)
	}()

	select {
	case <-unloaded:
		t.Fatalf("unload finished while a transcription was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("in-flight transcription failed: %v", err)
	}
	<-unloaded
	if e.IsLoaded() {
		t.Fatalf("still loaded after unload")
	}
}

func TestModelLoadFailed(t *testing.T) {
	l := &fakeLauncher{handler: okHandler(verboseJSON)}
	e, _ := newTestEngine(t, l)
	_, err := e.Transcribe(context.Background(), audioFile(t), types.TranscribeOptions{})
	if !errors.Is(err, types.ErrModelLoadFailed) {
		t.Fatalf("want ErrModelLoadFailed, got %v", err)
	}
	if l.starts.Load() != 0 || e.IsLoaded() {
		t.Fatalf("nothing should have started")
	}

	l2 := &fakeLauncher{err: errors.New("exec: not found")}
	e2, _ := newTestEngine(t, l2, "ggml-small.bin")
	if _, err := e2.Transcribe(context.Background(), audioFile(t), types.TranscribeOptions{}); !errors.Is(err, types.ErrModelLoadFailed) {
		t.Fatalf("want ErrModelLoadFailed, got %v", err)
	}
}

func TestTranscriptionFailedKeepsHandle(t *testing.T) {
	l := &fakeLauncher{handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "decoder exploded", http.StatusInternalServerError)
	})}
	e, _ := newTestEngine(t, l, "ggml-small.bin")
	_, err := e.Transcribe(context.Background(), audioFile(t), types.TranscribeOptions{})
	if !errors.Is(err, types.ErrTranscriptionFailed) {
		t.Fatalf("want ErrTranscriptionFailed, got %v", err)
	}
	if !e.IsLoaded() {
		t.Fatalf("a failed decode must not drop the loaded model")
	}
}

func TestDeadServerIsReplaced(t *testing.T) {
	l := &fakeLauncher{handler: okHandler(verboseJSON)}
	e, _ := newTestEngine(t, l, "ggml-small.bin")
	ctx := context.Background()
	if _, err := e.Transcribe(ctx, audioFile(t), types.TranscribeOptions{}); err != nil {
		t.Fatal(err)
	}
	l.last.alive.Store(false)
	if _, err := e.Transcribe(ctx, audioFile(t), types.TranscribeOptions{}); err != nil {
		t.Fatal(err)
	}
	if n := l.starts.Load(); n != 2 {
		t.Fatalf("starts=%d want 2", n)
	}
}

func TestPreload(t *testing.T) {
	l := &fakeLauncher{handler: okHandler(verboseJSON)}
	e, _ := newTestEngine(t, l, "ggml-small.bin", "ggml-tiny.bin")
	ctx := context.Background()

	if _, err := e.Preload(ctx, "enormous"); !errors.Is(err, types.ErrModelLoadFailed) {
		t.Fatalf("want ErrModelLoadFailed for unknown preset, got %v", err)
	}
	h, err := e.Preload(ctx, "tiny")
	if err != nil {
		t.Fatal(err)
	}
	if h.ModelName != "tiny" || h.Precision != "float16" || !h.Loaded {
		t.Fatalf("handle=%+v", h)
	}
	if _, err := e.Preload(ctx, "tiny"); err != nil {
		t.Fatal(err)
	}
	if n := l.starts.Load(); n != 1 {
		t.Fatalf("preloading the loaded model should not restart, starts=%d", n)
	}

	tr, err := e.Transcribe(ctx, audioFile(t), types.TranscribeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Provenance != "recognition-engine:tiny" {
		t.Fatalf("provenance=%q", tr.Provenance)
	}

	_ = e.Unload()
	if got := e.Status(); got.Loaded || got.ModelName != "tiny" {
		t.Fatalf("status after unload=%+v", got)
	}
}

func TestFailedPreloadKeepsPreviousModel(t *testing.T) {
	l := &fakeLauncher{handler: okHandler(verboseJSON)}
	e, _ := newTestEngine(t, l, "ggml-small-q8_0.bin")
	ctx := context.Background()
	if _, err := e.Transcribe(ctx, audioFile(t), types.TranscribeOptions{}); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Preload(ctx, "large-v3"); !errors.Is(err, types.ErrModelLoadFailed) {
		t.Fatalf("want ErrModelLoadFailed for missing weights, got %v", err)
	}
	want := types.ModelHandle{ModelName: "small", Device: DeviceCPU, Precision: "int8", Loaded: true}
	if got := e.Status(); got != want {
		t.Fatalf("status=%+v want %+v", got, want)
	}
	if n := l.starts.Load(); n != 1 {
		t.Fatalf("missing weights must not stop the running server, starts=%d", n)
	}

	// Weights exist but the server fails to start.
	if err := os.WriteFile(filepath.Join(e.cfg.ModelsDir, "ggml-tiny.bin"), []byte("ggml"), 0o644); err != nil {
		t.Fatal(err)
	}
	l.err = errors.New("exec: out of memory")
	if _, err := e.Preload(ctx, "tiny"); !errors.Is(err, types.ErrModelLoadFailed) {
		t.Fatalf("want ErrModelLoadFailed, got %v", err)
	}
	got := e.Status()
	if got.Loaded || got.ModelName != "small" || got.Precision != "int8" {
		t.Fatalf("status after failed launch=%+v", got)
	}

	l.err = nil
	tr, err := e.Transcribe(ctx, audioFile(t), types.TranscribeOptions{})
	if err != nil {
		t.Fatalf("transcribe after failed preload: %v", err)
	}
	if tr.Provenance != "recognition-engine:small" {
		t.Fatalf("provenance=%q", tr.Provenance)
	}
}

func TestResolveDevice(t *testing.T) {
	orig := acceleratorPresent
	t.Cleanup(func() { acceleratorPresent = orig })

	acceleratorPresent = func() bool { return false }
	if d, _ := resolveDevice("auto"); d != DeviceCPU {
		t.Fatalf("auto without accelerator = %q", d)
	}
	if _, err := resolveDevice("cuda"); err == nil {
		t.Fatalf("accelerator without hardware should fail")
	}
	if _, err := resolveDevice("tpu"); err == nil {
		t.Fatalf("unknown device should fail")
	}

	acceleratorPresent = func() bool { return true }
	if d, _ := resolveDevice(""); d != DeviceAccelerator {
		t.Fatalf("auto with accelerator = %q", d)
	}
}

func TestModelFile(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"ggml-base.bin", "ggml-base-q8_0.bin"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	p, prec, err := modelFile(dir, "base", DeviceCPU)
	if err != nil || prec != "int8" || filepath.Base(p) != "ggml-base-q8_0.bin" {
		t.Fatalf("cpu: %s %s %v", p, prec, err)
	}
	p, prec, err = modelFile(dir, "base", DeviceAccelerator)
	if err != nil || prec != "float16" || filepath.Base(p) != "ggml-base.bin" {
		t.Fatalf("accelerator: %s %s %v", p, prec, err)
	}
	if _, _, err := modelFile(dir, "medium", DeviceCPU); err == nil {
		t.Fatalf("missing weights should fail")
	}
}

func TestLaunchArgs(t *testing.T) {
	args := strings.Join(launchSpec{ModelPath: "m.bin", BeamSize: 5, BestOf: 5, Threads: 4, VADModel: "vad.bin"}.args(8080), " ")
	for _, want := range []string{"-m m.bin", "--port 8080", "-bs 5", "-bo 5", "-t 4", "-ng", "--vad -vm vad.bin", "--host 127.0.0.1"} {
		if !strings.Contains(args, want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
	gpu := strings.Join(launchSpec{ModelPath: "m.bin", GPU: true}.args(1), " ")
	if strings.Contains(gpu, "-ng") {
		t.Fatalf("gpu launch must not disable the gpu: %q", gpu)
	}
}
