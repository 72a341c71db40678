package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/forPelevin/scribe/internal/types"
	"github.com/forPelevin/scribe/internal/usecase"
)

type fakeEngine struct {
	acquireErr error
	lastInput  usecase.Input
	preloaded  string
	unloads    atomic.Int32
	sweeps     atomic.Int32
	lastAge    time.Duration
}

func (f *fakeEngine) Acquire(ctx context.Context, in usecase.Input) (usecase.Result, error) {
	f.lastInput = in
	if f.acquireErr != nil {
		return usecase.Result{}, f.acquireErr
	}
	return usecase.Result{
		Transcript: types.Transcript{Text: "hello world", Language: "en", Provenance: types.ProvenanceManual},
		Video:      types.PlaceholderInfo("abc12345678"),
		WordCount:  2,
	}, nil
}

func (f *fakeEngine) Info(ctx context.Context, raw string) (types.VideoInfo, error) {
	if raw == "nope" {
		return types.VideoInfo{}, types.NewError(types.ErrURLInvalid, "resolve", nil)
	}
	return types.VideoInfo{ID: "abc12345678", Title: "t"}, nil
}

func (f *fakeEngine) Preload(ctx context.Context, model string) (types.ModelHandle, error) {
	f.preloaded = model
	return types.ModelHandle{ModelName: model, Device: "cpu", Precision: "int8", Loaded: true}, nil
}

func (f *fakeEngine) Unload() error { f.unloads.Add(1); return nil }

func (f *fakeEngine) Status() types.ModelHandle { return types.ModelHandle{ModelName: "small"} }

func (f *fakeEngine) Sweep(maxAge time.Duration) (int, error) {
	f.sweeps.Add(1)
	f.lastAge = maxAge
	return 3, nil
}

func newTestServer(t *testing.T, eng *fakeEngine) (*httptest.Server, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	s := New(eng, Options{}, log)
	srv := httptest.NewServer(s.HttpServer.Handler)
	t.Cleanup(srv.Close)
	return srv, hook
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestTranscribe(t *testing.T) {
	eng := &fakeEngine{}
	srv, _ := newTestServer(t, eng)

	resp := post(t, srv.URL+"/transcribe", `{"url":"https://youtu.be/abc12345678","language":"en","include_timestamps":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id")
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["word_count"] != float64(2) {
		t.Fatalf("body=%v", body)
	}
	if eng.lastInput.Language != "en" || !eng.lastInput.IncludeTimestamps {
		t.Fatalf("input=%+v", eng.lastInput)
	}
}

func TestRequestLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := New(&fakeEngine{}, Options{}, log)
	h := s.requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/x?y=1", nil)
	req.Header.Set("X-Request-Id", "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	e := hook.LastEntry()
	if e == nil || e.Level != logrus.WarnLevel {
		t.Fatalf("entry=%+v", e)
	}
	if e.Data["status_code"] != http.StatusTeapot || e.Data["request_id"] != "req-1" || e.Data["uri"] != "/x?y=1" {
		t.Fatalf("fields=%v", e.Data)
	}
}

func TestTranscribeValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeEngine{})

	resp := post(t, srv.URL+"/transcribe", `{"language":"en"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var body errorResponse
	decodeBody(t, resp, &body)
	if len(body.Details) != 1 || !strings.Contains(body.Details[0], "URL") {
		t.Fatalf("details=%v", body.Details)
	}

	resp = post(t, srv.URL+"/transcribe", `{"url":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status=%d", resp.StatusCode)
	}
}

func TestTranscribeErrorMapping(t *testing.T) {
	cases := []struct {
		kind *types.Kind
		want int
	}{
		{types.ErrURLInvalid, http.StatusBadRequest},
		{types.ErrVideoIDUnresolvable, http.StatusBadRequest},
		{types.ErrFormatUnavailable, http.StatusNotFound},
		{types.ErrSizeExceeded, http.StatusRequestEntityTooLarge},
		{types.ErrEmptyFile, http.StatusBadGateway},
		{types.ErrNetwork, http.StatusBadGateway},
		{types.ErrModelLoadFailed, http.StatusServiceUnavailable},
		{types.ErrTranscriptionFailed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.kind.Error(), func(t *testing.T) {
			eng := &fakeEngine{acquireErr: types.NewError(tc.kind, "acquire", errors.New("x"))}
			srv, _ := newTestServer(t, eng)
			resp := post(t, srv.URL+"/transcribe", `{"url":"abc12345678"}`)
			if resp.StatusCode != tc.want {
				t.Fatalf("status=%d want %d", resp.StatusCode, tc.want)
			}
			var body errorResponse
			decodeBody(t, resp, &body)
			if body.Code != tc.kind.Error() {
				t.Fatalf("code=%q", body.Code)
			}
		})
	}
}

func TestVideoInfo(t *testing.T) {
	srv, _ := newTestServer(t, &fakeEngine{})
	if resp := post(t, srv.URL+"/video/info", `{"url":"abc12345678"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/video/info", `{"url":"nope"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestModelEndpoints(t *testing.T) {
	eng := &fakeEngine{}
	srv, _ := newTestServer(t, eng)

	if resp := post(t, srv.URL+"/model/load", `{"model_name":"huge"}`); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad preset status=%d", resp.StatusCode)
	}
	resp := post(t, srv.URL+"/model/load", `{"model_name":"medium"}`)
	var h types.ModelHandle
	decodeBody(t, resp, &h)
	if resp.StatusCode != http.StatusOK || !h.Loaded || eng.preloaded != "medium" {
		t.Fatalf("status=%d handle=%+v", resp.StatusCode, h)
	}
	if resp := post(t, srv.URL+"/model/load", ``); resp.StatusCode != http.StatusOK || eng.preloaded != "" {
		t.Fatalf("empty body should load the default, status=%d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/model/unload", ``); resp.StatusCode != http.StatusOK || eng.unloads.Load() != 1 {
		t.Fatalf("unload status=%d", resp.StatusCode)
	}
}

func TestCleanup(t *testing.T) {
	eng := &fakeEngine{}
	srv, _ := newTestServer(t, eng)

	do := func(q string) *http.Response {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/cleanup"+q, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}
	if resp := do("?max_age_hours=0"); resp.StatusCode != http.StatusOK || eng.lastAge != 0 {
		t.Fatalf("status=%d age=%v", resp.StatusCode, eng.lastAge)
	}
	if resp := do(""); resp.StatusCode != http.StatusOK || eng.lastAge != 24*time.Hour {
		t.Fatalf("default age=%v", eng.lastAge)
	}
	if resp := do("?max_age_hours=-1"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestHealthAndLanguages(t *testing.T) {
	srv, _ := newTestServer(t, &fakeEngine{})

	resp, err := http.Get(srv.URL + "/languages")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var langs map[string][]string
	decodeBody(t, resp, &langs)
	if len(langs["supported"]) != 40 || langs["preferred"][0] != "es" {
		t.Fatalf("languages=%v", langs)
	}

	resp2, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var body map[string]any
	decodeBody(t, resp2, &body)
	if body["status"] != "healthy" {
		t.Fatalf("health=%v", body)
	}
}

func TestCompress(t *testing.T) {
	payload := strings.Repeat("transcript ", 500)
	h := compress(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, payload)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("response not gzipped")
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(zr)
	if string(b) != payload {
		t.Fatalf("payload mismatch")
	}
}

func TestRecoverPanic(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := New(&fakeEngine{}, Options{}, log)
	h := s.recoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestSweeperRunsOnInterval(t *testing.T) {
	eng := &fakeEngine{}
	s := New(eng, Options{SweepInterval: 10 * time.Millisecond, SweepMaxAge: time.Hour}, logrus.New())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.runSweeper(ctx)
	if eng.sweeps.Load() == 0 || eng.lastAge != time.Hour {
		t.Fatalf("sweeps=%d age=%v", eng.sweeps.Load(), eng.lastAge)
	}
}

func TestRunShutsDownAndCleansUp(t *testing.T) {
	eng := &fakeEngine{}
	log, _ := test.NewNullLogger()
	s := New(eng, Options{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, log)

	ctx, cancel := context.WithCancel(context.Background())
	var cleaned atomic.Bool
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, func() error { cleaned.Store(true); return nil }) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
	if !cleaned.Load() {
		t.Fatalf("cleanup not called")
	}
}
