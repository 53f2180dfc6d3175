package httpServer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rapidsprite/internal/auth"
	"rapidsprite/internal/jobs"
	"rapidsprite/internal/metrics"
	"rapidsprite/internal/pipeline"
	"rapidsprite/internal/storage"
	"rapidsprite/pkg/models"
)

// stubRunner writes a fixed set of artifacts and returns them
type stubRunner struct {
	store storage.Storage
}

func (r *stubRunner) Run(ctx context.Context, input string) (*pipeline.Result, error) {
	stem := storage.Stem(input)
	cuePath := storage.ArtifactPath(stem, storage.CueName(stem))
	metaPath := storage.ArtifactPath(stem, storage.MetadataName(stem))
	sheet := storage.SheetName(stem, 0, "jpg")

	if err := r.store.Write(ctx, storage.ArtifactPath(stem, sheet), []byte("jpeg")); err != nil {
		return nil, err
	}
	if err := r.store.Write(ctx, cuePath, []byte("WEBVTT\n")); err != nil {
		return nil, err
	}
	if err := r.store.Write(ctx, metaPath, []byte(`{"version":1}`)); err != nil {
		return nil, err
	}
	return &pipeline.Result{
		Input:        input,
		Stem:         stem,
		Sheets:       []models.SheetRef{{Index: 0, File: sheet}},
		CuePath:      cuePath,
		MetadataPath: metaPath,
	}, nil
}

type testServer struct {
	server *Server
	jobs   *jobs.Manager
	store  *storage.LocalStorage
	root   string
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithKey(t, "")
}

func newTestServerWithKey(t *testing.T, apiKey string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	entry := logrus.NewEntry(log)

	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	manager := jobs.New(1, entry)
	manager.Start(ctx, &stubRunner{store: store})
	t.Cleanup(func() {
		cancel()
		manager.Wait()
	})

	root := t.TempDir()
	return &testServer{
		server: New(manager, auth.New(apiKey), store, metrics.New(), root, entry),
		jobs:   manager,
		store:  store,
		root:   root,
	}
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	return ts.doWithHeader(method, target, body, nil)
}

func (ts *testServer) doWithHeader(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/ping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pong") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSubmitAndFetchJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/previews", `{"input":"movies/clip.mp4"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	var accepted models.PreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if accepted.ID == "" || accepted.StatusURL != "/api/v1/previews/"+accepted.ID {
		t.Fatalf("unexpected response %+v", accepted)
	}

	ts.jobs.Wait()

	rec = ts.do(http.MethodGet, accepted.StatusURL, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var info models.JobInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.State != models.JobStateDone {
		t.Fatalf("state = %s (%s)", info.State, info.Error)
	}
	if want := filepath.Join(ts.root, "movies", "clip.mp4"); info.Input != want {
		t.Errorf("input = %q, want %q", info.Input, want)
	}
	if info.CueURL != "/previews/clip/clip.vtt" {
		t.Errorf("cue url = %q", info.CueURL)
	}
	if len(info.SheetURLs) != 1 || info.SheetURLs[0] != "/previews/clip/clip-0.jpg" {
		t.Errorf("sheet urls = %v", info.SheetURLs)
	}
	if info.Metadata == nil {
		t.Error("metadata missing from finished job")
	}

	rec = ts.do(http.MethodGet, "/api/v1/previews", "")
	var list models.JobListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || len(list.Jobs) != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing input", `{}`},
		{"blank input", `{"input":"   "}`},
		{"malformed", `{"input":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/v1/previews", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestResolveInputStaysInRoot(t *testing.T) {
	s := &Server{mediaRoot: t.TempDir()}
	root, _ := filepath.Abs(s.mediaRoot)

	got, err := s.resolveInput("../../etc/passwd")
	if err != nil {
		t.Fatalf("resolveInput: %v", err)
	}
	if want := filepath.Join(root, "etc", "passwd"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	open := &Server{}
	got, err = open.resolveInput("a/../b.mp4")
	if err != nil || got != "b.mp4" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestSubmitWithToken(t *testing.T) {
	ts := newTestServerWithKey(t, "secret")

	rec := ts.do(http.MethodPost, "/api/v1/previews", `{"input":"clip.mp4"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tokenless submit status = %d, want 401", rec.Code)
	}

	rec = ts.doWithHeader(http.MethodPost, "/api/v1/tokens", `{"input":"clip.mp4"}`, http.Header{"X-Api-Key": {"wrong"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad key status = %d, want 401", rec.Code)
	}

	rec = ts.doWithHeader(http.MethodPost, "/api/v1/tokens", `{"input":"clip.mp4"}`, http.Header{"Authorization": {"Bearer secret"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d: %s", rec.Code, rec.Body.String())
	}
	var token models.TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &token); err != nil {
		t.Fatalf("decode: %v", err)
	}

	body := `{"input":"clip.mp4","token":"` + token.Token + `"}`
	rec = ts.do(http.MethodPost, "/api/v1/previews", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	ts.jobs.Wait()

	rec = ts.do(http.MethodPost, "/api/v1/previews", body)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("reused token status = %d, want 401", rec.Code)
	}
}

func TestTokensDisabledWithoutKey(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/api/v1/tokens", `{"input":"clip.mp4"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestGetUnknownJob(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/v1/previews/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServeArtifact(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	if err := ts.store.Write(ctx, "clip/clip.vtt", []byte("WEBVTT\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rec := ts.do(http.MethodGet, "/previews/clip/clip.vtt", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/vtt") {
		t.Errorf("content type = %q", ct)
	}
	if rec.Body.String() != "WEBVTT\n" {
		t.Errorf("body = %q", rec.Body.String())
	}

	rec = ts.do(http.MethodGet, "/previews/clip/missing.jpg", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing artifact status = %d", rec.Code)
	}
	rec = ts.do(http.MethodGet, "/previews/../clip.vtt", "")
	if rec.Code == http.StatusOK {
		t.Error("traversal served a file")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/api/ping", "")

	rec := ts.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `path="/api/ping"`) {
		t.Errorf("ping request not recorded:\n%s", rec.Body.String())
	}
}

func TestRunShutsDown(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.server.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
