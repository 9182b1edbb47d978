package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hylla/leadflow/internal/adapters/server/common"
	"github.com/hylla/leadflow/internal/adapters/storage/sqlite"
	"github.com/hylla/leadflow/internal/app"
)

func newPipeline(t *testing.T) common.PipelineService {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "leadflow.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	svc := app.NewService(repo, nil, nil, app.ServiceConfig{})
	if _, err := svc.EnsureDefaultPipeline(context.Background()); err != nil {
		t.Fatalf("EnsureDefaultPipeline() error = %v", err)
	}
	return common.NewAppServiceAdapter(svc)
}

// TestNewHandlerRoutes verifies health, API and MCP mounts on the composed mux.
func TestNewHandlerRoutes(t *testing.T) {
	var logs bytes.Buffer
	logger := log.NewWithOptions(&logs, log.Options{Level: log.DebugLevel})
	handler, cfg, err := NewHandler(Config{}, Dependencies{Pipeline: newPipeline(t), Logger: logger})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress || cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected normalized config %#v", cfg)
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp, err = server.Client().Get(server.URL + "/api/v1/board")
	if err != nil {
		t.Fatalf("GET board error = %v", err)
	}
	var board common.Board
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	_ = resp.Body.Close()
	if len(board.Stages) != 5 {
		t.Fatalf("expected default pipeline stages, got %d", len(board.Stages))
	}

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"t","version":"1"}}}`)
	req, err := http.NewRequest(http.MethodPost, server.URL+"/mcp", body)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err = server.Client().Do(req)
	if err != nil {
		t.Fatalf("POST /mcp error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mcp status = %d", resp.StatusCode)
	}

	if !strings.Contains(logs.String(), "/api/v1/board") {
		t.Fatalf("expected request log line, got %q", logs.String())
	}
}

// failingPipeline reports a store error from Board.
type failingPipeline struct {
	common.PipelineService
}

func (failingPipeline) Board(context.Context) (common.Board, error) {
	return common.Board{}, errors.New("database is locked")
}

// TestReadinessReflectsPipeline verifies /readyz loads the board and reports store failures.
func TestReadinessReflectsPipeline(t *testing.T) {
	handler, _, err := NewHandler(Config{}, Dependencies{Pipeline: newPipeline(t)})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", rec.Code)
	}
	var ready healthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &ready); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ready.Status != "ok" || ready.Stages != 5 || ready.Leads != 0 {
		t.Fatalf("unexpected readiness body %#v", ready)
	}

	handler, _, err = NewHandler(Config{}, Dependencies{Pipeline: failingPipeline{}})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "database is locked") {
		t.Fatalf("expected unavailable readiness, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("expected liveness ok, got %d %s", rec.Code, rec.Body.String())
	}
}

// TestNewHandlerValidation verifies dependency and endpoint checks.
func TestNewHandlerValidation(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatal("expected missing pipeline error")
	}
	if _, _, err := NewHandler(Config{APIEndpoint: "/x", MCPEndpoint: "x/"}, Dependencies{Pipeline: newPipeline(t)}); err == nil {
		t.Fatal("expected endpoint collision error")
	}
}

// TestNormalizeEndpoint verifies path canonicalization.
func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"":          "/api/v1",
		"/":         "/api/v1",
		"api/v2/":   "/api/v2",
		" /custom ": "/custom",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in, "/api/v1"); got != want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestRunStopsOnCancel verifies Run shuts down cleanly when its context ends.
func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, Dependencies{Pipeline: newPipeline(t)})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
