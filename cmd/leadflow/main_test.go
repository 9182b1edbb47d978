package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	serveradapter "github.com/hylla/leadflow/internal/adapters/server"
	"github.com/hylla/leadflow/internal/adapters/storage/sqlite"
	"github.com/hylla/leadflow/internal/app"
	"github.com/hylla/leadflow/internal/config"
	"github.com/hylla/leadflow/internal/tui"
)

// fakeProgram records the model handed to the tui program.
type fakeProgram struct {
	model tea.Model
	err   error
}

func (p *fakeProgram) Run() (tea.Model, error) {
	return p.model, p.err
}

// isolateEnv clears env overrides that would leak the host setup into run.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LEADFLOW_CONFIG", "")
	t.Setenv("LEADFLOW_DB_PATH", "")
	t.Setenv("LEADFLOW_DEV_MODE", "")
	t.Setenv("LEADFLOW_APP_NAME", "")
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("HOME", dir)
	return dir
}

// seedDB creates the default pipeline plus two leads in the "new" stage.
func seedDB(t *testing.T, dbPath string) {
	t.Helper()
	repo, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() {
		_ = repo.Close()
	}()
	n := 0
	svc := app.NewService(repo, func() string {
		n++
		return fmt.Sprintf("lead-%d", n)
	}, nil, app.ServiceConfig{})
	ctx := context.Background()
	if _, err := svc.EnsureDefaultPipeline(ctx); err != nil {
		t.Fatalf("EnsureDefaultPipeline() error = %v", err)
	}
	if _, err := svc.CreateLead(ctx, app.CreateLeadInput{StageID: "new", Name: "Ada", Email: "ada@example.com", Score: 70, Notes: "Prefers **mornings**."}); err != nil {
		t.Fatalf("CreateLead() error = %v", err)
	}
	if _, err := svc.CreateLead(ctx, app.CreateLeadInput{StageID: "new", Name: "Ben", Score: 20}); err != nil {
		t.Fatalf("CreateLead() error = %v", err)
	}
}

// runArgs prefixes args with isolated db/config flags.
func runArgs(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	base := []string{
		"--db", filepath.Join(dir, "leadflow.db"),
		"--config", filepath.Join(dir, "config.toml"),
		"--dev=false",
	}
	err := run(context.Background(), append(base, args...), &out, io.Discard)
	return out.String(), err
}

func TestRunVersion(t *testing.T) {
	isolateEnv(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"version"}, &out, io.Discard); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "leadflow dev" {
		t.Fatalf("unexpected version output %q", got)
	}
}

func TestRunPaths(t *testing.T) {
	dir := isolateEnv(t)
	var out bytes.Buffer
	dbPath := filepath.Join(dir, "custom.db")
	err := run(context.Background(), []string{"--app", "clinic", "--dev", "--db", dbPath, "paths"}, &out, io.Discard)
	if err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	rendered := out.String()
	for _, want := range []string{"app: clinic-dev", "dev_mode: true", "db: " + dbPath, "config: "} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("expected %q in paths output\n%s", want, rendered)
		}
	}
}

func TestRunPathsUsesEnvOverrides(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv("LEADFLOW_CONFIG", filepath.Join(dir, "env.toml"))
	t.Setenv("LEADFLOW_DB_PATH", filepath.Join(dir, "env.db"))
	t.Setenv("LEADFLOW_APP_NAME", "front-desk")
	t.Setenv("LEADFLOW_DEV_MODE", "false")

	var out bytes.Buffer
	if err := run(context.Background(), []string{"paths"}, &out, io.Discard); err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	rendered := out.String()
	for _, want := range []string{"app: front-desk", "dev_mode: false", "config: " + filepath.Join(dir, "env.toml"), "db: " + filepath.Join(dir, "env.db")} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("expected %q in paths output\n%s", want, rendered)
		}
	}
}

func TestRunBoardMoveReorderAndChanges(t *testing.T) {
	dir := isolateEnv(t)
	seedDB(t, filepath.Join(dir, "leadflow.db"))

	out, err := runArgs(t, dir, "board")
	if err != nil {
		t.Fatalf("run(board) error = %v", err)
	}
	for _, want := range []string{"Stage", "New", "Ada", "ada@example.com", "(empty)", "Lost"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in board output\n%s", want, out)
		}
	}

	out, err = runArgs(t, dir, "move", "lead-1", "booked", "--index", "5")
	if err != nil {
		t.Fatalf("run(move) error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "moved Ada to booked at 0" {
		t.Fatalf("unexpected move output %q", got)
	}

	out, err = runArgs(t, dir, "board", "--stage", "booked", "--notes")
	if err != nil {
		t.Fatalf("run(board --stage) error = %v", err)
	}
	if !strings.Contains(out, "Ada") || strings.Contains(out, "Ben") {
		t.Fatalf("expected only booked leads\n%s", out)
	}
	if !strings.Contains(out, "mornings") {
		t.Fatalf("expected rendered notes\n%s", out)
	}

	out, err = runArgs(t, dir, "reorder", "new", "contacted")
	if err != nil {
		t.Fatalf("run(reorder) error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "contacted → new → booked → treated → lost" {
		t.Fatalf("unexpected reorder output %q", got)
	}

	out, err = runArgs(t, dir, "changes", "--limit", "10")
	if err != nil {
		t.Fatalf("run(changes) error = %v", err)
	}
	for _, want := range []string{"move", "lead-1", "reorder"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in changes output\n%s", want, out)
		}
	}
}

func TestRunCommandErrors(t *testing.T) {
	dir := isolateEnv(t)
	seedDB(t, filepath.Join(dir, "leadflow.db"))

	if _, err := runArgs(t, dir, "move", "missing", "booked"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown lead, got %v", err)
	}
	if _, err := runArgs(t, dir, "board", "--stage", "nope"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown stage, got %v", err)
	}
	if _, err := runArgs(t, dir, "move", "lead-1"); err == nil {
		t.Fatal("expected argument count error")
	}
	if _, err := runArgs(t, dir, "changes", "--limit", "-1"); err == nil {
		t.Fatal("expected negative limit error")
	}
	if _, err := runArgs(t, dir, "import"); err == nil || !strings.Contains(err.Error(), "--in is required") {
		t.Fatalf("expected missing --in error, got %v", err)
	}
	if _, err := runArgs(t, dir, "bogus"); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := isolateEnv(t)
	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte("[logging]\nlevel = \"loud\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := runArgs(t, dir, "board")
	if err == nil || !strings.Contains(err.Error(), "invalid logging.level") {
		t.Fatalf("expected config validation error, got %v", err)
	}
}

func TestRunExportImportRoundTrip(t *testing.T) {
	dir := isolateEnv(t)
	seedDB(t, filepath.Join(dir, "leadflow.db"))
	snapPath := filepath.Join(dir, "out", "snapshot.json")

	if _, err := runArgs(t, dir, "export", "--out", snapPath); err != nil {
		t.Fatalf("run(export) error = %v", err)
	}
	content, err := os.ReadFile(snapPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if snap.Version != app.SnapshotVersion || len(snap.Stages) != 5 || len(snap.Leads) != 2 {
		t.Fatalf("unexpected snapshot %#v", snap)
	}

	other := t.TempDir()
	out, err := runArgs(t, other, "import", "--in", snapPath)
	if err != nil {
		t.Fatalf("run(import) error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "imported 5 stages, 2 leads" {
		t.Fatalf("unexpected import output %q", got)
	}
	out, err = runArgs(t, other, "board")
	if err != nil {
		t.Fatalf("run(board) error = %v", err)
	}
	if !strings.Contains(out, "Ada") || !strings.Contains(out, "Ben") {
		t.Fatalf("expected imported leads on board\n%s", out)
	}
}

func TestRunExportDefaultsToExportsDir(t *testing.T) {
	dir := isolateEnv(t)
	seedDB(t, filepath.Join(dir, "leadflow.db"))

	out, err := runArgs(t, dir, "export", "--out", "")
	if err != nil {
		t.Fatalf("run(export) error = %v", err)
	}
	exportsDir := filepath.Join(dir, "data", "leadflow", "exports")
	written := strings.TrimPrefix(strings.TrimSpace(out), "wrote ")
	if filepath.Dir(written) != exportsDir {
		t.Fatalf("expected snapshot under %q, got %q", exportsDir, written)
	}
	if !strings.HasPrefix(filepath.Base(written), "leadflow-snapshot-") {
		t.Fatalf("unexpected snapshot file name %q", written)
	}
	if _, err := os.Stat(written); err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
}

func TestRunDefaultLaunchesTUI(t *testing.T) {
	dir := isolateEnv(t)
	seedDB(t, filepath.Join(dir, "leadflow.db"))

	var launched tea.Model
	orig := programFactory
	programFactory = func(m tea.Model) program {
		launched = m
		return &fakeProgram{model: m}
	}
	t.Cleanup(func() { programFactory = orig })

	if _, err := runArgs(t, dir); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, ok := launched.(tui.Model); !ok {
		t.Fatalf("expected tui.Model, got %T", launched)
	}

	programFactory = func(m tea.Model) program {
		return &fakeProgram{model: m, err: errors.New("tty gone")}
	}
	if _, err := runArgs(t, dir, "tui"); err == nil || !strings.Contains(err.Error(), "tty gone") {
		t.Fatalf("expected program error, got %v", err)
	}
}

func TestRunServeUsesConfigDefaults(t *testing.T) {
	dir := isolateEnv(t)
	var (
		gotCfg  serveradapter.Config
		gotDeps serveradapter.Dependencies
	)
	orig := serveCommandRunner
	serveCommandRunner = func(_ context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
		gotCfg = cfg
		gotDeps = deps
		return nil
	}
	t.Cleanup(func() { serveCommandRunner = orig })

	if _, err := runArgs(t, dir, "serve", "--http", "127.0.0.1:9999"); err != nil {
		t.Fatalf("run(serve) error = %v", err)
	}
	if gotCfg.HTTPBind != "127.0.0.1:9999" || gotCfg.APIEndpoint != "/api/v1" || gotCfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected serve config %#v", gotCfg)
	}
	if gotCfg.ServerName != "leadflow" || gotCfg.ServerVersion != version {
		t.Fatalf("unexpected server identity %#v", gotCfg)
	}
	if gotDeps.Pipeline == nil || gotDeps.Logger == nil {
		t.Fatalf("expected pipeline and logger dependencies, got %#v", gotDeps)
	}
}

func TestRuntimeLoggerDevFileSink(t *testing.T) {
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC) }
	var console bytes.Buffer
	logger, err := newRuntimeLogger(&console, "leadflow", true, config.LoggingConfig{
		Level:   "debug",
		DevFile: config.DevFileConfig{Enabled: true, Dir: dir},
	}, now)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	wantPath := filepath.Join(dir, "leadflow-20260402.log")
	if logger.DevLogPath() != wantPath {
		t.Fatalf("DevLogPath() = %q, want %q", logger.DevLogPath(), wantPath)
	}

	logger.SetConsoleEnabled(false)
	logger.Info("dropped lead", "lead_id", "lead-1")
	logger.Component("app").Warn("persist failed")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if console.Len() != 0 {
		t.Fatalf("expected muted console, got %q", console.String())
	}
	content, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{"dropped lead", "lead_id=lead-1", "persist failed"} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("expected %q in dev log\n%s", want, content)
		}
	}
}

func TestRuntimeLoggerConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, err := newRuntimeLogger(&console, "leadflow", false, config.LoggingConfig{Level: "info"}, nil)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Error("visible")
	if strings.Contains(console.String(), "hidden") || !strings.Contains(console.String(), "visible") {
		t.Fatalf("unexpected console output %q", console.String())
	}
	logger.SetConsoleEnabled(false)
	logger.Component("http").Error("discarded")
	if strings.Contains(console.String(), "discarded") {
		t.Fatal("expected muted component logger without dev file to discard")
	}

	if _, err := newRuntimeLogger(&console, "leadflow", false, config.LoggingConfig{Level: "loud"}, nil); err == nil {
		t.Fatal("expected invalid level error")
	}
}

func TestLogFileHelpers(t *testing.T) {
	cases := map[string]string{
		"leadflow":     "leadflow",
		" front desk ": "front-desk",
		"a/b:c":        "a-b-c",
		"//":           "leadflow",
	}
	for in, want := range cases {
		if got := sanitizeLogFileStem(in); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q, want %q", in, got, want)
		}
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if got := workspaceRootFrom(nested); got != dir {
		t.Fatalf("workspaceRootFrom() = %q, want %q", got, dir)
	}
	if got := firstNonEmpty("", "  ", "x"); got != "x" {
		t.Fatalf("firstNonEmpty() = %q", got)
	}
}
