package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	serveradapter "github.com/hylla/leadflow/internal/adapters/server"
	servercommon "github.com/hylla/leadflow/internal/adapters/server/common"
	"github.com/hylla/leadflow/internal/adapters/storage/sqlite"
	"github.com/hylla/leadflow/internal/app"
	"github.com/hylla/leadflow/internal/config"
	"github.com/hylla/leadflow/internal/platform"
	"github.com/hylla/leadflow/internal/tui"
	"github.com/spf13/cobra"
)

// version is stamped at build time.
var version = "dev"

// program is the part of tea.Program the tui command drives.
type program interface {
	Run() (tea.Model, error)
}

// programFactory builds the tui program; tests replace it.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

// run builds the command tree and executes args.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// newRootCommand assembles the leadflow command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{
		appName: platform.DefaultAppName,
		devMode: version == "dev",
	}
	if envDev, ok := parseBoolEnv("LEADFLOW_DEV_MODE"); ok {
		opts.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("LEADFLOW_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}

	root := &cobra.Command{
		Use:           "leadflow",
		Short:         "Drag-and-drop lead pipeline for clinics",
		Long:          "leadflow keeps clinic leads on a stage board you can drag through from the terminal, over HTTP or over MCP.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts, stderr)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		&cobra.Command{
			Use:   "tui",
			Short: "Open the pipeline board",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runTUI(cmd.Context(), opts, stderr)
			},
		},
		newServeCommand(opts, stderr),
		newBoardCommand(opts, stdout, stderr),
		newMoveCommand(opts, stdout, stderr),
		newReorderCommand(opts, stdout, stderr),
		newAddLeadCommand(opts, stdout, stderr),
		newEditLeadCommand(opts, stdout, stderr),
		newShowCommand(opts, stdout, stderr),
		newStagesCommand(opts, stdout, stderr),
		newAddStageCommand(opts, stdout, stderr),
		newChangesCommand(opts, stdout, stderr),
		newExportCommand(opts, stdout, stderr),
		newImportCommand(opts, stdout, stderr),
		newPathsCommand(opts, stdout),
		&cobra.Command{
			Use:   "version",
			Short: "Print the leadflow version",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				_, err := fmt.Fprintf(stdout, "leadflow %s\n", version)
				return err
			},
		},
	)
	return root
}

// runtimeEnv is the opened state shared by data commands.
type runtimeEnv struct {
	appName    string
	devMode    bool
	paths      platform.Paths
	configPath string
	cfg        config.Config
	logger     *runtimeLogger
	repo       *sqlite.Repository
	svc        *app.Service
}

// resolvePaths applies env overrides to the platform paths.
func resolvePaths(opts *rootOptions) (platform.Paths, string, string, bool, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: opts.appName,
		DevMode: opts.devMode,
	})
	if err != nil {
		return platform.Paths{}, "", "", false, err
	}
	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("LEADFLOW_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("LEADFLOW_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}
	return paths, configPath, dbPath, dbOverridden, nil
}

// openRuntime loads config, opens the store and builds the service.
func openRuntime(ctx context.Context, opts *rootOptions, stderr io.Writer, command string) (*runtimeEnv, error) {
	paths, configPath, dbPath, dbOverridden, err := resolvePaths(opts)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(stderr, opts.appName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "tui" {
		// Runtime logs stay in the dev-file sink while the board is active.
		logger.SetConsoleEnabled(false)
	}

	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Info("sqlite repository ready", "db_path", cfg.Database.Path)

	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		StageTemplates:  toStageTemplates(cfg.Pipeline.Stages),
		RestoreOnCancel: cfg.Drag.RestoreOnCancel,
		DefaultOwner:    cfg.Selection.DefaultOwner,
		Logger:          logger.Component("app"),
	})
	env := &runtimeEnv{
		appName:    opts.appName,
		devMode:    opts.devMode,
		paths:      paths,
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		repo:       repo,
		svc:        svc,
	}
	if _, err := svc.EnsureDefaultPipeline(ctx); err != nil {
		env.Close()
		return nil, fmt.Errorf("ensure default pipeline: %w", err)
	}
	return env, nil
}

// Close releases the store and the log file.
func (e *runtimeEnv) Close() {
	if e == nil {
		return
	}
	if err := e.repo.Close(); err != nil {
		e.logger.Warn("sqlite close failed", "db_path", e.cfg.Database.Path, "err", err)
	}
	_ = e.logger.Close()
}

// runTUI opens the interactive board.
func runTUI(ctx context.Context, opts *rootOptions, stderr io.Writer) error {
	env, err := openRuntime(ctx, opts, stderr, "tui")
	if err != nil {
		return err
	}
	defer env.Close()

	m := tui.NewModel(
		env.svc,
		tui.WithTitle(env.appName),
		tui.WithCardFieldConfig(toCardFieldConfig(env.cfg.UI)),
	)
	env.logger.Info("starting tui program loop")
	if _, err := programFactory(m).Run(); err != nil {
		env.logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	env.logger.Info("command flow complete", "command", "tui")
	return nil
}

// newServeCommand builds the HTTP+MCP serve command.
func newServeCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board over HTTP and MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openRuntime(cmd.Context(), opts, stderr, "serve")
			if err != nil {
				return err
			}
			defer env.Close()

			serverCfg := serveradapter.Config{
				HTTPBind:      firstNonEmpty(httpBind, env.cfg.Server.HTTPBind),
				APIEndpoint:   firstNonEmpty(apiEndpoint, env.cfg.Server.APIEndpoint),
				MCPEndpoint:   firstNonEmpty(mcpEndpoint, env.cfg.Server.MCPEndpoint),
				ServerName:    env.appName,
				ServerVersion: version,
			}
			env.logger.Info("command flow start", "command", "serve", "http", serverCfg.HTTPBind)
			err = serveCommandRunner(cmd.Context(), serverCfg, serveradapter.Dependencies{
				Pipeline: servercommon.NewAppServiceAdapter(env.svc),
				Logger:   env.logger.Component("http"),
			})
			if err != nil {
				env.logger.Error("command flow failed", "command", "serve", "err", err)
				return fmt.Errorf("run serve command: %w", err)
			}
			env.logger.Info("command flow complete", "command", "serve")
			return nil
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (default from config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (default from config)")
	return cmd
}

// newMoveCommand builds the single-lead move command.
func newMoveCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:     "move <lead-id> <stage-id>",
		Short:   "Move a lead into a stage",
		Example: "leadflow move 4f1c... booked --index 0",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openRuntime(cmd.Context(), opts, stderr, "move")
			if err != nil {
				return err
			}
			defer env.Close()

			lead, err := env.svc.MoveLead(cmd.Context(), args[0], args[1], index)
			if err != nil {
				return fmt.Errorf("move lead: %w", err)
			}
			_, err = fmt.Fprintf(stdout, "moved %s to %s at %d\n", lead.Name, lead.StageID, lead.Position)
			return err
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "target position within the stage (clamped)")
	return cmd
}

// newReorderCommand builds the stage reorder command.
func newReorderCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <source-stage-id> <target-stage-id>",
		Short: "Move a stage into another stage's slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openRuntime(cmd.Context(), opts, stderr, "reorder")
			if err != nil {
				return err
			}
			defer env.Close()

			stages, err := env.svc.ReorderStages(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("reorder stages: %w", err)
			}
			ids := make([]string, 0, len(stages))
			for _, stage := range stages {
				ids = append(ids, stage.ID)
			}
			_, err = fmt.Fprintln(stdout, strings.Join(ids, " → "))
			return err
		},
	}
}

// newExportCommand builds the snapshot export command.
func newExportCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of the pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openRuntime(cmd.Context(), opts, stderr, "export")
			if err != nil {
				return err
			}
			defer env.Close()

			snap, err := env.svc.ExportSnapshot(cmd.Context())
			if err != nil {
				return fmt.Errorf("export snapshot: %w", err)
			}
			encoded, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("encode snapshot json: %w", err)
			}
			encoded = append(encoded, '\n')
			if outPath == "" {
				outPath = filepath.Join(env.paths.ExportsDir, platform.SnapshotFileName(env.appName, time.Now()))
			}
			if outPath == "-" {
				if _, err := stdout.Write(encoded); err != nil {
					return fmt.Errorf("write snapshot to stdout: %w", err)
				}
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create export output dir: %w", err)
			}
			if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
				return fmt.Errorf("write export file: %w", err)
			}
			env.logger.Info("snapshot exported", "path", outPath, "stages", len(snap.Stages), "leads", len(snap.Leads))
			_, err = fmt.Fprintf(stdout, "wrote %s\n", outPath)
			return err
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file path ('-' for stdout, empty for the exports dir)")
	return cmd
}

// newImportCommand builds the snapshot import command.
func newImportCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert stages and leads from a JSON snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return errors.New("--in is required")
			}
			content, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var snap app.Snapshot
			if err := json.Unmarshal(content, &snap); err != nil {
				return fmt.Errorf("decode snapshot json: %w", err)
			}

			env, err := openRuntime(cmd.Context(), opts, stderr, "import")
			if err != nil {
				return err
			}
			defer env.Close()
			if err := env.svc.ImportSnapshot(cmd.Context(), snap); err != nil {
				return fmt.Errorf("import snapshot: %w", err)
			}
			_, err = fmt.Fprintf(stdout, "imported %d stages, %d leads\n", len(snap.Stages), len(snap.Leads))
			return err
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	return cmd
}

// newPathsCommand prints resolved runtime paths.
func newPathsCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			paths, configPath, dbPath, _, err := resolvePaths(opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", platform.AppName(platform.Options{AppName: opts.appName, DevMode: opts.devMode}))
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", configPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", dbPath)
			_, _ = fmt.Fprintf(stdout, "exports: %s\n", paths.ExportsDir)
			return nil
		},
	}
}

// toStageTemplates maps configured stages to service templates.
func toStageTemplates(stages []config.StageConfig) []app.StageTemplate {
	out := make([]app.StageTemplate, 0, len(stages))
	for _, stage := range stages {
		out = append(out, app.StageTemplate{
			ID:       stage.ID,
			Name:     stage.Name,
			Color:    stage.Color,
			Position: stage.Position,
		})
	}
	return out
}

// toCardFieldConfig maps persisted UI settings into board card options.
func toCardFieldConfig(cfg config.UIConfig) tui.CardFieldConfig {
	return tui.CardFieldConfig{
		ShowOwner: cfg.ShowOwner,
		ShowScore: cfg.ShowScore,
		ShowTags:  cfg.ShowTags,
	}
}

// parseBoolEnv parses a boolean environment variable.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
