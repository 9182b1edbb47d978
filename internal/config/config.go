package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the on-disk TOML configuration.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Drag      DragConfig      `toml:"drag"`
	Selection SelectionConfig `toml:"selection"`
	Server    ServerConfig    `toml:"server"`
	Logging   LoggingConfig   `toml:"logging"`
	UI        UIConfig        `toml:"ui"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// PipelineConfig lists the stages created for an empty database.
type PipelineConfig struct {
	Stages []StageConfig `toml:"stages"`
}

type StageConfig struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	Position int    `toml:"position"`
	Color    string `toml:"color"`
}

type DragConfig struct {
	RestoreOnCancel bool `toml:"restore_on_cancel"`
}

type SelectionConfig struct {
	DefaultOwner string `toml:"default_owner"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

// UIConfig controls which lead fields board cards show.
type UIConfig struct {
	ShowOwner bool `toml:"show_owner"`
	ShowScore bool `toml:"show_score"`
	ShowTags  bool `toml:"show_tags"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

var (
	validLevels = []string{"debug", "info", "warn", "error", "fatal"}
	colorRe     = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

func defaultStages() []StageConfig {
	return []StageConfig{
		{ID: "new", Name: "New", Position: 0, Color: "#7aa2f7"},
		{ID: "contacted", Name: "Contacted", Position: 1, Color: "#e0af68"},
		{ID: "booked", Name: "Booked", Position: 2, Color: "#9ece6a"},
		{ID: "treated", Name: "Treated", Position: 3, Color: "#bb9af7"},
		{ID: "lost", Name: "Lost", Position: 4, Color: "#f7768e"},
	}
}

// Default returns the built-in configuration rooted at dbPath.
func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Pipeline: PipelineConfig{
			Stages: defaultStages(),
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:5437",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".leadflow/log",
			},
		},
		UI: UIConfig{
			ShowOwner: true,
			ShowScore: true,
			ShowTags:  false,
		},
	}
}

// Load overlays the TOML file at path onto defaults. A missing or empty file
// yields defaults unchanged.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	// A file that lists stages replaces the default pipeline instead of
	// merging into it element by element.
	var stages struct {
		Pipeline PipelineConfig `toml:"pipeline"`
	}
	if err := toml.Unmarshal(content, &stages); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	if len(stages.Pipeline.Stages) > 0 {
		cfg.Pipeline.Stages = stages.Pipeline.Stages
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if len(c.Pipeline.Stages) == 0 {
		return errors.New("pipeline.stages must include at least one stage")
	}
	seenID := map[string]struct{}{}
	for idx, stage := range c.Pipeline.Stages {
		id := strings.TrimSpace(strings.ToLower(stage.ID))
		if id == "" {
			return fmt.Errorf("pipeline.stages[%d].id is required", idx)
		}
		if strings.TrimSpace(stage.Name) == "" {
			return fmt.Errorf("pipeline.stages[%d].name is required", idx)
		}
		if stage.Position < 0 {
			return fmt.Errorf("pipeline.stages[%d].position must be >= 0", idx)
		}
		if color := strings.TrimSpace(stage.Color); color != "" && !colorRe.MatchString(color) {
			return fmt.Errorf("pipeline.stages[%d].color must be #rgb or #rrggbb: %q", idx, stage.Color)
		}
		if _, ok := seenID[id]; ok {
			return fmt.Errorf("pipeline.stages[%d].id is duplicated: %s", idx, id)
		}
		seenID[id] = struct{}{}
	}

	if bind := strings.TrimSpace(c.Server.HTTPBind); bind == "" {
		return errors.New("server.http_bind is required")
	}
	for name, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("%s must start with /: %q", name, endpoint)
		}
	}

	if !slices.Contains(validLevels, strings.TrimSpace(strings.ToLower(c.Logging.Level))) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when dev_file is enabled")
	}

	return nil
}

// EnsureConfigDir creates the directory holding path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
