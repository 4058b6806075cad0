// Package config loads the runtime configuration file. One YAML file
// configures the model bridge, the approval policy, the background
// agents, and where state lives on disk; environment variables override
// the secrets so they stay out of the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"volition/internal/desire"
	"volition/internal/llm"
)

// AgentsConfig sets the background agent tickers. Zero disables an agent.
type AgentsConfig struct {
	GenerateInterval time.Duration `yaml:"generate_interval"`
	DreamInterval    time.Duration `yaml:"dream_interval"`
	DrainInterval    time.Duration `yaml:"drain_interval"`
	DrainBackoff     time.Duration `yaml:"drain_backoff"`
}

// DataConfig places the runtime's durable state.
type DataConfig struct {
	Dir      string `yaml:"dir"`
	MemoryDB string `yaml:"memory_db"`
	QueueDir string `yaml:"queue_dir"`
	AuditLog string `yaml:"audit_log"`
}

// LogConfig sets the slog default handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Config is the full runtime configuration.
type Config struct {
	User   string           `yaml:"user"`
	LLM    llm.ClientConfig `yaml:"llm"`
	Policy desire.Policy    `yaml:"policy"`
	Agents AgentsConfig     `yaml:"agents"`
	Data   DataConfig       `yaml:"data"`
	Log    LogConfig        `yaml:"log"`
}

// Default returns the configuration used when no file exists: a local
// assisted-mode runtime with all state under ~/.volition.
func Default() Config {
	home, _ := os.UserHomeDir()
	dir := filepath.Join(home, ".volition")
	return Config{
		User: "default",
		LLM: llm.ClientConfig{
			BaseURL:      "http://localhost:11434/v1",
			DefaultModel: "llama3.1",
			Provider:     "local",
			Timeout:      120 * time.Second,
		},
		Policy: desire.DefaultPolicy(),
		Agents: AgentsConfig{
			GenerateInterval: time.Hour,
			DreamInterval:    6 * time.Hour,
			DrainInterval:    time.Minute,
			DrainBackoff:     30 * time.Second,
		},
		Data: DataConfig{
			Dir:      dir,
			MemoryDB: filepath.Join(dir, "memory.db"),
			QueueDir: filepath.Join(dir, "queue"),
			AuditLog: filepath.Join(dir, "audit.jsonl"),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the config file at path, layered over Default. A missing
// file is not an error; the defaults serve. Environment variables
// VOLITION_API_KEY and VOLITION_BASE_URL override the file's LLM
// settings, and a .env in the working directory is honored first.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // absent .env is fine

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("VOLITION_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("VOLITION_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("VOLITION_USER"); v != "" {
		cfg.User = v
	}

	return cfg, cfg.validate()
}

// DefaultPath is the conventional config location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".volition", "config.yaml")
}

func (c Config) validate() error {
	if c.User == "" {
		return fmt.Errorf("config: user must not be empty")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Policy.AutoApproveStrength < 0 || c.Policy.AutoApproveStrength > 1 {
		return fmt.Errorf("config: auto_approve_strength %v outside [0,1]", c.Policy.AutoApproveStrength)
	}
	return nil
}

// EnsureDirs creates the data directories the runtime writes into.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.Data.Dir, c.Data.QueueDir, filepath.Dir(c.Data.MemoryDB)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	return nil
}
