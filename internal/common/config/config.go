// Package config loads RustyClaw's runtime configuration using viper,
// mirroring the nested mapstructure layout used throughout the codebase.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/rustyclaw/core/internal/common/logger"
)

// Config is the root configuration aggregate. Each subsystem owns its
// own sub-struct so defaults and env overrides stay localized.
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Process   ProcessConfig   `mapstructure:"process"`
	Session   SessionConfig   `mapstructure:"session"`
	Thread    ThreadConfig    `mapstructure:"thread"`
	Task      TaskConfig      `mapstructure:"task"`
	Context   ContextConfig   `mapstructure:"context"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   logger.Config   `mapstructure:"logging"`
}

// WorkspaceConfig locates the host workspace root that every subsystem's
// `.rustyclaw/` state directory is relative to.
type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
}

// VaultConfig configures the encrypted credential container.
type VaultConfig struct {
	Path       string `mapstructure:"path"`        // defaults to <root>/.rustyclaw/vault
	Mode       string `mapstructure:"mode"`        // "keyfile" or "password"
	KeyFile    string `mapstructure:"key_file"`    // identity file path, keyfile mode
	ScryptCost int    `mapstructure:"scrypt_cost"` // password mode work factor
}

// ProcessConfig configures ProcessManager polling and output retention.
type ProcessConfig struct {
	PollIntervalMS  int `mapstructure:"poll_interval_ms"`
	MaxOutputBytes  int `mapstructure:"max_output_bytes"`
	KillGracePeriod int `mapstructure:"kill_grace_period_ms"`
}

// SessionConfig configures SessionRegistry ring buffer and archival.
type SessionConfig struct {
	MaxMessages int    `mapstructure:"max_messages"`
	ArchivePath string `mapstructure:"archive_path"`
	IndexPath   string `mapstructure:"index_path"`
}

// ThreadConfig configures ThreadManager persistence.
type ThreadConfig struct {
	StatePath string `mapstructure:"state_path"`
}

// TaskConfig configures TaskManager channel capacities.
type TaskConfig struct {
	ControlChanCapacity   int `mapstructure:"control_chan_capacity"`
	BroadcastChanCapacity int `mapstructure:"broadcast_chan_capacity"`
	CleanupIntervalMS     int `mapstructure:"cleanup_interval_ms"`
	RetentionMinutes      int `mapstructure:"retention_minutes"`
}

// ContextConfig configures ContextComposer's workspace file discovery.
type ContextConfig struct {
	Root                string `mapstructure:"root"`
	DailyNotesLookback  int    `mapstructure:"daily_notes_lookback"`
}

// DispatchConfig configures ToolDispatcher safety hooks.
type DispatchConfig struct {
	DefaultAction string `mapstructure:"default_action"` // ignore, warn, block, sanitize
}

// EventsConfig configures EventBus broadcast channel capacity.
type EventsConfig struct {
	ChannelCapacity int `mapstructure:"channel_capacity"`
}

// Load reads configuration from the given file path (if any), environment
// variables prefixed RUSTYCLAW_, and built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RUSTYCLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDerivedPaths(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace.root", ".")
	v.SetDefault("vault.mode", "keyfile")
	v.SetDefault("vault.scrypt_cost", 18)
	v.SetDefault("process.poll_interval_ms", 100)
	v.SetDefault("process.max_output_bytes", 1<<20)
	v.SetDefault("process.kill_grace_period_ms", 3000)
	v.SetDefault("session.max_messages", 100)
	v.SetDefault("task.control_chan_capacity", 32)
	v.SetDefault("task.broadcast_chan_capacity", 256)
	v.SetDefault("task.cleanup_interval_ms", 60000)
	v.SetDefault("task.retention_minutes", 60)
	v.SetDefault("context.daily_notes_lookback", 7)
	v.SetDefault("dispatch.default_action", "warn")
	v.SetDefault("events.channel_capacity", 256)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output_path", "stdout")
}

// applyDerivedPaths fills in workspace-relative paths left unset by the
// caller, rooted under <workspace>/.rustyclaw.
func applyDerivedPaths(cfg *Config) {
	root := strings.TrimSuffix(cfg.Workspace.Root, "/")
	base := root + "/.rustyclaw"

	if cfg.Vault.Path == "" {
		cfg.Vault.Path = base + "/vault"
	}
	if cfg.Vault.KeyFile == "" {
		cfg.Vault.KeyFile = base + "/vault.key"
	}
	if cfg.Session.ArchivePath == "" {
		cfg.Session.ArchivePath = base + "/sessions/archive.jsonl"
	}
	if cfg.Session.IndexPath == "" {
		cfg.Session.IndexPath = base + "/sessions/archive.db"
	}
	if cfg.Thread.StatePath == "" {
		cfg.Thread.StatePath = base + "/threads/state.json"
	}
	if cfg.Context.Root == "" {
		cfg.Context.Root = root
	}
}
