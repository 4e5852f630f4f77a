// Package config loads and validates bot configuration via Viper.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/youtube-archive-bot/internal/irc"
)

// Config captures all service configuration knobs loaded via Viper.
// UserHighlights maps a nick to the letter style it is echoed in (Normal,
// Fraktur, FrakturBold, Script, Bold, Italic or BoldItalic).
type Config struct {
	IRC            IRCConfig         `mapstructure:"irc"`
	Parameters     ParametersConfig  `mapstructure:"parameters"`
	UserLimits     map[string]int    `mapstructure:"user_limits"`
	UserHighlights map[string]string `mapstructure:"user_highlights"`
	Features       FeaturesConfig    `mapstructure:"features"`
	Auth           AuthConfig        `mapstructure:"auth"`
	Fetch          FetchConfig       `mapstructure:"fetch"`
	Tools          ToolsConfig       `mapstructure:"tools"`
	Stash          StashConfig       `mapstructure:"stash"`
	PubSub         PubSubConfig      `mapstructure:"pubsub"`
	Server         ServerConfig      `mapstructure:"server"`
	API            APIConfig         `mapstructure:"api"`
	Logging        LoggingConfig     `mapstructure:"logging"`
}

// IRCConfig controls the chat connection.
type IRCConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Server        string   `mapstructure:"server"`
	TLS           bool     `mapstructure:"tls"`
	Nick          string   `mapstructure:"nick"`
	User          string   `mapstructure:"user"`
	RealName      string   `mapstructure:"real_name"`
	Password      string   `mapstructure:"password"`
	Channels      []string `mapstructure:"channels"`
	BurstMessages int      `mapstructure:"burst_messages"`
	BurstWindow   int      `mapstructure:"burst_window_seconds"`
	QueueDepth    int      `mapstructure:"queue_depth"`
	MaxLineBytes  int      `mapstructure:"max_line_bytes"`
}

// ParametersConfig holds the admission defaults and the command channel.
type ParametersConfig struct {
	TaskLimit      int    `mapstructure:"task_limit"`
	CommandChannel string `mapstructure:"command_channel"`
}

// FeaturesConfig toggles reply behavior.
type FeaturesConfig struct {
	MaskHighlights bool `mapstructure:"mask_highlights"`
	SendNotice     bool `mapstructure:"send_notice"`
}

// AuthConfig lists the hostmask patterns of relayed connections.
type AuthConfig struct {
	RelayedPatterns []string `mapstructure:"relayed_patterns"`
}

// FetchConfig selects and tunes the page fetch backend.
type FetchConfig struct {
	Backend        string  `mapstructure:"backend"`
	Command        string  `mapstructure:"command"`
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// ToolsConfig names the external binaries the bot drives.
type ToolsConfig struct {
	Tmux               string `mapstructure:"tmux"`
	SessionPrefix      string `mapstructure:"session_prefix"`
	WorkDir            string `mapstructure:"work_dir"`
	Launcher           string `mapstructure:"launcher"`
	VeryBigLauncher    string `mapstructure:"verybig_launcher"`
	ScriptPattern      string `mapstructure:"script_pattern"`
	CommandTimeoutSecs int    `mapstructure:"command_timeout_seconds"`
}

// StashConfig selects where archived files are listed from.
type StashConfig struct {
	Backend   string   `mapstructure:"backend"`
	Command   string   `mapstructure:"command"`
	Args      []string `mapstructure:"args"`
	GCSBucket string   `mapstructure:"gcs_bucket"`
	GCSPrefix string   `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds metadata for launch announcements.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// APIConfig defines API authentication toggles.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Key     string `mapstructure:"key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// WriteDefault writes the default configuration to path. The format follows
// the file extension. It fails if path already exists.
func WriteDefault(path string) error {
	v := viper.New()
	setDefaults(v)
	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("irc.enabled", true)
	v.SetDefault("irc.server", "irc.libera.chat:6697")
	v.SetDefault("irc.tls", true)
	v.SetDefault("irc.nick", "youtube-archive")
	v.SetDefault("irc.user", "archivebot")
	v.SetDefault("irc.real_name", "Helpful bot")
	v.SetDefault("irc.channels", []string{"#youtubearchive"})
	v.SetDefault("irc.burst_messages", 15)
	v.SetDefault("irc.burst_window_seconds", 8)
	v.SetDefault("irc.queue_depth", 32)
	v.SetDefault("irc.max_line_bytes", 400)
	v.SetDefault("parameters.task_limit", 34)
	v.SetDefault("parameters.command_channel", "#youtubearchive")
	v.SetDefault("features.mask_highlights", true)
	v.SetDefault("features.send_notice", false)
	v.SetDefault("fetch.backend", "exec")
	v.SetDefault("fetch.command", "get-youtube-page")
	v.SetDefault("fetch.user_agent", "youtube-archive-bot/1.0")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.rate_per_second", 1)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("tools.tmux", "tmux")
	v.SetDefault("tools.session_prefix", "YouTube-")
	v.SetDefault("tools.work_dir", ".")
	v.SetDefault("tools.launcher", "youtube-archive")
	v.SetDefault("tools.verybig_launcher", "youtube-archive-verybig")
	v.SetDefault("tools.script_pattern", "youtube-archive-helper")
	v.SetDefault("tools.command_timeout_seconds", 60)
	v.SetDefault("stash.backend", "exec")
	v.SetDefault("stash.command", "ts")
	v.SetDefault("stash.args", []string{"ls", "-n", "YouTube", "-j", "-rt"})
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Parameters.TaskLimit <= 0 {
		return fmt.Errorf("parameters.task_limit must be > 0")
	}
	if !strings.HasPrefix(c.Parameters.CommandChannel, "#") {
		return fmt.Errorf("parameters.command_channel must be a channel name starting with #")
	}
	for user, limit := range c.UserLimits {
		if limit < 0 {
			return fmt.Errorf("user_limits.%s must be >= 0", user)
		}
	}
	for nick, mode := range c.UserHighlights {
		if _, err := irc.ParseHighlightMode(mode); err != nil {
			return fmt.Errorf("user_highlights.%s: %w", nick, err)
		}
	}
	if c.IRC.Enabled {
		if c.IRC.Server == "" || c.IRC.Nick == "" {
			return fmt.Errorf("irc.server and irc.nick must be set when irc is enabled")
		}
		if c.IRC.BurstMessages <= 0 || c.IRC.BurstWindow <= 0 {
			return fmt.Errorf("irc.burst_messages and irc.burst_window_seconds must be > 0")
		}
	}
	switch c.Fetch.Backend {
	case "exec", "colly":
	default:
		return fmt.Errorf("fetch.backend must be exec or colly, got %q", c.Fetch.Backend)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	switch c.Stash.Backend {
	case "exec":
	case "gcs":
		if c.Stash.GCSBucket == "" {
			return fmt.Errorf("stash.gcs_bucket must be set when stash.backend is gcs")
		}
	default:
		return fmt.Errorf("stash.backend must be exec or gcs, got %q", c.Stash.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.API.Enabled && c.API.Key == "" {
		return fmt.Errorf("api.key must be set when api is enabled")
	}
	return nil
}

// NickStyles returns user_highlights keyed by lowercased nick. Unknown modes
// are skipped; Validate rejects them first.
func (c Config) NickStyles() map[string]irc.HighlightMode {
	styles := make(map[string]irc.HighlightMode, len(c.UserHighlights))
	for nick, name := range c.UserHighlights {
		if mode, err := irc.ParseHighlightMode(name); err == nil {
			styles[strings.ToLower(nick)] = mode
		}
	}
	return styles
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// CommandTimeout bounds every external process run; zero means no bound.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.Tools.CommandTimeoutSecs) * time.Second
}

// ListenAddr is the host:port the admin server binds to.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BurstWindow is the period over which irc.burst_messages may be sent.
func (c Config) BurstWindow() time.Duration {
	return time.Duration(c.IRC.BurstWindow) * time.Second
}
