package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Sync     SyncConfig     `yaml:"sync"`
	Sources  SourcesConfig  `yaml:"sources"`
	AI       AIConfig       `yaml:"ai"`
	View     ViewConfig     `yaml:"view"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SessionConfig struct {
	Provider   string        `yaml:"provider"`
	Backend    string        `yaml:"backend"` // keyring, file or auto
	TTL        time.Duration `yaml:"ttl"`
	QRTimeout  time.Duration `yaml:"qr_timeout"`
	VaultDir   string        `yaml:"vault_dir"`
	StrictAuth bool          `yaml:"strict_auth_required"`
}

type SyncConfig struct {
	OverlapSeconds     int           `yaml:"overlap_seconds"`
	DisableIncremental bool          `yaml:"disable_incremental"`
	MidnightShiftDays  int           `yaml:"midnight_shift_days"`
	MaxConcurrency     int           `yaml:"max_concurrency"`
	Timeout            time.Duration `yaml:"timeout"`
	CoverageSLATarget  float64       `yaml:"coverage_sla_target"`
	ExtremeLocalMode   bool          `yaml:"extreme_local_mode"`
}

// Incremental reports whether windowed sync is enabled (the default).
func (s SyncConfig) Incremental() bool {
	return !s.DisableIncremental
}

type SourcesConfig struct {
	FeedTemplates   []string      `yaml:"feed_templates"`
	DirectoryIndex  string        `yaml:"directory_index"`
	SearchEndpoint  string        `yaml:"search_endpoint"`
	SessionEndpoint string        `yaml:"session_endpoint"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
}

type AIConfig struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	ChatModel        string `yaml:"chat_model"`
	EmbedModel       string `yaml:"embed_model"`
	SourceCharLimit  int    `yaml:"source_char_limit"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_seconds"`
}

type ViewConfig struct {
	DefaultMode string `yaml:"default_mode"`
}

// Overlap returns the sync overlap as a duration.
func (s SyncConfig) Overlap() time.Duration {
	return time.Duration(s.OverlapSeconds) * time.Second
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Config file is optional; environment and defaults carry a bare install.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	return &cfg, nil
}

// applyEnv maps the documented environment variables over whatever the YAML
// file provided. Environment wins so a single run can be switched to strict
// or local mode without editing the file.
func (c *Config) applyEnv() {
	if v, ok := envBool("STRICT_AUTH_REQUIRED"); ok {
		c.Session.StrictAuth = v
	}
	if v, ok := envBool("EXTREME_LOCAL_MODE"); ok {
		c.Sync.ExtremeLocalMode = v
	}
	if v, ok := envBool("INCREMENTAL_SYNC_ENABLED"); ok {
		c.Sync.DisableIncremental = !v
	}
	if v, ok := envInt("SYNC_OVERLAP_SECONDS"); ok {
		c.Sync.OverlapSeconds = v
	}
	if v, ok := envInt("MIDNIGHT_SHIFT_DAYS"); ok {
		c.Sync.MidnightShiftDays = v
	}
	if v, ok := envFloat("COVERAGE_SLA_TARGET"); ok {
		c.Sync.CoverageSLATarget = v
	}
	if v := os.Getenv("SESSION_PROVIDER"); v != "" {
		c.Session.Provider = v
	}
	if v := os.Getenv("SESSION_BACKEND"); v != "" {
		c.Session.Backend = v
	}
}

func (c *Config) setDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = defaultDataPath("digest.db")
	}
	if c.Session.Provider == "" {
		c.Session.Provider = "weread"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "auto"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 30 * 24 * time.Hour
	}
	if c.Session.QRTimeout == 0 {
		c.Session.QRTimeout = 2 * time.Minute
	}
	if c.Session.VaultDir == "" {
		c.Session.VaultDir = defaultDataPath("")
	}
	if c.Sync.OverlapSeconds == 0 {
		c.Sync.OverlapSeconds = 120
	}
	if c.Sync.MidnightShiftDays == 0 {
		c.Sync.MidnightShiftDays = 2
	}
	if c.Sync.MaxConcurrency == 0 {
		c.Sync.MaxConcurrency = 5
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = 15 * time.Second
	}
	if c.Sync.CoverageSLATarget == 0 {
		c.Sync.CoverageSLATarget = 0.9
	}
	if len(c.Sources.FeedTemplates) == 0 {
		c.Sources.FeedTemplates = []string{"https://rsshub.app/wechat/mp/{wechat_id}"}
	}
	if c.Sources.DirectoryIndex == "" {
		c.Sources.DirectoryIndex = "https://wechat2rss.xlab.app/list/all/"
	}
	if c.Sources.SearchEndpoint == "" {
		c.Sources.SearchEndpoint = "https://www.bing.com/search"
	}
	if c.Sources.SessionEndpoint == "" {
		c.Sources.SessionEndpoint = "https://weread.qq.com"
	}
	if c.Sources.HTTPTimeout == 0 {
		c.Sources.HTTPTimeout = 15 * time.Second
	}
	if c.AI.ChatModel == "" {
		c.AI.ChatModel = "gpt-4o-mini"
	}
	if c.AI.EmbedModel == "" {
		c.AI.EmbedModel = "text-embedding-3-small"
	}
	if c.AI.SourceCharLimit == 0 {
		c.AI.SourceCharLimit = 6000
	}
	if c.AI.FetchTimeoutSecs == 0 {
		c.AI.FetchTimeoutSecs = 15
	}
	if c.View.DefaultMode == "" {
		c.View.DefaultMode = "source"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

func defaultDataPath(name string) string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return name
		}
		base = home + "/.local/share"
	}
	if name == "" {
		return base + "/wechat-digest"
	}
	return base + "/wechat-digest/" + name
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
