package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Log        LogConfig        `mapstructure:"log" json:"log"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	Storage    StorageConfig    `mapstructure:"storage" json:"storage"`
	Provider   ProviderConfig   `mapstructure:"provider" json:"provider"`
	Strava     StravaConfig     `mapstructure:"strava" json:"strava"`
	Display    DisplayConfig    `mapstructure:"display" json:"display"`
	Plan       PlanConfig       `mapstructure:"plan" json:"plan"`
	LLM        LLMConfig        `mapstructure:"llm" json:"llm"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment" json:"enrichment"`
	Coach      CoachConfig      `mapstructure:"coach" json:"coach"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level" json:"level"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Address      string        `mapstructure:"address" json:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
}

// StorageConfig holds the SQLite location
type StorageConfig struct {
	DBPath string `mapstructure:"db_path" json:"db_path"`
}

// Activity sources
const (
	SourceStore  = "store"
	SourceStrava = "strava"
	SourceFit    = "fit"
)

// ProviderConfig selects where activities are read from
type ProviderConfig struct {
	Source string `mapstructure:"source" json:"source"`
	FitDir string `mapstructure:"fit_dir" json:"fit_dir"`
}

// StravaConfig holds Strava API credentials
type StravaConfig struct {
	ClientID     string `mapstructure:"client_id" json:"client_id"`
	ClientSecret string `mapstructure:"client_secret" json:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url" json:"redirect_url"`
}

// DisplayConfig holds default display preferences for users without their own
type DisplayConfig struct {
	DistanceUnit string `mapstructure:"distance_unit" json:"distance_unit"`
	PaceUnit     string `mapstructure:"pace_unit" json:"pace_unit"`
}

// PlanConfig holds the plan generator guardrails
type PlanConfig struct {
	MaxWeeklyIncrease float64       `mapstructure:"max_weekly_increase" json:"max_weekly_increase"`
	IncreaseCeiling   float64       `mapstructure:"increase_ceiling" json:"increase_ceiling"`
	LongRunFraction   float64       `mapstructure:"long_run_fraction" json:"long_run_fraction"`
	LongRunCeiling    float64       `mapstructure:"long_run_ceiling" json:"long_run_ceiling"`
	ProfileMaxAge     time.Duration `mapstructure:"profile_max_age" json:"profile_max_age"`
	MaxWeeks          int           `mapstructure:"max_weeks" json:"max_weeks"`
}

// LLMConfig holds the chat-completions endpoint settings
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key" json:"api_key"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Model       string        `mapstructure:"model" json:"model"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries" json:"max_retries"`
	Temperature float64       `mapstructure:"temperature" json:"temperature"`
}

// EnrichmentConfig holds background enrichment settings
type EnrichmentConfig struct {
	Workers       int           `mapstructure:"workers" json:"workers"`
	QueueSize     int           `mapstructure:"queue_size" json:"queue_size"`
	WeekTimeout   time.Duration `mapstructure:"week_timeout" json:"week_timeout"`
	SweepSchedule string        `mapstructure:"sweep_schedule" json:"sweep_schedule"`
}

// CoachConfig holds conversational assistant settings
type CoachConfig struct {
	ContextBudget   int           `mapstructure:"context_budget" json:"context_budget"`
	HistoryMessages int           `mapstructure:"history_messages" json:"history_messages"`
	ReplyTimeout    time.Duration `mapstructure:"reply_timeout" json:"reply_timeout"`
}

// ErrNoConfig is returned when the config file doesn't exist
var ErrNoConfig = errors.New("config file not found")

// setDefaults declares every default value
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("storage.db_path", "")

	v.SetDefault("provider.source", SourceStore)
	v.SetDefault("provider.fit_dir", "")

	v.SetDefault("strava.client_id", "")
	v.SetDefault("strava.client_secret", "")
	v.SetDefault("strava.redirect_url", "http://localhost:8080/v1/strava/callback")

	v.SetDefault("display.distance_unit", "km")
	v.SetDefault("display.pace_unit", "min/km")

	v.SetDefault("plan.max_weekly_increase", 0.10)
	v.SetDefault("plan.increase_ceiling", 0.12)
	v.SetDefault("plan.long_run_fraction", 0.30)
	v.SetDefault("plan.long_run_ceiling", 0.32)
	v.SetDefault("plan.profile_max_age", 24*time.Hour)
	v.SetDefault("plan.max_weeks", 30)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.temperature", 0.4)

	v.SetDefault("enrichment.workers", 2)
	v.SetDefault("enrichment.queue_size", 64)
	v.SetDefault("enrichment.week_timeout", 45*time.Second)
	v.SetDefault("enrichment.sweep_schedule", "@every 15m")

	v.SetDefault("coach.context_budget", 4000)
	v.SetDefault("coach.history_messages", 10)
	v.SetDefault("coach.reply_timeout", 30*time.Second)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RUNCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are plain values, decoding them cannot fail.
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load reads the configuration from path, or ~/.runcoach/config.json when path is empty.
// Environment variables prefixed with RUNCOACH_ override file values.
// ErrNoConfig is returned together with a usable default config when the file is missing.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := getConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	var missing bool
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		missing = true
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Storage.DBPath == "" {
		dir, err := GetConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.Storage.DBPath = filepath.Join(dir, "data.db")
	}

	if missing {
		return &cfg, ErrNoConfig
	}
	return &cfg, nil
}

// Save writes the configuration to ~/.runcoach/config.json
func Save(cfg *Config) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}
	return saveTo(path, cfg)
}

func saveTo(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// CreateExample creates an example config file if none exists
func CreateExample() error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		return nil // Config exists, don't overwrite
	}

	example := DefaultConfig()
	example.Strava = StravaConfig{
		ClientID:     "YOUR_CLIENT_ID",
		ClientSecret: "YOUR_CLIENT_SECRET",
	}
	example.LLM.APIKey = "YOUR_API_KEY"

	return saveTo(path, &example)
}

// Validate checks the config for values the engine cannot run with
func (c *Config) Validate() error {
	if c.Display.DistanceUnit != "" && c.Display.DistanceUnit != "km" && c.Display.DistanceUnit != "mi" {
		return fmt.Errorf("display.distance_unit must be \"km\" or \"mi\", got %q", c.Display.DistanceUnit)
	}
	if c.Display.PaceUnit != "" && c.Display.PaceUnit != "min/km" && c.Display.PaceUnit != "min/mi" {
		return fmt.Errorf("display.pace_unit must be \"min/km\" or \"min/mi\", got %q", c.Display.PaceUnit)
	}

	switch c.Provider.Source {
	case SourceStore:
	case SourceStrava:
		if c.Strava.ClientID == "" || c.Strava.ClientID == "YOUR_CLIENT_ID" {
			return errors.New("strava.client_id is required when provider.source is \"strava\"")
		}
		if c.Strava.ClientSecret == "" || c.Strava.ClientSecret == "YOUR_CLIENT_SECRET" {
			return errors.New("strava.client_secret is required when provider.source is \"strava\"")
		}
	case SourceFit:
		if c.Provider.FitDir == "" {
			return errors.New("provider.fit_dir is required when provider.source is \"fit\"")
		}
	default:
		return fmt.Errorf("provider.source must be one of store, strava, fit, got %q", c.Provider.Source)
	}

	p := c.Plan
	if p.MaxWeeklyIncrease <= 0 || p.MaxWeeklyIncrease > p.IncreaseCeiling {
		return fmt.Errorf("plan.max_weekly_increase (%v) must be > 0 and <= plan.increase_ceiling (%v)", p.MaxWeeklyIncrease, p.IncreaseCeiling)
	}
	if p.IncreaseCeiling > 0.5 {
		return fmt.Errorf("plan.increase_ceiling (%v) must be <= 0.5", p.IncreaseCeiling)
	}
	if p.LongRunFraction <= 0 || p.LongRunFraction > p.LongRunCeiling {
		return fmt.Errorf("plan.long_run_fraction (%v) must be > 0 and <= plan.long_run_ceiling (%v)", p.LongRunFraction, p.LongRunCeiling)
	}
	if p.LongRunCeiling > 0.5 {
		return fmt.Errorf("plan.long_run_ceiling (%v) must be <= 0.5", p.LongRunCeiling)
	}
	if p.MaxWeeks < 1 {
		return fmt.Errorf("plan.max_weeks must be positive, got %d", p.MaxWeeks)
	}

	if c.Enrichment.Workers < 1 {
		return fmt.Errorf("enrichment.workers must be positive, got %d", c.Enrichment.Workers)
	}
	if c.Enrichment.QueueSize < 1 {
		return fmt.Errorf("enrichment.queue_size must be positive, got %d", c.Enrichment.QueueSize)
	}
	if c.Coach.ContextBudget < 200 {
		return fmt.Errorf("coach.context_budget must be at least 200, got %d", c.Coach.ContextBudget)
	}

	return nil
}

// SetupLogger installs a text slog handler at the given level
func SetupLogger(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	if p := os.Getenv("RUNCOACH_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".runcoach"), nil
}
