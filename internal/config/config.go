// Package config loads rollcall settings. Defaults come from the embedded
// defaults.yaml; ROLLCALL_* environment variables override them.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config is the process configuration, built by Load from the embedded
// defaults and ROLLCALL_* environment variables.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	// Storage
	DBPath        string `yaml:"db_path"`
	ArchiveDir    string `yaml:"archive_dir"`
	SampleDir     string `yaml:"sample_dir"`
	ArchiveMaxDim int    `yaml:"archive_max_dim"`

	// ArchiveRetention of 0 keeps unknown crops forever.
	ArchiveRetention time.Duration `yaml:"archive_retention"`
	PruneInterval    time.Duration `yaml:"prune_interval"`

	// Admission gate
	AcceptDistance float64 `yaml:"accept_distance"`
	RejectDistance float64 `yaml:"reject_distance"`

	// Monitor
	SessionDuration   time.Duration `yaml:"session_duration"`
	MinSampleInterval time.Duration `yaml:"min_sample_interval"`
	MaxSampleInterval time.Duration `yaml:"max_sample_interval"`
	FrameInterval     time.Duration `yaml:"frame_interval"`
	SamplesRequired   int           `yaml:"samples_required"`

	// Seeded when the credential table is empty.
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
	BcryptCost    int    `yaml:"bcrypt_cost"`

	// Recognition sidecar; empty disables the monitor.
	VisionURL     string        `yaml:"vision_url"`
	VisionTimeout time.Duration `yaml:"vision_timeout"`
}

// Defaults returns the embedded defaults.
func Defaults() (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode defaults.yaml: %w", err)
	}
	return cfg, nil
}

// Load returns the defaults overridden by the environment, validated.
func Load() (Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return Config{}, err
	}

	cfg.HTTPAddr = getenvDefault("ROLLCALL_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = strings.ToLower(getenvDefault("ROLLCALL_LOG_LEVEL", cfg.LogLevel))

	cfg.DBPath = getenvDefault("ROLLCALL_DB_PATH", cfg.DBPath)
	cfg.ArchiveDir = getenvDefault("ROLLCALL_ARCHIVE_DIR", cfg.ArchiveDir)
	cfg.SampleDir = getenvDefault("ROLLCALL_SAMPLE_DIR", cfg.SampleDir)
	cfg.ArchiveMaxDim = getenvInt("ROLLCALL_ARCHIVE_MAX_DIM", cfg.ArchiveMaxDim)
	cfg.ArchiveRetention = getenvDuration("ROLLCALL_ARCHIVE_RETENTION", cfg.ArchiveRetention)
	cfg.PruneInterval = getenvDuration("ROLLCALL_PRUNE_INTERVAL", cfg.PruneInterval)

	cfg.AcceptDistance = getenvFloat("ROLLCALL_ACCEPT_DISTANCE", cfg.AcceptDistance)
	cfg.RejectDistance = getenvFloat("ROLLCALL_REJECT_DISTANCE", cfg.RejectDistance)

	cfg.SessionDuration = getenvDuration("ROLLCALL_SESSION_DURATION", cfg.SessionDuration)
	cfg.MinSampleInterval = getenvDuration("ROLLCALL_MIN_SAMPLE_INTERVAL", cfg.MinSampleInterval)
	cfg.MaxSampleInterval = getenvDuration("ROLLCALL_MAX_SAMPLE_INTERVAL", cfg.MaxSampleInterval)
	cfg.FrameInterval = getenvDuration("ROLLCALL_FRAME_INTERVAL", cfg.FrameInterval)
	cfg.SamplesRequired = getenvInt("ROLLCALL_SAMPLES_REQUIRED", cfg.SamplesRequired)

	cfg.AdminUsername = getenvDefault("ROLLCALL_ADMIN_USERNAME", cfg.AdminUsername)
	cfg.AdminPassword = getenvDefault("ROLLCALL_ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.BcryptCost = getenvInt("ROLLCALL_BCRYPT_COST", cfg.BcryptCost)

	cfg.VisionURL = getenvDefault("ROLLCALL_VISION_URL", cfg.VisionURL)
	cfg.VisionTimeout = getenvDuration("ROLLCALL_VISION_TIMEOUT", cfg.VisionTimeout)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.AcceptDistance <= 0 || c.AcceptDistance > c.RejectDistance {
		errs = append(errs, fmt.Errorf("accept_distance (%v) must be > 0 and <= reject_distance (%v)",
			c.AcceptDistance, c.RejectDistance))
	}
	if c.MinSampleInterval <= 0 || c.MinSampleInterval > c.MaxSampleInterval {
		errs = append(errs, fmt.Errorf("min_sample_interval (%v) must be > 0 and <= max_sample_interval (%v)",
			c.MinSampleInterval, c.MaxSampleInterval))
	}
	if c.SessionDuration <= 0 {
		errs = append(errs, errors.New("session_duration must be positive"))
	}
	if c.FrameInterval <= 0 {
		errs = append(errs, errors.New("frame_interval must be positive"))
	}
	if c.ArchiveRetention < 0 {
		errs = append(errs, errors.New("archive_retention must not be negative"))
	}
	if c.SamplesRequired <= 0 {
		errs = append(errs, errors.New("samples_required must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt_cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
