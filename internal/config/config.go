package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen       = "127.0.0.1:8080"
	DefaultCatalogURL   = "https://courseplanner-api.adelaide.edu.au/api/course-planner-query/v1/"
	DefaultAcademicYear = 2024
)

// CatalogConfig describes the remote course-planner query endpoint.
type CatalogConfig struct {
	// URL is the single query endpoint; the system target is passed as a
	// query parameter.
	URL string `yaml:"url" json:"url"`
	// Virtual is forwarded as the "virtual" parameter on every query.
	Virtual string `yaml:"virtual" json:"virtual"`
	// PageSize is the default search page size.
	PageSize int `yaml:"page_size" json:"page_size"`
	// Session is the teaching session passed to the class-list query.
	Session int `yaml:"session" json:"session"`
	// Timeout bounds one HTTP round trip.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxRetries is the number of retries for transient failures.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// CalendarConfig is passed through to the calendar widget.
type CalendarConfig struct {
	Editable        bool `yaml:"editable" json:"editable"`
	Selectable      bool `yaml:"selectable" json:"selectable"`
	WeekendsVisible bool `yaml:"weekends_visible" json:"weekends_visible"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA zone used for ICS export and occurrence expansion.
	Timezone string `yaml:"timezone" json:"timezone"`

	// AcademicYear anchors the "DD Mon - DD Mon" meeting date ranges.
	AcademicYear int `yaml:"academic_year" json:"academic_year"`

	Catalog  CatalogConfig  `yaml:"catalog" json:"catalog"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	// SessionIdle is how long an untouched planner session is kept.
	SessionIdle time.Duration `yaml:"session_idle" json:"session_idle"`

	// SessionSweep is a cron spec for the idle-session sweep.
	SessionSweep string `yaml:"session_sweep" json:"session_sweep"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       DefaultListen,
		LogLevel:     "info",
		Timezone:     "Australia/Adelaide",
		AcademicYear: DefaultAcademicYear,
		Catalog: CatalogConfig{
			URL:        DefaultCatalogURL,
			Virtual:    "Y",
			PageSize:   10,
			Session:    1,
			Timeout:    15 * time.Second,
			MaxRetries: 2,
		},
		Calendar: CalendarConfig{
			Editable:        true,
			Selectable:      true,
			WeekendsVisible: false,
		},
		SessionIdle:  12 * time.Hour,
		SessionSweep: "*/10 * * * *",
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.AcademicYear <= 0 {
		c.AcademicYear = def.AcademicYear
	}
	if c.Catalog.URL == "" {
		c.Catalog.URL = def.Catalog.URL
	}
	if c.Catalog.Virtual == "" {
		c.Catalog.Virtual = def.Catalog.Virtual
	}
	if c.Catalog.PageSize <= 0 {
		c.Catalog.PageSize = def.Catalog.PageSize
	}
	if c.Catalog.Session <= 0 {
		c.Catalog.Session = def.Catalog.Session
	}
	if c.Catalog.Timeout <= 0 {
		c.Catalog.Timeout = def.Catalog.Timeout
	}
	if c.Catalog.MaxRetries < 0 {
		c.Catalog.MaxRetries = 0
	}
	if c.SessionIdle <= 0 {
		c.SessionIdle = def.SessionIdle
	}
	if c.SessionSweep == "" {
		c.SessionSweep = def.SessionSweep
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshalled and normalized.
//   - Environment overrides (and a .env file, if present) are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	applyEnv(cfg)

	return cfg, nil
}

// applyEnv overrides selected keys from COURSEPLAN_* variables.
func applyEnv(cfg *Config) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	if v := os.Getenv("COURSEPLAN_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("COURSEPLAN_CATALOG_URL"); v != "" {
		cfg.Catalog.URL = v
	}
	if v := os.Getenv("COURSEPLAN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COURSEPLAN_ACADEMIC_YEAR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AcademicYear = n
		}
	}
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".courseplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
