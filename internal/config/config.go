package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"daylife/internal/ics"
	appLog "daylife/internal/log"
)

// APIKeyEnv overrides llm.api_key when set.
const APIKeyEnv = "GROQ_API_KEY"

// ICSConfig is one calendar subscription used by import and refresh.
type ICSConfig struct {
	// URL may use http, https or webcal.
	URL string `yaml:"url" json:"url"`
	// ID names the source in logs; defaults to Name, then URL.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url" json:"base_url"`
	APIKey         string  `yaml:"api_key" json:"-"`
	Model          string  `yaml:"model" json:"model"`
	Temperature    float32 `yaml:"temperature" json:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" json:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ScheduleConfig holds normalization defaults.
type ScheduleConfig struct {
	// DefaultWake and DefaultBed apply when a request omits its preferences.
	DefaultWake string `yaml:"default_wakeup" json:"default_wakeup"`
	DefaultBed  string `yaml:"default_bedtime" json:"default_bedtime"`
	// ExemptCategories are never clipped to the wake/bed window.
	ExemptCategories []string `yaml:"exempt_categories" json:"exempt_categories"`
	// ProductID is written as the PRODID of exported calendars.
	ProductID string `yaml:"product_id" json:"product_id"`
}

// CacheConfig sizes the generation cache.
type CacheConfig struct {
	Size       int `yaml:"size" json:"size"`
	TTLMinutes int `yaml:"ttl_minutes" json:"ttl_minutes"`
}

// RateLimitConfig bounds schedule generation per client IP. A zero or
// negative bound disables the limiter.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int `yaml:"burst" json:"burst"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Environment selects the log format: "development" logs to the console
	// at debug level, anything else logs JSON at info level.
	Environment string `yaml:"environment" json:"environment"`

	// Timezone is the IANA zone used to pick "today" and to project imported
	// events onto a day. "Local" uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// AllowedOrigins are the CORS origins allowed to call the API.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Schedule  ScheduleConfig  `yaml:"schedule" json:"schedule"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// RefreshCron schedules subscription prefetch and cache sweeps. Five
	// cron fields or a descriptor such as "@hourly".
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// RefreshTimeoutSeconds bounds one refresh run, covering every
	// subscription fetch and the cache sweep.
	RefreshTimeoutSeconds int `yaml:"refresh_timeout_seconds" json:"refresh_timeout_seconds"`

	// CacheDir holds downloaded subscription bodies.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// AllowRemoteImport lets import requests fetch URLs that are not
	// configured subscriptions. Such fetches only reach public addresses
	// and are never written to CacheDir.
	AllowRemoteImport bool `yaml:"allow_remote_import" json:"allow_remote_import"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`

	// ICS lists calendar subscriptions.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth protects every route but /health once both fields are set.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8000",
		Environment:    "production",
		Timezone:       "Local",
		AllowedOrigins: []string{"http://localhost:3000"},
		LLM: LLMConfig{
			BaseURL:        "https://api.groq.com/openai/v1",
			Model:          "llama3-70b-8192",
			Temperature:    0.7,
			MaxTokens:      2000,
			TimeoutSeconds: 30,
		},
		Schedule: ScheduleConfig{
			DefaultWake:      "8:00 AM",
			DefaultBed:       "11:00 PM",
			ExemptCategories: []string{"sleep"},
			ProductID:        ics.DefaultProductID,
		},
		Cache:       CacheConfig{Size: 256, TTLMinutes: 60},
		RateLimit:   RateLimitConfig{RequestsPerMinute: 10, Burst: 5},
		RefreshCron: "*/15 * * * *",
		CacheDir:    "./var/ics-cache",
		ICS:         []ICSConfig{},
		BasicAuth:   nil,

		RefreshTimeoutSeconds: 120,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly. Settings where zero is
// meaningful (temperature, rate limit) are left alone unless negative.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Environment == "" {
		c.Environment = def.Environment
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = def.AllowedOrigins
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = def.LLM.BaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = def.LLM.Model
	}
	if c.LLM.Temperature < 0 {
		c.LLM.Temperature = def.LLM.Temperature
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = def.LLM.MaxTokens
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = def.LLM.TimeoutSeconds
	}

	if c.Schedule.DefaultWake == "" {
		c.Schedule.DefaultWake = def.Schedule.DefaultWake
	}
	if c.Schedule.DefaultBed == "" {
		c.Schedule.DefaultBed = def.Schedule.DefaultBed
	}
	// An explicit empty list means "clip everything".
	if c.Schedule.ExemptCategories == nil {
		c.Schedule.ExemptCategories = def.Schedule.ExemptCategories
	}
	if c.Schedule.ProductID == "" {
		c.Schedule.ProductID = def.Schedule.ProductID
	}

	if c.Cache.Size <= 0 {
		c.Cache.Size = def.Cache.Size
	}
	if c.Cache.TTLMinutes <= 0 {
		c.Cache.TTLMinutes = def.Cache.TTLMinutes
	}

	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.RefreshTimeoutSeconds <= 0 {
		c.RefreshTimeoutSeconds = def.RefreshTimeoutSeconds
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Location resolves Timezone, falling back to the host zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// LLMTimeout is the per-request model timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// RefreshTimeout bounds a single refresh run.
func (c *Config) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSeconds) * time.Second
}

// CacheTTL is how long a generated schedule is reused.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// Sources converts the configured subscriptions, skipping entries without
// a URL. ID falls back to Name, then URL.
func (c *Config) Sources() []ics.Source {
	sources := make([]ics.Source, 0, len(c.ICS))
	for _, csrc := range c.ICS {
		if csrc.URL == "" {
			continue
		}
		id := csrc.ID
		if id == "" {
			if csrc.Name != "" {
				id = csrc.Name
			} else {
				id = csrc.URL
			}
		}
		sources = append(sources, ics.Source{ID: id, URL: csrc.URL})
	}
	return sources
}

// Load reads the YAML file at path and fills in defaults. On first run the
// file does not exist yet; the defaults are written there (mode 0600) and
// returned. GROQ_API_KEY, when set, replaces llm.api_key in memory only.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Usable defaults are returned alongside the write error.
				applyEnv(cfg)
				return cfg, err
			}
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	// Decoding over the defaults keeps them for absent keys while explicit
	// zeros in the file survive.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		cfg.LLM.APIKey = key
	}
}

// Save writes the given configuration to the specified path.
// The file is replaced atomically through a temp file in the same
// directory and ends up with mode 0600.
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

	tmp, err := os.CreateTemp(dir, ".daylife-config-*.tmp")
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
