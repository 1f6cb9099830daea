// Package config loads process configuration from the environment, an
// optional .env file, and an optional YAML overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformstrings "tcfgate/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string        `yaml:"addr"`
	Environment    string        `yaml:"environment"`
	LogLevel       string        `yaml:"log_level"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Version        string        `yaml:"-"`

	CMP        CMPConfig        `yaml:"cmp"`
	VendorList VendorListConfig `yaml:"vendor_list"`
	Geo        GeoConfig        `yaml:"geo"`
	Redis      RedisConfig      `yaml:"redis"`
}

// CMPConfig holds the issuing-agent identity stamped into generated tokens.
type CMPConfig struct {
	ID               int    `yaml:"id"`
	Version          int    `yaml:"version"`
	ConsentScreen    int    `yaml:"consent_screen"`
	ConsentLanguage  string `yaml:"consent_language"`
	PublisherCountry string `yaml:"publisher_country"`
}

// VendorListConfig controls registry fetching.
type VendorListConfig struct {
	URL     string        `yaml:"url"`
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
}

// GeoConfig controls IP geolocation lookups.
type GeoConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// RedisConfig configures the optional shared geo cache. Empty URL disables it.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Server {
	return Server{
		Addr:           ":3000",
		Environment:    "development",
		LogLevel:       "info",
		AllowedOrigins: []string{"*"},
		RequestTimeout: 30 * time.Second,
		Version:        "1.0.0",
		CMP: CMPConfig{
			ID:               12,
			Version:          1,
			ConsentLanguage:  "EN",
			PublisherCountry: "ES",
		},
		VendorList: VendorListConfig{
			URL:     "https://vendor-list.consensu.org/v2/vendor-list.json",
			TTL:     24 * time.Hour,
			Timeout: 10 * time.Second,
		},
		Geo: GeoConfig{
			URL:      "https://ipapi.co",
			Timeout:  2 * time.Second,
			CacheTTL: 10 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

// Load reads .env (if present), applies the YAML file named by CONFIG_FILE
// over the defaults, then applies environment overrides.
func Load() (Server, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Server{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// FromEnv builds a Server config from defaults and environment variables only.
func FromEnv() (Server, error) {
	cfg := Defaults()
	if err := cfg.applyEnv(); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c *Server) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Server) applyEnv() error {
	if v, ok := getEnvStr("TCF_ADDR"); ok {
		c.Addr = v
	} else if v, ok := getEnvStr("PORT"); ok {
		c.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.Environment = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := getEnvStr("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = platformstrings.SplitList(v)
	}
	if v, ok := getEnvStr("APP_VERSION"); ok {
		c.Version = v
	}
	if v, ok := getEnvStr("TCF_CONSENT_LANGUAGE"); ok {
		c.CMP.ConsentLanguage = strings.ToUpper(v)
	}
	if v, ok := getEnvStr("TCF_PUBLISHER_COUNTRY"); ok {
		c.CMP.PublisherCountry = strings.ToUpper(v)
	}
	if v, ok := getEnvStr("VENDOR_LIST_URL"); ok {
		c.VendorList.URL = v
	}
	if v, ok := getEnvStr("GEO_LOOKUP_URL"); ok {
		c.Geo.URL = strings.TrimRight(v, "/")
	}
	if v, ok := getEnvStr("REDIS_URL"); ok {
		c.Redis.URL = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"IAB_CMP_ID", &c.CMP.ID},
		{"IAB_CMP_VERSION", &c.CMP.Version},
		{"TCF_CONSENT_SCREEN", &c.CMP.ConsentScreen},
		{"REDIS_POOL_SIZE", &c.Redis.PoolSize},
		{"REDIS_MIN_IDLE_CONNS", &c.Redis.MinIdleConns},
	}
	for _, f := range ints {
		v, ok, err := getEnvInt(f.key)
		if err != nil {
			return err
		}
		if ok {
			*f.dst = v
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
		{"VENDOR_LIST_TTL", &c.VendorList.TTL},
		{"VENDOR_LIST_TIMEOUT", &c.VendorList.Timeout},
		{"GEO_LOOKUP_TIMEOUT", &c.Geo.Timeout},
		{"GEO_CACHE_TTL", &c.Geo.CacheTTL},
		{"REDIS_DIAL_TIMEOUT", &c.Redis.DialTimeout},
		{"REDIS_READ_TIMEOUT", &c.Redis.ReadTimeout},
		{"REDIS_WRITE_TIMEOUT", &c.Redis.WriteTimeout},
	}
	for _, f := range durations {
		v, ok, err := getEnvDur(f.key)
		if err != nil {
			return err
		}
		if ok {
			*f.dst = v
		}
	}
	return nil
}

// Validate rejects values the codec or the HTTP server cannot work with.
func (c Server) Validate() error {
	if c.CMP.ID < 0 || c.CMP.ID > 4095 {
		return fmt.Errorf("IAB_CMP_ID must be in [0, 4095], got %d", c.CMP.ID)
	}
	if c.CMP.Version < 0 || c.CMP.Version > 4095 {
		return fmt.Errorf("IAB_CMP_VERSION must be in [0, 4095], got %d", c.CMP.Version)
	}
	if c.CMP.ConsentScreen < 0 || c.CMP.ConsentScreen > 63 {
		return fmt.Errorf("TCF_CONSENT_SCREEN must be in [0, 63], got %d", c.CMP.ConsentScreen)
	}
	if !isLetterPair(c.CMP.ConsentLanguage) {
		return fmt.Errorf("TCF_CONSENT_LANGUAGE must be two letters A-Z, got %q", c.CMP.ConsentLanguage)
	}
	if !isLetterPair(c.CMP.PublisherCountry) {
		return fmt.Errorf("TCF_PUBLISHER_COUNTRY must be two letters A-Z, got %q", c.CMP.PublisherCountry)
	}
	if c.VendorList.URL == "" {
		return fmt.Errorf("VENDOR_LIST_URL is required")
	}
	if c.VendorList.TTL <= 0 || c.VendorList.Timeout <= 0 {
		return fmt.Errorf("vendor list TTL and timeout must be positive")
	}
	if c.Geo.Timeout <= 0 {
		return fmt.Errorf("GEO_LOOKUP_TIMEOUT must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV selects production behavior.
func (c Server) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func isLetterPair(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool, error) {
	v, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, true, nil
}

func getEnvDur(key string) (time.Duration, bool, error) {
	v, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, true, nil
}
