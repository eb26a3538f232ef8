// Package config loads mappackd configuration.
//
// Configuration comes from an optional YAML file (--config flag or the
// MAPPACK_CONFIG environment variable) layered over defaults. Secrets and
// deployment-specific values can be supplied through environment variables,
// which override the file:
//
//	INTERNAL_KEY        shared bearer key callers must present
//	PUBLIC_BASE_URL     public URL prefix of published packs
//	OSU_ID, OSU_SECRET  osu! OAuth client credentials
//	MAPPACK_LISTEN      listen address
//	MAPPACK_REDIS_ADDR  Redis address for shared osu! tokens
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigEnv names the environment variable holding the config file path.
const ConfigEnv = "MAPPACK_CONFIG"

// Store backends.
const (
	StoreDisk   = "disk"
	StoreMemory = "memory"
	StoreS3     = "s3"
	StoreGCS    = "gcs"
	StoreOCI    = "oci"
)

// Config is the mappackd configuration.
type Config struct {
	// Listen is the HTTP listen address.
	// Default: :8080
	Listen string `yaml:"listen"`

	// InternalKey is the bearer key callers must present. Required.
	InternalKey string `yaml:"internal_key"`

	// PublicBaseURL is the URL prefix under which stored packs are served. Required.
	PublicBaseURL string `yaml:"public_base_url"`

	Log       LogConfig       `yaml:"log"`
	Osu       OsuConfig       `yaml:"osu"`
	Redis     RedisConfig     `yaml:"redis"`
	Mirrors   MirrorsConfig   `yaml:"mirrors"`
	Build     BuildConfig     `yaml:"build"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level"`

	// Format is json or text. Default: json
	Format string `yaml:"format"`
}

// OsuConfig configures the osu! API client.
type OsuConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// APIURL and TokenURL default to the public osu! endpoints.
	APIURL   string `yaml:"api_url"`
	TokenURL string `yaml:"token_url"`

	// RateLimit is the steady request rate per second. Zero disables limiting.
	// Default: 1
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// Timeout bounds each API request. Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// TokenCacheTTL caps how long a token is reused. Zero exchanges a new
	// token for every lookup. Default: 12h
	TokenCacheTTL time.Duration `yaml:"token_cache_ttl"`

	UserAgent string `yaml:"user_agent"`
}

// RedisConfig configures the shared token store. Disabled when Addr is empty.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// MirrorsConfig configures archive downloads.
type MirrorsConfig struct {
	// URLs are tried in order. Default: https://api.nerinyan.moe/d
	URLs []string `yaml:"urls"`

	// Timeout bounds one download. Default: 2m
	Timeout time.Duration `yaml:"timeout"`

	// MaxBytes caps one archive. Default: 200 MiB
	MaxBytes int64 `yaml:"max_bytes"`

	UserAgent string `yaml:"user_agent"`
}

// BuildConfig configures pack assembly.
type BuildConfig struct {
	// Concurrency bounds parallel entry resolution. Default: 1
	Concurrency int `yaml:"concurrency"`

	// Compression is deflate or store. Default: deflate
	Compression string `yaml:"compression"`

	// Timeout bounds one build. Default: 5m
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects and configures the pack store.
type StoreConfig struct {
	// Type is one of disk, memory, s3, gcs, oci. Default: disk
	Type string `yaml:"type"`

	Disk DiskStoreConfig `yaml:"disk"`
	S3   S3StoreConfig   `yaml:"s3"`
	GCS  GCSStoreConfig  `yaml:"gcs"`
	OCI  OCIStoreConfig  `yaml:"oci"`
}

// DiskStoreConfig configures the filesystem store.
type DiskStoreConfig struct {
	// Dir holds stored packs. Default: ./data
	Dir            string `yaml:"dir"`
	ShardPrefixLen int    `yaml:"shard_prefix_len"`
}

// S3StoreConfig configures the S3-compatible store.
type S3StoreConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	CacheControl    string `yaml:"cache_control"`
}

// GCSStoreConfig configures the Google Cloud Storage store.
type GCSStoreConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// OCIStoreConfig configures the OCI registry store.
type OCIStoreConfig struct {
	Repository string `yaml:"repository"`
	PlainHTTP  bool   `yaml:"plain_http"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// ServePacks exposes stored packs at GET /packs/{name}.
	ServePacks bool `yaml:"serve_packs"`

	// MaxBodyBytes caps request bodies. Default: 1 MiB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// WriteTimeout must exceed build.timeout. Zero disables it. Default: 6m
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig configures metrics export. Disabled when OTLPEndpoint is empty.
type TelemetryConfig struct {
	OTLPEndpoint string        `yaml:"otlp_endpoint"`
	Insecure     bool          `yaml:"insecure"`
	Interval     time.Duration `yaml:"interval"`
	ServiceName  string        `yaml:"service_name"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Osu: OsuConfig{
			APIURL:        "https://osu.ppy.sh/api/v2",
			TokenURL:      "https://osu.ppy.sh/oauth/token",
			RateLimit:     1,
			Burst:         5,
			Timeout:       10 * time.Second,
			TokenCacheTTL: 12 * time.Hour,
		},
		Mirrors: MirrorsConfig{
			URLs:     []string{"https://api.nerinyan.moe/d"},
			Timeout:  2 * time.Minute,
			MaxBytes: 200 << 20,
		},
		Build: BuildConfig{
			Concurrency: 1,
			Compression: "deflate",
			Timeout:     5 * time.Minute,
		},
		Store: StoreConfig{
			Type: StoreDisk,
			Disk: DiskStoreConfig{Dir: "./data"},
		},
		Server: ServerConfig{
			MaxBodyBytes:      1 << 20,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      6 * time.Minute,
			ShutdownTimeout:   30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Interval:    time.Minute,
			ServiceName: "mappackd",
		},
	}
}

// Load builds the configuration from defaults, the file at path (if path is
// not empty) and the environment, in that order. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

// loadFile merges a YAML file into the configuration. Unknown keys are errors.
func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides values from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	set("INTERNAL_KEY", &c.InternalKey)
	set("PUBLIC_BASE_URL", &c.PublicBaseURL)
	set("OSU_ID", &c.Osu.ClientID)
	set("OSU_SECRET", &c.Osu.ClientSecret)
	set("MAPPACK_LISTEN", &c.Listen)
	set("MAPPACK_REDIS_ADDR", &c.Redis.Addr)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.InternalKey == "" {
		errs = append(errs, errors.New("internal_key is required (or INTERNAL_KEY)"))
	}
	if c.PublicBaseURL == "" {
		errs = append(errs, errors.New("public_base_url is required (or PUBLIC_BASE_URL)"))
	} else if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("public_base_url %q must be an absolute URL", c.PublicBaseURL))
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("invalid log.level: %s", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("invalid log.format: %s", c.Log.Format))
	}

	if c.Osu.ClientID == "" || c.Osu.ClientSecret == "" {
		errs = append(errs, errors.New("osu.client_id and osu.client_secret are required (or OSU_ID, OSU_SECRET)"))
	}
	if c.Osu.RateLimit < 0 {
		errs = append(errs, errors.New("osu.rate_limit must not be negative"))
	}
	if c.Osu.Timeout < 0 || c.Osu.TokenCacheTTL < 0 {
		errs = append(errs, errors.New("osu durations must not be negative"))
	}

	if len(c.Mirrors.URLs) == 0 {
		errs = append(errs, errors.New("mirrors.urls must not be empty"))
	}
	for _, m := range c.Mirrors.URLs {
		if u, err := url.Parse(strings.ReplaceAll(m, "{id}", "0")); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid mirror URL: %q", m))
		}
	}

	if c.Build.Concurrency < 1 {
		errs = append(errs, errors.New("build.concurrency must be at least 1"))
	}
	if c.Build.Compression != "deflate" && c.Build.Compression != "store" {
		errs = append(errs, fmt.Errorf("invalid build.compression: %s", c.Build.Compression))
	}
	if c.Build.Timeout < 0 {
		errs = append(errs, errors.New("build.timeout must not be negative"))
	}

	switch c.Store.Type {
	case StoreDisk:
		if c.Store.Disk.Dir == "" {
			errs = append(errs, errors.New("store.disk.dir is required"))
		}
	case StoreMemory:
	case StoreS3:
		if c.Store.S3.Bucket == "" {
			errs = append(errs, errors.New("store.s3.bucket is required"))
		}
	case StoreGCS:
		if c.Store.GCS.Bucket == "" {
			errs = append(errs, errors.New("store.gcs.bucket is required"))
		}
	case StoreOCI:
		if c.Store.OCI.Repository == "" {
			errs = append(errs, errors.New("store.oci.repository is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store.type: %s", c.Store.Type))
	}

	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	// A response cannot be written once the write timeout has passed.
	if c.Server.WriteTimeout > 0 && (c.Build.Timeout <= 0 || c.Build.Timeout >= c.Server.WriteTimeout) {
		errs = append(errs, fmt.Errorf("build.timeout (%s) must be positive and shorter than server.write_timeout (%s)",
			c.Build.Timeout, c.Server.WriteTimeout))
	}

	return errors.Join(errs...)
}
