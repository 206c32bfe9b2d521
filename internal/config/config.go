// Package config loads sync settings from defaults, a YAML file and the
// environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/petems/go-s3-sync/internal/cachepolicy"
	"github.com/petems/go-s3-sync/internal/store"
)

// DefaultFile is the config file read when no other is given.
const DefaultFile = ".s3_sync"

const (
	// DefaultACL is the canned ACL applied to uploads unless disabled.
	DefaultACL = "public-read"

	// DefaultWorkers is the size of the worker pool.
	DefaultWorkers = 8

	// MaxInvalidationBatch is CloudFront's hard limit on paths per request.
	MaxInvalidationBatch = 3000
)

var (
	ErrMissingBucket     = errors.New("bucket is not set")
	ErrInvalidWorkers    = errors.New("workers must be positive")
	ErrInvalidBatchSize  = errors.New("cloudfront invalidation batch size must be positive")
	ErrInvalidMaxRetries = errors.New("cloudfront invalidation max retries must not be negative")
)

// Config holds every setting of a sync run.
type Config struct {
	Bucket    string `yaml:"bucket,omitempty" env:"S3_SYNC_BUCKET"`
	Region    string `yaml:"region,omitempty" env:"AWS_REGION"`
	Endpoint  string `yaml:"endpoint,omitempty" env:"S3_SYNC_ENDPOINT"`
	PathStyle bool   `yaml:"path_style" env:"S3_SYNC_PATH_STYLE"`
	Prefix    string `yaml:"prefix,omitempty" env:"S3_SYNC_PREFIX"`

	// Already resolved credentials. When empty the default AWS credential
	// chain (profile, environment, instance role) is used.
	AccessKeyID     string `yaml:"aws_access_key_id,omitempty" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"aws_secret_access_key,omitempty" env:"AWS_SECRET_ACCESS_KEY"`
	SessionToken    string `yaml:"aws_session_token,omitempty" env:"AWS_SESSION_TOKEN"`
	Profile         string `yaml:"profile,omitempty" env:"AWS_PROFILE"`

	BuildDir     string `yaml:"build_dir,omitempty" env:"S3_SYNC_BUILD_DIR"`
	ScanBuildDir bool   `yaml:"scan_build_dir,omitempty" env:"S3_SYNC_SCAN_BUILD_DIR"`
	CacheFile    string `yaml:"cache_file,omitempty" env:"S3_SYNC_CACHE_FILE"`
	Workers      int    `yaml:"workers,omitempty" env:"S3_SYNC_WORKERS"`

	Delete     bool `yaml:"delete" env:"S3_SYNC_DELETE"`
	Force      bool `yaml:"force,omitempty" env:"S3_SYNC_FORCE"`
	PreferGzip bool `yaml:"prefer_gzip" env:"S3_SYNC_PREFER_GZIP"`
	DryRun     bool `yaml:"dry_run,omitempty" env:"S3_SYNC_DRY_RUN"`
	Verbose    bool `yaml:"verbose,omitempty" env:"S3_SYNC_VERBOSE"`

	// ACL is the canned ACL for uploads. An empty string disables ACLs for
	// buckets with object ownership set to "bucket owner enforced".
	ACL                      string `yaml:"acl" env:"S3_SYNC_ACL"`
	Encryption               bool   `yaml:"encryption,omitempty" env:"S3_SYNC_ENCRYPTION"`
	ReducedRedundancyStorage bool   `yaml:"reduced_redundancy_storage,omitempty" env:"S3_SYNC_REDUCED_REDUNDANCY"`

	VersionBucket bool                `yaml:"version_bucket,omitempty" env:"S3_SYNC_VERSION_BUCKET"`
	Website       store.WebsiteConfig `yaml:",inline"`

	IgnorePaths     []string                      `yaml:"ignore_paths,omitempty" env:"S3_SYNC_IGNORE_PATHS" envSeparator:","`
	ContentTypes    map[string]string             `yaml:"content_types,omitempty"`
	CachingPolicies map[string]cachepolicy.Policy `yaml:"caching_policies,omitempty"`

	CloudFront CloudFront `yaml:"cloudfront,omitempty"`

	Environment string `yaml:"environment,omitempty" env:"ENVIRONMENT"`
}

// CloudFront holds the invalidation settings.
type CloudFront struct {
	DistributionID  string        `yaml:"distribution_id,omitempty" env:"CLOUDFRONT_DISTRIBUTION_ID"`
	Invalidate      bool          `yaml:"invalidate,omitempty" env:"CLOUDFRONT_INVALIDATE"`
	InvalidateAll   bool          `yaml:"invalidate_all,omitempty" env:"CLOUDFRONT_INVALIDATE_ALL"`
	BatchSize       int           `yaml:"invalidation_batch_size,omitempty" env:"CLOUDFRONT_INVALIDATION_BATCH_SIZE"`
	MaxRetries      int           `yaml:"invalidation_max_retries,omitempty" env:"CLOUDFRONT_INVALIDATION_MAX_RETRIES"`
	BatchDelay      time.Duration `yaml:"invalidation_batch_delay,omitempty" env:"CLOUDFRONT_INVALIDATION_BATCH_DELAY"`
	Wait            bool          `yaml:"wait,omitempty" env:"CLOUDFRONT_WAIT"`
	PollInterval    time.Duration `yaml:"poll_interval,omitempty" env:"CLOUDFRONT_POLL_INTERVAL"`
	MaxPollAttempts int           `yaml:"max_poll_attempts,omitempty" env:"CLOUDFRONT_MAX_POLL_ATTEMPTS"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		PathStyle:   true,
		BuildDir:    "build",
		Workers:     DefaultWorkers,
		Delete:      true,
		PreferGzip:  true,
		ACL:         DefaultACL,
		Environment: "development",
		CloudFront: CloudFront{
			BatchSize:       1000,
			MaxRetries:      5,
			BatchDelay:      2 * time.Second,
			PollInterval:    60 * time.Second,
			MaxPollAttempts: 30,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (a missing file
// is fine) and finally the environment, including a .env file if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.restore(path); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	return cfg, nil
}

// restore merges the YAML file at path into c. Keys absent from the file
// keep their current values.
func (c *Config) restore(path string) error {
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path) // #nosec G304 - file path from user config is expected
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return yaml.Unmarshal(raw, c)
}

// Save writes c as YAML to path. Credentials are never written.
func (c *Config) Save(path string) error {
	out := *c
	out.AccessKeyID, out.SecretAccessKey, out.SessionToken = "", "", ""

	raw, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Validate reports configuration errors. It never touches the network.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return ErrMissingBucket
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if err := c.Website.Validate(); err != nil {
		return err
	}
	if _, err := c.IgnorePatterns(); err != nil {
		return err
	}
	if c.CloudFront.Invalidate {
		if c.CloudFront.BatchSize <= 0 {
			return ErrInvalidBatchSize
		}
		if c.CloudFront.MaxRetries < 0 {
			return ErrInvalidMaxRetries
		}
	}
	return nil
}

// KeyPrefix returns the remote key prefix with a trailing slash, or "".
func (c *Config) KeyPrefix() string {
	p := c.Prefix
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	if p == "" {
		return ""
	}
	return p + "/"
}

// ACLEnabled reports whether uploads carry an ACL.
func (c *Config) ACLEnabled() bool {
	return c.ACL != ""
}

// IgnorePatterns compiles IgnorePaths.
func (c *Config) IgnorePatterns() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(c.IgnorePaths))
	for _, p := range c.IgnorePaths {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore path %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// InvalidationBatchSize clamps the configured batch size to CloudFront's limit.
func (c *Config) InvalidationBatchSize() int {
	return min(c.CloudFront.BatchSize, MaxInvalidationBatch)
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
