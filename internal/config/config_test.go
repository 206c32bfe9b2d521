package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/go-s3-sync/internal/store"
)

const sampleYAML = `
bucket: example-bucket
region: eu-west-1
prefix: /blog/
build_dir: public
delete: false
prefer_gzip: false
acl: ""
index_document: index.html
error_document: 404.html
routing_rules:
  - condition:
      key_prefix_equals: docs/
    redirect:
      replace_key_prefix_with: documents/
ignore_paths:
  - '^drafts/'
  - '\.map$'
content_types:
  feed: application/rss+xml
caching_policies:
  text/html:
    max_age: 300
    must_revalidate: true
  default:
    max_age: 86400
    public: true
cloudfront:
  distribution_id: E123
  invalidate: true
  invalidation_batch_size: 5000
  invalidation_batch_delay: 500ms
  wait: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".s3_sync")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.PathStyle)
	assert.True(t, cfg.Delete)
	assert.True(t, cfg.PreferGzip)
	assert.Equal(t, DefaultACL, cfg.ACL)
	assert.True(t, cfg.ACLEnabled())
	assert.Equal(t, "build", cfg.BuildDir)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, 1000, cfg.CloudFront.BatchSize)
	assert.Equal(t, 5, cfg.CloudFront.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.CloudFront.BatchDelay)
	assert.Equal(t, 30, cfg.CloudFront.MaxPollAttempts)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "example-bucket", cfg.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "blog/", cfg.KeyPrefix())
	assert.Equal(t, "public", cfg.BuildDir)
	assert.False(t, cfg.Delete)
	assert.False(t, cfg.PreferGzip)
	assert.False(t, cfg.ACLEnabled())
	assert.True(t, cfg.PathStyle, "keys missing from the file keep defaults")

	assert.Equal(t, "index.html", cfg.Website.IndexDocument)
	assert.Equal(t, "404.html", cfg.Website.ErrorDocument)
	require.Len(t, cfg.Website.RoutingRules, 1)
	assert.Equal(t, "docs/", cfg.Website.RoutingRules[0].Condition.KeyPrefixEquals)

	patterns, err := cfg.IgnorePatterns()
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.True(t, patterns[1].MatchString("js/app.js.map"))

	assert.Equal(t, "application/rss+xml", cfg.ContentTypes["feed"])
	assert.Equal(t, 300, *cfg.CachingPolicies["text/html"].MaxAge)
	assert.True(t, cfg.CachingPolicies["default"].Public)

	assert.Equal(t, "E123", cfg.CloudFront.DistributionID)
	assert.Equal(t, 500*time.Millisecond, cfg.CloudFront.BatchDelay)
	assert.Equal(t, MaxInvalidationBatch, cfg.InvalidationBatchSize())
	assert.Equal(t, 5, cfg.CloudFront.MaxRetries)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, "build", cfg.BuildDir)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "bucket: [unterminated"))
	assert.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("S3_SYNC_BUCKET", "from-env")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_SESSION_TOKEN", "token")
	t.Setenv("S3_SYNC_IGNORE_PATHS", "a,b")
	t.Setenv("CLOUDFRONT_INVALIDATION_MAX_RETRIES", "2")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Bucket)
	assert.Equal(t, "AKIA", cfg.AccessKeyID)
	assert.Equal(t, "secret", cfg.SecretAccessKey)
	assert.Equal(t, "token", cfg.SessionToken)
	assert.Equal(t, []string{"a", "b"}, cfg.IgnorePaths)
	assert.Equal(t, 2, cfg.CloudFront.MaxRetries)
	assert.Equal(t, "eu-west-1", cfg.Region)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Bucket = "saved"
	cfg.CloudFront.DistributionID = "EDIST"
	cfg.ACL = ""

	path := filepath.Join(t.TempDir(), "saved.yml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Bucket)
	assert.Equal(t, "EDIST", loaded.CloudFront.DistributionID)
	assert.False(t, loaded.ACLEnabled())
}

func TestSaveOmitsCredentials(t *testing.T) {
	cfg := Default()
	cfg.Bucket = "saved"
	cfg.AccessKeyID = "AKIAEXAMPLE"
	cfg.SecretAccessKey = "very-secret"
	cfg.SessionToken = "short-lived-token"

	path := filepath.Join(t.TempDir(), "saved.yml")
	require.NoError(t, cfg.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "bucket: saved")
	assert.NotContains(t, string(raw), "AKIAEXAMPLE")
	assert.NotContains(t, string(raw), "very-secret")
	assert.NotContains(t, string(raw), "short-lived-token")

	assert.Equal(t, "AKIAEXAMPLE", cfg.AccessKeyID, "the saved config keeps its credentials")
	assert.Equal(t, "short-lived-token", cfg.SessionToken)
}

func TestIsProduction(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.IsProduction())

	cfg.Environment = "production"
	assert.True(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing bucket", func(c *Config) { c.Bucket = "" }, ErrMissingBucket},
		{"no workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"error document without index", func(c *Config) { c.Website.ErrorDocument = "404.html" }, store.ErrIndexDocumentRequired},
		{"bad batch size", func(c *Config) { c.CloudFront.Invalidate = true; c.CloudFront.BatchSize = 0 }, ErrInvalidBatchSize},
		{"bad retries", func(c *Config) { c.CloudFront.Invalidate = true; c.CloudFront.MaxRetries = -1 }, ErrInvalidMaxRetries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Bucket = "b"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	cfg := Default()
	cfg.Bucket = "b"
	cfg.IgnorePaths = []string{"("}
	assert.ErrorContains(t, cfg.Validate(), "invalid ignore path")
}

func TestKeyPrefix(t *testing.T) {
	for in, want := range map[string]string{
		"":        "",
		"/":       "",
		"bob":     "bob/",
		"bob/":    "bob/",
		"/a/b//":  "a/b/",
		"site/v2": "site/v2/",
	} {
		cfg := &Config{Prefix: in}
		assert.Equal(t, want, cfg.KeyPrefix(), "prefix %q", in)
	}
}
