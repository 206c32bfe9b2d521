// Package store abstracts the object store operations a sync needs. The
// production implementation wraps the AWS SDK v2; Mock is an in-memory
// stand-in for tests.
package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ContentHashKey is the user metadata key carrying the MD5 of the
// uncompressed content. S3 stores it as x-amz-meta-content-md5.
const ContentHashKey = "content-md5"

// MaxDeleteBatch is the most keys a single bulk delete request may carry.
const MaxDeleteBatch = 1000

var (
	// ErrNotFound is returned by Head when the object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned by HeadBucket when the bucket is missing.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrACLUnsupported is returned by Put when the bucket rejects object
	// ACLs (object ownership set to "bucket owner enforced").
	ErrACLUnsupported = errors.New("bucket does not allow ACLs")

	// ErrIndexDocumentRequired is returned when a website configuration sets an
	// error document or routing rules without an index document.
	ErrIndexDocumentRequired = errors.New("S3 requires an index document when an error document or routing rules are specified")
)

// Store is the set of bucket operations used by a sync. Every method is
// bound to a single bucket chosen at construction.
type Store interface {
	// Bucket returns the bucket name.
	Bucket() string
	// HeadBucket checks that the bucket exists and is reachable.
	HeadBucket(ctx context.Context) error
	// List enumerates every object under prefix, following pagination.
	List(ctx context.Context, prefix string) ([]ObjectSummary, error)
	// Head fetches full metadata for key, or ErrNotFound.
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// Put uploads one object.
	Put(ctx context.Context, input *PutInput) error
	// DeleteObjects removes up to MaxDeleteBatch keys in one request.
	DeleteObjects(ctx context.Context, keys []string) error
	// EnableVersioning turns on bucket versioning.
	EnableVersioning(ctx context.Context) error
	// PutWebsite replaces the bucket website configuration.
	PutWebsite(ctx context.Context, cfg WebsiteConfig) error
}

// ObjectSummary is what a listing returns per object.
type ObjectSummary struct {
	Key  string
	ETag string
	Size int64
}

// ObjectInfo is the full metadata returned by a HEAD request.
type ObjectInfo struct {
	Key              string
	ETag             string
	Size             int64
	ContentType      string
	ContentHash      string
	CacheControl     string
	ContentEncoding  string
	RedirectLocation string
	Metadata         map[string]string
}

// PutInput contains the parameters for an upload. Optional attributes are
// pointers and left unset when nil.
type PutInput struct {
	Key                     string
	Body                    io.Reader
	ContentType             *string
	ContentEncoding         *string
	CacheControl            *string
	Expires                 *time.Time
	ACL                     *string
	StorageClass            *string
	ServerSideEncryption    *string
	WebsiteRedirectLocation *string
	Metadata                map[string]string
}

// WebsiteConfig is the static website configuration of a bucket.
type WebsiteConfig struct {
	IndexDocument string        `yaml:"index_document,omitempty"`
	ErrorDocument string        `yaml:"error_document,omitempty"`
	RoutingRules  []RoutingRule `yaml:"routing_rules,omitempty"`
}

// RoutingRule redirects requests matching Condition.
type RoutingRule struct {
	Condition RoutingCondition `yaml:"condition"`
	Redirect  RoutingRedirect  `yaml:"redirect"`
}

// RoutingCondition selects the requests a RoutingRule applies to.
type RoutingCondition struct {
	KeyPrefixEquals             string `yaml:"key_prefix_equals,omitempty"`
	HTTPErrorCodeReturnedEquals string `yaml:"http_error_code_returned_equals,omitempty"`
}

// RoutingRedirect describes where a matched request is sent.
type RoutingRedirect struct {
	HostName             string `yaml:"host_name,omitempty"`
	HTTPRedirectCode     string `yaml:"http_redirect_code,omitempty"`
	Protocol             string `yaml:"protocol,omitempty"`
	ReplaceKeyPrefixWith string `yaml:"replace_key_prefix_with,omitempty"`
	ReplaceKeyWith       string `yaml:"replace_key_with,omitempty"`
}

// Empty reports whether there is nothing to configure.
func (w WebsiteConfig) Empty() bool {
	return w.IndexDocument == "" && w.ErrorDocument == "" && len(w.RoutingRules) == 0
}

// Validate enforces S3's requirement that an index document accompanies an
// error document or routing rules.
func (w WebsiteConfig) Validate() error {
	if w.IndexDocument == "" && (w.ErrorDocument != "" || len(w.RoutingRules) > 0) {
		return ErrIndexDocumentRequired
	}
	return nil
}

// TrimETag strips the surrounding quotes S3 puts around ETags.
func TrimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// IsMultipartETag reports whether etag came from a multipart upload, in
// which case it is not an MD5 of the object body.
func IsMultipartETag(etag string) bool {
	return strings.Contains(TrimETag(etag), "-")
}

// Chunk splits keys into consecutive groups of at most size entries.
func Chunk(keys []string, size int) [][]string {
	if size <= 0 {
		size = MaxDeleteBatch
	}

	var out [][]string
	for len(keys) > 0 {
		n := min(size, len(keys))
		out = append(out, keys[:n:n])
		keys = keys[n:]
	}
	return out
}
