// Package s3sync reconciles a local build directory with an S3 bucket. It
// classifies every path found locally or remotely, then creates, updates and
// deletes objects so the bucket mirrors the build, collecting the touched
// paths for CDN invalidation.
package s3sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/petems/go-s3-sync/internal/cachepolicy"
	"github.com/petems/go-s3-sync/internal/config"
	"github.com/petems/go-s3-sync/internal/fingerprint"
	"github.com/petems/go-s3-sync/internal/logging"
	"github.com/petems/go-s3-sync/internal/store"
)

const (
	storageClassReducedRedundancy = "REDUCED_REDUNDANCY"
	serverSideEncryption          = "AES256"
)

// Run is the state shared by every component of a single sync invocation.
// Build one with NewRun; it must not be reused across invocations.
type Run struct {
	cfg      *config.Config
	store    store.Store
	hasher   *fingerprint.Hasher
	policies *cachepolicy.Resolver
	status   *logging.Status
	logger   *slog.Logger

	prefix  string
	ignore  []*regexp.Regexp
	remote  *RemoteIndex
	touched *PathSet

	aclEnabled atomic.Bool

	bucketOnce sync.Once
	bucketErr  error
}

// NewRun validates cfg and prepares a Run against st. A nil hasher computes
// digests without a persistent cache.
func NewRun(cfg *config.Config, st store.Store, hasher *fingerprint.Hasher, status *logging.Status, logger *slog.Logger) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	patterns, err := cfg.IgnorePatterns()
	if err != nil {
		return nil, err
	}

	if hasher == nil {
		hasher = fingerprint.NewHasher(nil)
	}
	if status == nil {
		status = logging.NewStatus(io.Discard, cfg.Verbose)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	prefix := cfg.KeyPrefix()
	r := &Run{
		cfg:      cfg,
		store:    st,
		hasher:   hasher,
		policies: cachepolicy.NewResolver(cfg.CachingPolicies),
		status:   status,
		logger:   logger,
		prefix:   prefix,
		ignore:   patterns,
		remote:   NewRemoteIndex(st, prefix),
		touched:  &PathSet{},
	}
	r.aclEnabled.Store(cfg.ACLEnabled())
	return r, nil
}

// CheckBucket verifies once per run that the bucket exists. Later calls
// return the first result.
func (r *Run) CheckBucket(ctx context.Context) error {
	r.bucketOnce.Do(func() {
		if err := r.store.HeadBucket(ctx); err != nil {
			r.bucketErr = fmt.Errorf("bucket %s doesn't exist: %w", r.store.Bucket(), err)
		}
	})
	return r.bucketErr
}

// RemoteKey maps a logical path to its object key.
func (r *Run) RemoteKey(logicalPath string) string {
	return r.prefix + logicalPath
}

// Touched returns the paths changed so far, as CDN paths.
func (r *Run) Touched() *PathSet {
	return r.touched
}

// acl returns the canned ACL for uploads, or nil once ACLs are disabled.
func (r *Run) acl() *string {
	if !r.aclEnabled.Load() {
		return nil
	}
	acl := r.cfg.ACL
	return &acl
}

// disableACL turns ACLs off for the rest of the run. It reports whether this
// call was the one that changed the setting.
func (r *Run) disableACL() bool {
	return r.aclEnabled.CompareAndSwap(true, false)
}

func (r *Run) ignored(logicalPath string) bool {
	for _, re := range r.ignore {
		if re.MatchString(logicalPath) {
			return true
		}
	}
	return false
}

func (r *Run) recordChange(key string) {
	r.touched.Add("/" + key)
}
