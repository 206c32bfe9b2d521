package s3sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"sync"

	"github.com/petems/go-s3-sync/internal/fingerprint"
	"github.com/petems/go-s3-sync/internal/store"
)

const (
	defaultContentType = "application/octet-stream"
	gzipEncoding       = "gzip"
)

// State is the outcome of classifying a Resource.
type State int

const (
	StateIgnored State = iota
	StateNew
	StateUpdated
	StateIdentical
	StateDeleted
	StateAlternateEncoding
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateUpdated:
		return "updated"
	case StateIdentical:
		return "identical"
	case StateDeleted:
		return "deleted"
	case StateAlternateEncoding:
		return "alternate-encoding"
	default:
		return "ignored"
	}
}

type ignoreReason int

const (
	reasonNone ignoreReason = iota
	reasonIgnored
	reasonDirectory
	reasonRedirect
	reasonMissing
)

func (r ignoreReason) String() string {
	switch r {
	case reasonIgnored:
		return "ignored"
	case reasonDirectory:
		return "directory"
	case reasonRedirect:
		return "redirect"
	case reasonMissing:
		return "missing"
	default:
		return ""
	}
}

// Resource pairs the local and remote sides of one logical path.
type Resource struct {
	run    *Run
	path   string
	key    string
	local  *LocalArtifact
	listed bool

	classifyOnce sync.Once
	state        State
	reason       ignoreReason
	remote       *RemoteObject
	classifyErr  error

	hashOnce    sync.Once
	objectHash  string
	contentHash string
	hashErr     error
}

func newResource(run *Run, logicalPath string, local *LocalArtifact, listed bool) *Resource {
	return &Resource{
		run:    run,
		path:   logicalPath,
		key:    run.RemoteKey(logicalPath),
		local:  local,
		listed: listed,
	}
}

// Path returns the logical path.
func (r *Resource) Path() string { return r.path }

// Key returns the object key.
func (r *Resource) Key() string { return r.key }

// Classify decides what the sync must do with the resource. The result is
// computed once; later calls return it unchanged.
func (r *Resource) Classify(ctx context.Context) (State, error) {
	r.classifyOnce.Do(func() {
		r.state, r.reason, r.classifyErr = r.classify(ctx)
	})
	return r.state, r.classifyErr
}

func (r *Resource) classify(ctx context.Context) (State, ignoreReason, error) {
	if r.run.ignored(r.path) {
		return StateIgnored, reasonIgnored, nil
	}

	if r.local != nil && r.local.IsDir {
		if r.listed {
			return StateDeleted, reasonNone, nil
		}
		return StateIgnored, reasonDirectory, nil
	}

	if r.listed {
		remote, err := r.run.remote.Lookup(ctx, r.key)
		if err != nil {
			return StateIgnored, reasonNone, err
		}
		r.remote = remote
	}

	switch {
	case r.local == nil && r.remote == nil:
		return StateIgnored, reasonMissing, nil
	case r.local == nil:
		if r.remote.IsRedirect() {
			return StateIgnored, reasonRedirect, nil
		}
		return StateDeleted, reasonNone, nil
	case r.remote == nil:
		return StateNew, reasonNone, nil
	}

	if r.run.cfg.Force {
		return StateUpdated, reasonNone, nil
	}
	if r.local.Redirect != r.remote.RedirectLocation {
		return StateUpdated, reasonNone, nil
	}
	if r.cacheControl() != r.remote.CacheControl {
		return StateUpdated, reasonNone, nil
	}

	if err := r.computeHashes(); err != nil {
		return StateIgnored, reasonNone, err
	}

	if r.objectHash == r.remote.ETag {
		return StateIdentical, reasonNone, nil
	}
	if !r.local.Compressed {
		// Multipart ETags are not an MD5 of the body; the stored content
		// hash still is.
		if store.IsMultipartETag(r.remote.ETag) && r.objectHash == r.remote.ContentHash {
			return StateIdentical, reasonNone, nil
		}
		return StateUpdated, reasonNone, nil
	}
	if r.remote.ContentEncoding != gzipEncoding || r.contentHash != r.remote.ContentHash {
		return StateUpdated, reasonNone, nil
	}
	return StateAlternateEncoding, reasonNone, nil
}

// computeHashes fills the object and content digests. An uncompressed file
// is read once since both digests cover the same bytes.
func (r *Resource) computeHashes() error {
	r.hashOnce.Do(func() {
		if r.local.Missing() {
			r.objectHash = fingerprint.Bytes(nil)
			r.contentHash = r.objectHash
			return
		}

		r.objectHash, r.hashErr = r.run.hasher.Sum(r.local.DiskPath)
		if r.hashErr != nil {
			return
		}
		if !r.local.Compressed {
			r.contentHash = r.objectHash
			return
		}
		r.contentHash, r.hashErr = r.run.hasher.ContentSum(r.local.DiskPath, r.local.PlainPath)
	})
	return r.hashErr
}

// ContentType resolves the upload content type: a configured override for
// the path, then the type declared by the build, then the extension.
func (r *Resource) ContentType() string {
	if ct, ok := r.run.cfg.ContentTypes[r.path]; ok && ct != "" {
		return ct
	}
	if r.local != nil && r.local.ContentType != "" {
		return r.local.ContentType
	}
	if ct := mime.TypeByExtension(path.Ext(r.path)); ct != "" {
		return ct
	}
	return defaultContentType
}

func (r *Resource) cacheControl() string {
	return r.run.policies.For(r.ContentType()).CacheControl()
}

// Create uploads a resource classified as new.
func (r *Resource) Create(ctx context.Context) error {
	return r.upload(ctx, "Creating")
}

// Update re-uploads a resource classified as updated.
func (r *Resource) Update(ctx context.Context) error {
	return r.upload(ctx, "Updating")
}

func (r *Resource) upload(ctx context.Context, verb string) error {
	line := fmt.Sprintf("%s %s", verb, r.key)
	if r.local.Compressed {
		line += " (gzipped)"
	}

	if r.run.cfg.DryRun {
		r.run.status.DryRun("%s", line)
		r.run.recordChange(r.key)
		return nil
	}
	r.run.status.Say("%s", line)

	if err := r.computeHashes(); err != nil {
		return err
	}
	if err := r.put(ctx, r.run.acl()); err != nil {
		return fmt.Errorf("uploading %s: %w", r.key, err)
	}

	r.run.recordChange(r.key)
	r.run.logger.Debug("uploaded object",
		"key", r.key,
		"content_md5", r.contentHash,
		"gzip", r.local.Compressed)
	return nil
}

// put uploads once with acl. A bucket that rejects ACLs gets exactly one
// more attempt without it, and ACLs stay off for the rest of the run.
func (r *Resource) put(ctx context.Context, acl *string) error {
	body, closeBody, err := r.body()
	if err != nil {
		return err
	}
	defer closeBody()

	err = r.run.store.Put(ctx, r.putInput(body, acl))
	if acl == nil || !errors.Is(err, store.ErrACLUnsupported) {
		return err
	}

	if r.run.disableACL() {
		r.run.status.Warn("Warning:", "bucket %s does not allow ACLs, uploading without them", r.run.store.Bucket())
	}
	return r.put(ctx, nil)
}

func (r *Resource) body() (io.Reader, func(), error) {
	if r.local.Missing() {
		return bytes.NewReader(nil), func() {}, nil
	}
	f, err := os.Open(r.local.DiskPath) // #nosec G304 - paths come from the build directory
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// putInput builds the upload attributes.
func (r *Resource) putInput(body io.Reader, acl *string) *store.PutInput {
	contentType := r.ContentType()
	in := &store.PutInput{
		Key:         r.key,
		Body:        body,
		ContentType: &contentType,
		ACL:         acl,
		Metadata:    map[string]string{store.ContentHashKey: r.contentHash},
	}

	if p := r.run.policies.For(contentType); p != nil {
		if cc := p.CacheControl(); cc != "" {
			in.CacheControl = &cc
		}
		in.Expires = p.Expires
	}
	if r.local.Compressed {
		enc := gzipEncoding
		in.ContentEncoding = &enc
	}
	if r.local.Redirect != "" {
		redirect := r.local.Redirect
		in.WebsiteRedirectLocation = &redirect
	}
	if r.run.cfg.ReducedRedundancyStorage {
		sc := storageClassReducedRedundancy
		in.StorageClass = &sc
	}
	if r.run.cfg.Encryption {
		sse := serverSideEncryption
		in.ServerSideEncryption = &sse
	}
	return in
}

// Ignore reports why the resource is left alone. Nothing is printed unless
// verbose output is on.
func (r *Resource) Ignore() {
	if r.reason == reasonNone {
		r.run.status.Debug("Ignoring %s", r.key)
		return
	}
	r.run.status.Debug("Ignoring %s (%s)", r.key, r.reason)
}
