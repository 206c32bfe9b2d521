package s3sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/petems/go-s3-sync/internal/store"
)

// RemoteObject is the last-known state of an object in the bucket.
type RemoteObject struct {
	Key              string
	ETag             string
	Size             int64
	ContentHash      string
	CacheControl     string
	ContentEncoding  string
	RedirectLocation string
}

// IsRedirect reports whether the object is a website redirect.
func (o *RemoteObject) IsRedirect() bool {
	return o != nil && o.RedirectLocation != ""
}

// RemoteIndex maps keys under a prefix to remote metadata. The listing is
// fetched once; full metadata is fetched per key on first use and kept for
// the run.
type RemoteIndex struct {
	store  store.Store
	prefix string

	listOnce sync.Once
	listed   map[string]store.ObjectSummary
	listErr  error

	mu    sync.Mutex
	heads map[string]*headResult
}

type headResult struct {
	once sync.Once
	obj  *RemoteObject
	err  error
}

// NewRemoteIndex returns an index over keys starting with prefix.
func NewRemoteIndex(st store.Store, prefix string) *RemoteIndex {
	return &RemoteIndex{store: st, prefix: prefix, heads: make(map[string]*headResult)}
}

// Load lists the bucket. Only the first call talks to the store; concurrent
// callers wait for it and share its result.
func (ix *RemoteIndex) Load(ctx context.Context) error {
	ix.listOnce.Do(func() {
		objects, err := ix.store.List(ctx, ix.prefix)
		if err != nil {
			ix.listErr = fmt.Errorf("listing %s/%s: %w", ix.store.Bucket(), ix.prefix, err)
			return
		}
		ix.listed = make(map[string]store.ObjectSummary, len(objects))
		for _, o := range objects {
			ix.listed[o.Key] = o
		}
	})
	return ix.listErr
}

// Paths returns the logical paths of every listed object, that is each key
// with the prefix removed. The prefix placeholder itself is skipped.
func (ix *RemoteIndex) Paths(ctx context.Context) ([]string, error) {
	if err := ix.Load(ctx); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(ix.listed))
	for key := range ix.listed {
		p := strings.TrimPrefix(key, ix.prefix)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Has reports whether key appeared in the listing.
func (ix *RemoteIndex) Has(ctx context.Context, key string) (bool, error) {
	if err := ix.Load(ctx); err != nil {
		return false, err
	}
	_, ok := ix.listed[key]
	return ok, nil
}

// Lookup returns full metadata for key, or nil when the object does not
// exist. Keys missing from the listing are not fetched.
func (ix *RemoteIndex) Lookup(ctx context.Context, key string) (*RemoteObject, error) {
	ok, err := ix.Has(ctx, key)
	if err != nil || !ok {
		return nil, err
	}

	ix.mu.Lock()
	h, found := ix.heads[key]
	if !found {
		h = &headResult{}
		ix.heads[key] = h
	}
	ix.mu.Unlock()

	h.once.Do(func() {
		h.obj, h.err = ix.head(ctx, key)
	})
	return h.obj, h.err
}

func (ix *RemoteIndex) head(ctx context.Context, key string) (*RemoteObject, error) {
	info, err := ix.store.Head(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", key, err)
	}

	return &RemoteObject{
		Key:              key,
		ETag:             store.TrimETag(info.ETag),
		Size:             info.Size,
		ContentHash:      info.ContentHash,
		CacheControl:     info.CacheControl,
		ContentEncoding:  info.ContentEncoding,
		RedirectLocation: info.RedirectLocation,
	}, nil
}
