package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/petems/go-s3-sync/internal/fingerprint"
)

// Mock is an in-memory Store that records every call. It behaves like a
// bucket: uploads become objects whose ETag is the MD5 of the body, so a
// second sync against the same Mock sees the first sync's results.
type Mock struct {
	mu sync.Mutex

	name    string
	objects map[string]*mockObject

	// Puts records all upload attempts in order, including failed ones.
	Puts []*RecordedPut

	// DeleteCalls records the keys of every bulk delete request.
	DeleteCalls [][]string

	// ErrorFunc allows error injection per upload. Return nil to let the
	// upload succeed.
	ErrorFunc func(input *PutInput) error

	// DeleteErrorFunc allows error injection per bulk delete.
	DeleteErrorFunc func(keys []string) error

	// MissingBucket makes HeadBucket fail with ErrBucketNotFound.
	MissingBucket bool

	HeadCount       int
	ListCount       int
	HeadBucketCount int

	Versioning bool
	Website    *WebsiteConfig
}

type mockObject struct {
	info ObjectInfo
	body []byte
}

// RecordedPut stores one upload attempt for verification.
type RecordedPut struct {
	Input   *PutInput
	Content []byte // Body content is read and stored for verification
	Error   error
}

// NewMock creates an empty mock bucket.
func NewMock(bucket string) *Mock {
	return &Mock{name: bucket, objects: make(map[string]*mockObject)}
}

// Seed places an object in the bucket without recording an upload. A blank
// ETag is computed from body.
func (m *Mock) Seed(info ObjectInfo, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info.ETag == "" {
		info.ETag = fingerprint.Bytes(body)
	}
	if info.Size == 0 {
		info.Size = int64(len(body))
	}
	m.objects[info.Key] = &mockObject{info: info, body: body}
}

// Object returns a copy of the stored object metadata and body.
func (m *Mock) Object(key string) (ObjectInfo, []byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, nil, false
	}
	return obj.info, obj.body, true
}

// Keys returns the sorted keys currently stored.
func (m *Mock) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PutByKey returns the first recorded upload matching key, or nil.
func (m *Mock) PutByKey(key string) *RecordedPut {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Puts {
		if p.Input.Key == key {
			return p
		}
	}
	return nil
}

// PutCount returns the number of upload attempts.
func (m *Mock) PutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Puts)
}

// Reset clears recorded calls but keeps stored objects.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts = nil
	m.DeleteCalls = nil
	m.HeadCount = 0
	m.ListCount = 0
	m.HeadBucketCount = 0
}

// Bucket implements Store.Bucket.
func (m *Mock) Bucket() string { return m.name }

// HeadBucket implements Store.HeadBucket.
func (m *Mock) HeadBucket(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeadBucketCount++
	if m.MissingBucket {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, m.name)
	}
	return nil
}

// List implements Store.List.
func (m *Mock) List(_ context.Context, prefix string) ([]ObjectSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCount++

	var out []ObjectSummary
	for k, obj := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectSummary{Key: k, ETag: obj.info.ETag, Size: obj.info.Size})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Head implements Store.Head.
func (m *Mock) Head(_ context.Context, key string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeadCount++

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	info := obj.info
	return &info, nil
}

// Put implements Store.Put.
func (m *Mock) Put(_ context.Context, input *PutInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var content []byte
	if input.Body != nil {
		var err error
		content, err = io.ReadAll(input.Body)
		if err != nil {
			return fmt.Errorf("mock: failed to read body: %w", err)
		}
	}

	recorded := &RecordedPut{Input: input, Content: content}
	m.Puts = append(m.Puts, recorded)

	if m.ErrorFunc != nil {
		if err := m.ErrorFunc(input); err != nil {
			recorded.Error = err
			return err
		}
	}

	info := ObjectInfo{
		Key:         input.Key,
		ETag:        fingerprint.Bytes(content),
		Size:        int64(len(content)),
		ContentHash: input.Metadata[ContentHashKey],
		Metadata:    input.Metadata,
	}
	if input.ContentType != nil {
		info.ContentType = *input.ContentType
	}
	if input.CacheControl != nil {
		info.CacheControl = *input.CacheControl
	}
	if input.ContentEncoding != nil {
		info.ContentEncoding = *input.ContentEncoding
	}
	if input.WebsiteRedirectLocation != nil {
		info.RedirectLocation = *input.WebsiteRedirectLocation
	}
	m.objects[input.Key] = &mockObject{info: info, body: content}
	return nil
}

// DeleteObjects implements Store.DeleteObjects.
func (m *Mock) DeleteObjects(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(keys) > MaxDeleteBatch {
		return fmt.Errorf("delete batch of %d keys exceeds limit of %d", len(keys), MaxDeleteBatch)
	}
	m.DeleteCalls = append(m.DeleteCalls, append([]string(nil), keys...))

	if m.DeleteErrorFunc != nil {
		if err := m.DeleteErrorFunc(keys); err != nil {
			return err
		}
	}
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

// EnableVersioning implements Store.EnableVersioning.
func (m *Mock) EnableVersioning(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Versioning = true
	return nil
}

// PutWebsite implements Store.PutWebsite.
func (m *Mock) PutWebsite(_ context.Context, cfg WebsiteConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Website = &cfg
	return nil
}

// --- Error injection helpers ---

// ErrorOnKey returns an ErrorFunc that fails uploads matching the given key.
func ErrorOnKey(key string, err error) func(*PutInput) error {
	return func(input *PutInput) error {
		if input.Key == key {
			return err
		}
		return nil
	}
}

// ErrorAlways returns an ErrorFunc that fails all uploads.
func ErrorAlways(err error) func(*PutInput) error {
	return func(*PutInput) error {
		return err
	}
}

// ErrorNTimes returns an ErrorFunc that fails the first n uploads, then succeeds.
func ErrorNTimes(n int, err error) func(*PutInput) error {
	count := 0
	var mu sync.Mutex
	return func(*PutInput) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		if count <= n {
			return err
		}
		return nil
	}
}

// ErrorWhenACL returns an ErrorFunc that rejects any upload carrying an ACL,
// like a bucket with object ownership set to "bucket owner enforced".
func ErrorWhenACL() func(*PutInput) error {
	return func(input *PutInput) error {
		if input.ACL != nil {
			return fmt.Errorf("%w: AccessControlListNotSupported: The bucket does not allow ACLs", ErrACLUnsupported)
		}
		return nil
	}
}

var _ Store = (*Mock)(nil)
var _ Store = (*S3)(nil)
