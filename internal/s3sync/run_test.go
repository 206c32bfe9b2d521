package s3sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/go-s3-sync/internal/config"
	"github.com/petems/go-s3-sync/internal/fingerprint"
	"github.com/petems/go-s3-sync/internal/logging"
	"github.com/petems/go-s3-sync/internal/store"
)

var testModTime = time.Unix(1000, 0)

// fixture is a build directory, a config pointing at it and a mock bucket.
type fixture struct {
	t     *testing.T
	dir   string
	cfg   *config.Config
	store *store.Mock
	out   *bytes.Buffer
	cdn   *recordingInvalidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Bucket = "site"
	cfg.BuildDir = dir

	return &fixture{
		t:     t,
		dir:   dir,
		cfg:   cfg,
		store: store.NewMock("site"),
		out:   &bytes.Buffer{},
		cdn:   &recordingInvalidator{},
	}
}

func (f *fixture) write(rel string, content []byte) {
	f.t.Helper()
	p := filepath.Join(f.dir, filepath.FromSlash(rel))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(f.t, os.WriteFile(p, content, 0o600))
}

func (f *fixture) newRun() *Run {
	f.t.Helper()
	run, err := NewRun(f.cfg, f.store, nil, logging.NewStatus(f.out, true), logging.Discard())
	require.NoError(f.t, err)
	return run
}

func (f *fixture) sync() (*Report, error) {
	f.t.Helper()
	return NewEngine(f.newRun(), DirSource{Root: f.dir}, f.cdn).Sync(context.Background())
}

// classify returns the state of every path the engine would consider.
func (f *fixture) classify() map[string]State {
	f.t.Helper()

	e := NewEngine(f.newRun(), DirSource{Root: f.dir}, nil)
	resources, err := e.resources(context.Background())
	require.NoError(f.t, err)

	out := make(map[string]State, len(resources))
	for _, res := range resources {
		s, err := res.Classify(context.Background())
		require.NoError(f.t, err)
		out[res.Path()] = s
	}
	return out
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, paths []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, paths)
	return []string{fmt.Sprintf("I%d", len(r.calls))}, nil
}

func gzipped(t *testing.T, content []byte, modTime time.Time) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.ModTime = modTime
	_, err := zw.Write(content)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNewRunRejectsInvalidConfig(t *testing.T) {
	f := newFixture(t)
	f.cfg.Bucket = ""
	_, err := NewRun(f.cfg, f.store, nil, nil, nil)
	assert.ErrorIs(t, err, config.ErrMissingBucket)

	f = newFixture(t)
	f.cfg.Website.ErrorDocument = "404.html"
	_, err = NewRun(f.cfg, f.store, nil, nil, nil)
	assert.ErrorIs(t, err, store.ErrIndexDocumentRequired)
	assert.Zero(t, f.store.HeadBucketCount, "configuration errors abort before any call")
}

func TestRunChecksBucketOnce(t *testing.T) {
	f := newFixture(t)
	run := f.newRun()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, run.CheckBucket(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.store.HeadBucketCount)
}

func TestRunMissingBucket(t *testing.T) {
	f := newFixture(t)
	f.store.MissingBucket = true

	err := f.newRun().CheckBucket(context.Background())
	require.ErrorIs(t, err, store.ErrBucketNotFound)
	assert.Contains(t, err.Error(), "bucket site doesn't exist")
}

func TestRunACLDisableIsOneShot(t *testing.T) {
	f := newFixture(t)
	run := f.newRun()

	require.NotNil(t, run.acl())
	assert.Equal(t, config.DefaultACL, *run.acl())
	assert.True(t, run.disableACL())
	assert.False(t, run.disableACL())
	assert.Nil(t, run.acl())

	f.cfg.ACL = ""
	assert.Nil(t, f.newRun().acl())
}

func TestRunRemoteKey(t *testing.T) {
	f := newFixture(t)
	f.cfg.Prefix = "/blog/"
	run := f.newRun()
	assert.Equal(t, "blog/a/index.html", run.RemoteKey("a/index.html"))

	run.recordChange(run.RemoteKey("x.html"))
	assert.Equal(t, []string{"/blog/x.html"}, run.Touched().List())
}

func TestPathSetConcurrentAdds(t *testing.T) {
	var set PathSet

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				set.Add(fmt.Sprintf("/p%03d", (i+w)%100))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, set.Len())
	list := set.List()
	assert.Len(t, list, 100)
	assert.Equal(t, "/p000", list[0])
	assert.False(t, set.Add("/p000"))
}

func TestRemoteIndexListsOnce(t *testing.T) {
	st := store.NewMock("site")
	st.Seed(store.ObjectInfo{Key: "blog/a.html"}, []byte("a"))
	st.Seed(store.ObjectInfo{Key: "blog/"}, nil)
	st.Seed(store.ObjectInfo{Key: "other/b.html"}, []byte("b"))

	ix := NewRemoteIndex(st, "blog/")

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ix.Load(context.Background()))
		}()
	}
	wg.Wait()

	paths, err := ix.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.html"}, paths)
	assert.Equal(t, 1, st.ListCount)
}

func TestRemoteIndexLookupMemoizesHead(t *testing.T) {
	st := store.NewMock("site")
	st.Seed(store.ObjectInfo{
		Key:              "a.html",
		ETag:             `"abc"`,
		ContentHash:      "def",
		CacheControl:     "max-age=60",
		ContentEncoding:  "gzip",
		RedirectLocation: "/b.html",
	}, []byte("a"))

	ix := NewRemoteIndex(st, "")
	obj, err := ix.Lookup(context.Background(), "a.html")
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, "abc", obj.ETag)
	assert.Equal(t, "def", obj.ContentHash)
	assert.Equal(t, "max-age=60", obj.CacheControl)
	assert.Equal(t, "gzip", obj.ContentEncoding)
	assert.True(t, obj.IsRedirect())

	_, err = ix.Lookup(context.Background(), "a.html")
	require.NoError(t, err)
	assert.Equal(t, 1, st.HeadCount)

	missing, err := ix.Lookup(context.Background(), "nope.html")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Equal(t, 1, st.HeadCount, "unlisted keys are not fetched")
}

type failingListStore struct {
	*store.Mock
}

func (failingListStore) List(context.Context, string) ([]store.ObjectSummary, error) {
	return nil, errors.New("listing denied")
}

func TestRemoteIndexListError(t *testing.T) {
	ix := NewRemoteIndex(failingListStore{store.NewMock("site")}, "")
	_, err := ix.Paths(context.Background())
	assert.ErrorContains(t, err, "listing denied")

	_, err = ix.Lookup(context.Background(), "a.html")
	assert.ErrorContains(t, err, "listing denied")
}

func TestRunUsesProvidedHasherCache(t *testing.T) {
	f := newFixture(t)
	f.write("a.html", []byte("hello"))

	cache, err := fingerprint.OpenCache(filepath.Join(t.TempDir(), "digests.db"))
	require.NoError(t, err)
	defer cache.Close()

	run, err := NewRun(f.cfg, f.store, fingerprint.NewHasher(cache), nil, nil)
	require.NoError(t, err)

	_, err = NewEngine(run, DirSource{Root: f.dir}, nil).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}
