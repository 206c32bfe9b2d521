package fingerprint

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// cacheFilePerm is the permission mode for the digest database.
	cacheFilePerm = fs.FileMode(0o600)

	// cacheOpenTimeout is the maximum time to wait for the bolt file lock.
	cacheOpenTimeout = 5 * time.Second
)

var digestsBucket = []byte("md5")

// entry is the value stored per disk path. A digest is reused only while the
// file's size and modification time are unchanged.
type entry struct {
	Size    int64  `json:"size"`
	ModTime int64  `json:"mtime_ns"`
	Sum     string `json:"md5"`
}

// Cache persists digests between runs in a bbolt database.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (creating if needed) the digest database at path.
func OpenCache(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := bolt.Open(path, cacheFilePerm, &bolt.Options{Timeout: cacheOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening digest cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(digestsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing digest cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// Len reports the number of cached digests.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(digestsBucket).Stats().KeyN
		return nil
	})
	return n
}

func (c *Cache) lookup(path string, info os.FileInfo) (string, bool) {
	if c == nil {
		return "", false
	}

	var e entry
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(digestsBucket).Get([]byte(path))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil
		}
		found = true
		return nil
	})

	if !found || e.Size != info.Size() || e.ModTime != info.ModTime().UnixNano() {
		return "", false
	}
	return e.Sum, true
}

// store records a digest. Failures only cost a rehash on the next run, so
// they are dropped.
func (c *Cache) store(path string, info os.FileInfo, sum string) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(entry{Size: info.Size(), ModTime: info.ModTime().UnixNano(), Sum: sum})
	if err != nil {
		return
	}

	// Batch coalesces writes from concurrent workers into shared transactions.
	_ = c.db.Batch(func(tx *bolt.Tx) error {
		return tx.Bucket(digestsBucket).Put([]byte(path), raw)
	})
}
