// Package fingerprint computes the MD5 digests used to decide whether a local
// file differs from its remote copy.
//
// Two digests matter during a sync. The object digest covers exactly the bytes
// that get uploaded, which is what S3 reports as the ETag of a single part
// upload. The content digest covers the uncompressed bytes and is stored as
// object metadata, so it survives re-compression of unchanged content.
package fingerprint

import (
	"crypto/md5" // #nosec G501 - S3 ETags are MD5, this is not a security use
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Hasher computes digests, optionally backed by a persistent Cache.
type Hasher struct {
	cache *Cache
}

// NewHasher returns a Hasher. A nil cache disables caching.
func NewHasher(cache *Cache) *Hasher {
	return &Hasher{cache: cache}
}

// Sum returns the hex MD5 of the file at path.
func (h *Hasher) Sum(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if sum, ok := h.cache.lookup(path, info); ok {
		return sum, nil
	}

	f, err := os.Open(path) // #nosec G304 - paths come from the build directory
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	h.cache.store(path, info, sum)
	return sum, nil
}

// ContentSum returns the digest of the uncompressed content behind a gzip
// file. When plainPath exists it is hashed directly; otherwise gzPath is
// decompressed on the fly.
func (h *Hasher) ContentSum(gzPath, plainPath string) (string, error) {
	if plainPath != "" {
		sum, err := h.Sum(plainPath)
		if err == nil {
			return sum, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}

	f, err := os.Open(gzPath) // #nosec G304 - paths come from the build directory
	if err != nil {
		return "", err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("reading gzip header of %s: %w", gzPath, err)
	}
	defer zr.Close()

	sum, err := Reader(zr)
	if err != nil {
		return "", fmt.Errorf("decompressing %s: %w", gzPath, err)
	}
	return sum, nil
}

// Reader drains r and returns the hex MD5 of everything read.
func Reader(r io.Reader) (string, error) {
	h := md5.New() // #nosec G401
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes returns the hex MD5 of b.
func Bytes(b []byte) string {
	sum := md5.Sum(b) // #nosec G401
	return hex.EncodeToString(sum[:])
}
