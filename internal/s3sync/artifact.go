package s3sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const gzipExt = ".gz"

// Artifact is one file a site build produced.
type Artifact struct {
	// Path is relative to the build root, "/"-separated, without a leading
	// slash. It is the object key once the prefix is applied.
	Path string
	// DiskPath is the file to upload. Empty means BuildDir/Path.
	DiskPath string
	// ContentType is the type declared by the build pipeline, if any.
	ContentType string
	// Redirect makes the object a website redirect to this location.
	Redirect string
}

// Source lists the artifacts of a build.
type Source interface {
	Artifacts(ctx context.Context) ([]Artifact, error)
}

// DirSource lists every regular file under Root. A ".gz" file whose
// uncompressed sibling exists is treated as an encoding of that sibling and
// not listed on its own.
type DirSource struct {
	Root string
}

// Artifacts implements Source.
func (d DirSource) Artifacts(ctx context.Context) ([]Artifact, error) {
	var out []Artifact

	err := filepath.WalkDir(d.Root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		if strings.HasSuffix(p, gzipExt) {
			if _, err := os.Stat(strings.TrimSuffix(p, gzipExt)); err == nil {
				return nil
			}
		}

		rel, err := filepath.Rel(d.Root, p)
		if err != nil {
			return err
		}
		out = append(out, Artifact{Path: filepath.ToSlash(rel), DiskPath: p})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", d.Root, err)
	}
	return out, nil
}

// Artifacts is a fixed list, for builds that report their own output.
type Artifacts []Artifact

// Artifacts implements Source.
func (a Artifacts) Artifacts(context.Context) ([]Artifact, error) {
	return a, nil
}

// LocalArtifact is an Artifact resolved against the file system.
type LocalArtifact struct {
	Path        string
	DiskPath    string
	PlainPath   string
	Compressed  bool
	ContentType string
	Redirect    string
	IsDir       bool
}

// Missing reports whether there is no file behind the artifact. Only
// redirects may lack one; they upload an empty body.
func (l *LocalArtifact) Missing() bool {
	return l.DiskPath == ""
}

// resolve locates the file to upload for a. With gzip preferred, an existing
// ".gz" sibling replaces the plain file.
func (r *Run) resolve(a Artifact) (*LocalArtifact, error) {
	disk := a.DiskPath
	if disk == "" {
		disk = filepath.Join(r.cfg.BuildDir, filepath.FromSlash(a.Path))
	}

	local := &LocalArtifact{
		Path:        a.Path,
		DiskPath:    disk,
		ContentType: a.ContentType,
		Redirect:    a.Redirect,
	}

	info, err := os.Stat(disk)
	switch {
	case err == nil && info.IsDir():
		local.IsDir = true
		return local, nil
	case errors.Is(err, fs.ErrNotExist):
		if gz, ok := r.compressedSibling(disk); ok {
			local.DiskPath, local.Compressed = gz, true
			return local, nil
		}
		if a.Redirect != "" {
			local.DiskPath = ""
			return local, nil
		}
		return nil, fmt.Errorf("artifact %s: %w", a.Path, err)
	case err != nil:
		return nil, fmt.Errorf("artifact %s: %w", a.Path, err)
	}

	if gz, ok := r.compressedSibling(disk); ok {
		local.DiskPath, local.PlainPath, local.Compressed = gz, disk, true
	}
	return local, nil
}

func (r *Run) compressedSibling(disk string) (string, bool) {
	if !r.cfg.PreferGzip || strings.HasSuffix(disk, gzipExt) {
		return "", false
	}
	gz := disk + gzipExt
	if info, err := os.Stat(gz); err == nil && info.Mode().IsRegular() {
		return gz, true
	}
	return "", false
}

// localDir reports whether a remote-only path is a directory in the build.
func (r *Run) localDir(logicalPath string) bool {
	p := strings.TrimSuffix(logicalPath, "/")
	if p == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(r.cfg.BuildDir, filepath.FromSlash(p)))
	return err == nil && info.IsDir()
}
