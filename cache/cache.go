// Package cache implements a content-addressed directory tree, keyed by
// digest, with idempotent atomic writes.
package cache

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/bifrost"
)

// DefaultSubdir is where the cache lives beneath a VCS repository's control
// directory: "<repo>/.git/bifrost/data/...".
const DefaultSubdir = "bifrost/data"

// Cache is a content-addressed directory cache rooted at Dir.
type Cache struct {
	Dir string
}

// New returns a Cache rooted at dir. dir is not created here; callers that
// need to guarantee it exists should call EnsureDir.
func New(dir string) *Cache {
	return &Cache{Dir: dir}
}

// ForRepo returns the Cache for a VCS repository whose ".git"-equivalent
// control directory is gitDir, rooted at "<gitDir>/bifrost/data".
func ForRepo(gitDir string) *Cache {
	return New(filepath.Join(gitDir, DefaultSubdir))
}

// EnsureDir creates the cache root directory if it does not already exist.
func (c *Cache) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0755)
}

// Exists reports whether the cache directory itself is present. Pre-push
// uses this to distinguish "cache was never created" from "cache is
// merely empty".
func (c *Cache) Exists() bool {
	info, err := os.Stat(c.Dir)
	return err == nil && info.IsDir()
}

// Path returns the absolute filesystem path for digest d.
func (c *Cache) Path(d bifrost.Digest) string {
	return filepath.Join(c.Dir, filepath.FromSlash(d.CachePath()))
}

// RelPath returns the cache-relative path for digest d, in the form stores
// expect as their relativeName argument: three one-character subdirs
// followed by "<DIGEST>.bin", joined with "/" regardless of host OS.
func (c *Cache) RelPath(d bifrost.Digest) string {
	return d.CachePath()
}

// HasBlob reports whether the cache holds bytes for d.
func (c *Cache) HasBlob(d bifrost.Digest) bool {
	_, err := os.Stat(c.Path(d))
	return err == nil
}

// Open returns a reader for the cached bytes at d.
func (c *Cache) Open(d bifrost.Digest) (*os.File, error) {
	return os.Open(c.Path(d))
}

// Put writes r's bytes to the cache path for d. It is idempotent: if the
// destination already exists the call is a no-op after draining r (so
// callers who haven't buffered content yet don't need to special-case the
// already-cached path). The write itself goes through renameio so a killed
// process never leaves a partially-written file visible under the final
// name.
func (c *Cache) Put(d bifrost.Digest, r io.Reader) (err error) {
	defer Return(&err)

	dest := c.Path(d)
	if c.HasBlob(d) {
		log.WithField("digest", d).Debug("cache: blob already present, draining input")
		checkCollision(dest, r)
		return nil
	}

	dir := filepath.Dir(dest)
	err = os.MkdirAll(dir, 0755)
	Ck(err)

	pending, err := renameio.TempFile(dir, dest)
	Ck(err)
	defer pending.Cleanup()

	_, err = io.Copy(pending, r)
	Ck(err)

	err = pending.CloseAtomicallyReplace()
	Ck(err)

	log.WithField("digest", d).Debug("cache: wrote new blob")
	return nil
}

// PutBytes is a convenience wrapper around Put for callers that already
// have the full blob buffered, the common case since blobs are typically
// small enough to hold in memory.
func (c *Cache) PutBytes(d bifrost.Digest, buf []byte) error {
	return c.Put(d, bytes.NewReader(buf))
}
