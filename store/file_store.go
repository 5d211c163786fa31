package store

import (
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	. "github.com/stevegt/goadapt"
)

// FileStore implements Interface over a local (or NFS-mounted) directory.
// It is also what backs the internal cache pseudo-store: the catalog gives
// it a file:// URI rooted at the Local Cache directory, so its relative
// names line up exactly with cache.Cache.RelPath.
type FileStore struct {
	root string
}

// NewFileStore returns an unopened FileStore.
func NewFileStore() *FileStore { return &FileStore{} }

func (s *FileStore) Open(uri *url.URL, _ Credentials) (err error) {
	defer Return(&err)
	s.root = uri.Path
	err = os.MkdirAll(s.root, 0755)
	Ck(err)
	return nil
}

func (s *FileStore) Push(localPath string, _ *url.URL, relativeName string) (res Result, err error) {
	defer Return(&err)
	dest := filepath.Join(s.root, filepath.FromSlash(relativeName))

	if info, serr := os.Stat(dest); serr == nil {
		if srcInfo, serr := os.Stat(localPath); serr == nil && srcInfo.Size() == info.Size() {
			return Skipped, nil
		}
	}

	src, err := os.Open(localPath)
	Ck(err)
	defer src.Close()

	dir := filepath.Dir(dest)
	err = os.MkdirAll(dir, 0755)
	Ck(err)

	pending, err := renameio.TempFile(dir, dest)
	Ck(err)
	defer pending.Cleanup()

	_, err = io.Copy(pending, src)
	Ck(err)

	err = pending.CloseAtomicallyReplace()
	Ck(err)
	return Success, nil
}

func (s *FileStore) Pull(_ *url.URL, relativeName string) (data []byte, ok bool, err error) {
	defer Return(&err)
	src := filepath.Join(s.root, filepath.FromSlash(relativeName))
	data, err = os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		Ck(err)
	}
	return data, true, nil
}

func (s *FileStore) Close() error {
	return nil
}
