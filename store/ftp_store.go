package store

import (
	"bytes"
	"crypto/tls"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
)

// FTPStore implements Interface over FTP or, when explicit is true,
// FTPS (explicit AUTH TLS).
type FTPStore struct {
	explicit bool
	conn     *ftp.ServerConn
	baseDir  string
}

// NewFTPStore returns an unopened FTPStore. explicit selects FTPS.
func NewFTPStore(explicit bool) *FTPStore {
	return &FTPStore{explicit: explicit}
}

func (s *FTPStore) Open(uri *url.URL, creds Credentials) (err error) {
	defer Return(&err)

	addr := uri.Host
	if uri.Port() == "" {
		addr = addr + ":21"
	}

	opts := []ftp.DialOption{}
	if creds.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(time.Duration(creds.Timeout)*time.Second))
	}
	if s.explicit {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: uri.Hostname()}))
	}

	conn, err := ftp.Dial(addr, opts...)
	Ck(err, "ftp dial %s", addr)

	user, pass := creds.Username, creds.Password
	if user == "" {
		user = "anonymous"
	}
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return errors.Wrap(err, "ftp login")
	}

	s.conn = conn
	s.baseDir = uri.Path
	return nil
}

func (s *FTPStore) remotePath(relativeName string) string {
	return path.Join(s.baseDir, relativeName)
}

func (s *FTPStore) Push(localPath string, _ *url.URL, relativeName string) (res Result, err error) {
	defer Return(&err)
	dest := s.remotePath(relativeName)

	if size, serr := s.conn.FileSize(dest); serr == nil {
		if local, serr := statSize(localPath); serr == nil && local == size {
			return Skipped, nil
		}
	}

	f, err := os.Open(localPath)
	Ck(err)
	defer f.Close()

	err = s.mkdirAll(path.Dir(dest))
	Ck(err)

	err = s.conn.Stor(dest, f)
	Ck(err, "ftp stor %s", dest)
	return Success, nil
}

func (s *FTPStore) Pull(_ *url.URL, relativeName string) (data []byte, ok bool, err error) {
	defer Return(&err)
	src := s.remotePath(relativeName)
	resp, err := s.conn.Retr(src)
	if err != nil {
		if isFTPNotExist(err) {
			return nil, false, nil
		}
		Ck(err, "ftp retr %s", src)
	}
	defer resp.Close()

	buf := &bytes.Buffer{}
	_, err = io.Copy(buf, resp)
	Ck(err)
	return buf.Bytes(), true, nil
}

func (s *FTPStore) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Quit()
	s.conn = nil
	return err
}

// mkdirAll creates dir and all of its parents on the FTP server,
// tolerating "already exists" errors, since jlaffaye/ftp has no native
// recursive mkdir.
func (s *FTPStore) mkdirAll(dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}
	parts := strings.Split(strings.Trim(dir, "/"), "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if err := s.conn.MakeDir(cur); err != nil {
			// jlaffaye/ftp returns a *textproto.Error we can't cleanly
			// distinguish "exists" from other failures across servers, so
			// we optimistically continue and let the eventual Stor
			// surface a real error if the directory truly is unusable.
			continue
		}
	}
	return nil
}

func isFTPNotExist(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "550") || strings.Contains(strings.ToLower(msg), "no such file")
}

func statSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
