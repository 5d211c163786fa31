package store

import (
	"bytes"
	"io"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	. "github.com/stevegt/goadapt"
	"golang.org/x/crypto/ssh"
)

// SFTPStore implements Interface over SSH/SFTP.
type SFTPStore struct {
	sshConn *ssh.Client
	client  *sftp.Client
	baseDir string
}

// NewSFTPStore returns an unopened SFTPStore.
func NewSFTPStore() *SFTPStore { return &SFTPStore{} }

func (s *SFTPStore) Open(uri *url.URL, creds Credentials) (err error) {
	defer Return(&err)

	addr := uri.Host
	if uri.Port() == "" {
		addr = addr + ":22"
	}

	auth := []ssh.AuthMethod{}
	if creds.Password != "" {
		auth = append(auth, ssh.Password(creds.Password))
	}
	if agentAuth, ok := sshAgentAuth(); ok {
		auth = append(auth, agentAuth)
	}

	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // no known-hosts store is configured
	}
	if creds.Timeout > 0 {
		cfg.Timeout = time.Duration(creds.Timeout) * time.Second
	}

	conn, err := ssh.Dial("tcp", addr, cfg)
	Ck(err, "sftp dial %s", addr)

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "sftp handshake")
	}

	s.sshConn = conn
	s.client = client
	s.baseDir = uri.Path
	return nil
}

func (s *SFTPStore) remotePath(relativeName string) string {
	return path.Join(s.baseDir, relativeName)
}

func (s *SFTPStore) Push(localPath string, _ *url.URL, relativeName string) (res Result, err error) {
	defer Return(&err)
	dest := s.remotePath(relativeName)

	if info, serr := s.client.Stat(dest); serr == nil {
		if local, serr := os.Stat(localPath); serr == nil && local.Size() == info.Size() {
			return Skipped, nil
		}
	}

	err = s.client.MkdirAll(path.Dir(dest))
	Ck(err, "sftp mkdir %s", path.Dir(dest))

	src, err := os.Open(localPath)
	Ck(err)
	defer src.Close()

	dst, err := s.client.Create(dest)
	Ck(err, "sftp create %s", dest)
	defer dst.Close()

	_, err = io.Copy(dst, src)
	Ck(err, "sftp write %s", dest)
	return Success, nil
}

func (s *SFTPStore) Pull(_ *url.URL, relativeName string) (data []byte, ok bool, err error) {
	defer Return(&err)
	src := s.remotePath(relativeName)
	f, err := s.client.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		Ck(err, "sftp open %s", src)
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	_, err = io.Copy(buf, f)
	Ck(err)
	return buf.Bytes(), true, nil
}

func (s *SFTPStore) Close() error {
	var err error
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	if s.sshConn != nil {
		if cerr := s.sshConn.Close(); err == nil {
			err = cerr
		}
		s.sshConn = nil
	}
	return err
}
