package store

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func openFileStore(t *testing.T, root string) *FileStore {
	t.Helper()
	s := NewFileStore()
	u := &url.URL{Scheme: "file", Path: root}
	if err := s.Open(u, Credentials{}); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFileStorePushPullRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := openFileStore(t, root)
	defer s.Close()

	src := filepath.Join(t.TempDir(), "blob")
	content := []byte("payload bytes")
	if err := os.WriteFile(src, content, 0644); err != nil {
		t.Fatal(err)
	}

	res, err := s.Push(src, nil, "a/b/c.bin")
	if err != nil {
		t.Fatal(err)
	}
	if res != Success {
		t.Fatalf("Push result = %v, want Success", res)
	}

	data, ok, err := s.Pull(nil, "a/b/c.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected object present")
	}
	if !bytes.Equal(data, content) {
		t.Fatalf("got %q, want %q", data, content)
	}
}

func TestFileStorePushSkipsSameSize(t *testing.T) {
	root := t.TempDir()
	s := openFileStore(t, root)
	defer s.Close()

	src := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(src, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Push(src, nil, "x.bin"); err != nil {
		t.Fatal(err)
	}
	res, err := s.Push(src, nil, "x.bin")
	if err != nil {
		t.Fatal(err)
	}
	if res != Skipped {
		t.Fatalf("second push result = %v, want Skipped", res)
	}
}

func TestFileStorePullMissingIsNotError(t *testing.T) {
	root := t.TempDir()
	s := openFileStore(t, root)
	defer s.Close()

	_, ok, err := s.Pull(nil, "nope.bin")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false for missing object")
	}
}
