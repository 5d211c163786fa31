package filter

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/t7a/bifrost"
	"github.com/t7a/bifrost/catalog"
	"github.com/t7a/bifrost/store"
	"github.com/t7a/bifrost/store/testutil"
)

func memRegistry(m *testutil.MemStore) store.Registry {
	return store.Registry{
		"mem": func() store.Interface { return m },
	}
}

func TestSmudgeWritesBackingBytes(t *testing.T) {
	content := []byte("the original file content")
	digest, length := bifrost.Sum(content)

	mem := testutil.NewMemStore()
	mem.Seed(digest.CachePath(), content)

	u, _ := url.Parse("mem://store/root")
	records := []catalog.Record{{Name: "origin", URL: u}}

	c := newCache(t)
	var proxyBuf bytes.Buffer
	if err := bifrost.EncodeProxy(&proxyBuf, digest, length); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Smudge(records, memRegistry(mem), c, "big.bin", &proxyBuf, &out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Fatalf("got %q, want %q", out.Bytes(), content)
	}
	if !c.HasBlob(digest) {
		t.Fatal("expected smudge to repopulate the local cache")
	}
}

func TestSmudgeRejectsNonProxyInput(t *testing.T) {
	c := newCache(t)
	var out bytes.Buffer
	err := Smudge(nil, store.NewRegistry(), c, "f", bytes.NewReader([]byte("plain content")), &out)
	if err != bifrost.ErrNotAProxy {
		t.Fatalf("err = %v, want ErrNotAProxy", err)
	}
}

func TestSmudgeFallsThroughOnIntegrityMismatch(t *testing.T) {
	digest, length := bifrost.Sum([]byte("expected content"))

	badMem := testutil.NewMemStore()
	badMem.Seed(digest.CachePath(), []byte("wrong content entirely"))

	u, _ := url.Parse("mem://store/root")
	records := []catalog.Record{{Name: "bad-store", URL: u}}

	c := newCache(t)
	var proxyBuf bytes.Buffer
	if err := bifrost.EncodeProxy(&proxyBuf, digest, length); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := Smudge(records, memRegistry(badMem), c, "f", &proxyBuf, &out)
	if _, ok := err.(*ErrBlobUnavailable); !ok {
		t.Fatalf("err = %v (%T), want *ErrBlobUnavailable", err, err)
	}
}
