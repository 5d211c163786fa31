package filter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/t7a/bifrost"
	"github.com/t7a/bifrost/cache"
)

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(t.TempDir())
	if err := c.EnsureDir(); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCleanProducesDecodableProxyAndCachesBlob(t *testing.T) {
	c := newCache(t)
	content := []byte("large file content that gets filtered\n")

	var out bytes.Buffer
	if err := Clean(c, "big.bin", bytes.NewReader(content), &out); err != nil {
		t.Fatal(err)
	}

	proxy, err := bifrost.DecodeProxy(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	wantDigest, wantLen := bifrost.Sum(content)
	if proxy.Digest != wantDigest || proxy.Length != wantLen {
		t.Fatalf("proxy = %+v, want digest %s length %d", proxy, wantDigest, wantLen)
	}
	if !c.HasBlob(wantDigest) {
		t.Fatal("expected blob to be cached")
	}
}

func TestCleanRefusesDoubleClean(t *testing.T) {
	c := newCache(t)
	content := []byte("original")
	var proxyBuf bytes.Buffer
	if err := Clean(c, "f", bytes.NewReader(content), &proxyBuf); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := Clean(c, "f", strings.NewReader(proxyBuf.String()), &out)
	if err != ErrDoubleClean {
		t.Fatalf("err = %v, want ErrDoubleClean", err)
	}
}
