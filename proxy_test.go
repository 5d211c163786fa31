package bifrost

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d, length := Sum([]byte("hello world\n"))

	var buf bytes.Buffer
	if err := EncodeProxy(&buf, d, length); err != nil {
		t.Fatal(err)
	}

	got, err := DecodeProxy(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != ProxyVersion || got.Digest != d || got.Length != length {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestEncodedProxyMatchesEncodeProxy(t *testing.T) {
	d, length := Sum([]byte("payload"))
	var buf bytes.Buffer
	if err := EncodeProxy(&buf, d, length); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), EncodedProxy(d, length)) {
		t.Fatal("EncodedProxy diverges from EncodeProxy")
	}
}

func TestDecodeProxyRejectsRawBlob(t *testing.T) {
	_, err := DecodeProxy(strings.NewReader("just an ordinary file\nwith two lines\n"))
	if err != ErrNotAProxy {
		t.Fatalf("err = %v, want ErrNotAProxy", err)
	}
}

func TestDecodeProxyRejectsEmptyInput(t *testing.T) {
	_, err := DecodeProxy(strings.NewReader(""))
	if err != ErrNotAProxy {
		t.Fatalf("err = %v, want ErrNotAProxy", err)
	}
}

func TestDecodeProxyDetectsCorruption(t *testing.T) {
	cases := []string{
		Sentinel + "\n",                            // missing version, digest, length
		Sentinel + "\nnotanumber\n" + "AAAA\n1\n",   // bad version
		Sentinel + "\n1\nshort\n1\n",                // bad digest
		Sentinel + "\n1\n" + strings.Repeat("A", 40) + "\nnotanumber\n", // bad length
	}
	for i, in := range cases {
		_, err := DecodeProxy(strings.NewReader(in))
		if _, ok := err.(*CorruptProxyError); !ok {
			t.Fatalf("case %d: err = %v (%T), want *CorruptProxyError", i, err, err)
		}
	}
}

func TestHasSentinelPrefix(t *testing.T) {
	d, length := Sum([]byte("data"))
	full := EncodedProxy(d, length)
	if !HasSentinelPrefix(full) {
		t.Fatal("expected sentinel prefix match")
	}
	if HasSentinelPrefix([]byte("too short")) {
		t.Fatal("short buffer should not match")
	}
	if HasSentinelPrefix([]byte(strings.Repeat("x", len(Sentinel)))) {
		t.Fatal("non-matching buffer of the right length should not match")
	}
	if HasSentinelPrefix([]byte(Sentinel + "oops, not a newline")) {
		t.Fatal("a buffer that only partially matches the sentinel's line should not match")
	}
	if !HasSentinelPrefix([]byte(Sentinel + "\nmore")) {
		t.Fatal("a true sentinel line followed by more content should still match")
	}
}
