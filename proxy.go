package bifrost

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Sentinel is the fixed first line of every proxy file.
const Sentinel = "~*@git-bifrost@*~"

// ProxyVersion is the current proxy format version written by EncodeProxy.
const ProxyVersion = 1

// Proxy is the decoded four-line proxy file format: sentinel, version,
// digest, length.
type Proxy struct {
	Version int
	Digest  Digest
	Length  int64
}

// ErrNotAProxy is returned by DecodeProxy when the first line of the input
// does not equal Sentinel. This is not itself an error condition for most
// callers: it is how they distinguish a proxy from a raw blob.
var ErrNotAProxy = errors.New("not a proxy")

// CorruptProxyError reports a proxy whose first line is the sentinel but
// whose remaining lines are malformed.
type CorruptProxyError struct {
	Reason string
}

func (e *CorruptProxyError) Error() string {
	return fmt.Sprintf("corrupt proxy: %s", e.Reason)
}

// EncodeProxy writes the four-line proxy format for (d, length) to w, LF
// terminated with a trailing newline after the fourth line.
func EncodeProxy(w io.Writer, d Digest, length int64) error {
	_, err := fmt.Fprintf(w, "%s\n%d\n%s\n%d\n", Sentinel, ProxyVersion, d, length)
	return err
}

// EncodedProxy returns the encoded proxy bytes for (d, length).
func EncodedProxy(d Digest, length int64) []byte {
	return []byte(fmt.Sprintf("%s\n%d\n%s\n%d\n", Sentinel, ProxyVersion, d, length))
}

// DecodeProxy reads a proxy from r. If the first line is not exactly
// Sentinel, it returns ErrNotAProxy and the caller should treat the content
// as a raw blob rather than a fatal error. Once the sentinel is recognized,
// any further malformation is reported as *CorruptProxyError, which is
// fatal to the calling operation.
func DecodeProxy(r io.Reader) (Proxy, error) {
	br := bufio.NewReader(r)

	line1, err := readLine(br)
	if err != nil {
		if err == io.EOF && line1 == "" {
			return Proxy{}, ErrNotAProxy
		}
		return Proxy{}, err
	}
	if line1 != Sentinel {
		return Proxy{}, ErrNotAProxy
	}

	versionLine, err := readLine(br)
	if err != nil {
		return Proxy{}, &CorruptProxyError{Reason: "missing version line"}
	}
	version, err := strconv.Atoi(versionLine)
	if err != nil || version < 1 {
		return Proxy{}, &CorruptProxyError{Reason: "malformed version: " + versionLine}
	}

	digestLine, err := readLine(br)
	if err != nil {
		return Proxy{}, &CorruptProxyError{Reason: "missing digest line"}
	}
	d := Digest(digestLine)
	if !d.Valid() {
		return Proxy{}, &CorruptProxyError{Reason: "malformed digest: " + digestLine}
	}

	lengthLine, err := readLine(br)
	if err != nil {
		return Proxy{}, &CorruptProxyError{Reason: "missing length line"}
	}
	length, err := strconv.ParseInt(lengthLine, 10, 64)
	if err != nil || length < 0 {
		return Proxy{}, &CorruptProxyError{Reason: "malformed length: " + lengthLine}
	}

	return Proxy{Version: version, Digest: d, Length: length}, nil
}

// HasSentinelPrefix reports whether buf's first line is exactly Sentinel,
// checking only the bytes needed to decide without a full decode. A blob
// whose first len(Sentinel) bytes match but that continues with anything
// other than a newline (or end of input) is not a proxy — it only
// partially matches the sentinel and must not be misclassified as one.
// Used by the pre-commit guard, which reads only len(Sentinel) bytes of a
// staged blob (so for it this is a plain prefix match), and by the clean
// filter's double-clean check.
func HasSentinelPrefix(buf []byte) bool {
	if len(buf) < len(Sentinel) {
		return false
	}
	if string(buf[:len(Sentinel)]) != Sentinel {
		return false
	}
	return len(buf) == len(Sentinel) || buf[len(Sentinel)] == '\n'
}

// readLine reads one line from br and strips the trailing newline
// (and a preceding carriage return, tolerating CRLF input). It returns
// io.EOF only when zero bytes were read.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && len(line) == 0 {
		return "", err
	}
	if err != nil && err != io.EOF {
		return "", err
	}
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, nil
}
