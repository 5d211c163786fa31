// Package filter implements the clean and smudge VCS filters.
package filter

import (
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/bifrost"
	"github.com/t7a/bifrost/cache"
)

// ErrDoubleClean is returned when Clean's input already looks like a
// proxy: cleaning a proxy would commit a proxy-of-a-proxy, corrupting
// history, so this is a hard error rather than a pass-through.
var ErrDoubleClean = errors.New("refusing to clean an already-cleaned proxy (double clean)")

// Clean reads all of in, and if it is not itself a proxy, computes its
// digest, writes the encoded proxy to out, and persists the original
// bytes in c. path is used only for diagnostics.
func Clean(c *cache.Cache, path string, in io.Reader, out io.Writer) (err error) {
	defer Return(&err)

	buf, err := io.ReadAll(in)
	Ck(err, "clean %s: reading input", path)

	if bifrost.HasSentinelPrefix(buf) {
		return ErrDoubleClean
	}

	digest, length := bifrost.Sum(buf)

	err = bifrost.EncodeProxy(out, digest, length)
	Ck(err, "clean %s: writing proxy", path)

	err = c.PutBytes(digest, buf)
	Ck(err, "clean %s: caching blob", path)

	log.WithField("path", path).WithField("digest", digest).WithField("length", length).
		Debug("filter: clean")
	return nil
}
