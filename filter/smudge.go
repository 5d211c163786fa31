package filter

import (
	"bytes"
	"io"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/bifrost"
	"github.com/t7a/bifrost/cache"
	"github.com/t7a/bifrost/catalog"
	"github.com/t7a/bifrost/store"
)

// ErrNotAProxy is returned when Smudge's input does not decode as a
// proxy.
var ErrNotAProxy = bifrost.ErrNotAProxy

// ErrBlobUnavailable is returned when no store in the catalog could
// produce bytes matching the proxy's digest and length.
type ErrBlobUnavailable struct {
	Digest bifrost.Digest
	Length int64
}

func (e *ErrBlobUnavailable) Error() string {
	return "blob unavailable in any configured store: " + string(e.Digest)
}

// IntegrityMismatchError names the store whose bytes failed verification.
// It never escapes Smudge as a fatal error on its own — it is logged and
// the next store is tried — but is exposed so callers can report it.
type IntegrityMismatchError struct {
	StoreName string
	StoreURL  string
	Want      bifrost.Proxy
	GotLength int64
	GotDigest bifrost.Digest
}

func (e *IntegrityMismatchError) Error() string {
	return "integrity mismatch from store " + e.StoreName + " (" + e.StoreURL + "): want " +
		string(e.Want.Digest) + "/" + strconv.FormatInt(e.Want.Length, 10) +
		" got " + string(e.GotDigest) + "/" + strconv.FormatInt(e.GotLength, 10)
}

// Smudge decodes a proxy from in, locates its bytes across records in
// catalog order (internal cache first, per catalog.Load's construction),
// verifies each candidate, and writes the first verified match to out.
func Smudge(records []catalog.Record, registry store.Registry, c *cache.Cache, path string, in io.Reader, out io.Writer) (err error) {
	defer Return(&err)

	proxy, err := bifrost.DecodeProxy(in)
	if err != nil {
		return err
	}

	log.WithField("path", path).WithField("digest", proxy.Digest).Debug("filter: smudge")

	relName := proxy.Digest.CachePath()

	for _, rec := range records {
		if rec.URL == nil || !rec.URL.IsAbs() {
			log.WithField("store", rec.Name).Warn("smudge: store URI is not absolute, skipping")
			continue
		}

		impl, err := registry.New(rec.URL)
		if err != nil {
			var unsupported *store.UnsupportedSchemeError
			if errors.As(err, &unsupported) {
				log.WithField("store", rec.Name).WithField("scheme", rec.URL.Scheme).
					Warn("smudge: unsupported store scheme, skipping")
				continue
			}
			return err
		}

		if err := impl.Open(rec.URL, rec.Credentials()); err != nil {
			log.WithField("store", rec.Name).WithError(err).Warn("smudge: open failed, trying next store")
			continue
		}

		data, ok, err := impl.Pull(rec.URL, relName)
		if err != nil || !ok {
			if err != nil {
				log.WithField("store", rec.Name).WithError(err).Debug("smudge: pull failed")
			}
			_ = impl.Close()
			continue
		}

		gotDigest, gotLength := bifrost.Sum(data)
		if gotLength != proxy.Length || gotDigest != proxy.Digest {
			mismatch := &IntegrityMismatchError{
				StoreName: rec.Name, StoreURL: rec.URL.String(),
				Want: proxy, GotLength: gotLength, GotDigest: gotDigest,
			}
			log.WithError(mismatch).Warn("smudge: bypassing store")
			_ = impl.Close()
			continue
		}

		if err := c.Put(proxy.Digest, bytes.NewReader(data)); err != nil {
			_ = impl.Close()
			return errors.Wrapf(err, "smudge %s: repopulating cache", path)
		}

		if _, err := out.Write(data); err != nil {
			_ = impl.Close()
			return errors.Wrapf(err, "smudge %s: writing output", path)
		}

		_ = impl.Close()
		return nil
	}

	return &ErrBlobUnavailable{Digest: proxy.Digest, Length: proxy.Length}
}
