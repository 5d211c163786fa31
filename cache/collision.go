package cache

import (
	"io"
	"os"

	"github.com/hlubek/readercomp"
	log "github.com/sirupsen/logrus"
)

// checkCollision drains r (a Put call's input, discarded because dest
// already exists) and, when debug logging is enabled, compares it against
// the file already on disk at dest. A digest collision is undefined
// behavior in this system, but surfacing a mismatch in debug logs costs
// nothing and catches the far more likely cause: a caller passing the
// wrong digest for a buffer.
func checkCollision(dest string, r io.Reader) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		_, _ = io.Copy(io.Discard, r)
		return
	}
	existing, err := os.Open(dest)
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
		return
	}
	defer existing.Close()

	ok, err := readercomp.Equal(existing, r, 32*1024)
	_, _ = io.Copy(io.Discard, r)
	if err != nil {
		log.WithError(err).Debug("cache: collision check failed")
		return
	}
	if !ok {
		log.WithField("path", dest).Warn("cache: put content differs from cached content for same digest")
	}
}
