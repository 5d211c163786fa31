package vcsadapter

import (
	"bytes"
	"io"

	"github.com/stevegt/debugpipe"

	log "github.com/sirupsen/logrus"
)

// teeIfDebug copies src to a buffer, tee-ing the traffic through
// debugpipe when GITBIFROST_VERBOSITY=Debug so an operator can watch bytes
// flow without disturbing the consumer. Applied to the one place a blob
// read can be large enough to be worth watching: ReadBlob.
func teeIfDebug(src io.Reader, label string) ([]byte, error) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return io.ReadAll(src)
	}

	pr, pw := debugpipe.Pipe()
	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		defer close(done)
		_, _ = io.Copy(&buf, pr)
	}()

	n, err := io.Copy(pw, src)
	_ = pw.Close()
	<-done

	log.WithField("bytes", n).WithField("label", label).Debug("vcsadapter: streamed blob read")
	if err != nil {
		return buf.Bytes(), err
	}
	return buf.Bytes(), nil
}
