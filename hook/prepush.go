package hook

import (
	"bytes"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/bifrost"
	"github.com/t7a/bifrost/cache"
	"github.com/t7a/bifrost/catalog"
	"github.com/t7a/bifrost/store"
	"github.com/t7a/bifrost/vcsadapter"
)

// PushRecord is one line of pre-push hook input: local ref/sha and the
// corresponding remote ref/sha.
type PushRecord struct {
	LocalRef, LocalSHA   string
	RemoteRef, RemoteSHA string
}

const zeroSHA = "0000000000000000000000000000000000000000"

// ErrCacheMissing is fatal: a non-empty push set with no cache directory
// means the cache was removed without replacement.
var ErrCacheMissing = errors.New("local cache directory is missing but proxies are referenced by the push")

// ErrNoPrimaryUpdated is fatal: no primary store for the destination
// remote was successfully updated.
var ErrNoPrimaryUpdated = errors.New("push completed without updating any primary store for this remote")

// MissingLocalSourceError names a proxy whose backing bytes are not in the
// Local Cache, which is a hard failure.
type MissingLocalSourceError struct {
	Digest bifrost.Digest
}

func (e *MissingLocalSourceError) Error() string {
	return "proxy references digest not present in local cache: " + string(e.Digest)
}

// VCSInternalError wraps a diff-tree 'X' ("something is wrong") status.
type VCSInternalError struct {
	Commit, Path string
}

func (e *VCSInternalError) Error() string {
	return "vcs reported unresolved status 'X' for " + e.Path + " at " + e.Commit
}

// PrePush walks every outgoing revision named by records, collects the
// proxies they reference, and replicates their backing bytes from the
// Local Cache to every store configured for remoteURL. It fails with
// ErrNoPrimaryUpdated unless at least one of those stores is primary.
func PrePush(a *vcsadapter.Adapter, c *cache.Cache, registry store.Registry, records []catalog.Record, remoteName, remoteURL string, pushRecords []PushRecord) (err error) {
	defer Return(&err)

	proxies, err := enumerateProxies(a, remoteName, pushRecords)
	Ck(err)

	if len(proxies) == 0 {
		if !c.Exists() {
			log.Info("pre-push: nothing to push and no cache directory; treating as a clean no-op")
			return nil
		}
		return nil
	}

	if !c.Exists() {
		return ErrCacheMissing
	}

	matching := catalog.MatchingRemote(records, remoteURL)
	if len(matching) == 0 {
		log.WithField("remote", remoteURL).Warn("pre-push: no stores configured for this remote")
	}

	primaryUpdated := 0
	for _, rec := range matching {
		sessionID := uuid.New().String()
		logger := log.WithField("store", rec.Name).WithField("session", sessionID)

		impl, err := registry.New(rec.URL)
		if err != nil {
			logger.WithError(err).Warn("pre-push: unsupported store, skipping")
			continue
		}
		if err := impl.Open(rec.URL, rec.Credentials()); err != nil {
			logger.WithError(err).Warn("pre-push: open failed, skipping")
			continue
		}

		if err := pushAll(impl, c, rec, proxies, logger); err != nil {
			_ = impl.Close()
			return err
		}
		_ = impl.Close()

		if rec.Primary {
			primaryUpdated++
		}
	}

	if primaryUpdated == 0 {
		return ErrNoPrimaryUpdated
	}
	return nil
}

func pushAll(impl store.Interface, c *cache.Cache, rec catalog.Record, proxies map[bifrost.Digest]bool, logger *log.Entry) error {
	tally := map[store.Result]int{}
	for digest := range proxies {
		if !c.HasBlob(digest) {
			return &MissingLocalSourceError{Digest: digest}
		}
		res, err := impl.Push(c.Path(digest), rec.URL, c.RelPath(digest))
		if err != nil {
			return errors.Wrapf(err, "pushing %s", digest)
		}
		if res == store.Failed {
			return errors.Errorf("pushing %s: store reported Failed", digest)
		}
		tally[res]++
	}
	logger.WithField("success", tally[store.Success]).
		WithField("skipped", tally[store.Skipped]).
		WithField("skipped_late", tally[store.SkippedLate]).
		Info("pre-push: store replication complete")
	return nil
}

// enumerateProxies is phase 1 of the push: for each advancing ref, find the
// commits not yet on the destination remote, and collect every non-deleted
// proxy path they touch.
func enumerateProxies(a *vcsadapter.Adapter, remoteName string, pushRecords []PushRecord) (proxies map[bifrost.Digest]bool, err error) {
	defer Return(&err)
	proxies = map[bifrost.Digest]bool{}

	for _, rec := range pushRecords {
		if rec.LocalSHA == zeroSHA {
			continue // a delete; nothing to push
		}

		commits, err := a.RevListNotRemotes(rec.LocalRef, remoteName)
		Ck(err)

		for _, commit := range commits {
			entries, err := a.ChangedEntries(commit)
			Ck(err)
			for _, entry := range entries {
				if entry.Status == "X" {
					return nil, &VCSInternalError{Commit: commit, Path: entry.Path}
				}
				if strings.HasPrefix(entry.Status, "D") {
					continue
				}
				revPath := commit + ":" + entry.Path
				buf, err := a.ReadBlob(revPath)
				Ck(err)
				proxy, err := bifrost.DecodeProxy(bytes.NewReader(buf))
				if err == bifrost.ErrNotAProxy {
					continue // not a proxy; ordinary blob, not our concern
				}
				Ck(err)
				proxies[proxy.Digest] = true
			}
		}
	}

	return proxies, nil
}
