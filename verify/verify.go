// Package verify audits a single store against every proxy reachable in
// VCS history.
package verify

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/vmihailenco/msgpack"

	"github.com/t7a/bifrost"
	"github.com/t7a/bifrost/store"
	"github.com/t7a/bifrost/vcsadapter"
)

// Condition is one of the three ways an entry can fail verification.
type Condition string

const (
	FileMissing Condition = "file_missing"
	WrongSize   Condition = "wrong_size"
	BadSHA      Condition = "bad_sha"
)

// BadEntry names one revision reference that failed verification and why.
type BadEntry struct {
	Commit     string      `msgpack:"commit"`
	Path       string      `msgpack:"path"`
	Digest     string      `msgpack:"digest"`
	WantLength int64       `msgpack:"want_length"`
	GotLength  int64       `msgpack:"got_length,omitempty"`
	Conditions []Condition `msgpack:"conditions"`
}

// Result is the outcome of a full sweep.
type Result struct {
	BadFiles int
	Bad      []BadEntry
	Checked  int
}

// Run walks every reachable commit, pulls the backing bytes for every
// proxy it finds, and reports mismatches. When verbose, every checked
// entry (not only bad ones) is written to w.
func Run(a *vcsadapter.Adapter, registry store.Registry, storeURI *url.URL, creds store.Credentials, verbose bool, w io.Writer) (result Result, err error) {
	defer Return(&err)

	impl, err := registry.New(storeURI)
	Ck(err)
	err = impl.Open(storeURI, creds)
	Ck(err)
	defer impl.Close()

	commits, err := a.RevListAll()
	Ck(err)

	seen := map[string]bool{}

	for _, commit := range commits {
		entries, err := a.ChangedEntries(commit)
		Ck(err)
		for _, entry := range entries {
			if strings.HasPrefix(entry.Status, "D") {
				continue
			}
			revPath := commit + ":" + entry.Path
			buf, err := a.ReadBlob(revPath)
			if err != nil {
				continue // deleted-then-recreated paths, renames mid-history, etc.
			}
			proxy, err := bifrost.DecodeProxy(bytes.NewReader(buf))
			if err == bifrost.ErrNotAProxy {
				continue
			}
			Ck(err)

			key := string(proxy.Digest)
			if seen[key] {
				continue
			}
			seen[key] = true
			result.Checked++

			bad := checkOne(impl, storeURI, proxy)
			if len(bad.Conditions) > 0 {
				bad.Commit = commit
				bad.Path = entry.Path
				result.Bad = append(result.Bad, bad)
				result.BadFiles++
				fmt.Fprintf(w, "BAD %s (%s): %s\n", entry.Path, proxy.Digest, joinConditions(bad.Conditions))
			} else if verbose {
				fmt.Fprintf(w, "OK  %s (%s)\n", entry.Path, proxy.Digest)
			}
		}
	}

	return result, nil
}

func checkOne(impl store.Interface, storeURI *url.URL, proxy bifrost.Proxy) BadEntry {
	entry := BadEntry{Digest: string(proxy.Digest), WantLength: proxy.Length}

	data, ok, err := impl.Pull(storeURI, proxy.Digest.CachePath())
	if err != nil {
		log.WithError(err).WithField("digest", proxy.Digest).Warn("verify: pull failed, treating as missing")
		entry.Conditions = append(entry.Conditions, FileMissing)
		return entry
	}
	if !ok {
		entry.Conditions = append(entry.Conditions, FileMissing)
		return entry
	}

	entry.GotLength = int64(len(data))
	if entry.GotLength != proxy.Length {
		entry.Conditions = append(entry.Conditions, WrongSize)
	}

	gotDigest, _ := bifrost.Sum(data)
	if gotDigest != proxy.Digest {
		entry.Conditions = append(entry.Conditions, BadSHA)
	}

	return entry
}

func joinConditions(cs []Condition) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

// WriteReport msgpack-encodes result.Bad to w, for the --report flag.
func WriteReport(w io.Writer, result Result) error {
	enc := msgpack.NewEncoder(w)
	return enc.Encode(result.Bad)
}
