// Package catalog parses store.<NAME>.<KEY> declarations out of
// repository config into an ordered list of store records, with the
// internal cache pseudo-store prepended.
package catalog

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/bifrost/store"
	"github.com/t7a/bifrost/vcsadapter"
)

// InternalStoreName is the reserved name designating the local cache
// pseudo-store.
const InternalStoreName = "store.BIFROST.INTERNAL"

// PrimaryConfigFile and OverlayConfigFile are the two config files the
// catalog reads, in override order.
const (
	PrimaryConfigFile = ".gitbifrost"
	OverlayConfigFile = ".gitbifrostuser"
)

// Record describes one configured store.
type Record struct {
	Name       string
	URL        *url.URL
	Remote     string // normalized absolute form, or "" if unset
	Primary    bool
	Username   string
	Password   string
	TimeoutSec int
}

// Credentials adapts a Record to the store.Credentials the transports
// expect.
func (r Record) Credentials() store.Credentials {
	return store.Credentials{Username: r.Username, Password: r.Password, Timeout: r.TimeoutSec}
}

var storeKeyPattern = regexp.MustCompile(`^store\.`)

// Load reads store.* declarations from PrimaryConfigFile and, if present,
// OverlayConfigFile (whose values win for the same (name,key) pair), and
// returns the ordered catalog with the internal cache store prepended.
// cacheDir is the absolute path to the Local Cache root.
func Load(a *vcsadapter.Adapter, cacheDir string) (records []Record, err error) {
	defer Return(&err)

	values := map[string]map[string]string{}
	var order []string

	apply := func(lines []string) {
		for _, line := range lines {
			name, key, value, ok := parseConfigLine(line)
			if !ok {
				continue
			}
			if _, seen := values[name]; !seen {
				values[name] = map[string]string{}
				order = append(order, name)
			}
			values[name][key] = value
		}
	}

	primaryLines, err := a.ConfigGetRegex(`^store\..*`, PrimaryConfigFile)
	Ck(err, "reading "+PrimaryConfigFile)
	apply(primaryLines)

	overlayLines, err := a.ConfigGetRegex(`^store\..*`, OverlayConfigFile)
	if err == nil {
		apply(overlayLines)
	}
	// A missing overlay file is not an error; ConfigGetRegex already
	// tolerates "no matches", and a missing file behaves the same way
	// through git's own -f handling in most implementations. Any other
	// failure is swallowed deliberately: the overlay is optional.

	seen := map[string]bool{}
	records = append(records, internalRecord(cacheDir))
	seen[InternalStoreName] = true

	for _, name := range order {
		Assert(!seen[name], "duplicate store name: %s", name)
		seen[name] = true

		kv := values[name]
		rec, err := buildRecord(name, kv)
		Ck(err)
		records = append(records, rec)
	}

	return records, nil
}

func internalRecord(cacheDir string) Record {
	abs, _ := filepath.Abs(cacheDir)
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return Record{Name: InternalStoreName, URL: u}
}

func buildRecord(name string, kv map[string]string) (Record, error) {
	rec := Record{Name: name}

	rawURL, ok := kv["url"]
	if !ok {
		return Record{}, errors.Errorf("store %s: missing url", name)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Record{}, errors.Wrapf(err, "store %s: invalid url", name)
	}
	rec.URL = u

	if remote, ok := kv["remote"]; ok {
		rec.Remote = NormalizeRemote(remote)
	}

	if primary, ok := kv["primary"]; ok {
		rec.Primary = strings.EqualFold(primary, "true")
	}

	rec.Username = kv["username"]
	rec.Password = kv["password"]

	if timeout, ok := kv["timeout"]; ok {
		n, err := strconv.Atoi(timeout)
		if err == nil {
			rec.TimeoutSec = n
		}
	}

	return rec, nil
}

// NormalizeRemote canonicalizes a remote URL/path for comparison. A
// filesystem path is made absolute; a genuine URL (has a scheme) or an
// scp-style address ("user@host:path") is returned unchanged aside from
// trimming a trailing slash, since filepath.Abs would corrupt it.
func NormalizeRemote(remote string) string {
	remote = strings.TrimSuffix(remote, "/")
	if u, err := url.Parse(remote); err == nil && u.Scheme != "" && u.Scheme != "file" {
		return remote
	}
	// scp-style: a colon before the first slash, with more than one
	// character ahead of it so a drive letter is not mistaken for a host.
	if i := strings.Index(remote, ":"); i > 1 && !strings.Contains(remote[:i], "/") && !strings.HasPrefix(remote, "file:") {
		return remote
	}
	path := remote
	if u, err := url.Parse(remote); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return remote
	}
	return filepath.ToSlash(abs)
}

// parseConfigLine parses a "store.<NAME>.<KEY> <VALUE>" line as emitted by
// `git config --get-regexp`, whose first whitespace run separates the key
// from a possibly-multi-word value.
func parseConfigLine(line string) (name, key, value string, ok bool) {
	if !storeKeyPattern.MatchString(line) {
		return "", "", "", false
	}
	sp := strings.IndexAny(line, " \t")
	var fullKey string
	if sp < 0 {
		fullKey, value = line, ""
	} else {
		fullKey, value = line[:sp], strings.TrimLeft(line[sp+1:], " \t")
	}
	parts := strings.SplitN(fullKey, ".", 3)
	if len(parts) != 3 || parts[0] != "store" {
		return "", "", "", false
	}
	return parts[1], strings.ToLower(parts[2]), value, true
}

// MatchingRemote returns the subset of records whose Remote equals the
// normalized destination URL, preserving catalog order.
func MatchingRemote(records []Record, destURL string) []Record {
	norm := NormalizeRemote(destURL)
	var out []Record
	for _, r := range records {
		if r.Remote != "" && r.Remote == norm {
			out = append(out, r)
		}
	}
	return out
}
