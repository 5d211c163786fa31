// Package hook implements the pre-commit guard and pre-push orchestrator.
package hook

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/bifrost"
	"github.com/t7a/bifrost/vcsadapter"
)

// DefaultBinThreshold and DefaultTextThreshold are the default oversize
// thresholds, in bytes. -1 disables the corresponding check.
const (
	DefaultBinThreshold  = 100 * 1024
	DefaultTextThreshold = 5 * 1024 * 1024

	// sniffWindow is how much of an unfiltered blob's head is scanned for
	// a NUL byte when the binary attribute is unset, mirroring the first
	// half of git's own 8000-byte binary-detection window.
	sniffWindow = 4000
)

// FindingKind enumerates the two pre-commit policy failures.
type FindingKind int

const (
	OversizeUnfiltered FindingKind = iota
	RequiresRestage
)

func (k FindingKind) String() string {
	if k == RequiresRestage {
		return "requires-restage"
	}
	return "oversize-unfiltered"
}

// Finding is one flagged staged path.
type Finding struct {
	Path    string
	Kind    FindingKind
	Size    int64
	Binary  bool
	Message string
}

// PreCommitResult is the outcome of a full pre-commit sweep.
type PreCommitResult struct {
	Findings []Finding
}

// OK reports whether the commit should proceed.
func (r PreCommitResult) OK() bool { return len(r.Findings) == 0 }

// PreCommit walks every staged path and returns the set of findings, in
// staged-path order. progress is called after each path is checked with
// (done, total); pass nil to skip progress reporting.
func PreCommit(a *vcsadapter.Adapter, cfgFile string, progress func(done, total int)) (result PreCommitResult, err error) {
	defer Return(&err)

	paths, err := a.StagedPaths()
	Ck(err)

	binThreshold, err := thresholdOrDefault(a, "repo.bin-size-threshold", cfgFile, DefaultBinThreshold)
	Ck(err)
	textThreshold, err := thresholdOrDefault(a, "repo.text-size-threshold", cfgFile, DefaultTextThreshold)
	Ck(err)

	for i, path := range paths {
		finding, err := checkPath(a, path, binThreshold, textThreshold)
		Ck(err)
		if finding != nil {
			result.Findings = append(result.Findings, *finding)
		}
		if progress != nil {
			progress(i+1, len(paths))
		}
	}
	return result, nil
}

func thresholdOrDefault(a *vcsadapter.Adapter, key, file string, def int) (threshold int, err error) {
	defer Return(&err)
	v, ok, err := a.ConfigGetInt(key, file)
	Ck(err)
	if !ok {
		return def, nil
	}
	return v, nil
}

func checkPath(a *vcsadapter.Adapter, path string, binThreshold, textThreshold int) (finding *Finding, err error) {
	defer Return(&err)

	filterAttr, err := a.FilterAttribute(path)
	Ck(err)
	filtered := filterAttr == "bifrost"

	if filtered {
		head, err := a.ReadBlobPrefix(":"+path, len(bifrost.Sentinel))
		Ck(err)
		if !bifrost.HasSentinelPrefix(head) {
			return &Finding{
				Path: path, Kind: RequiresRestage,
				Message: fmt.Sprintf("%s is marked filter=bifrost but staged content is not a proxy; restage after checking out clean filters", path),
			}, nil
		}
		return nil, nil
	}

	binary, err := isBinary(a, path)
	Ck(err)

	threshold := textThreshold
	if binary {
		threshold = binThreshold
	}
	if threshold == -1 {
		return nil, nil
	}

	size, err := blobSize(a, path)
	Ck(err)
	if size <= int64(threshold) {
		return nil, nil
	}

	kind := "Text"
	if binary {
		kind = "Binary"
	}
	return &Finding{
		Path: path, Kind: OversizeUnfiltered, Size: size, Binary: binary,
		Message: fmt.Sprintf("%s file too big '%s' (%s bytes).", kind, path, commaInt(size)),
	}, nil
}

// commaInt renders n with thousands separators, e.g. 6000000 -> "6,000,000".
func commaInt(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		s = "-" + s
	}
	return s
}

func isBinary(a *vcsadapter.Adapter, path string) (binary bool, err error) {
	defer Return(&err)
	set, err := a.AttributeIsSet(path, "binary")
	Ck(err)
	if set {
		return true, nil
	}
	head, err := a.ReadBlobPrefix(":"+path, sniffWindow)
	Ck(err)
	return bytes.IndexByte(head, 0) >= 0, nil
}

func blobSize(a *vcsadapter.Adapter, path string) (int64, error) {
	return a.BlobSize(":" + path)
}

// Report writes a human-readable summary of result to w, in the order
// findings were discovered, ending with a guidance line. Returns true if
// the commit should be allowed.
func Report(w io.Writer, result PreCommitResult) bool {
	if result.OK() {
		return true
	}
	for _, f := range result.Findings {
		fmt.Fprintln(w, f.Message)
	}
	fmt.Fprintln(w, "Restage files with an out-of-date filter attribute, or files whose size now exceeds the configured threshold, using an appropriate filter.")
	log.WithField("count", len(result.Findings)).Warn("pre-commit: rejecting commit")
	return false
}
