package hook

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/t7a/bifrost/vcsadapter"
)

func setupRepo(t *testing.T) *vcsadapter.Adapter {
	t.Helper()
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("git %v unavailable: %v: %s", args, err, out)
		}
	}
	return vcsadapter.New(dir)
}

func stage(t *testing.T, dir, path string, content []byte) {
	t.Helper()
	full := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, content, 0644); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command("git", "add", path)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git add %s: %v: %s", path, err, out)
	}
}

func TestPreCommitPassesSmallTextFile(t *testing.T) {
	a := setupRepo(t)
	stage(t, a.Dir, "small.txt", []byte("hello\n"))

	result, err := PreCommit(a, ".gitbifrost", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.OK() {
		t.Fatalf("expected no findings, got %+v", result.Findings)
	}
}

func TestPreCommitFlagsOversizeText(t *testing.T) {
	a := setupRepo(t)
	if err := a.ConfigSet("repo.text-size-threshold", "10", ".gitbifrost"); err != nil {
		t.Fatal(err)
	}
	stage(t, a.Dir, ".gitbifrost", []byte("[repo]\n\ttext-size-threshold = 10\n"))
	stage(t, a.Dir, "big.txt", bytes.Repeat([]byte("a"), 100))

	result, err := PreCommit(a, ".gitbifrost", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.OK() {
		t.Fatal("expected oversize finding")
	}
	found := false
	for _, f := range result.Findings {
		if f.Path == "big.txt" && f.Kind == OversizeUnfiltered {
			found = true
		}
	}
	if !found {
		t.Fatalf("findings = %+v", result.Findings)
	}
}

func TestPreCommitFlagsStaleFilterAttribute(t *testing.T) {
	a := setupRepo(t)
	stage(t, a.Dir, ".gitattributes", []byte("proxy.bin filter=bifrost\n"))
	stage(t, a.Dir, "proxy.bin", []byte("not actually a proxy"))

	result, err := PreCommit(a, ".gitbifrost", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.OK() {
		t.Fatal("expected requires-restage finding")
	}
	if result.Findings[0].Kind != RequiresRestage {
		t.Fatalf("findings = %+v", result.Findings)
	}
}

func TestOversizeMessageUsesThousandsSeparators(t *testing.T) {
	a := setupRepo(t)
	stage(t, a.Dir, "big.txt", bytes.Repeat([]byte("a"), 6_000_000))

	result, err := PreCommit(a, ".gitbifrost", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("findings = %+v", result.Findings)
	}
	want := "Text file too big 'big.txt' (6,000,000 bytes)."
	if got := result.Findings[0].Message; got != want {
		t.Fatalf("message = %q, want %q", got, want)
	}
}

func TestThresholdDisabledWithNegativeOne(t *testing.T) {
	a := setupRepo(t)
	if err := a.ConfigSet("repo.text-size-threshold", "-1", ".gitbifrost"); err != nil {
		t.Fatal(err)
	}
	stage(t, a.Dir, ".gitbifrost", []byte("[repo]\n\ttext-size-threshold = -1\n"))
	stage(t, a.Dir, "huge.txt", bytes.Repeat([]byte("a"), 6_000_000))

	result, err := PreCommit(a, ".gitbifrost", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.OK() {
		t.Fatalf("threshold -1 should disable the check, got %+v", result.Findings)
	}
}
