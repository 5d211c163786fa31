package catalog

import (
	"os/exec"
	"testing"

	"github.com/t7a/bifrost/vcsadapter"
)

func setup(t *testing.T) *vcsadapter.Adapter {
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

func TestLoadPrependsInternalStore(t *testing.T) {
	a := setup(t)
	records, err := Load(a, "/repo/.git/bifrost/data")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Name != InternalStoreName {
		t.Fatalf("records = %+v, want only the internal store", records)
	}
	if records[0].URL.Scheme != "file" {
		t.Fatalf("internal store scheme = %s, want file", records[0].URL.Scheme)
	}
}

func TestLoadParsesConfiguredStores(t *testing.T) {
	a := setup(t)
	if err := a.ConfigSet("store.origin.url", "sftp://example.com/blobs", PrimaryConfigFile); err != nil {
		t.Fatal(err)
	}
	if err := a.ConfigSet("store.origin.primary", "true", PrimaryConfigFile); err != nil {
		t.Fatal(err)
	}
	if err := a.ConfigSet("store.origin.remote", "git@example.com:repo.git", PrimaryConfigFile); err != nil {
		t.Fatal(err)
	}

	records, err := Load(a, "/repo/.git/bifrost/data")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %+v, want internal + origin", records)
	}
	origin := records[1]
	if origin.Name != "origin" || !origin.Primary || origin.URL.String() != "sftp://example.com/blobs" {
		t.Fatalf("origin record = %+v", origin)
	}
}

func TestOverlayOverridesPrimary(t *testing.T) {
	a := setup(t)
	if err := a.ConfigSet("store.origin.url", "file:///primary/path", PrimaryConfigFile); err != nil {
		t.Fatal(err)
	}
	if err := a.ConfigSet("store.origin.url", "file:///overlay/path", OverlayConfigFile); err != nil {
		t.Fatal(err)
	}

	records, err := Load(a, "/repo/.git/bifrost/data")
	if err != nil {
		t.Fatal(err)
	}
	if records[1].URL.String() != "file:///overlay/path" {
		t.Fatalf("expected overlay to win, got %s", records[1].URL.String())
	}
}

func TestBuildRecordRequiresURL(t *testing.T) {
	_, err := buildRecord("origin", map[string]string{"primary": "true"})
	if err == nil {
		t.Fatal("expected error for store record missing url")
	}
}

func TestNormalizeRemote(t *testing.T) {
	if NormalizeRemote("git@example.com:repo.git/") != "git@example.com:repo.git" {
		t.Fatal("trailing slash should be trimmed")
	}
	if NormalizeRemote("ssh://example.com/repo.git") != "ssh://example.com/repo.git" {
		t.Fatal("scheme'd URL should pass through unchanged")
	}
}

func TestMatchingRemote(t *testing.T) {
	records := []Record{
		{Name: "a", Remote: NormalizeRemote("ssh://host/repo.git")},
		{Name: "b", Remote: NormalizeRemote("ssh://other/repo.git")},
	}
	got := MatchingRemote(records, "ssh://host/repo.git")
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("got %+v", got)
	}
}
