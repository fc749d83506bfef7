package version

import "testing"

func TestGet(t *testing.T) {
	oldV, oldSHA, oldBuild := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldBuild }()

	Version, GitSHA, BuildTime = "1.2.3", "abc123", "2026-01-01"
	info := Get()
	if info.Version != "1.2.3" || info.GitSHA != "abc123" {
		t.Fatalf("Get() = %+v", info)
	}
	if got, want := info.String(), "1.2.3 (abc123, built 2026-01-01)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
