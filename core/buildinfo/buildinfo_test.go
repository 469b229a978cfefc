package buildinfo

import (
	"runtime"
	"testing"
)

func TestReadPrefersLinkedValues(t *testing.T) {
	defer func(v, c, d string) { Version, Commit, Date = v, c, d }(Version, Commit, Date)
	Version, Commit, Date = "v1.4.0", "0123456789abcdef", "2026-01-02T03:04:05Z"

	info := Read()
	if info.Version != "v1.4.0" || info.Date != "2026-01-02T03:04:05Z" {
		t.Fatalf("info = %+v", info)
	}
	if info.Commit != "0123456789ab" {
		t.Fatalf("commit = %q, want shortened hash", info.Commit)
	}
	if info.GoVersion != runtime.Version() {
		t.Fatalf("go version = %q", info.GoVersion)
	}
}

func TestReadWithoutStamp(t *testing.T) {
	defer func(c string) { Commit = c }(Commit)
	Commit = ""

	if info := Read(); info.Commit == "" {
		t.Fatal("commit must never be empty")
	}
}
