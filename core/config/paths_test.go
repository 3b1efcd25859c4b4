package config

import (
	"path/filepath"
	"testing"
)

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("linux", "/home/u", "", "server.yaml"); got != filepath.Join("/etc", "libsync", "server.yaml") {
		t.Fatalf("linux path = %q", got)
	}
	if got := ResolveConfigPath("darwin", "/Users/u", "", "server.yaml"); got != filepath.Join("/Users/u", "Library", "Application Support", "libsync", "server.yaml") {
		t.Fatalf("darwin path = %q", got)
	}
	if got := ResolveConfigPath("windows", "", `D:\Data\`, "server.yaml"); got != filepath.Join(`D:\Data`, "libsync", "server.yaml") {
		t.Fatalf("windows path = %q", got)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("LIBSYNC_TEST_ENV", "")
	if got := GetEnv("LIBSYNC_TEST_ENV", "def"); got != "def" {
		t.Fatalf("empty env = %q; want def", got)
	}
	t.Setenv("LIBSYNC_TEST_ENV", "x")
	if got := GetEnv("LIBSYNC_TEST_ENV", "def"); got != "x" {
		t.Fatalf("set env = %q; want x", got)
	}
}
