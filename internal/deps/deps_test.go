package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unset command: %q", results[2].Detail)
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %#v", missing)
	}
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "stanford-ner.jar")
	if err := os.WriteFile(jar, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}
	results := CheckFiles([]Requirement{
		{Name: "jar", Command: jar},
		{Name: "model", Command: filepath.Join(dir, "english.crf.ser.gz")},
		{Name: "dir", Command: dir},
	})
	if !results[0].Available {
		t.Fatalf("expected jar available: %#v", results[0])
	}
	if results[1].Available || results[2].Available {
		t.Fatalf("expected missing model and directory to fail: %#v", results[1:])
	}
}

func TestResolveJavaPrefersJavaHome(t *testing.T) {
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	java := writeStub(t, filepath.Join(home, "bin"), "java")
	t.Setenv("JAVA_HOME", home)

	if got := ResolveJava(""); got != java {
		t.Fatalf("ResolveJava() = %q, want %q", got, java)
	}
	if got := ResolveJava("/opt/jdk/bin/java"); got != "/opt/jdk/bin/java" {
		t.Fatalf("explicit path should be kept, got %q", got)
	}
}

func TestResolveJavaFallsBackToPath(t *testing.T) {
	t.Setenv("JAVA_HOME", "")
	bin := t.TempDir()
	java := writeStub(t, bin, "java")
	t.Setenv("PATH", bin)

	if got := ResolveJava("java"); got != java {
		t.Fatalf("ResolveJava() = %q, want %q", got, java)
	}
}
