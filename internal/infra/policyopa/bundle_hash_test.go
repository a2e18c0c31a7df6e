package policyopa

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBundleHashIgnoresNonNormativeFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "policy.rego"), `package datatoken.authz`)
	writeFile(t, filepath.Join(dir, "data.json"), `{"ok":true}`)

	hashA, err := ComputeBundleHashFromPath(dir)
	if err != nil {
		t.Fatalf("hash A: %v", err)
	}

	for _, name := range []string{".DS_Store", "swap.swp", "policy.rego~", "notes.txt", "bundle.tar.gz"} {
		writeFile(t, filepath.Join(dir, name), "noise")
	}
	if err := os.MkdirAll(filepath.Join(dir, "__MACOSX"), 0o755); err != nil {
		t.Fatalf("mkdir __MACOSX: %v", err)
	}
	writeFile(t, filepath.Join(dir, "__MACOSX", "junk.rego"), "junk")

	hashB, err := ComputeBundleHashFromPath(dir)
	if err != nil {
		t.Fatalf("hash B: %v", err)
	}
	if hashA != hashB {
		t.Fatalf("expected hash to ignore noise, got %s vs %s", hashA, hashB)
	}

	writeFile(t, filepath.Join(dir, "policy.rego"), `package datatoken.authz
default x := 1`)
	hashC, err := ComputeBundleHashFromPath(dir)
	if err != nil {
		t.Fatalf("hash C: %v", err)
	}
	if hashC == hashA {
		t.Fatal("expected policy edits to change the hash")
	}
}

func TestBundleHashEmbeddedMatchesDirectory(t *testing.T) {
	embedded, err := ComputeBundleHashFromFS(defaultPolicy, "policy")
	if err != nil {
		t.Fatalf("embedded hash: %v", err)
	}
	src, err := defaultPolicy.ReadFile("policy/authz.rego")
	if err != nil {
		t.Fatalf("read embedded policy: %v", err)
	}
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "authz.rego"), string(src))
	onDisk, err := ComputeBundleHashFromPath(dir)
	if err != nil {
		t.Fatalf("disk hash: %v", err)
	}
	if embedded != onDisk {
		t.Fatalf("expected equal hashes, got %s vs %s", embedded, onDisk)
	}
}
