package policyopa

import (
	"encoding/hex"
	"io/fs"
	"maps"
	"os"
	"path"
	"slices"
	"strings"

	"golang.org/x/crypto/sha3"

	"datatoken/pkg/canonical"
)

// ComputeBundleHashFromPath hashes the policy and data files of a bundle
// directory. Editor leftovers and archives do not change the hash.
func ComputeBundleHashFromPath(bundlePath string) (string, error) {
	return ComputeBundleHashFromFS(os.DirFS(bundlePath), ".")
}

// ComputeBundleHashFromFS is the checksum of a manifest listing every
// hashed file under root with the SHA3-256 of its content.
func ComputeBundleHashFromFS(fsys fs.FS, root string) (string, error) {
	digests := map[string]string{}
	err := fs.WalkDir(fsys, root, func(name string, d fs.DirEntry, walkErr error) error {
		switch {
		case walkErr != nil:
			return walkErr
		case name == root:
			return nil
		case d.IsDir() && ignoredDir(d.Name()):
			return fs.SkipDir
		case d.IsDir() || !hashedFile(d.Name()):
			return nil
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		sum := sha3.Sum256(data)
		digests[strings.TrimPrefix(name, root+"/")] = hex.EncodeToString(sum[:])
		return nil
	})
	if err != nil {
		return "", err
	}

	names := slices.Sorted(maps.Keys(digests))
	files := make([]any, len(names))
	for i, name := range names {
		files[i] = map[string]any{"path": name, "sha3_256": digests[name]}
	}
	return canonical.Checksum(map[string]any{"files": files})
}

func ignoredDir(base string) bool {
	return strings.HasPrefix(base, ".") || base == "vendor" || base == "__MACOSX"
}

// hashedFile reports whether a file takes part in evaluation. Hidden files,
// editor swap files and packed archives never do.
func hashedFile(base string) bool {
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	switch base {
	case "data.json", "manifest.json":
		return true
	}
	return path.Ext(base) == ".rego"
}
