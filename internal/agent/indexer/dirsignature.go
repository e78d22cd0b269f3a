// Package indexer implements the resumable-session indexes for agents
// whose session logs are large, rarely-changing directory trees: Codex
// (one JSONL file per session, partitioned by date) and Kilocode (a
// dual new/legacy on-disk storage format). Both use the same shape: a
// cheap directory fingerprint short-circuits a full rescan when nothing
// has changed, a per-file modification-time cache avoids re-parsing
// unchanged logs, and the built index is persisted to a small JSON file
// next to the logs so a fresh process doesn't pay the first scan twice.
package indexer

import (
	"os"
	"path/filepath"
)

// DirSignature fingerprints a directory tree well enough to detect that
// nothing changed since the last scan, without re-walking the whole
// tree's file contents. Two signatures compare equal (via ==, since
// every field is comparable) iff the observed structure is unchanged.
type DirSignature struct {
	RootMillis       int64
	RootMillisValid  bool
	LatestDirMillis  int64
	LatestFileMillis int64
	FileCount        int64
}

// computeDirSignature walks dir up to maxDepth levels deep (the root is
// depth 0), tracking the newest subdirectory and file modification times
// plus a count of files matching suffix. It returns an error only when
// the root itself cannot be statted; missing subdirectories encountered
// during the walk are skipped rather than treated as failures.
func computeDirSignature(dir string, maxDepth int, suffix string) (DirSignature, error) {
	var sig DirSignature

	rootInfo, err := os.Stat(dir)
	if err != nil {
		return sig, err
	}
	sig.RootMillis = rootInfo.ModTime().UnixMilli()
	sig.RootMillisValid = true

	var walk func(path string, depth int) error
	walk = func(path string, depth int) error {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			full := filepath.Join(path, e.Name())
			info, err := e.Info()
			if err != nil {
				continue
			}
			millis := info.ModTime().UnixMilli()
			if e.IsDir() {
				if millis > sig.LatestDirMillis {
					sig.LatestDirMillis = millis
				}
				if depth < maxDepth {
					_ = walk(full, depth+1)
				}
				continue
			}
			if suffix != "" && filepath.Ext(e.Name()) != suffix {
				continue
			}
			sig.FileCount++
			if millis > sig.LatestFileMillis {
				sig.LatestFileMillis = millis
			}
		}
		return nil
	}
	_ = walk(dir, 0)
	return sig, nil
}
