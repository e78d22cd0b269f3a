package indexer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DisableCodexIndexEnv disables the Codex resume index entirely (every
// lookup behaves as a cache miss that falls straight to the legacy
// linear scan), for environments where the index's filesystem watching
// behavior is undesirable.
const DisableCodexIndexEnv = "SCHALTWERK_DISABLE_CODEX_INDEX"

func indexingDisabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(DisableCodexIndexEnv)))
	if v == "" || v == "0" || v == "false" || v == "no" {
		return false
	}
	return true
}

// codexSessionFile is one file's position in a per-cwd ranking.
type codexSessionFile struct {
	Path           string
	ModifiedMillis int64
}

type codexSnapshot struct {
	PerCwd       map[string][]codexSessionFile
	GlobalNewest string
	ScannedFiles int
}

type codexIndexState struct {
	snapshot        *codexSnapshot
	signature       *DirSignature
	cache           map[string]cachedFileEntry
	diskCacheLoaded bool
}

// Codex indexes `~/.codex/sessions` so that "is there a session to
// resume for this worktree" answers in O(1) once warm, without
// re-parsing thousands of historical JSONL transcripts on every launch.
type Codex struct {
	sessionsDir string
	mu          sync.RWMutex
	state       codexIndexState
	group       singleflight.Group
}

// NewCodex builds an index rooted at sessionsDir (typically
// `~/.codex/sessions`).
func NewCodex(sessionsDir string) *Codex {
	return &Codex{sessionsDir: sessionsDir}
}

// CodexMatch is the result of a successful lookup.
type CodexMatch struct {
	ResumePath     string
	IsGlobalNewest bool
}

// MatchForCwd answers whether there is a resumable Codex session rooted
// at targetCwd. found=false means no matching session exists (not an
// error); a non-nil error means a filesystem problem prevented even the
// bounded legacy fallback from running. A sessions directory that does
// not exist is reported as found=false with no error.
func (c *Codex) MatchForCwd(targetCwd string) (CodexMatch, bool, error) {
	if indexingDisabled() {
		c.mu.Lock()
		c.state = codexIndexState{}
		c.mu.Unlock()
		return c.legacyMatch(targetCwd)
	}

	sig, err := computeDirSignature(c.sessionsDir, 3, ".jsonl")
	if err != nil {
		return c.legacyMatch(targetCwd)
	}

	c.mu.RLock()
	if c.state.signature != nil && *c.state.signature == sig && c.state.snapshot != nil {
		snap := c.state.snapshot
		c.mu.RUnlock()
		files, ok := snap.PerCwd[targetCwd]
		if !ok || len(files) == 0 {
			return CodexMatch{}, false, nil
		}
		return CodexMatch{ResumePath: files[0].Path, IsGlobalNewest: files[0].Path == snap.GlobalNewest}, true, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do("rebuild", func() (any, error) {
		return c.rebuild(sig)
	})
	if err != nil {
		return c.legacyMatch(targetCwd)
	}
	snap := result.(*codexSnapshot)

	files, ok := snap.PerCwd[targetCwd]
	if !ok || len(files) == 0 {
		return CodexMatch{}, false, nil
	}
	return CodexMatch{ResumePath: files[0].Path, IsGlobalNewest: files[0].Path == snap.GlobalNewest}, true, nil
}

func (c *Codex) rebuild(sig DirSignature) (*codexSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.diskCacheLoaded {
		c.state.cache = loadDiskCache(cacheFilePath(c.sessionsDir), c.sessionsDir)
		c.state.diskCacheLoaded = true
	}

	snapshot, nextCache, hits, misses, skipped := buildCodexSnapshot(c.sessionsDir, c.state.cache)

	c.state.snapshot = snapshot
	c.state.signature = &sig
	c.state.cache = nextCache

	if misses > 0 || skipped > 0 || len(nextCache) != hits {
		persistDiskCache(cacheFilePath(c.sessionsDir), nextCache)
	}
	return snapshot, nil
}

// buildCodexSnapshot performs the (unbounded-depth) full walk that
// populates the per-cwd index, reusing previousCache entries whose
// modification time hasn't changed.
func buildCodexSnapshot(root string, previousCache map[string]cachedFileEntry) (*codexSnapshot, map[string]cachedFileEntry, int, int, int) {
	snapshot := &codexSnapshot{PerCwd: make(map[string][]codexSessionFile)}
	nextCache := make(map[string]cachedFileEntry, len(previousCache))

	var globalNewestMillis int64
	hits, misses, skipped := 0, 0, 0

	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		millis := info.ModTime().UnixMilli()

		var cwds []string
		if prev, ok := previousCache[path]; ok && prev.ModifiedMillis == millis {
			cwds = prev.Cwds
			hits++
		} else {
			extracted, err := extractSessionCwds(path)
			if err != nil {
				skipped++
				return nil
			}
			cwds = extracted
			misses++
		}
		nextCache[path] = cachedFileEntry{ModifiedMillis: millis, Cwds: cwds}

		if millis > globalNewestMillis || snapshot.GlobalNewest == "" {
			globalNewestMillis = millis
			snapshot.GlobalNewest = path
		}
		for _, cwd := range cwds {
			snapshot.PerCwd[cwd] = append(snapshot.PerCwd[cwd], codexSessionFile{Path: path, ModifiedMillis: millis})
		}
		snapshot.ScannedFiles++
		return nil
	})

	for cwd, files := range snapshot.PerCwd {
		sort.Slice(files, func(i, j int) bool {
			if files[i].ModifiedMillis != files[j].ModifiedMillis {
				return files[i].ModifiedMillis > files[j].ModifiedMillis
			}
			return files[i].Path > files[j].Path
		})
		snapshot.PerCwd[cwd] = files
	}

	return snapshot, nextCache, hits, misses, skipped
}

// extractSessionCwds reads a Codex JSONL transcript line by line looking
// for candidate workspace paths: a top-level "cwd" field, a nested
// "payload.cwd" field, and any "<cwd>...</cwd>" tag embedded in
// payload.content[].text. Candidates are de-duplicated, preserving
// first-seen order.
func extractSessionCwds(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	pushUnique := func(cwd string) {
		cwd = strings.TrimSpace(cwd)
		if cwd == "" || seen[cwd] {
			return
		}
		seen[cwd] = true
		out = append(out, cwd)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v map[string]any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			continue
		}
		if cwd, ok := v["cwd"].(string); ok {
			pushUnique(cwd)
		}
		payload, _ := v["payload"].(map[string]any)
		if payload == nil {
			continue
		}
		if cwd, ok := payload["cwd"].(string); ok {
			pushUnique(cwd)
		}
		content, _ := payload["content"].([]any)
		for _, item := range content {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			text, ok := entry["text"].(string)
			if !ok {
				continue
			}
			for _, cwd := range extractCwdsFromText(text) {
				pushUnique(cwd)
			}
		}
	}
	return out, nil
}

// extractCwdsFromText scans text for every `<cwd>...</cwd>` tag.
func extractCwdsFromText(text string) []string {
	var out []string
	const open, close = "<cwd>", "</cwd>"
	rest := text
	for {
		start := strings.Index(rest, open)
		if start < 0 {
			break
		}
		rest = rest[start+len(open):]
		end := strings.Index(rest, close)
		if end < 0 {
			break
		}
		out = append(out, rest[:end])
		rest = rest[end+len(close):]
	}
	return out
}

// legacyMatch is the fallback used when the index can't be trusted: a
// bounded, newest-first linear scan of the date-partitioned directory
// tree, returning the first log whose extracted cwds include targetCwd.
func (c *Codex) legacyMatch(targetCwd string) (CodexMatch, bool, error) {
	years, err := sortedDescDirs(c.sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return CodexMatch{}, false, nil
		}
		return CodexMatch{}, false, err
	}

	var newest string
	var match string
	for _, year := range years {
		months, err := sortedDescDirs(filepath.Join(c.sessionsDir, year))
		if err != nil {
			continue
		}
		for _, month := range months {
			days, err := sortedDescDirs(filepath.Join(c.sessionsDir, year, month))
			if err != nil {
				continue
			}
			for _, day := range days {
				dir := filepath.Join(c.sessionsDir, year, month, day)
				files, err := sortedDescFiles(dir)
				if err != nil {
					continue
				}
				for _, f := range files {
					full := filepath.Join(dir, f)
					if newest == "" {
						newest = full
					}
					if match != "" {
						continue
					}
					cwds, err := extractSessionCwds(full)
					if err != nil {
						continue
					}
					for _, cwd := range cwds {
						if cwd == targetCwd {
							match = full
							break
						}
					}
				}
			}
		}
	}

	if match == "" {
		return CodexMatch{}, false, nil
	}
	return CodexMatch{ResumePath: match, IsGlobalNewest: match == newest}, true, nil
}

func sortedDescDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func sortedDescFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}
