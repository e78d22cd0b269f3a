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

// KilocodeMatch is the result of a successful lookup.
type KilocodeMatch struct {
	SessionID   string
	HasHistory bool
}

type kiloStoredProjectRecord struct {
	ID       string `json:"id"`
	Worktree string `json:"worktree"`
}

type kiloStoredSessionTime struct {
	Updated int64 `json:"updated"`
}

type kiloStoredSessionRecord struct {
	ID        string                 `json:"id"`
	Directory string                 `json:"directory"`
	Time      kiloStoredSessionTime `json:"time"`
}

type kiloIndexEntry struct {
	SessionID  string
	HasHistory bool
}

type kiloTaskCacheEntry struct {
	ModifiedMillis int64  `json:"modified_millis"`
	Cwd            string `json:"cwd"`
	MessageCount   int    `json:"message_count"`
}

type kilocodeIndexState struct {
	index           map[string]kiloIndexEntry
	signature       *legacySignature
	taskCache       map[string]kiloTaskCacheEntry
	diskCacheLoaded bool
}

type legacySignature struct {
	tasks       DirSignature
	workspaces  DirSignature
}

// Kilocode resolves a resumable session for a worktree against the two
// on-disk formats the Kilocode CLI has used: a new OpenCode-compatible
// storage layout checked first, falling back to the legacy
// ~/.kilocode/cli workspace/task-history layout behind a cached index.
type Kilocode struct {
	home string

	mu    sync.RWMutex
	state kilocodeIndexState
	group singleflight.Group
}

// NewKilocode builds an index rooted at the user's home directory
// (both storage formats live under fixed paths relative to $HOME).
func NewKilocode(home string) *Kilocode {
	return &Kilocode{home: home}
}

func (k *Kilocode) storageDir() string     { return filepath.Join(k.home, ".local", "share", "kilo", "storage") }
func (k *Kilocode) tasksDir() string       { return filepath.Join(k.home, ".kilocode", "cli", "global", "tasks") }
func (k *Kilocode) workspacesDir() string  { return filepath.Join(k.home, ".kilocode", "cli", "workspaces") }

// FindSession looks for a resumable session rooted at worktreePath,
// trying the new storage format first and the legacy index second.
func (k *Kilocode) FindSession(worktreePath string) (KilocodeMatch, bool) {
	if match, ok := k.findInNewStorage(worktreePath); ok {
		return match, true
	}
	return k.findInLegacyStorage(worktreePath)
}

func (k *Kilocode) findInNewStorage(worktreePath string) (KilocodeMatch, bool) {
	repoRoot := extractRepoRoot(worktreePath)
	projectDir := filepath.Join(k.storageDir(), "project")

	var projectID string
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return KilocodeMatch{}, false
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(projectDir, e.Name()))
		if err != nil {
			continue
		}
		var rec kiloStoredProjectRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.Worktree == repoRoot {
			projectID = rec.ID
			break
		}
	}
	if projectID == "" {
		return KilocodeMatch{}, false
	}

	sessionDir := filepath.Join(k.storageDir(), "session", projectID)
	sessionEntries, err := os.ReadDir(sessionDir)
	if err != nil {
		return KilocodeMatch{}, false
	}

	var sessions []kiloStoredSessionRecord
	for _, e := range sessionEntries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(sessionDir, e.Name()))
		if err != nil {
			continue
		}
		var rec kiloStoredSessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.Directory == worktreePath {
			sessions = append(sessions, rec)
		}
	}
	if len(sessions) == 0 {
		return KilocodeMatch{}, false
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Time.Updated > sessions[j].Time.Updated })

	for _, rec := range sessions {
		messageDir := filepath.Join(k.storageDir(), "message", rec.ID)
		count := countJSONFiles(messageDir)
		if count > 2 {
			return KilocodeMatch{SessionID: rec.ID, HasHistory: true}, true
		}
	}
	return KilocodeMatch{SessionID: sessions[0].ID, HasHistory: false}, true
}

// extractRepoRoot unwinds a worktree path of the form
// <repo>/.schaltwerk/worktrees/<name> back to <repo>. Paths that don't
// follow that layout are returned unchanged, so a plain repository path
// (no active worktree) still matches itself.
func extractRepoRoot(path string) string {
	current := path
	for {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		if filepath.Base(parent) == "worktrees" {
			grand := filepath.Dir(parent)
			if filepath.Base(grand) == ".schaltwerk" {
				return filepath.Dir(grand)
			}
		}
		current = parent
	}
	return path
}

func countJSONFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			n++
		}
	}
	return n
}

func (k *Kilocode) findInLegacyStorage(worktreePath string) (KilocodeMatch, bool) {
	normalized, err := filepath.EvalSymlinks(worktreePath)
	if err != nil {
		normalized = worktreePath
	}
	normalized, err = filepath.Abs(normalized)
	if err != nil {
		return KilocodeMatch{}, false
	}

	tasksDir, workspacesDir := k.tasksDir(), k.workspacesDir()
	if _, err := os.Stat(tasksDir); err != nil {
		return KilocodeMatch{}, false
	}
	if _, err := os.Stat(workspacesDir); err != nil {
		return KilocodeMatch{}, false
	}

	sig := legacySignature{}
	if s, err := computeDirSignature(tasksDir, 1, ""); err == nil {
		sig.tasks = s
	}
	if s, err := computeDirSignature(workspacesDir, 1, ""); err == nil {
		sig.workspaces = s
	}

	k.mu.RLock()
	if k.state.signature != nil && *k.state.signature == sig && k.state.index != nil {
		entry, ok := k.state.index[normalized]
		k.mu.RUnlock()
		if !ok {
			return KilocodeMatch{}, false
		}
		return KilocodeMatch{SessionID: entry.SessionID, HasHistory: entry.HasHistory}, true
	}
	k.mu.RUnlock()

	result, _, _ := k.group.Do("rebuild", func() (any, error) {
		return k.rebuildLegacyIndex(tasksDir, workspacesDir, sig), nil
	})
	index := result.(map[string]kiloIndexEntry)

	entry, ok := index[normalized]
	if !ok {
		return KilocodeMatch{}, false
	}
	return KilocodeMatch{SessionID: entry.SessionID, HasHistory: entry.HasHistory}, true
}

func (k *Kilocode) rebuildLegacyIndex(tasksDir, workspacesDir string, sig legacySignature) map[string]kiloIndexEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.state.diskCacheLoaded {
		k.state.taskCache = loadLegacyTaskCache(cacheFilePath(tasksDir))
		k.state.diskCacheLoaded = true
	}

	index, nextCache := buildKilocodeIndex(tasksDir, workspacesDir, k.state.taskCache)

	k.state.index = index
	k.state.signature = &sig
	k.state.taskCache = nextCache
	persistLegacyTaskCache(cacheFilePath(tasksDir), nextCache)
	return index
}

func buildKilocodeIndex(tasksDir, workspacesDir string, previousCache map[string]kiloTaskCacheEntry) (map[string]kiloIndexEntry, map[string]kiloTaskCacheEntry) {
	index := make(map[string]kiloIndexEntry)
	nextCache := make(map[string]kiloTaskCacheEntry)

	entries, err := os.ReadDir(workspacesDir)
	if err != nil {
		return index, nextCache
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sessionFile := filepath.Join(workspacesDir, e.Name(), "session.json")
		lastSessionID, taskIDs, ok := readWorkspaceSessionInfo(sessionFile)
		if !ok {
			continue
		}

		for _, taskID := range taskIDs {
			taskHistory := filepath.Join(tasksDir, taskID, "api_conversation_history.json")

			var modifiedMillis int64
			if info, err := os.Stat(taskHistory); err == nil {
				modifiedMillis = info.ModTime().UnixMilli()
			}

			var cwd string
			var messageCount int
			if cached, ok := previousCache[taskHistory]; ok && cached.ModifiedMillis == modifiedMillis {
				cwd = cached.Cwd
				messageCount = cached.MessageCount
			} else {
				cwd = extractCwdFromTaskHistory(taskHistory)
				messageCount = countMessagesInTaskHistory(taskHistory)
			}

			nextCache[taskHistory] = kiloTaskCacheEntry{ModifiedMillis: modifiedMillis, Cwd: cwd, MessageCount: messageCount}

			if cwd == "" {
				continue
			}
			normalized, err := filepath.EvalSymlinks(cwd)
			if err != nil {
				normalized = cwd
			}
			normalized, err = filepath.Abs(normalized)
			if err != nil {
				continue
			}
			index[normalized] = kiloIndexEntry{SessionID: lastSessionID, HasHistory: messageCount > 2}
		}
	}

	return index, nextCache
}

func readWorkspaceSessionInfo(sessionFile string) (lastSessionID string, taskIDs []string, ok bool) {
	data, err := os.ReadFile(sessionFile)
	if err != nil {
		return "", nil, false
	}
	var v struct {
		LastSession struct {
			SessionID string `json:"sessionId"`
		} `json:"lastSession"`
		Tasks []string `json:"taskIds"`
	}
	if err := json.Unmarshal(data, &v); err != nil || v.LastSession.SessionID == "" {
		return "", nil, false
	}
	return v.LastSession.SessionID, v.Tasks, true
}

func countMessagesInTaskHistory(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var messages []json.RawMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return 0
	}
	return len(messages)
}

const workspaceMarker = "# Current Workspace Directory ("

// extractCwdFromTaskHistory looks for the `# Current Workspace Directory
// (<path>)` marker Kilocode embeds in the first user message of a task
// history, either as a plain prefix of the file or inside a message's
// content array.
func extractCwdFromTaskHistory(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if cwd, ok := extractCwdFromText(string(data)); ok {
		return cwd
	}

	var messages []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &messages); err != nil {
		return ""
	}
	for _, m := range messages {
		for _, c := range m.Content {
			if cwd, ok := extractCwdFromText(c.Text); ok {
				return cwd
			}
		}
	}
	return ""
}

func extractCwdFromText(text string) (string, bool) {
	start := strings.Index(text, workspaceMarker)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(workspaceMarker):]
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return "", false
	}
	cwd := strings.TrimSpace(rest[:end])
	if cwd == "" {
		return "", false
	}
	return cwd, true
}

func loadLegacyTaskCache(path string) map[string]kiloTaskCacheEntry {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]kiloTaskCacheEntry{}
	}
	var file struct {
		Version int                            `json:"version"`
		Entries map[string]kiloTaskCacheEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &file); err != nil || file.Version != diskCacheVersion {
		return map[string]kiloTaskCacheEntry{}
	}
	return file.Entries
}

func persistLegacyTaskCache(path string, cache map[string]kiloTaskCacheEntry) {
	payload := struct {
		Version int                            `json:"version"`
		Entries map[string]kiloTaskCacheEntry `json:"entries"`
	}{Version: diskCacheVersion, Entries: cache}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
	}
}
