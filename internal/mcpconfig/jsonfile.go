package mcpconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// readJSONOrDefault returns a config file's raw JSON text, or defaultDoc
// if the file doesn't exist yet. Reading as text rather than unmarshaling
// into a struct lets sjson.Set patch in the schaltwerk entry without
// disturbing keys this package doesn't know about.
func readJSONOrDefault(path, defaultDoc string) (string, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultDoc, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(raw), nil
}

// writeJSONFile pretty-prints doc and writes it via a tmp-file-then-rename
// so a crash mid-write can never leave a truncated config on disk.
func writeJSONFile(path, doc string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	formatted := pretty.Pretty([]byte(doc))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, formatted, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// removeEmptyParent deletes key from doc if its value is an empty object
// (an empty array is left in place), so clearing out the last MCP server also removes the
// now-pointless wrapper section instead of leaving "mcp": {} behind.
func removeEmptyParent(doc, key string) string {
	result := gjson.Get(doc, key)
	if !result.Exists() {
		return doc
	}
	if result.IsObject() && len(result.Map()) == 0 {
		if out, err := sjson.Delete(doc, key); err == nil {
			return out
		}
	}
	return doc
}
