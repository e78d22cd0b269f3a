package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// jsonParser adapts encoding/json to koanf's Parser interface so JSON
// config files can be loaded through the same rawbytes.Provider path as
// YAML, keeping a single loadInto implementation for both file formats.
type jsonParser struct{}

func (jsonParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (jsonParser) Marshal(m map[string]interface{}) ([]byte, error) {
	return json.Marshal(m)
}

// writeJSON persists v as pretty-printed JSON with 0600 permissions via
// write-to-tmp-then-rename so a crash mid-write never corrupts the file.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing temp config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming config file into place: %w", err)
	}
	return nil
}
