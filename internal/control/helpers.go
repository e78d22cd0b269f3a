package control

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/schaltwerk/schaltwerk-core/internal/config"
	"github.com/schaltwerk/schaltwerk-core/internal/project"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

// resolveSession resolves a path parameter that may be an opaque session
// ID or a human-readable name: it tries the ID lookup first, and only
// falls back to name lookup on a miss, since IDs are what callers that
// already hold a session get back from a prior response.
func resolveSession(ctx context.Context, core *project.Core, idOrName string) (*store.Session, error) {
	if sess, err := core.Store.GetSessionByID(ctx, idOrName); err == nil {
		return sess, nil
	}
	return core.Store.GetSessionByName(ctx, idOrName)
}

// mapToStruct decodes a loosely-typed command argument map into a
// strongly-typed request struct, matching keys by the struct's json
// tags so the same tags serve both the HTTP and in-process entry
// points.
func mapToStruct(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
		Squash:  true,
	})
	if err != nil {
		return fmt.Errorf("build argument decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("decode command arguments: %w", err)
	}
	return nil
}

func saveProjectConfig(core *project.Core) error {
	return config.SaveProjectConfig(core.Path, core.Config)
}
