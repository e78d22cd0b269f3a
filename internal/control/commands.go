package control

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/schaltwerk/schaltwerk-core/internal/merge"
	"github.com/schaltwerk/schaltwerk-core/internal/project"
	"github.com/schaltwerk/schaltwerk-core/internal/session"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

// CommandFunc is one entry of the in-process command table the desktop
// frontend dispatches against directly, bypassing HTTP entirely when
// frontend and core share a process. args is command-specific; callers
// are expected to know the shape of the command they're invoking.
type CommandFunc func(ctx context.Context, core *project.Core, args map[string]any) (any, error)

// Commands is the representative subset of the frontend's command
// surface: one entry per distinct operation the Session Manager, Merge
// Service, and Persistence Store expose, spanning session lifecycle,
// spec lifecycle, and merge. HTTP handlers in server.go call the same
// underlying methods so behavior never diverges between the two entry
// points.
var Commands = map[string]CommandFunc{
	"list_sessions":       cmdListSessions,
	"get_session":         cmdGetSession,
	"create_session":      cmdCreateSession,
	"cancel_session":      cmdCancelSession,
	"mark_ready":          cmdMarkReady,
	"unmark_ready":        cmdUnmarkReady,
	"convert_to_spec":     cmdConvertToSpec,
	"create_spec":         cmdCreateSpec,
	"update_spec":         cmdUpdateSpec,
	"list_specs":          cmdListSpecs,
	"delete_spec":         cmdDeleteSpec,
	"start_spec_session":  cmdStartSpecSession,
	"launch_agent":        cmdLaunchAgent,
	"preview_merge":       cmdPreviewMerge,
	"merge_session":       cmdMergeSession,
	"get_setup_script":    cmdGetSetupScript,
	"set_setup_script":    cmdSetSetupScript,
	"create_pull_request": cmdCreatePullRequest,
	"prepare_pr":          cmdPreparePR,
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func cmdListSessions(ctx context.Context, core *project.Core, _ map[string]any) (any, error) {
	return core.Sessions.ListEnrichedSessions(ctx)
}

func cmdGetSession(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	idOrName, err := argString(args, "session")
	if err != nil {
		return nil, err
	}
	return resolveSession(ctx, core, idOrName)
}

func cmdCreateSession(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	var req CreateSessionRequest
	if err := mapToStruct(args, &req); err != nil {
		return nil, err
	}
	return core.Sessions.CreateSessionWithAgent(ctx, req.toParams())
}

func cmdCancelSession(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	idOrName, err := argString(args, "session")
	if err != nil {
		return nil, err
	}
	sess, err := resolveSession(ctx, core, idOrName)
	if err != nil {
		return nil, err
	}
	return core.Sessions.CancelSession(ctx, sess.ID, session.CancelConfig{})
}

func cmdMarkReady(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	idOrName, err := argString(args, "session")
	if err != nil {
		return nil, err
	}
	sess, err := resolveSession(ctx, core, idOrName)
	if err != nil {
		return nil, err
	}
	return nil, core.Sessions.MarkReady(ctx, sess.ID)
}

func cmdUnmarkReady(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	idOrName, err := argString(args, "session")
	if err != nil {
		return nil, err
	}
	sess, err := resolveSession(ctx, core, idOrName)
	if err != nil {
		return nil, err
	}
	return nil, core.Sessions.Unmark(ctx, sess.ID)
}

func cmdConvertToSpec(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	idOrName, err := argString(args, "session")
	if err != nil {
		return nil, err
	}
	sess, err := resolveSession(ctx, core, idOrName)
	if err != nil {
		return nil, err
	}
	return core.Sessions.ConvertToSpec(ctx, sess.ID)
}

func cmdCreateSpec(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	var req CreateSpecRequest
	if err := mapToStruct(args, &req); err != nil {
		return nil, err
	}
	sp := &store.Spec{
		Name:           req.Name,
		DisplayName:    req.Name,
		Content:        req.Content,
		RepositoryPath: core.Path,
		RepositoryName: filepath.Base(core.Path),
	}
	if err := core.Store.CreateSpec(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func cmdUpdateSpec(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	name, err := argString(args, "spec")
	if err != nil {
		return nil, err
	}
	var req UpdateSpecRequest
	if err := mapToStruct(args, &req); err != nil {
		return nil, err
	}
	sp, err := core.Store.GetSpecByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return nil, core.Store.UpdateSpecContentByID(ctx, sp.ID, req.Content, req.Append)
}

func cmdListSpecs(ctx context.Context, core *project.Core, _ map[string]any) (any, error) {
	return core.Store.ListSpecs(ctx)
}

func cmdDeleteSpec(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	name, err := argString(args, "spec")
	if err != nil {
		return nil, err
	}
	sp, err := core.Store.GetSpecByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return nil, core.Store.DeleteSpec(ctx, sp.ID)
}

func cmdStartSpecSession(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	name, err := argString(args, "spec")
	if err != nil {
		return nil, err
	}
	var req StartSpecRequest
	if err := mapToStruct(args, &req); err != nil {
		return nil, err
	}
	return core.Sessions.StartSpecSession(ctx, name, req.DisplayName, session.CreateParams{
		AgentType:       req.AgentType,
		SkipPermissions: req.SkipPermissions,
	})
}

func cmdLaunchAgent(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	idOrName, err := argString(args, "session")
	if err != nil {
		return nil, err
	}
	sess, err := resolveSession(ctx, core, idOrName)
	if err != nil {
		return nil, err
	}
	return core.Sessions.LaunchSpecProduction(ctx, sess.ID, session.LaunchParams{})
}

func cmdPreviewMerge(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	idOrName, err := argString(args, "session")
	if err != nil {
		return nil, err
	}
	sess, err := resolveSession(ctx, core, idOrName)
	if err != nil {
		return nil, err
	}
	return core.Merge.Preview(ctx, sess.Name)
}

func cmdMergeSession(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	idOrName, err := argString(args, "session")
	if err != nil {
		return nil, err
	}
	var req MergeRequest
	if err := mapToStruct(args, &req); err != nil {
		return nil, err
	}
	sess, err := resolveSession(ctx, core, idOrName)
	if err != nil {
		return nil, err
	}
	return core.Merge.Merge(ctx, sess.Name, merge.Mode(req.Mode), req.CommitMessage)
}

func cmdCreatePullRequest(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	idOrName, err := argString(args, "session")
	if err != nil {
		return nil, err
	}
	sess, err := resolveSession(ctx, core, idOrName)
	if err != nil {
		return nil, err
	}
	return createPullRequestForSession(ctx, core, sess)
}

func cmdPreparePR(ctx context.Context, core *project.Core, args map[string]any) (any, error) {
	idOrName, err := argString(args, "session")
	if err != nil {
		return nil, err
	}
	sess, err := resolveSession(ctx, core, idOrName)
	if err != nil {
		return nil, err
	}
	core.Events.Emit(ctx, session.EventPreparePR, map[string]string{"session": sess.Name})
	return nil, nil
}

func cmdGetSetupScript(_ context.Context, core *project.Core, _ map[string]any) (any, error) {
	return SetupScriptDTO{SetupScript: core.Config.SetupScript}, nil
}

func cmdSetSetupScript(_ context.Context, core *project.Core, args map[string]any) (any, error) {
	script, err := argString(args, "setup_script")
	if err != nil {
		return nil, err
	}
	core.Config.SetupScript = script
	return nil, saveProjectConfig(core)
}
