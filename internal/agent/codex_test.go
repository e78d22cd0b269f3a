package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodexBuildCommand_ContinueLast(t *testing.T) {
	a := NewCodex(nil)
	cmd := a.BuildCommand("/repo/wt", CodexContinueLast, "", false, "")
	assert.Contains(t, cmd, "--sandbox workspace-write")
	assert.Contains(t, cmd, "resume --last")
}

func TestCodexBuildCommand_ResumePicker(t *testing.T) {
	a := NewCodex(nil)
	cmd := a.BuildCommand("/repo/wt", CodexResumePicker, "", false, "")
	assert.Contains(t, cmd, " resume")
	assert.NotContains(t, cmd, "resume --last")
}

func TestCodexBuildCommand_SkipPermissionsUsesDangerSandbox(t *testing.T) {
	a := NewCodex(nil)
	cmd := a.BuildCommand("/repo/wt", "", "do it", true, "")
	assert.Contains(t, cmd, "--sandbox danger-full-access")
}

func TestCodexBuildCommand_FreshWithPrompt(t *testing.T) {
	a := NewCodex(nil)
	cmd := a.BuildCommand("/repo/wt", "", `say "hi"`, false, "")
	assert.Contains(t, cmd, `cd "/repo/wt"`)
	assert.Contains(t, cmd, `\"hi\"`)
}

func TestCodexBuildCommand_ExplicitSessionID(t *testing.T) {
	a := NewCodex(nil)
	cmd := a.BuildCommand("/repo/wt", "abc-123", "", false, "")
	assert.Contains(t, cmd, "resume abc-123")
}
