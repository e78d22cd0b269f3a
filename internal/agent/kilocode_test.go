package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKilocodeBuildCommand_FreshPrompt(t *testing.T) {
	a := NewKilocode(nil)
	cmd := a.BuildCommand("/repo/wt", "", "it's time", false, "")
	assert.Contains(t, cmd, `--prompt '`)
	assert.Contains(t, cmd, `it'"'"'s time`)
}

func TestKilocodeBuildCommand_NoSessionNoPrompt(t *testing.T) {
	a := NewKilocode(nil)
	cmd := a.BuildCommand("/repo/wt", "", "", false, "")
	assert.Equal(t, `cd "/repo/wt" && "kilocode"`, cmd)
}
