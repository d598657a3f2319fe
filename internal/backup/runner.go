package backup

import (
	"context"
	"os"
	"os/exec"
)

// ExecRunner runs the dump tool as a subprocess.
type ExecRunner struct{}

// Run executes the named tool with the given extra environment, returning
// combined output for error context.
func (ExecRunner) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

var _ Runner = ExecRunner{}
