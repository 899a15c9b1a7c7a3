// Package cfgutil wraps the external device control tool. All device
// operations go through this boundary: arguments in, combined stdout+stderr
// text out, process exit status as the success signal.
package cfgutil

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/focusshift/shiftd/internal/domain"
)

// DefaultPath is where the control tool ships on a standard install.
const DefaultPath = "/Applications/Apple Configurator.app/Contents/MacOS/cfgutil"

// ExecRunner implements domain.CommandRunner using os/exec. Each invocation
// is independent; there are no retries and no built-in timeout. Callers bound
// execution time via the context (supervision setup legitimately runs for
// many minutes, so no default deadline is imposed here).
type ExecRunner struct{}

// NewExecRunner creates a runner for real system commands.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command, blocking until it exits, and returns the combined
// stdout+stderr text. A nonzero exit status yields a *domain.CommandError
// carrying the status and captured output; the exit status is authoritative,
// not the output content.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err == nil {
		return output, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "", &domain.CommandError{
			Status: exitErr.ExitCode(),
			Output: strings.TrimSpace(output),
		}
	}
	// Spawn failure (binary missing, context canceled before start, ...).
	return "", err
}

// Ensure ExecRunner implements domain.CommandRunner.
var _ domain.CommandRunner = (*ExecRunner)(nil)
