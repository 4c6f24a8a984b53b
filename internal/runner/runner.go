// Package runner executes generated test suites and reports an aggregated
// diagnostic. It is the verification oracle of the refinement loop: pass or
// fail plus a human-readable account of every failing test, never just the
// first one.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/digitalex/codeless/internal/logging"
)

// Config holds test-execution settings.
type Config struct {
	Command    string        // Test command, space separated (no shell)
	PythonBin  string        // Interpreter for syntax checks
	WorkingDir string        // Directory the command runs in
	Timeout    time.Duration // Per-run timeout
}

// DefaultConfig returns sensible defaults for a project directory.
func DefaultConfig(dir string) Config {
	return Config{
		Command:    "python -m unittest discover -v -p *_test.py",
		PythonBin:  "python",
		WorkingDir: dir,
		Timeout:    5 * time.Minute,
	}
}

// Runner runs the configured test command.
type Runner struct {
	config Config
}

// New creates a runner with the given config.
func New(config Config) *Runner {
	return &Runner{config: config}
}

// Run executes the test suite. passed is false for both assertion failures
// and load/parse failures; diagnostic then carries the aggregated failure
// report that feeds the next generation prompt. err is reserved for
// infrastructure problems (interpreter missing, timeout), which the caller
// treats as fatal.
func (r *Runner) Run(ctx context.Context) (passed bool, diagnostic string, err error) {
	parts := strings.Fields(r.config.Command)
	if len(parts) == 0 {
		return false, "", fmt.Errorf("empty test command")
	}

	execCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, parts[0], parts[1:]...)
	cmd.Dir = r.config.WorkingDir

	start := time.Now()
	outputBytes, execErr := cmd.CombinedOutput()
	output := string(outputBytes)
	logging.Get(logging.CategoryRunner).Debug("test run finished in %s (%d bytes of output)", time.Since(start), len(output))

	if execErr != nil {
		if execCtx.Err() != nil {
			return false, "", fmt.Errorf("test run timed out after %s", r.config.Timeout)
		}
		var exitErr *exec.ExitError
		if !errors.As(execErr, &exitErr) {
			// The command never ran; that is an environment problem,
			// not a verification failure.
			return false, "", fmt.Errorf("failed to run tests: %w", execErr)
		}
	}

	if execErr == nil && !containsFailure(output) {
		return true, "", nil
	}

	return false, aggregateFailures(output), nil
}

// CheckSyntax compiles a single Python file. It returns the compiler's
// message when the file does not compile, and "" when it does.
func (r *Runner) CheckSyntax(ctx context.Context, path string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.config.PythonBin, "-m", "py_compile", path)
	outputBytes, err := cmd.CombinedOutput()
	if err == nil {
		return "", nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return "", fmt.Errorf("failed to run syntax check: %w", err)
	}

	message := strings.TrimSpace(string(outputBytes))
	if message == "" {
		message = fmt.Sprintf("%s does not compile", path)
	}
	return message, nil
}
