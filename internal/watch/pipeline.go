package watch

import (
	"context"
	"fmt"
	"os"

	"github.com/digitalex/codeless/internal/generation"
	"github.com/digitalex/codeless/internal/logging"
	"github.com/digitalex/codeless/internal/project"
	"github.com/digitalex/codeless/internal/refine"
)

// SyntaxChecker reports the compiler's message for a source file, "" when
// the file compiles.
type SyntaxChecker interface {
	CheckSyntax(ctx context.Context, path string) (string, error)
}

// Suppressor marks paths the pipeline is about to write so the watcher
// ignores the resulting events.
type Suppressor interface {
	MarkSelfWrite(path string)
}

// Pipeline is the watch-mode Handler: interface edits produce a fresh test
// suite, test edits produce a fresh implementation. Each generation is
// retried with the compiler's message as feedback until the output
// compiles or the round budget runs out.
type Pipeline struct {
	tests    refine.TestGenerator
	impl     refine.ImplGenerator
	checker  SyntaxChecker
	suppress Suppressor
	rounds   int
}

// NewPipeline creates a watch-mode pipeline. suppress may be nil when no
// watcher feedback loop exists (for example in tests). rounds bounds the
// syntax-repair retries per event.
func NewPipeline(tests refine.TestGenerator, impl refine.ImplGenerator, checker SyntaxChecker, suppress Suppressor, rounds int) *Pipeline {
	if rounds <= 0 {
		rounds = 3
	}
	return &Pipeline{
		tests:    tests,
		impl:     impl,
		checker:  checker,
		suppress: suppress,
		rounds:   rounds,
	}
}

// SetSuppressor installs the watcher feedback hook after construction,
// resolving the pipeline/watcher circular dependency.
func (p *Pipeline) SetSuppressor(s Suppressor) {
	p.suppress = s
}

// InterfaceChanged regenerates the test suite for an edited interface.
func (p *Pipeline) InterfaceChanged(ctx context.Context, path string) error {
	spec, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read interface: %w", err)
	}
	layout := project.LayoutForInterfaceFile(path)
	log := logging.Get(logging.CategoryWatch)

	var attempts []generation.Attempt
	for round := 0; round < p.rounds; round++ {
		code, err := p.tests.Generate(ctx, generation.TestRequest{
			Interface:     string(spec),
			PriorAttempts: attempts,
		})
		if err != nil {
			return fmt.Errorf("test generation failed: %w", err)
		}

		if err := p.writeTests(layout, code); err != nil {
			return err
		}

		message, err := p.checkSyntax(ctx, layout.TestPath())
		if err != nil {
			return err
		}
		if message == "" {
			log.Info("test suite written: %s", layout.TestPath())
			return nil
		}
		log.Warn("generated tests do not compile (round %d): %s", round+1, message)
		attempts = append(attempts, generation.Attempt{Code: code, Errors: message})
	}
	return fmt.Errorf("generated tests still do not compile after %d rounds", p.rounds)
}

// TestsChanged regenerates the implementation for an edited test suite.
func (p *Pipeline) TestsChanged(ctx context.Context, path string) error {
	tests, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read tests: %w", err)
	}
	layout := project.LayoutForInterfaceFile(path)
	spec, err := os.ReadFile(layout.InterfacePath())
	if err != nil {
		return fmt.Errorf("failed to read interface: %w", err)
	}
	log := logging.Get(logging.CategoryWatch)

	var attempts []generation.Attempt
	for round := 0; round < p.rounds; round++ {
		code, err := p.impl.Generate(ctx, generation.ImplRequest{
			Interface:     string(spec),
			Tests:         string(tests),
			PriorAttempts: attempts,
		})
		if err != nil {
			return fmt.Errorf("implementation generation failed: %w", err)
		}

		if err := p.writeImpl(layout, code); err != nil {
			return err
		}

		message, err := p.checkSyntax(ctx, layout.ImplPath())
		if err != nil {
			return err
		}
		if message == "" {
			log.Info("implementation written: %s", layout.ImplPath())
			return nil
		}
		log.Warn("generated implementation does not compile (round %d): %s", round+1, message)
		attempts = append(attempts, generation.Attempt{Code: code, Errors: message})
	}
	return fmt.Errorf("generated implementation still does not compile after %d rounds", p.rounds)
}

func (p *Pipeline) writeTests(layout project.Layout, code string) error {
	if p.suppress != nil {
		p.suppress.MarkSelfWrite(layout.TestPath())
	}
	if err := layout.WriteTests(code); err != nil {
		return fmt.Errorf("failed to write tests: %w", err)
	}
	return nil
}

func (p *Pipeline) writeImpl(layout project.Layout, code string) error {
	if p.suppress != nil {
		p.suppress.MarkSelfWrite(layout.ImplPath())
	}
	if err := layout.WriteImpl(code); err != nil {
		return fmt.Errorf("failed to write implementation: %w", err)
	}
	return nil
}

func (p *Pipeline) checkSyntax(ctx context.Context, path string) (string, error) {
	if p.checker == nil {
		return "", nil
	}
	message, err := p.checker.CheckSyntax(ctx, path)
	if err != nil {
		return "", fmt.Errorf("syntax check failed: %w", err)
	}
	return message, nil
}
