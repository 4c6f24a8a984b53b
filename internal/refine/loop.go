// Package refine implements the two-level refinement loop at the heart of
// codeless: generate a test suite, generate an implementation, run the
// tests, and feed failures back into further generation rounds until the
// tests pass or the retry budgets run out.
//
// The two-level structure encodes a prior: most failures are implementation
// bugs, fixable by re-prompting; an implementation that still fails after
// several honest attempts makes the test suite itself suspect, so the loop
// escalates to regenerating the tests instead of looping forever against a
// possibly-bad suite.
package refine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/digitalex/codeless/internal/generation"
	"github.com/digitalex/codeless/internal/logging"
)

// State represents the refinement session state.
type State string

const (
	StateInit          State = "init"
	StateTestGenerated State = "test_generated"
	StateImplGenerated State = "impl_generated"
	StateRunningTests  State = "running_tests"
	StatePassed        State = "passed"
	StateImplRetry     State = "impl_retry"
	StateTestRetry     State = "test_retry"
	StateSucceeded     State = "terminal_success"
	StateExhausted     State = "terminal_exhausted"
)

// ErrExhausted reports that a session gave up without passing tests.
// Run signals exhaustion through Result, not as an error; callers that
// need error semantics (a CLI exit status) wrap this sentinel.
var ErrExhausted = errors.New("refinement budgets exhausted without passing tests")

// Attempt-history tracks, used by the audit recorder.
const (
	TrackTests = "tests"
	TrackImpl  = "impl"
)

// TestGenerator produces a unit test suite for an interface.
type TestGenerator interface {
	Generate(ctx context.Context, req generation.TestRequest) (string, error)
}

// ImplGenerator produces an implementation for an interface and test suite.
type ImplGenerator interface {
	Generate(ctx context.Context, req generation.ImplRequest) (string, error)
}

// Oracle executes the current test suite against the current implementation.
// diagnostic aggregates every failing test and is empty on success. err is
// reserved for infrastructure failures, which abort the session.
type Oracle interface {
	Run(ctx context.Context) (passed bool, diagnostic string, err error)
}

// Workspace persists generated artifacts where the oracle can see them.
// The controller is the only writer during a session.
type Workspace interface {
	WriteInterface(code string) error
	WriteTests(code string) error
	WriteImpl(code string) error
}

// SpecChecker validates the interface specification before any generation
// is attempted. It returns the compiler's message when the interface is
// broken, and "" when it is fine.
type SpecChecker interface {
	CheckSpec(ctx context.Context, interfaceSpec string) (string, error)
}

// Recorder receives audit events. Recorder failures are logged, never
// fatal: audit is best effort and must not influence the loop.
type Recorder interface {
	SessionStarted(id, interfaceSpec string) error
	AttemptRecorded(id, track string, seq int, attempt generation.Attempt) error
	SessionFinished(id string, result *Result) error
}

// Config bounds the loop.
type Config struct {
	TestRounds int // Outer budget: test-suite regenerations
	ImplRounds int // Inner budget: impl regenerations per test round
}

// DefaultConfig returns the budgets of the reference workflow.
func DefaultConfig() Config {
	return Config{
		TestRounds: 10,
		ImplRounds: 3,
	}
}

// Deps are the collaborators a Loop drives. Checker and Recorder are
// optional; everything else is required.
type Deps struct {
	Tests     TestGenerator
	Impl      ImplGenerator
	Oracle    Oracle
	Workspace Workspace
	Checker   SpecChecker
	Recorder  Recorder
}

// Transition records one state change for post-run inspection.
type Transition struct {
	From State
	To   State
	At   time.Time
	Note string
}

// Result is the outcome of one refinement session.
type Result struct {
	SessionID  string
	State      State
	Passed     bool
	TestCode   string
	ImplCode   string
	Diagnostic string

	// Attempt histories, oldest first. Owned by the session; never shared.
	TestAttempts []generation.Attempt
	ImplAttempts []generation.Attempt

	TestGenerations int
	ImplGenerations int
	OracleRuns      int

	Transitions []Transition
	Duration    time.Duration
}

// Exhausted reports whether the session gave up without passing tests.
func (r *Result) Exhausted() bool {
	return r.State == StateExhausted
}

// Loop is the refinement controller. It is strictly sequential: one
// in-flight generation or oracle call at a time, because every step's input
// depends on the previous step's output.
type Loop struct {
	config Config
	deps   Deps
}

// New creates a refinement loop.
func New(config Config, deps Deps) *Loop {
	if config.TestRounds <= 0 {
		config.TestRounds = DefaultConfig().TestRounds
	}
	if config.ImplRounds <= 0 {
		config.ImplRounds = DefaultConfig().ImplRounds
	}
	return &Loop{config: config, deps: deps}
}

// session is the per-run working state, created at the start of a run and
// discarded at the end.
type session struct {
	loop   *Loop
	result *Result
	start  time.Time

	testCode string
	implCode string

	passed     bool
	diagnostic string
}

func (s *session) transition(to State, format string, args ...interface{}) {
	note := fmt.Sprintf(format, args...)
	s.result.Transitions = append(s.result.Transitions, Transition{
		From: s.result.State,
		To:   to,
		At:   time.Now(),
		Note: note,
	})
	s.result.State = to
	logging.Get(logging.CategoryLoop).Debug("%s -> %s: %s", s.result.Transitions[len(s.result.Transitions)-1].From, to, note)
}

// Run drives one refinement session for an interface specification.
//
// Budget policy: the impl budget resets to its full configured value after
// each test regeneration, and each test round restarts from the existing
// implementation. With an oracle that never passes, the session performs
// 1 + TestRounds*ImplRounds implementation generations and
// 1 + TestRounds test generations before exhausting.
//
// Failure policy: generator and oracle infrastructure errors abort the
// session with an error identifying the stage. Verification failures never
// abort; their diagnostics drive the next round.
func (l *Loop) Run(ctx context.Context, interfaceSpec string) (*Result, error) {
	s := &session{
		loop: l,
		result: &Result{
			SessionID: uuid.NewString(),
			State:     StateInit,
		},
		start: time.Now(),
	}

	log := logging.Get(logging.CategoryLoop)
	log.Info("session %s starting (test budget %d, impl budget %d)",
		s.result.SessionID, l.config.TestRounds, l.config.ImplRounds)
	l.recordStart(s.result.SessionID, interfaceSpec)

	result, err := l.run(ctx, s, interfaceSpec)
	result.Duration = time.Since(s.start)
	l.recordFinish(result)

	if err != nil {
		log.Error("session %s aborted: %v", result.SessionID, err)
		return result, err
	}
	log.Info("session %s finished in state %s after %s (%d impl generations, %d test generations)",
		result.SessionID, result.State, result.Duration, result.ImplGenerations, result.TestGenerations)
	return result, nil
}

func (l *Loop) run(ctx context.Context, s *session, interfaceSpec string) (*Result, error) {
	res := s.result

	if err := l.deps.Workspace.WriteInterface(interfaceSpec); err != nil {
		return res, fmt.Errorf("workspace stage failed: %w", err)
	}

	// A broken interface makes every generation call pointless; reject it
	// before spending any.
	if l.deps.Checker != nil {
		message, err := l.deps.Checker.CheckSpec(ctx, interfaceSpec)
		if err != nil {
			return res, fmt.Errorf("specification check stage failed: %w", err)
		}
		if message != "" {
			return res, fmt.Errorf("interface specification does not compile: %s", message)
		}
	}

	// Initial test suite.
	testCode, err := l.deps.Tests.Generate(ctx, generation.TestRequest{Interface: interfaceSpec})
	if err != nil {
		return res, fmt.Errorf("test generation stage failed: %w", err)
	}
	s.testCode = testCode
	res.TestGenerations++
	s.transition(StateTestGenerated, "initial test suite generated")
	if err := l.deps.Workspace.WriteTests(testCode); err != nil {
		return res, fmt.Errorf("workspace stage failed: %w", err)
	}

	// Initial implementation.
	implCode, err := l.deps.Impl.Generate(ctx, generation.ImplRequest{
		Interface: interfaceSpec,
		Tests:     s.testCode,
	})
	if err != nil {
		return res, fmt.Errorf("implementation generation stage failed: %w", err)
	}
	s.implCode = implCode
	res.ImplGenerations++
	s.transition(StateImplGenerated, "initial implementation generated")
	if err := l.deps.Workspace.WriteImpl(implCode); err != nil {
		return res, fmt.Errorf("workspace stage failed: %w", err)
	}

	if err := l.runOracle(ctx, s); err != nil {
		return res, err
	}

	implBudget := l.config.ImplRounds
	testBudget := l.config.TestRounds

	for !s.passed && testBudget > 0 {
		for !s.passed && implBudget > 0 {
			s.transition(StateImplRetry, "impl budget remaining %d", implBudget)
			if err := l.improveImpl(ctx, s, interfaceSpec); err != nil {
				return res, err
			}
			if err := l.runOracle(ctx, s); err != nil {
				return res, err
			}
			implBudget--
		}
		if s.passed {
			break
		}

		// The implementation would not converge against this suite: the
		// suite itself is now suspect. Regenerate it and restart impl
		// attempts from the existing implementation.
		s.transition(StateTestRetry, "test budget remaining %d", testBudget)
		if err := l.improveTests(ctx, s, interfaceSpec); err != nil {
			return res, err
		}
		if err := l.runOracle(ctx, s); err != nil {
			return res, err
		}
		implBudget = l.config.ImplRounds
		testBudget--
	}

	res.Passed = s.passed
	res.TestCode = s.testCode
	res.ImplCode = s.implCode
	res.Diagnostic = s.diagnostic

	if s.passed {
		s.transition(StateSucceeded, "tests pass")
	} else {
		s.transition(StateExhausted, "budgets exhausted, giving up")
	}
	return res, nil
}

// runOracle executes the tests and records the outcome. A non-passing run
// is not an error: the diagnostic becomes feedback for the next round.
func (l *Loop) runOracle(ctx context.Context, s *session) error {
	s.transition(StateRunningTests, "running test suite")
	passed, diagnostic, err := l.deps.Oracle.Run(ctx)
	if err != nil {
		return fmt.Errorf("test execution stage failed: %w", err)
	}
	s.passed = passed
	s.diagnostic = diagnostic
	s.result.OracleRuns++
	if passed {
		s.transition(StatePassed, "all tests pass")
	}
	return nil
}

// improveImpl appends the rejected implementation to the history and
// requests an improved one. The freshest history entry always pairs the
// just-rejected code with the diagnostic the oracle just returned for it.
func (l *Loop) improveImpl(ctx context.Context, s *session, interfaceSpec string) error {
	res := s.result
	attempt := generation.Attempt{Code: s.implCode, Errors: s.diagnostic}
	res.ImplAttempts = append(res.ImplAttempts, attempt)
	l.recordAttempt(res.SessionID, TrackImpl, len(res.ImplAttempts), attempt)

	implCode, err := l.deps.Impl.Generate(ctx, generation.ImplRequest{
		Interface:     interfaceSpec,
		Tests:         s.testCode,
		PriorAttempts: res.ImplAttempts,
	})
	if err != nil {
		return fmt.Errorf("implementation generation stage failed: %w", err)
	}
	s.implCode = implCode
	res.ImplGenerations++
	if err := l.deps.Workspace.WriteImpl(implCode); err != nil {
		return fmt.Errorf("workspace stage failed: %w", err)
	}
	return nil
}

// improveTests appends the suspect test suite to the history and requests
// an improved one.
func (l *Loop) improveTests(ctx context.Context, s *session, interfaceSpec string) error {
	res := s.result
	attempt := generation.Attempt{Code: s.testCode, Errors: s.diagnostic}
	res.TestAttempts = append(res.TestAttempts, attempt)
	l.recordAttempt(res.SessionID, TrackTests, len(res.TestAttempts), attempt)

	testCode, err := l.deps.Tests.Generate(ctx, generation.TestRequest{
		Interface:     interfaceSpec,
		PriorAttempts: res.TestAttempts,
	})
	if err != nil {
		return fmt.Errorf("test generation stage failed: %w", err)
	}
	s.testCode = testCode
	res.TestGenerations++
	if err := l.deps.Workspace.WriteTests(testCode); err != nil {
		return fmt.Errorf("workspace stage failed: %w", err)
	}
	return nil
}

func (l *Loop) recordStart(id, interfaceSpec string) {
	if l.deps.Recorder == nil {
		return
	}
	if err := l.deps.Recorder.SessionStarted(id, interfaceSpec); err != nil {
		logging.Get(logging.CategoryLoop).Warn("failed to record session start: %v", err)
	}
}

func (l *Loop) recordAttempt(id, track string, seq int, attempt generation.Attempt) {
	if l.deps.Recorder == nil {
		return
	}
	if err := l.deps.Recorder.AttemptRecorded(id, track, seq, attempt); err != nil {
		logging.Get(logging.CategoryLoop).Warn("failed to record %s attempt %d: %v", track, seq, err)
	}
}

func (l *Loop) recordFinish(result *Result) {
	if l.deps.Recorder == nil {
		return
	}
	if err := l.deps.Recorder.SessionFinished(result.SessionID, result); err != nil {
		logging.Get(logging.CategoryLoop).Warn("failed to record session finish: %v", err)
	}
}
