package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalex/codeless/internal/generation"
)

// scriptedTestGen returns canned test suites, one per call.
type scriptedTestGen struct {
	calls    int
	requests []generation.TestRequest
	err      error
}

func (g *scriptedTestGen) Generate(_ context.Context, req generation.TestRequest) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.calls++
	g.requests = append(g.requests, req)
	return fmt.Sprintf("# test suite v%d", g.calls), nil
}

type scriptedImplGen struct {
	calls    int
	requests []generation.ImplRequest
	err      error
}

func (g *scriptedImplGen) Generate(_ context.Context, req generation.ImplRequest) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.calls++
	g.requests = append(g.requests, req)
	return fmt.Sprintf("# impl v%d", g.calls), nil
}

// scriptedOracle fails with a distinct diagnostic per run until passAfter
// runs have happened. passAfter < 0 means never pass.
type scriptedOracle struct {
	runs      int
	passAfter int
	err       error
}

func (o *scriptedOracle) Run(_ context.Context) (bool, string, error) {
	if o.err != nil {
		return false, "", o.err
	}
	o.runs++
	if o.passAfter >= 0 && o.runs > o.passAfter {
		return true, "", nil
	}
	return false, fmt.Sprintf("diagnostic for run %d", o.runs), nil
}

type memWorkspace struct {
	iface string
	tests []string
	impls []string
}

func (w *memWorkspace) WriteInterface(code string) error { w.iface = code; return nil }
func (w *memWorkspace) WriteTests(code string) error     { w.tests = append(w.tests, code); return nil }
func (w *memWorkspace) WriteImpl(code string) error      { w.impls = append(w.impls, code); return nil }

type recordedEvent struct {
	kind  string
	track string
	seq   int
}

type memRecorder struct {
	events []recordedEvent
	final  *Result
}

func (r *memRecorder) SessionStarted(id, spec string) error {
	r.events = append(r.events, recordedEvent{kind: "start"})
	return nil
}

func (r *memRecorder) AttemptRecorded(id, track string, seq int, attempt generation.Attempt) error {
	r.events = append(r.events, recordedEvent{kind: "attempt", track: track, seq: seq})
	return nil
}

func (r *memRecorder) SessionFinished(id string, result *Result) error {
	r.events = append(r.events, recordedEvent{kind: "finish"})
	r.final = result
	return nil
}

const calculatorSpec = `class Calculator(ABC):
    @abstractmethod
    def add(self, a: int, b: int) -> int:
        ...
`

func newLoop(cfg Config, tests *scriptedTestGen, impl *scriptedImplGen, oracle *scriptedOracle, ws *memWorkspace) *Loop {
	return New(cfg, Deps{
		Tests:     tests,
		Impl:      impl,
		Oracle:    oracle,
		Workspace: ws,
	})
}

func TestRunFirstTrySuccess(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{passAfter: 0}
	ws := &memWorkspace{}

	res, err := newLoop(Config{TestRounds: 10, ImplRounds: 3}, tests, impl, oracle, ws).Run(context.Background(), calculatorSpec)
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	assert.True(t, res.Passed)
	assert.False(t, res.Exhausted())
	assert.Equal(t, 1, res.TestGenerations)
	assert.Equal(t, 1, res.ImplGenerations)
	assert.Equal(t, 1, res.OracleRuns)
	assert.Empty(t, res.TestAttempts)
	assert.Empty(t, res.ImplAttempts)
	assert.Equal(t, "# test suite v1", res.TestCode)
	assert.Equal(t, "# impl v1", res.ImplCode)
	assert.Empty(t, res.Diagnostic)
}

func TestRunExhaustsBudgets(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{passAfter: -1}
	ws := &memWorkspace{}

	res, err := newLoop(Config{TestRounds: 2, ImplRounds: 3}, tests, impl, oracle, ws).Run(context.Background(), calculatorSpec)
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.True(t, res.Exhausted())
	assert.False(t, res.Passed)

	// With budgets T and I and an oracle that never passes:
	// 1 + T*I impl generations, 1 + T test generations, 1 + T*(I+1) runs.
	assert.Equal(t, 7, res.ImplGenerations)
	assert.Equal(t, 3, res.TestGenerations)
	assert.Equal(t, 9, res.OracleRuns)
	assert.Len(t, res.TestAttempts, 2)
	assert.Len(t, res.ImplAttempts, 6)
	assert.NotEmpty(t, res.Diagnostic)
}

func TestRunSucceedsAfterImplRetries(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{passAfter: 2} // fail twice, then pass
	ws := &memWorkspace{}

	res, err := newLoop(Config{TestRounds: 10, ImplRounds: 3}, tests, impl, oracle, ws).Run(context.Background(), calculatorSpec)
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, 1, res.TestGenerations, "tests should not be regenerated while impl retries remain")
	assert.Equal(t, 3, res.ImplGenerations)
	assert.Equal(t, 3, res.OracleRuns)
	assert.Len(t, res.ImplAttempts, 2)
}

func TestRunPairsFreshestAttemptWithFreshestDiagnostic(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{passAfter: -1}
	ws := &memWorkspace{}

	res, err := newLoop(Config{TestRounds: 1, ImplRounds: 2}, tests, impl, oracle, ws).Run(context.Background(), calculatorSpec)
	require.NoError(t, err)

	// With T=1 and I=2: one initial run, two impl retries, one test
	// retry. Impl attempt N must carry the diagnostic the oracle produced
	// for impl version N, never a stale one.
	require.Len(t, res.ImplAttempts, 2)
	assert.Equal(t, "# impl v1", res.ImplAttempts[0].Code)
	assert.Equal(t, "diagnostic for run 1", res.ImplAttempts[0].Errors)
	assert.Equal(t, "# impl v2", res.ImplAttempts[1].Code)
	assert.Equal(t, "diagnostic for run 2", res.ImplAttempts[1].Errors)

	require.Len(t, res.TestAttempts, 1)
	assert.Equal(t, "# test suite v1", res.TestAttempts[0].Code)
	assert.Equal(t, "diagnostic for run 3", res.TestAttempts[0].Errors)

	// Every improvement request saw the full history accumulated so far.
	last := impl.requests[len(impl.requests)-1]
	assert.Len(t, last.PriorAttempts, 2)
}

func TestRunImplBudgetResetsAfterTestRegeneration(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	// Pass only on the very last possible run of the second test round.
	oracle := &scriptedOracle{passAfter: 7}
	ws := &memWorkspace{}

	res, err := newLoop(Config{TestRounds: 2, ImplRounds: 3}, tests, impl, oracle, ws).Run(context.Background(), calculatorSpec)
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	// Round two got the full three impl retries again: 1 initial + 3 + 3.
	assert.Equal(t, 7, res.ImplGenerations)
	assert.Equal(t, 2, res.TestGenerations)
}

func TestRunRegeneratedTestsSeeLatestCode(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{passAfter: -1}
	ws := &memWorkspace{}

	_, err := newLoop(Config{TestRounds: 2, ImplRounds: 1}, tests, impl, oracle, ws).Run(context.Background(), calculatorSpec)
	require.NoError(t, err)

	// After the suite is regenerated, the next impl improvement request
	// must reference the new suite, not the retired one.
	last := impl.requests[len(impl.requests)-1]
	assert.Equal(t, "# test suite v2", last.Tests)
	require.Len(t, tests.requests, 3)
	assert.Equal(t, calculatorSpec, tests.requests[1].Interface)
}

func TestRunGeneratorErrorAborts(t *testing.T) {
	boom := errors.New("provider unreachable")
	tests := &scriptedTestGen{err: boom}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{}
	ws := &memWorkspace{}

	res, err := newLoop(DefaultConfig(), tests, impl, oracle, ws).Run(context.Background(), calculatorSpec)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "test generation stage")
	assert.Equal(t, 0, impl.calls, "no impl generation after a fatal test generation error")
	assert.NotEqual(t, StateSucceeded, res.State)
}

func TestRunOracleErrorAborts(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{err: errors.New("python interpreter missing")}
	ws := &memWorkspace{}

	_, err := newLoop(DefaultConfig(), tests, impl, oracle, ws).Run(context.Background(), calculatorSpec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test execution stage")
}

type failingChecker struct{ message string }

func (c failingChecker) CheckSpec(context.Context, string) (string, error) {
	return c.message, nil
}

func TestRunRejectsBrokenSpecBeforeGenerating(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{}
	ws := &memWorkspace{}

	loop := New(DefaultConfig(), Deps{
		Tests:     tests,
		Impl:      impl,
		Oracle:    oracle,
		Workspace: ws,
		Checker:   failingChecker{message: "SyntaxError: invalid syntax (line 3)"},
	})

	_, err := loop.Run(context.Background(), "class Broken(ABC:")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not compile")
	assert.Contains(t, err.Error(), "SyntaxError")
	assert.Equal(t, 0, tests.calls)
	assert.Equal(t, 0, impl.calls)
	assert.Equal(t, 0, oracle.runs)
}

func TestRunWritesArtifactsAsTheyAreProduced(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{passAfter: 1}
	ws := &memWorkspace{}

	_, err := newLoop(DefaultConfig(), tests, impl, oracle, ws).Run(context.Background(), calculatorSpec)
	require.NoError(t, err)

	assert.Equal(t, calculatorSpec, ws.iface)
	assert.Equal(t, []string{"# test suite v1"}, ws.tests)
	assert.Equal(t, []string{"# impl v1", "# impl v2"}, ws.impls)
}

func TestRunRecorderSeesAllEvents(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{passAfter: -1}
	ws := &memWorkspace{}
	rec := &memRecorder{}

	loop := New(Config{TestRounds: 1, ImplRounds: 1}, Deps{
		Tests:     tests,
		Impl:      impl,
		Oracle:    oracle,
		Workspace: ws,
		Recorder:  rec,
	})

	res, err := loop.Run(context.Background(), calculatorSpec)
	require.NoError(t, err)

	require.NotEmpty(t, rec.events)
	assert.Equal(t, "start", rec.events[0].kind)
	assert.Equal(t, "finish", rec.events[len(rec.events)-1].kind)
	require.NotNil(t, rec.final)
	assert.Equal(t, res.SessionID, rec.final.SessionID)

	var implSeqs, testSeqs []int
	for _, ev := range rec.events {
		if ev.kind != "attempt" {
			continue
		}
		switch ev.track {
		case TrackImpl:
			implSeqs = append(implSeqs, ev.seq)
		case TrackTests:
			testSeqs = append(testSeqs, ev.seq)
		}
	}
	// T=1, I=1: one impl attempt is rejected, then one test attempt.
	assert.Equal(t, []int{1}, implSeqs)
	assert.Equal(t, []int{1}, testSeqs)
}

func TestRunTransitionsFormFullTrail(t *testing.T) {
	tests := &scriptedTestGen{}
	impl := &scriptedImplGen{}
	oracle := &scriptedOracle{passAfter: 0}
	ws := &memWorkspace{}

	res, err := newLoop(DefaultConfig(), tests, impl, oracle, ws).Run(context.Background(), calculatorSpec)
	require.NoError(t, err)

	var states []State
	for _, tr := range res.Transitions {
		states = append(states, tr.To)
	}
	assert.Equal(t, []State{
		StateTestGenerated,
		StateImplGenerated,
		StateRunningTests,
		StatePassed,
		StateSucceeded,
	}, states)

	// Transitions chain: each From is the previous To.
	prev := StateInit
	for _, tr := range res.Transitions {
		assert.Equal(t, prev, tr.From)
		prev = tr.To
	}
}

func TestNewClampsBudgets(t *testing.T) {
	l := New(Config{}, Deps{})
	assert.Equal(t, DefaultConfig().TestRounds, l.config.TestRounds)
	assert.Equal(t, DefaultConfig().ImplRounds, l.config.ImplRounds)
}

func TestRunSessionIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		res, err := newLoop(DefaultConfig(), &scriptedTestGen{}, &scriptedImplGen{}, &scriptedOracle{passAfter: 0}, &memWorkspace{}).Run(context.Background(), calculatorSpec)
		require.NoError(t, err)
		require.False(t, seen[res.SessionID])
		require.False(t, strings.Contains(res.SessionID, " "))
		seen[res.SessionID] = true
	}
}
