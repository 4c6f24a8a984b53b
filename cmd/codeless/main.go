package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitalex/codeless/internal/config"
	"github.com/digitalex/codeless/internal/generation"
	"github.com/digitalex/codeless/internal/llm"
	"github.com/digitalex/codeless/internal/logging"
	"github.com/digitalex/codeless/internal/project"
	"github.com/digitalex/codeless/internal/refine"
	"github.com/digitalex/codeless/internal/runner"
	"github.com/digitalex/codeless/internal/server"
	"github.com/digitalex/codeless/internal/store"
	"github.com/digitalex/codeless/internal/watch"
)

var (
	// Global flags
	verbose    bool
	configPath string
	model      string
	workspace  string

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "codeless",
	Short: "codeless - code generation from interface specifications",
	Long: `codeless turns an interface specification into a tested implementation.

Given an abstract interface, it generates a unit test suite, generates an
implementation, runs the tests, and feeds failures back into further
generation rounds until the tests pass or the retry budgets run out.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(verbose); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if model != "" {
			cfg.LLM.Model = model
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// runCmd drives one refinement session for an interface file
var runCmd = &cobra.Command{
	Use:   "run [interface-file]",
	Short: "Generate tests and an implementation for an interface file",
	Long: `Runs one full refinement session:
  1. Generate a unit test suite for the interface
  2. Generate an implementation
  3. Run the tests
  4. Feed failures back into regeneration until the tests pass

The test suite and implementation are written next to the interface file.
Exits non-zero when the retry budgets are exhausted without a passing run.`,
	Args: cobra.ExactArgs(1),
	RunE: runSession,
}

// watchCmd regenerates on file changes
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and regenerate on changes",
	Long: `Watches a project directory. Editing an interface file regenerates its
test suite; editing a test file regenerates the implementation. Generated
files written by codeless itself do not re-trigger generation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

// serveCmd exposes generation over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generation API over HTTP",
	Long: `Starts an HTTP server exposing test generation, implementation
generation, full refinement sessions, and the session audit trail.`,
	RunE: runServe,
}

// sessionsCmd inspects the audit trail
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded refinement sessions",
	RunE:  runSessions,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "codeless.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model override (or set CODELESS_MODEL env)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Workspace directory")

	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	sessionsCmd.Flags().Int("limit", 20, "Maximum sessions to list")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// buildGenerators creates the LLM client and both generators from config.
func buildGenerators(ctx context.Context) (*generation.TestGenerator, *generation.ImplGenerator, error) {
	client, err := llm.NewClient(ctx, &llm.ProviderConfig{
		Provider: llm.Provider(cfg.LLM.Provider),
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLMTimeout(),
	})
	if err != nil {
		return nil, nil, err
	}
	return generation.NewTestGenerator(client), generation.NewImplGenerator(client), nil
}

// openAudit opens the audit store when enabled. A nil store disables
// recording.
func openAudit() (*store.AuditStore, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	return store.Open(cfg.Audit.DatabasePath)
}

// specChecker validates the interface file with the Python compiler before
// any generation happens.
type specChecker struct {
	runner *runner.Runner
	path   string
}

func (c specChecker) CheckSpec(ctx context.Context, _ string) (string, error) {
	return c.runner.CheckSyntax(ctx, c.path)
}

func newRunner(dir string) *runner.Runner {
	rcfg := runner.DefaultConfig(dir)
	if cfg.Runner.Command != "" {
		rcfg.Command = cfg.Runner.Command
	}
	if cfg.Runner.PythonBin != "" {
		rcfg.PythonBin = cfg.Runner.PythonBin
	}
	rcfg.Timeout = cfg.RunnerTimeout()
	return runner.New(rcfg)
}

func newLoop(tests *generation.TestGenerator, impl *generation.ImplGenerator, layout project.Layout, audit *store.AuditStore) *refine.Loop {
	r := newRunner(layout.Dir)
	deps := refine.Deps{
		Tests:     tests,
		Impl:      impl,
		Oracle:    r,
		Workspace: layout,
		Checker:   specChecker{runner: r, path: layout.InterfacePath()},
	}
	if audit != nil {
		deps.Recorder = audit
	}
	return refine.New(refine.Config{
		TestRounds: cfg.Loop.TestRounds,
		ImplRounds: cfg.Loop.ImplRounds,
	}, deps)
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	specBytes, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read interface file: %w", err)
	}
	if _, err := project.GuessInterfaceName(string(specBytes)); err != nil {
		return err
	}

	tests, impl, err := buildGenerators(ctx)
	if err != nil {
		return err
	}
	audit, err := openAudit()
	if err != nil {
		return err
	}
	if audit != nil {
		defer audit.Close()
	}

	layout := project.LayoutForInterfaceFile(args[0])
	loop := newLoop(tests, impl, layout, audit)

	result, err := loop.Run(ctx, string(specBytes))
	if err != nil {
		return err
	}

	if result.Exhausted() {
		fmt.Printf("Gave up after %d test suites and %d implementations.\n",
			result.TestGenerations, result.ImplGenerations)
		fmt.Printf("Last failures:\n%s\n", result.Diagnostic)
		return refine.ErrExhausted
	}

	fmt.Printf("Tests pass after %d implementation(s) and %d test suite(s).\n",
		result.ImplGenerations, result.TestGenerations)
	fmt.Printf("  tests: %s\n  impl:  %s\n", layout.TestPath(), layout.ImplPath())
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := workspace
	if len(args) == 1 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	tests, impl, err := buildGenerators(ctx)
	if err != nil {
		return err
	}

	r := newRunner(abs)
	// The pipeline needs the watcher for self-write suppression and the
	// watcher needs the pipeline as handler; wire in two steps.
	pipeline := watch.NewPipeline(tests, impl, r, nil, cfg.Loop.ImplRounds)
	watcher, err := watch.New(abs, cfg.WatchDebounce(), pipeline)
	if err != nil {
		return err
	}
	pipeline.SetSuppressor(watcher)

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Printf("Watching %s (ctrl-c to stop)\n", abs)
	<-ctx.Done()
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tests, impl, err := buildGenerators(ctx)
	if err != nil {
		return err
	}
	audit, err := openAudit()
	if err != nil {
		return err
	}
	if audit != nil {
		defer audit.Close()
	}

	addr := cfg.Server.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	refiner := &sessionRefiner{tests: tests, impl: impl, audit: audit, baseDir: workspace}
	srv := server.New(server.Config{Addr: addr}, tests, impl, refiner, audit)
	return srv.Run(ctx)
}

// sessionRefiner runs one refinement session per API request, each in its
// own project directory derived from the interface name.
type sessionRefiner struct {
	tests   *generation.TestGenerator
	impl    *generation.ImplGenerator
	audit   *store.AuditStore
	baseDir string
}

func (r *sessionRefiner) Run(ctx context.Context, interfaceSpec string) (*refine.Result, error) {
	name, err := project.GuessInterfaceName(interfaceSpec)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(r.baseDir, project.CamelToSnake(name))
	layout := project.NewLayout(dir, name)
	loop := newLoop(r.tests, r.impl, layout, r.audit)
	return loop.Run(ctx, interfaceSpec)
}

func runSessions(cmd *cobra.Command, args []string) error {
	audit, err := store.Open(cfg.Audit.DatabasePath)
	if err != nil {
		return err
	}
	defer audit.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := audit.ListSessions(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	for _, rec := range records {
		status := "exhausted"
		if rec.Passed {
			status = "passed"
		}
		fmt.Printf("%s  %-9s  impls=%-2d suites=%-2d runs=%-2d  %s\n",
			rec.StartedAt.Format(time.RFC3339), status,
			rec.ImplGenerations, rec.TestGenerations, rec.OracleRuns, rec.ID)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
