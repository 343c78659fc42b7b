package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/frontbase/internal/compiler"
	"github.com/roach88/frontbase/internal/config"
	"github.com/roach88/frontbase/internal/engine"
	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/metrics"
	"github.com/roach88/frontbase/internal/process"
	"github.com/roach88/frontbase/internal/schedule"
	"github.com/roach88/frontbase/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	ModelsDir string

	// Factory allows overriding the process factory (for testing).
	// If nil, processes only log their runs.
	Factory process.Factory
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the formula engine",
		Long: `Start the frontbase formula engine.

The engine opens the SQLite document store (creating it if it doesn't
exist), optionally loads CUE model and process definitions into it,
compiles every formula and then recomputes formula fields and runs
scheduled processes until interrupted.

Flags override the matching config file settings.

Example:
  frontbase run --config frontbase.yaml
  frontbase run --db ./frontbase.db --models ./models --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides database.path)")
	cmd.Flags().StringVar(&opts.ModelsDir, "models", "", "CUE definitions directory to load (overrides models.dir)")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}
	if opts.ModelsDir != "" {
		cfg.Models.Dir = opts.ModelsDir
	}

	logger, err := newLogger(cfg.Logging, opts.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logger.Info("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if cfg.Models.Dir != "" {
		if err := loadDefinitions(ctx, st, cfg, logger); err != nil {
			return WrapExitError(ExitCommandError, "failed to load definitions", err)
		}
	}

	eng, registry, err := newEngine(st, cfg, opts.Factory, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure engine", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := eng.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.Handler(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	build := eng.Build()
	fmt.Fprintf(cmd.OutOrStdout(), "Engine started: %d formula(s), %d failed.\n",
		len(build.Formulas), len(build.Failures))
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	runErr := eng.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), time.Duration(cfg.Engine.ShutdownSec)*time.Second)
	defer shutdownCancel()

	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine shutdown incomplete", "error", err)
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", runErr)
	}

	logger.Info("engine stopped gracefully")
	return nil
}

// loadDefinitions compiles the CUE definitions in cfg.Models.Dir and saves
// them to the store, replacing stored definitions with the same keys.
func loadDefinitions(ctx context.Context, st *store.Store, cfg config.Config, logger *slog.Logger) error {
	delim, err := formula.ParseDelimiter(cfg.Engine.Delimiter)
	if err != nil {
		return err
	}

	logger.Info("loading definitions", "dir", cfg.Models.Dir)
	result, loadErrors := compiler.LoadDir(cfg.Models.Dir, compiler.LoadModeFailFast)
	if len(loadErrors) > 0 {
		return loadErrors[0]
	}
	if problems := compiler.Validate(result.Models, result.Processes); len(problems) > 0 {
		errs := make([]error, len(problems))
		for i, p := range problems {
			errs[i] = p
		}
		return errors.Join(errs...)
	}

	compiler.SetDefaultDelimiter(result.Models, delim)
	for _, m := range result.Models {
		if err := st.SaveModel(ctx, m); err != nil {
			return fmt.Errorf("save model %s: %w", m.Key, err)
		}
	}
	for _, p := range result.Processes {
		if err := st.SaveProcess(ctx, p); err != nil {
			return fmt.Errorf("save process %s: %w", p.ID, err)
		}
	}

	logger.Info("definitions loaded",
		"files", result.FileCount,
		"models", len(result.Models),
		"processes", len(result.Processes),
	)
	return nil
}

// newEngine wires the engine, its cron scheduler and its metrics registry
// from cfg.
func newEngine(st *store.Store, cfg config.Config, factory process.Factory, logger *slog.Logger) (*engine.Engine, *prometheus.Registry, error) {
	policy, err := engine.ParseWritePolicy(cfg.Engine.WritePolicy)
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Engine.Location()
	if err != nil {
		return nil, nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New()
	if err := m.Register(registry); err != nil {
		return nil, nil, err
	}

	if factory == nil {
		factory = process.LogFactory(logger)
	}

	eng := engine.New(st, schedule.NewCronScheduler(loc, logger), factory, nil,
		engine.WithWorkers(cfg.Engine.Workers),
		engine.WithCompileConcurrency(cfg.Engine.CompileConcurrency),
		engine.WithMaxDepth(cfg.Engine.MaxNestingDepth),
		engine.WithWritePolicy(policy),
		engine.WithMetrics(m),
		engine.WithLogger(logger),
	)
	return eng, registry, nil
}
