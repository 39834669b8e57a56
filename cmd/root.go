package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentic-research/rowcast/internal/config"
	"github.com/agentic-research/rowcast/internal/ingest"
	"github.com/agentic-research/rowcast/internal/logging"
	"github.com/agentic-research/rowcast/internal/manifest"
	"github.com/spf13/cobra"
)

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

type runOptions struct {
	configPath   string
	outDir       string
	logLevel     string
	logFormat    string
	manifestPath string
	dryRun       bool
	failFast     bool
}

var opts runOptions

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to the JSON or YAML configuration")
	f.StringVarP(&opts.outDir, "out", "o", "", "Output directory for result CSV files")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	f.StringVar(&opts.manifestPath, "manifest", "", "Record the run in this SQLite manifest")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Parse and validate without writing output")
	f.BoolVar(&opts.failFast, "fail-fast", false, "Stop at the first failed file")
	_ = rootCmd.MarkFlagRequired("config")
}

var rootCmd = &cobra.Command{
	Use:           "rowcast [flags] input...",
	Short:         "rowcast: turn XML, CSV, fixed-width and JSON files into typed CSV tables",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := runBatch(cmd.Context(), cmd.OutOrStdout(), opts, args)
		if err != nil || code != 0 {
			return &ExitError{Code: code, Err: err}
		}
		return nil
	},
}

// runBatch executes one run and returns the process exit status.
func runBatch(ctx context.Context, w io.Writer, o runOptions, inputs []string) (int, error) {
	logger := logging.Setup(o.logLevel, o.logFormat)

	if o.outDir == "" && !o.dryRun {
		return 1, errors.New("--out is required unless --dry-run is set")
	}
	raw, err := os.ReadFile(o.configPath)
	if err != nil {
		return 1, fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Decode(raw, filepath.Ext(o.configPath))
	if err != nil {
		return 1, err
	}
	plan, err := config.Compile(cfg)
	if err != nil {
		return 1, err
	}

	observers := ingest.Observers{ingest.LogObserver{Logger: logger}}
	var (
		store *manifest.Store
		runID string
	)
	if o.manifestPath != "" {
		store, err = manifest.Open(o.manifestPath)
		if err != nil {
			return 1, err
		}
		defer func() { _ = store.Close() }()
		runID, err = store.BeginRun(string(raw), time.Now())
		if err != nil {
			return 1, err
		}
		logger = logging.WithRun(logger, runID)
		observers = append(observers, manifest.NewRecorder(store, runID, logger))
	}

	engine, err := ingest.NewEngine(plan, ingest.Options{
		OutputDir: o.outDir,
		DryRun:    o.dryRun,
		FailFast:  o.failFast,
		Logger:    logger,
		Observer:  observers,
	})
	if err != nil {
		return 1, err
	}
	res, runErr := engine.Run(ctx, inputs)
	if res == nil {
		return 1, runErr
	}

	report(w, res)
	if store != nil {
		if err := store.FinishRun(runID, res.Classification, time.Now()); err != nil {
			logger.Warn("manifest finish failed", "err", err)
		}
		_, _ = fmt.Fprintf(w, "run id: %s\n", runID)
	}
	if runErr != nil {
		return 1, runErr
	}
	return res.ExitCode(), nil
}

func report(w io.Writer, res *ingest.BatchResult) {
	var accepted, rejected int64
	for i := range res.Outcomes {
		o := &res.Outcomes[i]
		accepted += o.Accepted
		rejected += o.Rejected
		_, _ = fmt.Fprintln(w, o.Line())
	}
	_, _ = fmt.Fprintf(w, "%s: %d files succeeded, %d failed; %d rows accepted, %d rejected\n",
		res.Classification, res.Succeeded(), res.Failed(), accepted, rejected)
	if res.Aborted {
		_, _ = fmt.Fprintln(w, "run stopped before all inputs were processed")
	}
}

// Execute runs the root command and exits with its status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	code := 1
	var ee *ExitError
	if errors.As(err, &ee) {
		code = ee.Code
		if ee.Err == nil {
			os.Exit(code)
		}
	}
	_, _ = fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(code)
}
