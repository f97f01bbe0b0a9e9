package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xinjiayu/rxstream/internal/scenario"
	"github.com/xinjiayu/rxstream/rxtest"
)

// RunOptions run命令的选项
type RunOptions struct {
	Record    string
	Parallel  int
	MaxFrames int
}

// RunReport run命令的输出
type RunReport struct {
	RunID   string             `json:"run_id"`
	Passed  int                `json:"passed"`
	Failed  int                `json:"failed"`
	Results []*scenario.Result `json:"results"`
}

// NewRunCommand 创建run命令
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	runOpts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <scenario-file-or-dir>",
		Short: "Run marble scenarios on virtual time",
		Long: `Run every scenario in a file or directory and compare the output with the
expected marble diagram. Scenarios run in parallel, each on its own virtual clock.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd.Context(), rootOpts, runOpts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&runOpts.Record, "record", "", "write the recorded output of every scenario to this CBOR file")
	cmd.Flags().IntVar(&runOpts.Parallel, "parallel", 0, "number of scenarios run at once (default RXMARBLE_PARALLEL)")
	cmd.Flags().IntVar(&runOpts.MaxFrames, "max-frames", 0, "virtual time limit in frames (default RXMARBLE_MAX_FRAMES)")

	return cmd
}

func runScenarios(ctx context.Context, opts *RootOptions, runOpts *RunOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd)

	files, err := scenario.Discover(path)
	if err != nil {
		_ = formatter.Error(CodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "discover scenarios", err)
	}

	parallel := firstPositive(runOpts.Parallel, opts.Config.Parallel, 1)
	maxFrames := firstPositive(runOpts.MaxFrames, opts.Config.MaxFrames, 0)

	report := &RunReport{
		RunID:   uuid.Must(uuid.NewV7()).String(),
		Results: make([]*scenario.Result, len(files)),
	}
	log := opts.logger().With(slog.String("run_id", report.RunID))
	formatter.VerboseLog("run %s: %d scenario(s), parallel %d", report.RunID, len(files), parallel)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := scenario.Load(file)
			if err != nil {
				return err
			}
			result, err := scenario.Run(s, scenario.Options{MaxFrames: maxFrames, Logger: log})
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			report.Results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		code := CodeLoad
		if scenario.IsValidationError(err) {
			code = CodeInvalid
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run scenarios", err)
	}

	for _, result := range report.Results {
		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	if runOpts.Record != "" {
		if err := writeRecordings(runOpts.Record, report); err != nil {
			_ = formatter.Error(CodeLoad, err.Error(), nil)
			return WrapExitError(ExitCommandError, "write recording", err)
		}
		formatter.VerboseLog("recorded %d scenario(s) to %s", len(report.Results), runOpts.Record)
	}

	if err := formatter.Success(report, func(w io.Writer) { writeRunText(w, report) }); err != nil {
		return err
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
	}
	return nil
}

func writeRunText(w io.Writer, report *RunReport) {
	for _, result := range report.Results {
		if result.Passed {
			fmt.Fprintf(w, "✓ %s %s\n", result.Name, result.Actual)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", result.Name)
		for _, mismatch := range result.Mismatches {
			fmt.Fprintf(w, "    %s\n", mismatch)
		}
	}
	fmt.Fprintf(w, "%d passed, %d failed\n", report.Passed, report.Failed)
}

// writeRecordings 按场景顺序把输出写入CBOR流
func writeRecordings(path string, report *RunReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := rxtest.NewEncoder(f)
	recordedAt := time.Now().UTC()
	for _, result := range report.Results {
		recording := rxtest.NewRecording(report.RunID, result.Name, result.Frame, recordedAt, result.Messages)
		if err := enc.Encode(recording); err != nil {
			return fmt.Errorf("encode %s: %w", result.Name, err)
		}
	}
	return f.Close()
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
