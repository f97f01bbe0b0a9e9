package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xinjiayu/rxstream/internal/scenario"
)

// ValidationResult validate命令中单个文件的结果
type ValidationResult struct {
	File   string `json:"file"`
	Name   string `json:"name,omitempty"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// NewValidateCommand 创建validate命令
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>",
		Short: "Validate scenarios without running them",
		Long: `Check that scenario files decode, that every source and operator they name
exists and that every marble diagram parses.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	files, err := scenario.Discover(path)
	if err != nil {
		_ = formatter.Error(CodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "discover scenarios", err)
	}

	results := make([]ValidationResult, 0, len(files))
	invalid := 0
	for _, file := range files {
		result := ValidationResult{File: file, Valid: true}
		s, err := scenario.Load(file)
		if err != nil {
			result.Valid = false
			result.Reason = err.Error()
			invalid++
		} else {
			result.Name = s.Name
		}
		formatter.VerboseLog("validated %s: %t", file, result.Valid)
		results = append(results, result)
	}

	if invalid > 0 {
		_ = formatter.Error(CodeInvalid, fmt.Sprintf("%d of %d scenario(s) invalid", invalid, len(files)), results)
		if !formatter.IsJSON() {
			for _, result := range results {
				if !result.Valid {
					fmt.Fprintf(formatter.Writer, "✗ %s\n", result.Reason)
				}
			}
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	return formatter.Success(results, func(w io.Writer) {
		for _, result := range results {
			fmt.Fprintf(w, "✓ %s\n", result.Name)
		}
		fmt.Fprintf(w, "✓ %d scenario(s) valid\n", len(results))
	})
}
