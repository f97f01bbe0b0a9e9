package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xinjiayu/rxstream/rxtest"
)

// ReplayedRecording replay命令输出的单个录制
type ReplayedRecording struct {
	RunID   string `json:"run_id"`
	Name    string `json:"name"`
	Frame   string `json:"frame"`
	Marbles string `json:"marbles"`
}

// NewReplayCommand 创建replay命令
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <recording-file>",
		Short: "Render the scenarios stored in a recording",
		Long: `Read a CBOR recording written by "run --record" and print the recorded
output of every scenario as a marble diagram.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runReplay(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	f, err := os.Open(path)
	if err != nil {
		_ = formatter.Error(CodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open recording", err)
	}
	defer f.Close()

	var replayed []ReplayedRecording
	dec := rxtest.NewDecoder(f)
	for {
		var recording rxtest.Recording
		err := dec.Decode(&recording)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = formatter.Error(CodeLoad, err.Error(), nil)
			return WrapExitError(ExitCommandError, "decode recording", err)
		}
		replayed = append(replayed, ReplayedRecording{
			RunID:   recording.RunID,
			Name:    recording.Name,
			Frame:   recording.Frame.String(),
			Marbles: rxtest.Render(recording.Replay(), nil, recording.Frame),
		})
	}

	return formatter.Success(replayed, func(w io.Writer) {
		for _, r := range replayed {
			fmt.Fprintf(w, "%s %s\n", r.Name, r.Marbles)
		}
	})
}
