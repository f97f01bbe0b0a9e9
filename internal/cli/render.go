package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/xinjiayu/rxstream/rxtest"
)

// RenderedMessage render命令输出的单个通知
type RenderedMessage struct {
	Frame string      `json:"frame"`
	Kind  string      `json:"kind"`
	Value interface{} `json:"value,omitempty"`
}

// NewRenderCommand 创建render命令
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	var frame time.Duration

	cmd := &cobra.Command{
		Use:   "render <marbles>",
		Short: "Show the timed notifications of a marble diagram",
		Long: `Parse a marble diagram and print each notification with its virtual time,
followed by the canonical form of the diagram.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, args[0], frame, cmd)
		},
	}

	cmd.Flags().DurationVar(&frame, "frame", rxtest.DefaultFrame, "virtual time of one marble character")
	return cmd
}

func runRender(opts *RootOptions, marbles string, frame time.Duration, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	messages, err := rxtest.Parse(marbles, nil, errors.New("error"), frame)
	if err != nil {
		_ = formatter.Error(CodeBadMarbles, err.Error(), nil)
		return WrapExitError(ExitFailure, "render", err)
	}

	rendered := make([]RenderedMessage, len(messages))
	for i, m := range messages {
		rendered[i] = RenderedMessage{Frame: m.Frame.String(), Kind: m.Kind.String(), Value: m.Value}
	}
	canonical := rxtest.Render(messages, nil, frame)

	data := map[string]interface{}{
		"marbles":  canonical,
		"messages": rendered,
	}
	return formatter.Success(data, func(w io.Writer) {
		for _, m := range messages {
			fmt.Fprintln(w, m.String())
		}
		fmt.Fprintf(w, "canonical: %s\n", canonical)
	})
}
