// Package cli 实现rxmarble命令行：运行、校验和渲染弹珠场景
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/xinjiayu/rxstream"
)

// RootOptions 所有子命令共享的全局选项
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config 从环境变量加载的配置，命令行参数优先
	Config Config
	// Logger 诊断日志，写入stderr
	Logger *slog.Logger
}

// ValidFormats 允许的输出格式
var ValidFormats = []string{"text", "json"}

// NewRootCommand 创建rxmarble根命令
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rxmarble",
		Short: "rxmarble - marble scenarios for rxstream",
		Long:  "Run, validate and render marble diagram scenarios on rxstream's virtual time scheduler.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))

	return cmd
}

// setup 合并环境配置和命令行参数，安装日志
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	o.Config = cfg

	if flag := cmd.Flags().Lookup("format"); flag == nil || !flag.Changed {
		o.Format = cfg.Format
	}
	if !slices.Contains(ValidFormats, o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}

	level := cfg.LogLevel
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	rxstream.SetLogger(o.Logger)
	return nil
}

// logger 未经过setup时（直接构造子命令的测试）丢弃日志
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
