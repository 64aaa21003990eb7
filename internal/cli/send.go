package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/camconform/internal/channel"
)

// SendResult is the JSON payload of the send command.
type SendResult struct {
	Command string `json:"command"`
	Channel string `json:"channel"`
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <op> [args...]",
		Short: "Send one command to a running daemon",
		Long: `Send one command line to the daemon's control pipe.

The daemon never answers; a successful send only means the line reached the
pipe.

Examples:
  camconform send im
  camconform send br 70
  camconform send px 1280 720 30 30 640 480 1`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommand(rootOpts, args, cmd)
		},
	}
	return cmd
}

func sendCommand(opts *RootOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	c, err := channel.Parse(strings.Join(args, " "))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeCommand, "invalid command", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ch := channel.New(cfg.Paths.Channel,
		channel.WithOpenTimeout(cfg.Waits.ChannelOpen),
		channel.WithLogger(logger),
	)
	if err := ch.Send(ctx, c); err != nil {
		return f.Fail(ExitCommandError, ErrCodeChannel, "failed to send command", err)
	}

	if f.JSON() {
		return f.Success(SendResult{Command: c.String(), Channel: ch.Path()})
	}
	return f.Success("Sent: " + c.String())
}
