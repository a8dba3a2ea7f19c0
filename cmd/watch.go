package main

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/desertthunder/nowplaying/internal/ui"
	"github.com/urfave/cli/v3"
)

// Watch follows a subscriber's feed on a running server in the terminal.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	feed, err := r.watchFeed(cmd)
	if err != nil {
		return err
	}

	// Logs would interfere with TUI rendering
	r.logger.SetOutput(io.Discard)

	p := tea.NewProgram(ui.NewModel(ctx, feed), tea.WithContext(ctx), tea.WithOutput(r.output))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// watchFeed resolves the server URL from --server, falling back to server.public_url.
func (r *Runner) watchFeed(cmd *cli.Command) (*ui.Feed, error) {
	subscriber := cmd.StringArg("subscriber")
	if subscriber == "" {
		return nil, fmt.Errorf("%w: subscriber", shared.ErrMissingArgument)
	}

	base := cmd.String("server")
	if base == "" {
		config, err := r.loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		base = config.Server.PublicURL
	}

	return ui.NewFeed(base, subscriber, nil)
}
