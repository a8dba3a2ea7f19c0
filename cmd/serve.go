package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/nowplaying/internal/server"
	"github.com/desertthunder/nowplaying/internal/services"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/desertthunder/nowplaying/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve wires the token store, upstream client, pollers and HTTP server, and runs until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.IsSet("host") {
		config.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		config.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("static-dir") {
		config.Server.StaticDir = cmd.String("static-dir")
	}

	if err := config.Validate(); err != nil {
		return err
	}

	store, release, err := r.openStore(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	defer release()

	spotify, err := services.NewSpotifyServiceFromConfig(config)
	if err != nil {
		return err
	}

	poller := tasks.NewPoller(spotify, store, config.Poller, shared.WithLogger(r.logger, "component", "poller"))
	supervisor := tasks.NewSupervisor(poller, config.Poller.Buffer, r.logger)
	srv := server.NewServer(config, supervisor, spotify, store, shared.WithLogger(r.logger, "component", "http"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("starting", "driver", config.Database.Driver, "addr", config.Server.Addr(), "callback", config.CallbackURL())
	return srv.Run(ctx)
}
