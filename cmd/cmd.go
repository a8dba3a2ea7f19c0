// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
		Sources: cli.EnvVars("NOWPLAYING_CONFIG"),
	}
}

// serveCommand runs the HTTP server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the now-playing feed over SSE and WebSocket",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to listen on (overrides server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides server.port)",
			},
			&cli.StringFlag{
				Name:  "static-dir",
				Usage: "Directory served at / (overrides server.static_dir)",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand handles initialization
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and the token store",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the bundled template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the token store schema and check connectivity",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "status",
				Usage:  "Show applied migrations (sqlite)",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration (sqlite)",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
		},
	}
}

// tokensCommand inspects stored credentials
func tokensCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "Inspect and refresh stored subscriber credentials",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the stored token record for a subscriber",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "subscriber",
					},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "reveal",
						Usage: "Print tokens unmasked",
					},
				},
				Action: r.TokensShow,
			},
			{
				Name:  "refresh",
				Usage: "Refresh and store a subscriber's access token now",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "subscriber",
					},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.TokensRefresh,
			},
		},
	}
}

// watchCommand follows a feed in the terminal
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow a subscriber's now-playing feed in the terminal",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "subscriber",
			},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of a running server (defaults to server.public_url)",
			},
		},
		Action: r.Watch,
	}
}
