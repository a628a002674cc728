package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mjansen/ledgerlink/internal/app"
	"github.com/mjansen/ledgerlink/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "ledgerlink",
		Usage: "OAuth token broker for the Moneybird accounting API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
		},
		Commands: []*cli.Command{
			startCommand(),
			provisionCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func startCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "start the broker server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otlp)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "credential mode (local|remote)",
				Value: string(app.DefaultConfigMode),
			},
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.StringFlag{
				Name:  "upstream--base-url",
				Usage: "upstream API base URL",
			},
			&cli.StringFlag{
				Name:  "storage--backend",
				Usage: "credential storage backend (memory|sqlite|keyring)",
			},
		},
		Action: startAction,
	}
}

func startAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	err = observability.Instrument(cfg.LogLevel, string(cfg.LogFormat))
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
