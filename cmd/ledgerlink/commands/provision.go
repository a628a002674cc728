package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/mjansen/ledgerlink/internal/app"
	"github.com/mjansen/ledgerlink/internal/credential"
	"github.com/mjansen/ledgerlink/internal/observability"
)

func provisionCommand() *cli.Command {
	return &cli.Command{
		Name:  "provision",
		Usage: "store credentials for a subject by exchanging its refresh token once",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "subject",
				Usage:    "subject id to provision",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "refresh-token",
				Usage: "refresh token (prompted interactively when omitted)",
			},
		},
		Action: provisionAction,
	}
}

func provisionAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Mode != app.ModeRemote {
		return fmt.Errorf("provisioning requires remote mode (got %s)", cfg.Mode)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}

	refreshToken := cmd.String("refresh-token")
	if refreshToken == "" {
		refreshToken, err = promptSecret("Refresh token: ")
		if err != nil {
			return fmt.Errorf("reading refresh token: %w", err)
		}
	}
	if refreshToken == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}

	store, err := cfg.Storage.NewStore()
	if err != nil {
		return fmt.Errorf("failed to create credential store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	refresher, err := cfg.NewRefresher()
	if err != nil {
		return fmt.Errorf("failed to create refresher: %w", err)
	}

	subjectID := cmd.String("subject")

	// One refresh both validates the token and yields the initial set.
	set, err := refresher.Refresh(ctx, credential.Set{
		SubjectID:    subjectID,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return fmt.Errorf("validating refresh token for %s: %w", subjectID, err)
	}

	if err := store.Put(ctx, set); err != nil {
		return fmt.Errorf("storing credential set for %s: %w", subjectID, err)
	}

	slog.InfoContext(ctx, "subject provisioned", "subject", subjectID, "expires_at", set.ExpiresAt)
	fmt.Printf("Provisioned %s (token expires %s)\n", subjectID, set.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

// promptSecret reads a secret from the terminal without echoing it.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
