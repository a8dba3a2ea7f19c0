package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/nowplaying/internal/services"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/urfave/cli/v3"
)

type tokenView struct {
	Subscriber   string    `json:"subscriber"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expires_at"`
	Expired      bool      `json:"expired"`
}

// mask keeps the last four characters of a secret.
func mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// TokensShow prints the stored token record for a subscriber as JSON.
func (r *Runner) TokensShow(ctx context.Context, cmd *cli.Command) error {
	subscriber := cmd.StringArg("subscriber")
	if subscriber == "" {
		return fmt.Errorf("%w: subscriber", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	store, release, err := r.openStore(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	defer release()

	record, err := store.Load(ctx, subscriber)
	if err != nil {
		return err
	}

	view := tokenView{
		Subscriber:   record.Subscriber,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		Expiry:       record.Expiry,
		Expired:      record.ExpiresWithin(time.Now(), 0),
	}
	if !cmd.Bool("reveal") {
		view.AccessToken = mask(view.AccessToken)
		view.RefreshToken = mask(view.RefreshToken)
	}
	return r.writeJSON(view, true)
}

// TokensRefresh runs a refresh grant for a subscriber and stores the result.
func (r *Runner) TokensRefresh(ctx context.Context, cmd *cli.Command) error {
	subscriber := cmd.StringArg("subscriber")
	if subscriber == "" {
		return fmt.Errorf("%w: subscriber", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	spotify, err := services.NewSpotifyServiceFromConfig(config)
	if err != nil {
		return err
	}

	store, release, err := r.openStore(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	defer release()

	record, err := store.Load(ctx, subscriber)
	if err != nil {
		return err
	}

	token, err := spotify.Refresh(ctx, record.RefreshToken)
	if err != nil {
		return err
	}

	next := record.Refreshed(token.AccessToken, token.Expiry, token.RefreshToken)
	if err := store.Upsert(ctx, next); err != nil {
		return err
	}

	r.logger.Info("token refreshed", "subscriber", subscriber, "expires_at", next.Expiry)
	return r.writePlain("✓ Refreshed %s, expires %s\n", subscriber, next.Expiry.Format(time.RFC3339))
}
