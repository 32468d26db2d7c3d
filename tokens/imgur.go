package tokens

import (
	"context"
	"fmt"

	"incident-report-bot/config"
	"incident-report-bot/uploader"

	"github.com/apex/log"
)

// RefreshImgur trades the configured Imgur refresh token for a new access token and saves both.
func RefreshImgur(ctx context.Context, cfg *config.Config, logger log.Interface) error {
	tok, err := uploader.RefreshImgurToken(ctx, cfg.ImgurClientID, cfg.ImgurClientSecret, cfg.ImgurRefreshToken)
	if err != nil {
		return err
	}

	updates := map[string]string{"IMGUR_ACCESS_TOKEN": tok.AccessToken}
	if tok.RefreshToken != "" {
		updates["IMGUR_REFRESH_TOKEN"] = tok.RefreshToken
	}
	if err := config.UpdateEnvFile(cfg.EnvFile, updates); err != nil {
		return fmt.Errorf("failed to store imgur tokens: %w", err)
	}

	cfg.ImgurAccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		cfg.ImgurRefreshToken = tok.RefreshToken
	}
	logger.WithField("expiry", tok.Expiry).Info("Imgur access token refreshed")
	return nil
}
