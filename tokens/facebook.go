package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"incident-report-bot/config"
	"incident-report-bot/metrics"

	"github.com/apex/log"
)

const facebookGraphURL = "https://graph.facebook.com/v19.0"

// Facebook exchanges the configured access token for a long-lived one.
type Facebook struct {
	BaseURL   string
	Store     *Store
	Threshold int

	// mu serialises Check and Refresh, which both rewrite the token.
	mu         sync.Mutex
	cfg        *config.Config
	httpClient *http.Client
	now        func() time.Time
	log        log.Interface
}

func NewFacebook(cfg *config.Config, logger log.Interface) *Facebook {
	threshold := cfg.TokenRefreshThreshold
	if threshold <= 0 {
		threshold = DefaultThresholdDays
	}
	return &Facebook{
		BaseURL:    facebookGraphURL,
		Store:      &Store{Path: cfg.TokenFile},
		Threshold:  threshold,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		log:        logger,
	}
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Exchange trades a token for a long-lived one and returns it with its metadata.
func (f *Facebook) Exchange(ctx context.Context, token string) (string, Record, error) {
	if f.cfg.FacebookAppID == "" || f.cfg.FacebookAppSecret == "" {
		return "", Record{}, errors.New("FACEBOOK_APP_ID and FACEBOOK_APP_SECRET are required")
	}
	if token == "" {
		return "", Record{}, errors.New("FACEBOOK_ACCESS_TOKEN is required")
	}

	params := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {f.cfg.FacebookAppID},
		"client_secret":     {f.cfg.FacebookAppSecret},
		"fb_exchange_token": {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/oauth/access_token?"+params.Encode(), nil)
	if err != nil {
		return "", Record{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", Record{}, fmt.Errorf("failed to exchange token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", Record{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", Record{}, fmt.Errorf("token exchange returned status %d: %s", resp.StatusCode, string(body))
	}

	var result exchangeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", Record{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.AccessToken == "" {
		return "", Record{}, errors.New("token exchange returned no access token")
	}
	return result.AccessToken, NewRecord(result.ExpiresIn, f.now()), nil
}

// Token returns the current access token.
func (f *Facebook) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg.FacebookAccessToken
}

// Refresh exchanges the current token, stores its metadata and rewrites the env file.
func (f *Facebook) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh(ctx)
}

func (f *Facebook) refresh(ctx context.Context) error {
	f.log.Info("Refreshing Facebook access token")

	token, rec, err := f.Exchange(ctx, f.cfg.FacebookAccessToken)
	if err != nil {
		return err
	}
	if err := f.Store.Save(rec); err != nil {
		return err
	}
	if err := config.UpdateEnvFile(f.cfg.EnvFile, map[string]string{"FACEBOOK_ACCESS_TOKEN": token}); err != nil {
		return fmt.Errorf("failed to store new access token: %w", err)
	}
	f.cfg.FacebookAccessToken = token

	days := DaysUntilExpiry(rec, f.now())
	metrics.TokenDaysRemaining.Set(float64(days))
	f.log.WithFields(log.Fields{
		"expires_in":      rec.ExpiresIn,
		"expiration_date": rec.ExpirationDate.Format(time.RFC3339),
	}).Infof("Long-lived token generated, expires in %d days", days)
	return nil
}

// Check refreshes the token when the stored record says it is close to expiry.
// It reports whether a refresh happened. Without a record there is nothing to check.
func (f *Facebook) Check(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.Store.Load()
	if err != nil {
		return false, err
	}
	if rec == nil || rec.ExpirationDate.IsZero() {
		f.log.WithField("path", f.Store.Path).Info("No token record found, skipping expiry check")
		return false, nil
	}

	days := DaysUntilExpiry(*rec, f.now())
	metrics.TokenDaysRemaining.Set(float64(days))
	f.log.Infof("Facebook token expires in %d days", days)

	if !NeedsRefresh(*rec, f.now(), f.Threshold) {
		return false, nil
	}
	f.log.Info("Token expiration is approaching, refreshing now")
	if err := f.refresh(ctx); err != nil {
		return false, err
	}
	return true, nil
}
