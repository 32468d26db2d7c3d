package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

const (
	imgurBaseURL = "https://api.imgur.com"

	// imgurLowRemaining is the remaining-credit level that triggers a cooldown.
	imgurLowRemaining = 5
	imgurResetBuffer  = 5 * time.Second
	imgurTooManyWait  = 30 * time.Minute
)

// Imgur uploads to the Imgur API and tracks its rate-limit headers.
type Imgur struct {
	ClientID    string
	AccessToken string
	BaseURL     string

	httpClient *http.Client
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	log        log.Interface

	mu            sync.Mutex
	cooldownUntil time.Time
}

// NewImgur creates an Imgur provider. A non-empty access token takes precedence over the client ID.
func NewImgur(clientID, accessToken string, logger log.Interface) *Imgur {
	return &Imgur{
		ClientID:    clientID,
		AccessToken: accessToken,
		BaseURL:     imgurBaseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		now:         time.Now,
		sleep:       sleepContext,
		log:         logger,
	}
}

func (i *Imgur) Name() string { return "imgur" }

type imgurResponse struct {
	Data struct {
		Link  string `json:"link"`
		Error any    `json:"error"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// Upload performs one request, first waiting out any active cooldown.
func (i *Imgur) Upload(ctx context.Context, src Source, meta Meta) (string, error) {
	if i.ClientID == "" && i.AccessToken == "" {
		return "", Permanent(errors.New("imgur client ID is required"))
	}

	if wait := i.CooldownRemaining(); wait > 0 {
		i.log.Warnf("Imgur rate limit cooldown active, waiting %s", wait.Round(time.Second))
		if err := i.sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	form := url.Values{}
	form.Set("image", src.Data)
	form.Set("type", string(src.Kind))
	if meta.Title != "" {
		form.Set("title", meta.Title)
	}
	if meta.Description != "" {
		form.Set("description", meta.Description)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.BaseURL+"/3/image", strings.NewReader(form.Encode()))
	if err != nil {
		return "", Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if i.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+i.AccessToken)
	} else {
		req.Header.Set("Authorization", "Client-ID "+i.ClientID)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	i.checkRateLimits(resp.Header)

	if resp.StatusCode == http.StatusTooManyRequests {
		i.setCooldown(i.now().Add(imgurTooManyWait))
		httpErr := &HTTPError{Provider: i.Name(), Status: resp.StatusCode, Body: string(body), RetryAfter: imgurTooManyWait}
		return "", httpErr
	}
	if err := classify(i.Name(), resp, body); err != nil {
		return "", err
	}

	var result imgurResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Success || result.Data.Link == "" {
		return "", fmt.Errorf("imgur upload unsuccessful: %s", string(body))
	}
	return result.Data.Link, nil
}

// CooldownRemaining returns how long uploads must wait before the next request.
func (i *Imgur) CooldownRemaining() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	if d := i.cooldownUntil.Sub(i.now()); d > 0 {
		return d
	}
	return 0
}

func (i *Imgur) setCooldown(until time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if until.After(i.cooldownUntil) {
		i.cooldownUntil = until
	}
}

// checkRateLimits starts a cooldown until the reset time when either credit pool runs low.
// Reset headers are unix timestamps in seconds.
func (i *Imgur) checkRateLimits(h http.Header) {
	userRemaining, hasUser := headerInt(h, "X-RateLimit-UserRemaining")
	clientRemaining, hasClient := headerInt(h, "X-RateLimit-ClientRemaining")
	if !hasUser && !hasClient {
		return
	}

	i.log.Debugf("Imgur rate limits - user remaining: %d, client remaining: %d", userRemaining, clientRemaining)

	low := (hasUser && userRemaining < imgurLowRemaining) || (hasClient && clientRemaining < imgurLowRemaining)
	if !low {
		return
	}

	userReset, _ := headerInt(h, "X-RateLimit-UserReset")
	clientReset, _ := headerInt(h, "X-RateLimit-ClientReset")
	reset := userReset
	if clientReset > reset {
		reset = clientReset
	}

	until := time.Unix(int64(reset), 0).Add(imgurResetBuffer)
	if until.After(i.now()) {
		i.log.Warnf("Imgur rate limits nearly reached, cooling down until %s", until.Format(time.RFC3339))
		i.setCooldown(until)
	}
}

func headerInt(h http.Header, key string) (int, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
