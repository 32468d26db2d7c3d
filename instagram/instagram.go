package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"incident-report-bot/social"

	"github.com/apex/log"
)

const graphBaseURL = "https://graph.facebook.com/v18.0"

var ErrNotConfigured = errors.New("instagram account id and access token are required")

// Client publishes images to an Instagram business account through the Graph API.
type Client struct {
	AccountID string
	BaseURL   string

	mu          sync.RWMutex
	accessToken string
	httpClient  *http.Client
	log         log.Interface
}

func NewClient(accountID, accessToken string, logger log.Interface) *Client {
	return &Client{
		AccountID:   accountID,
		BaseURL:     graphBaseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		log:         logger,
	}
}

// SetAccessToken swaps the token used by later requests, e.g. after a refresh.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) Name() string { return "instagram" }

// PostText is not offered; Instagram posts need an image.
func (c *Client) PostText(ctx context.Context, text, replyTo string) (string, error) {
	return "", social.ErrUnsupported
}

// PostImage creates a media container for a publicly reachable image and publishes it.
func (c *Client) PostImage(ctx context.Context, imageURL, caption string) (string, error) {
	if c.AccountID == "" || c.token() == "" {
		return "", ErrNotConfigured
	}
	if imageURL == "" {
		return "", errors.New("image url is required")
	}

	containerID, err := c.call(ctx, "media", url.Values{
		"image_url": {imageURL},
		"caption":   {caption},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create media container: %w", err)
	}
	c.log.WithField("container_id", containerID).Info("Created media container")

	mediaID, err := c.call(ctx, "media_publish", url.Values{
		"creation_id": {containerID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish media: %w", err)
	}
	c.log.WithField("media_id", mediaID).Info("Published to Instagram")
	return mediaID, nil
}

func (c *Client) call(ctx context.Context, edge string, form url.Values) (string, error) {
	form.Set("access_token", c.token())
	endpoint := fmt.Sprintf("%s/%s/%s", c.BaseURL, c.AccountID, edge)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := social.ReadResponse(c.Name(), resp)
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("%s response has no id", edge)
	}
	return result.ID, nil
}
