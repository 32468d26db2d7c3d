package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"incident-report-bot/social"

	"github.com/apex/log"
	"github.com/dghubble/oauth1"
)

const (
	apiBaseURL = "https://api.twitter.com"

	// DryRunID is returned instead of a tweet ID when no credentials are configured.
	DryRunID = "dry-run"
)

// Credentials are the OAuth 1.0a user-context keys.
type Credentials struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

// Complete reports whether all four keys are set.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// Client posts tweets through the X API v2.
type Client struct {
	httpClient *http.Client
	baseURL    string
	dryRun     bool
	log        log.Interface
}

// NewClient creates a client. Without complete credentials the client only logs what it would post.
func NewClient(creds Credentials, logger log.Interface) *Client {
	c := &Client{baseURL: apiBaseURL, log: logger}
	if !creds.Complete() {
		logger.Warn("Twitter credentials not found, posts will be logged but not sent")
		c.dryRun = true
		return c
	}

	config := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessSecret)
	c.httpClient = config.Client(oauth1.NoContext, token)
	c.httpClient.Timeout = 30 * time.Second
	return c
}

func (c *Client) Name() string { return "twitter" }

// DryRun reports whether the client skips real posts.
func (c *Client) DryRun() bool { return c.dryRun }

type tweetRequest struct {
	Text  string      `json:"text"`
	Reply *tweetReply `json:"reply,omitempty"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// PostText creates a tweet, replying to replyTo when set, and returns its ID.
func (c *Client) PostText(ctx context.Context, text, replyTo string) (string, error) {
	if c.dryRun {
		c.log.WithField("reply_to", replyTo).Infof("Dry run, would tweet: %s", text)
		return DryRunID, nil
	}

	payload := tweetRequest{Text: text}
	if replyTo != "" {
		payload.Reply = &tweetReply{InReplyToTweetID: replyTo}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to post tweet: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := social.ReadResponse(c.Name(), resp)
	if err != nil {
		return "", err
	}

	var result tweetResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode tweet response: %w", err)
	}
	if result.Data.ID == "" {
		return "", errors.New("tweet response has no id")
	}

	c.log.WithField("tweet_id", result.Data.ID).Info("Tweet posted")
	return result.Data.ID, nil
}

// PostImage is not offered; images go to Instagram.
func (c *Client) PostImage(ctx context.Context, imageURL, caption string) (string, error) {
	return "", social.ErrUnsupported
}
