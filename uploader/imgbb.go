package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const imgbbBaseURL = "https://api.imgbb.com"

// ImgBB uploads to the ImgBB API.
type ImgBB struct {
	APIKey  string
	BaseURL string

	httpClient *http.Client
}

func NewImgBB(apiKey string) *ImgBB {
	return &ImgBB{
		APIKey:     apiKey,
		BaseURL:    imgbbBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *ImgBB) Name() string { return "imgbb" }

type imgbbResponse struct {
	Data struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
	Success bool `json:"success"`
}

// Upload sends the image as base64 or as a remote URL; ImgBB accepts both in the same field.
func (b *ImgBB) Upload(ctx context.Context, src Source, meta Meta) (string, error) {
	if b.APIKey == "" {
		return "", Permanent(errors.New("imgbb API key is required"))
	}

	form := url.Values{}
	form.Set("image", src.Data)
	if meta.Title != "" {
		form.Set("name", meta.Title)
	}

	endpoint := b.BaseURL + "/1/upload?key=" + url.QueryEscape(b.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if err := classify(b.Name(), resp, body); err != nil {
		return "", err
	}

	var result imgbbResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("imgbb upload unsuccessful: %s", string(body))
	}
	if result.Data.DisplayURL != "" {
		return result.Data.DisplayURL, nil
	}
	if result.Data.URL != "" {
		return result.Data.URL, nil
	}
	return "", errors.New("imgbb response has no url")
}
