package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/apex/log"
)

const (
	// FallbackURL is used whenever the search API cannot supply a photo.
	FallbackURL = "https://images.unsplash.com/photo-1585829365295-ab7cd400c167"

	DefaultBaseURL = "https://api.unsplash.com"
	DefaultQuery   = "breaking news journalism"

	maxDownloadBytes = 20 << 20
)

// Searcher finds background photos on Unsplash.
type Searcher struct {
	baseURL    string
	accessKey  string
	query      string
	httpClient *http.Client
	log        log.Interface
}

// NewSearcher creates a searcher. Empty baseURL and query select the defaults.
func NewSearcher(baseURL, accessKey, query string, logger log.Interface) *Searcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if query == "" {
		query = DefaultQuery
	}
	return &Searcher{
		baseURL:    baseURL,
		accessKey:  accessKey,
		query:      query,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger,
	}
}

type randomPhotoResponse struct {
	URLs struct {
		Regular string `json:"regular"`
		Full    string `json:"full"`
	} `json:"urls"`
}

// BackgroundURL returns a random squarish photo URL for query, or FallbackURL on any failure.
func (s *Searcher) BackgroundURL(ctx context.Context, query string) string {
	if query == "" {
		query = s.query
	}
	u, err := s.randomPhoto(ctx, query)
	if err != nil {
		s.log.WithError(err).Warn("Background search failed, using fallback image")
		return FallbackURL
	}
	return u
}

func (s *Searcher) randomPhoto(ctx context.Context, query string) (string, error) {
	if s.accessKey == "" {
		return "", errors.New("unsplash access key is not configured")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("orientation", "squarish")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/photos/random?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+s.accessKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("unsplash returned status %d: %s", resp.StatusCode, string(body))
	}

	var photo randomPhotoResponse
	if err := json.NewDecoder(resp.Body).Decode(&photo); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if photo.URLs.Regular != "" {
		return photo.URLs.Regular, nil
	}
	if photo.URLs.Full != "" {
		return photo.URLs.Full, nil
	}
	return "", errors.New("response has no photo url")
}

// Download fetches image bytes, refusing bodies over 20 MiB.
func (s *Searcher) Download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxDownloadBytes)
	}
	return data, nil
}
