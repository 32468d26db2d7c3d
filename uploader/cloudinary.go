package uploader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const cloudinaryBaseURL = "https://api.cloudinary.com"

// Cloudinary performs signed uploads to a Cloudinary cloud.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string

	httpClient *http.Client
	now        func() time.Time
}

func NewCloudinary(cloudName, apiKey, apiSecret, folder string) *Cloudinary {
	return &Cloudinary{
		CloudName:  cloudName,
		APIKey:     apiKey,
		APISecret:  apiSecret,
		Folder:     folder,
		BaseURL:    cloudinaryBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		now:        time.Now,
	}
}

func (c *Cloudinary) Name() string { return "cloudinary" }

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Cloudinary) Upload(ctx context.Context, src Source, meta Meta) (string, error) {
	if c.CloudName == "" || c.APIKey == "" || c.APISecret == "" {
		return "", Permanent(errors.New("cloudinary cloud name, API key and secret are required"))
	}

	ts := c.now().Unix()
	params := map[string]string{
		"timestamp": strconv.FormatInt(ts, 10),
		"public_id": fmt.Sprintf("report_%d", ts),
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	if ctxValue := cloudinaryContext(meta); ctxValue != "" {
		params["context"] = ctxValue
	}

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("signature", Sign(params, c.APISecret))
	form.Set("api_key", c.APIKey)
	if src.Kind == SourceBase64 {
		form.Set("file", "data:image/jpeg;base64,"+src.Data)
	} else {
		form.Set("file", src.Data)
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.BaseURL, url.PathEscape(c.CloudName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if err := classify(c.Name(), resp, body); err != nil {
		return "", err
	}

	var result cloudinaryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("cloudinary upload failed: %s", result.Error.Message)
	}
	if result.SecureURL == "" {
		return "", errors.New("cloudinary response has no secure_url")
	}
	return result.SecureURL, nil
}

// Sign computes the Cloudinary request signature: SHA-1 of the sorted key=value pairs followed by the secret.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

// cloudinaryContext encodes meta as a context string; '|' and '=' are reserved separators.
func cloudinaryContext(meta Meta) string {
	clean := strings.NewReplacer("|", " ", "=", " ")
	var parts []string
	if meta.Title != "" {
		parts = append(parts, "caption="+clean.Replace(meta.Title))
	}
	if meta.Description != "" {
		parts = append(parts, "alt="+clean.Replace(meta.Description))
	}
	return strings.Join(parts, "|")
}
