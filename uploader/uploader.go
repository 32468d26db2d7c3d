package uploader

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"incident-report-bot/config"

	"github.com/apex/log"
)

// Meta is optional descriptive data sent along with an image.
type Meta struct {
	Title       string
	Description string
}

// Uploader publishes an image to a host and returns its public URL.
type Uploader interface {
	UploadFile(ctx context.Context, path string, meta Meta) (string, error)
	UploadBase64(ctx context.Context, data string, meta Meta) (string, error)
	UploadURL(ctx context.Context, imageURL string, meta Meta) (string, error)
	Name() string
}

// SourceKind tells the host how to read Source.Data.
type SourceKind string

const (
	SourceBase64 SourceKind = "base64"
	SourceURL    SourceKind = "url"
)

// Source is the image payload of a single upload attempt.
type Source struct {
	Kind SourceKind
	Data string
}

// Provider performs a single upload attempt against one image host.
type Provider interface {
	Name() string
	Upload(ctx context.Context, src Source, meta Meta) (string, error)
}

// Client adds the bounded retry loop on top of a Provider.
type Client struct {
	provider Provider
	retry    *Retrier
	log      log.Interface
}

// NewClient wraps p with retries.
func NewClient(p Provider, retry *Retrier, logger log.Interface) *Client {
	return &Client{provider: p, retry: retry, log: logger}
}

// New creates the uploader selected by cfg.Uploader.
func New(cfg *config.Config, logger log.Interface) (*Client, error) {
	retry := NewRetrier(cfg.UploadMaxRetries, cfg.UploadRetryDelay, logger)

	var p Provider
	switch cfg.Uploader {
	case "imgur":
		p = NewImgur(cfg.ImgurClientID, cfg.ImgurAccessToken, logger)
	case "imgbb":
		p = NewImgBB(cfg.ImgBBAPIKey)
	case "cloudinary":
		p = NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	default:
		return nil, fmt.Errorf("unknown uploader %q", cfg.Uploader)
	}

	return NewClient(p, retry, logger), nil
}

func (c *Client) Name() string {
	return c.provider.Name()
}

// UploadFile reads a local image and uploads it as base64.
func (c *Client) UploadFile(ctx context.Context, path string, meta Meta) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", path, err)
	}
	c.log.WithField("path", path).Infof("Uploading image to %s", c.Name())
	return c.UploadBase64(ctx, base64.StdEncoding.EncodeToString(data), meta)
}

func (c *Client) UploadBase64(ctx context.Context, data string, meta Meta) (string, error) {
	return c.upload(ctx, Source{Kind: SourceBase64, Data: data}, meta)
}

func (c *Client) UploadURL(ctx context.Context, imageURL string, meta Meta) (string, error) {
	return c.upload(ctx, Source{Kind: SourceURL, Data: imageURL}, meta)
}

func (c *Client) upload(ctx context.Context, src Source, meta Meta) (string, error) {
	var link string
	err := c.retry.Do(ctx, c.Name(), func(ctx context.Context) error {
		var err error
		link, err = c.provider.Upload(ctx, src, meta)
		return err
	})
	if err != nil {
		return "", err
	}

	c.log.WithField("url", link).Infof("Image uploaded to %s", c.Name())
	return link, nil
}
