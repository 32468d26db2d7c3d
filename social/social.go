package social

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrUnsupported is returned by publishers for operations their platform does not offer.
var ErrUnsupported = errors.New("operation not supported by this platform")

// Publisher posts content to a social platform and returns the created content ID.
type Publisher interface {
	// PostText posts text, as a reply to replyTo when it is not empty.
	PostText(ctx context.Context, text, replyTo string) (string, error)
	PostImage(ctx context.Context, imageURL, caption string) (string, error)
	Name() string
}

// PublishError is a rejected publish request.
type PublishError struct {
	Platform string
	Status   int
	Body     string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s rejected the request with status %d: %s", e.Platform, e.Status, e.Body)
}

// ReadResponse returns the body of a 2xx response, or a *PublishError for anything else.
func ReadResponse(platform string, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", platform, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, &PublishError{Platform: platform, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
