package uploader

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// PermanentError marks failures that will not succeed on retry, such as bad credentials.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the retry loop gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err or any error it wraps is permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// UploadError is returned once every attempt has failed.
type UploadError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s upload failed after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-2xx response from an image host.
type HTTPError struct {
	Provider   string
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, e.Body)
}

// retryHint returns the wait requested by the host, if any.
func retryHint(err error) time.Duration {
	var h *HTTPError
	if errors.As(err, &h) {
		return h.RetryAfter
	}
	return 0
}

// classify turns a response status into nil, a retryable error, or a permanent error.
func classify(provider string, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if len(body) > 512 {
		body = body[:512]
	}
	httpErr := &HTTPError{
		Provider:   provider,
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return Permanent(httpErr)
	}
	return httpErr
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
