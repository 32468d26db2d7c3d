package instagram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"incident-report-bot/social"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	c := NewClient("1784", "token", &log.Logger{Handler: discard.New(), Level: log.InfoLevel})
	c.BaseURL = baseURL
	return c
}

func TestPostImage(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		calls = append(calls, r.URL.Path)
		assert.Equal(t, "token", r.PostForm.Get("access_token"))

		switch r.URL.Path {
		case "/1784/media":
			assert.Equal(t, "https://i.example.com/a.jpg", r.PostForm.Get("image_url"))
			assert.Equal(t, "caption", r.PostForm.Get("caption"))
			w.Write([]byte(`{"id":"container-1"}`))
		case "/1784/media_publish":
			assert.Equal(t, "container-1", r.PostForm.Get("creation_id"))
			w.Write([]byte(`{"id":"media-9"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).PostImage(context.Background(), "https://i.example.com/a.jpg", "caption")
	require.NoError(t, err)
	assert.Equal(t, "media-9", id)
	assert.Equal(t, []string{"/1784/media", "/1784/media_publish"}, calls)
}

func TestPostImageContainerRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).PostImage(context.Background(), "https://i.example.com/a.jpg", "c")
	var perr *social.PublishError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.Status)
	assert.Contains(t, perr.Body, "Invalid OAuth")
}

func TestPostImageRequiresConfiguration(t *testing.T) {
	c := newTestClient("http://unused")
	c.SetAccessToken("")
	_, err := c.PostImage(context.Background(), "https://i.example.com/a.jpg", "c")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPostTextUnsupported(t *testing.T) {
	_, err := newTestClient("http://unused").PostText(context.Background(), "hi", "")
	assert.ErrorIs(t, err, social.ErrUnsupported)
}
