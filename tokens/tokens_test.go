package tokens

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"incident-report-bot/config"
	"incident-report-bot/uploader"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

func testLogger() log.Interface {
	return &log.Logger{Handler: discard.New(), Level: log.InfoLevel}
}

func TestDaysUntilExpiry(t *testing.T) {
	testCases := []struct {
		name      string
		expiresAt time.Time
		days      int
		refresh   bool
	}{
		{"Sixty days", fixedNow.Add(60 * 24 * time.Hour), 60, false},
		{"Just under eleven days", fixedNow.Add(11*24*time.Hour - time.Minute), 10, true},
		{"Eleven days", fixedNow.Add(11 * 24 * time.Hour), 11, false},
		{"Expired yesterday", fixedNow.Add(-12 * time.Hour), -1, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := Record{ExpirationDate: tc.expiresAt}
			assert.Equal(t, tc.days, DaysUntilExpiry(rec, fixedNow))
			assert.Equal(t, tc.refresh, NeedsRefresh(rec, fixedNow, DefaultThresholdDays))
		})
	}
}

func TestStore(t *testing.T) {
	s := &Store{Path: filepath.Join(t.TempDir(), "nested", "facebook_token.json")}

	rec, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, rec)

	want := NewRecord(5184000, fixedNow)
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5184000), got.ExpiresIn)
	assert.True(t, want.ExpirationDate.Equal(got.ExpirationDate))
	assert.True(t, fixedNow.Equal(got.GeneratedAt))
}

func newFacebook(t *testing.T, serverURL string) (*Facebook, *config.Config) {
	t.Setenv("FACEBOOK_ACCESS_TOKEN", "short")
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("FACEBOOK_ACCESS_TOKEN=short\nOTHER=1\n"), 0o600))

	cfg := &config.Config{
		EnvFile:             envFile,
		TokenFile:           filepath.Join(dir, "facebook_token.json"),
		FacebookAppID:       "app",
		FacebookAppSecret:   "secret",
		FacebookAccessToken: "short",
	}
	f := NewFacebook(cfg, testLogger())
	f.BaseURL = serverURL
	f.now = func() time.Time { return fixedNow }
	return f, cfg
}

func exchangeServer(t *testing.T, calls *int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		assert.Equal(t, "/oauth/access_token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "fb_exchange_token", q.Get("grant_type"))
		assert.Equal(t, "app", q.Get("client_id"))
		assert.Equal(t, "secret", q.Get("client_secret"))
		assert.Equal(t, "short", q.Get("fb_exchange_token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"long","token_type":"bearer","expires_in":5184000}`))
	}))
}

func TestFacebookRefresh(t *testing.T) {
	calls := 0
	server := exchangeServer(t, &calls)
	defer server.Close()

	f, cfg := newFacebook(t, server.URL)
	require.NoError(t, f.Refresh(context.Background()))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "long", cfg.FacebookAccessToken)
	assert.Equal(t, "long", os.Getenv("FACEBOOK_ACCESS_TOKEN"))

	env, err := godotenv.Read(cfg.EnvFile)
	require.NoError(t, err)
	assert.Equal(t, "long", env["FACEBOOK_ACCESS_TOKEN"])
	assert.Equal(t, "1", env["OTHER"])

	rec, err := f.Store.Load()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 60, DaysUntilExpiry(*rec, fixedNow))
}

func TestFacebookRefreshSerialisesConcurrentCalls(t *testing.T) {
	var inFlight, maxInFlight int32
	var mu sync.Mutex
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			cur := atomic.LoadInt32(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
				break
			}
		}
		mu.Lock()
		seen = append(seen, r.URL.Query().Get("fb_exchange_token"))
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"long","token_type":"bearer","expires_in":5184000}`))
	}))
	defer server.Close()

	f, _ := newFacebook(t, server.URL)
	require.NoError(t, f.Store.Save(Record{ExpirationDate: fixedNow.Add(3 * 24 * time.Hour)}))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- f.Refresh(context.Background())
	}()
	go func() {
		defer wg.Done()
		_, err := f.Check(context.Background())
		errs <- err
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	require.NotEmpty(t, seen)
	assert.Equal(t, "short", seen[0])
	for _, token := range seen[1:] {
		assert.Equal(t, "long", token)
	}
	assert.Equal(t, "long", f.Token())
}

func TestFacebookExchangeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Error validating access token"}}`))
	}))
	defer server.Close()

	f, cfg := newFacebook(t, server.URL)
	err := f.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, "short", cfg.FacebookAccessToken)
}

func TestFacebookExchangeRequiresAppCredentials(t *testing.T) {
	f, cfg := newFacebook(t, "http://unused")
	cfg.FacebookAppSecret = ""
	_, _, err := f.Exchange(context.Background(), "short")
	assert.Error(t, err)
}

func TestFacebookCheck(t *testing.T) {
	testCases := []struct {
		name      string
		record    *Record
		refreshed bool
	}{
		{name: "No record"},
		{name: "Far from expiry", record: &Record{ExpirationDate: fixedNow.Add(40 * 24 * time.Hour)}},
		{name: "Close to expiry", record: &Record{ExpirationDate: fixedNow.Add(3 * 24 * time.Hour)}, refreshed: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			server := exchangeServer(t, &calls)
			defer server.Close()

			f, _ := newFacebook(t, server.URL)
			if tc.record != nil {
				require.NoError(t, f.Store.Save(*tc.record))
			}

			refreshed, err := f.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.refreshed, refreshed)
			if tc.refreshed {
				assert.Equal(t, 1, calls)
			} else {
				assert.Zero(t, calls)
			}
		})
	}
}

func TestRefreshImgur(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","token_type":"bearer","expires_in":315360000}`))
	}))
	defer server.Close()

	previous := uploader.ImgurTokenURL
	uploader.ImgurTokenURL = server.URL
	defer func() { uploader.ImgurTokenURL = previous }()

	t.Setenv("IMGUR_ACCESS_TOKEN", "")
	t.Setenv("IMGUR_REFRESH_TOKEN", "")
	cfg := &config.Config{
		EnvFile:           filepath.Join(t.TempDir(), ".env"),
		ImgurClientID:     "id",
		ImgurClientSecret: "secret",
		ImgurRefreshToken: "old-refresh",
	}

	require.NoError(t, RefreshImgur(context.Background(), cfg, testLogger()))
	assert.Equal(t, "new-access", cfg.ImgurAccessToken)
	assert.Equal(t, "new-refresh", cfg.ImgurRefreshToken)

	env, err := godotenv.Read(cfg.EnvFile)
	require.NoError(t, err)
	assert.Equal(t, "new-access", env["IMGUR_ACCESS_TOKEN"])
	assert.Equal(t, "new-refresh", env["IMGUR_REFRESH_TOKEN"])
}
