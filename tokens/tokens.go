package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultThresholdDays is how close to expiry a token gets refreshed.
const DefaultThresholdDays = 10

// Record is the token metadata kept on disk. The token itself lives only in the env file.
type Record struct {
	ExpiresIn      int64     `json:"expires_in"`
	ExpirationDate time.Time `json:"expiration_date"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// NewRecord builds the record for a token issued at now that lives expiresIn seconds.
func NewRecord(expiresIn int64, now time.Time) Record {
	now = now.UTC()
	return Record{
		ExpiresIn:      expiresIn,
		ExpirationDate: now.Add(time.Duration(expiresIn) * time.Second),
		GeneratedAt:    now,
	}
}

// DaysUntilExpiry returns whole days left, rounded down. Expired tokens give negative values.
func DaysUntilExpiry(rec Record, now time.Time) int {
	return int(math.Floor(rec.ExpirationDate.Sub(now).Hours() / 24))
}

// NeedsRefresh reports whether the token expires within threshold days.
func NeedsRefresh(rec Record, now time.Time, threshold int) bool {
	return DaysUntilExpiry(rec, now) <= threshold
}

// Store reads and writes the token record file.
type Store struct {
	Path string
}

// Load returns the stored record, or nil when the file does not exist.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &rec, nil
}

func (s *Store) Save(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
