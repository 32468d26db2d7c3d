package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"incident-report-bot/models"
)

// Archiver persists a collected report.
type Archiver interface {
	Save(ctx context.Context, r *models.IncidentReport) error
}

// FileArchive writes one indented JSON file per report date.
type FileArchive struct {
	Dir string
}

func NewFileArchive(dir string) *FileArchive {
	if dir == "" {
		dir = "reports"
	}
	return &FileArchive{Dir: dir}
}

// FileName returns the archive file name for a report date, e.g. 20250314_report.json.
func FileName(date string) string {
	return strings.ReplaceAll(date, "-", "") + "_report.json"
}

// Path returns where the report for date is stored.
func (a *FileArchive) Path(date string) string {
	return filepath.Join(a.Dir, FileName(date))
}

func (a *FileArchive) Save(ctx context.Context, r *models.IncidentReport) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("failed to archive report: %w", err)
	}
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(a.Path(r.Date), data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Load reads a previously archived report.
func (a *FileArchive) Load(date string) (*models.IncidentReport, error) {
	data, err := os.ReadFile(a.Path(date))
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r models.IncidentReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}

// Multi saves to every archiver in order and joins their errors.
type Multi []Archiver

func (m Multi) Save(ctx context.Context, r *models.IncidentReport) error {
	var errs []error
	for _, a := range m {
		if err := a.Save(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
