package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"incident-report-bot/config"
	"incident-report-bot/models"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

const maxPingWait = 30 * time.Second

// ReportStore keeps collected reports and run history in MySQL.
type ReportStore struct {
	db  *sql.DB
	log log.Interface
}

func NewReportStore(db *sql.DB, logger log.Interface) *ReportStore {
	return &ReportStore{db: db, log: logger}
}

// Open connects to MySQL, retrying the ping with exponential backoff until ctx is done.
func Open(ctx context.Context, cfg *config.Config, logger log.Interface) (*ReportStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	wait := time.Second
	for {
		err := db.PingContext(ctx)
		if err == nil {
			break
		}
		logger.WithError(err).Warnf("Database connection failed, retrying in %v", wait)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait = min(wait*2, maxPingWait)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewReportStore(db, logger), nil
}

func (s *ReportStore) Close() error {
	return s.db.Close()
}

// CreateTables creates the incident_reports and bot_runs tables if they don't exist.
func (s *ReportStore) CreateTables(ctx context.Context) error {
	reports := `
	CREATE TABLE IF NOT EXISTS incident_reports (
		report_date VARCHAR(32) NOT NULL PRIMARY KEY,
		payload JSON NOT NULL,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`
	if _, err := s.db.ExecContext(ctx, reports); err != nil {
		return fmt.Errorf("failed to create incident_reports table: %w", err)
	}

	runs := `
	CREATE TABLE IF NOT EXISTS bot_runs (
		id INT AUTO_INCREMENT PRIMARY KEY,
		report_date VARCHAR(32) NOT NULL,
		state VARCHAR(32) NOT NULL,
		countries INT NOT NULL DEFAULT 0,
		image_url TEXT,
		post_ids JSON,
		error TEXT,
		started_at TIMESTAMP NULL,
		finished_at TIMESTAMP NULL,
		INDEX report_date_index (report_date)
	)`
	if _, err := s.db.ExecContext(ctx, runs); err != nil {
		return fmt.Errorf("failed to create bot_runs table: %w", err)
	}

	s.log.Info("incident_reports and bot_runs tables created/verified successfully")
	return nil
}

// Save upserts the report for its date.
func (s *ReportStore) Save(ctx context.Context, r *models.IncidentReport) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `INSERT INTO incident_reports (report_date, payload, error) VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE payload = VALUES(payload), error = VALUES(error)`
	if _, err := s.db.ExecContext(ctx, query, r.Date, string(payload), r.Error); err != nil {
		return fmt.Errorf("failed to save report for %s: %w", r.Date, err)
	}
	return nil
}

// SaveRun records the outcome of a bot run.
func (s *ReportStore) SaveRun(ctx context.Context, ev models.RunEvent) error {
	postIDs, err := json.Marshal(ev.PostIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal post ids: %w", err)
	}

	query := `INSERT INTO bot_runs (report_date, state, countries, image_url, post_ids, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		ev.Date, ev.State, ev.Countries, ev.ImageURL, string(postIDs), ev.Error, ev.StartedAt, ev.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run, or nil when there is none.
func (s *ReportStore) LastRun(ctx context.Context) (*models.RunEvent, error) {
	query := `SELECT report_date, state, countries, image_url, post_ids, error, started_at, finished_at
	FROM bot_runs ORDER BY id DESC LIMIT 1`

	var (
		ev       models.RunEvent
		imageURL sql.NullString
		postIDs  sql.NullString
		errText  sql.NullString
		started  sql.NullTime
		finished sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query).Scan(
		&ev.Date, &ev.State, &ev.Countries, &imageURL, &postIDs, &errText, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}

	ev.ImageURL = imageURL.String
	ev.Error = errText.String
	ev.StartedAt = started.Time
	ev.EndedAt = finished.Time
	if postIDs.Valid && postIDs.String != "" && postIDs.String != "null" {
		if err := json.Unmarshal([]byte(postIDs.String), &ev.PostIDs); err != nil {
			return nil, fmt.Errorf("failed to parse post ids: %w", err)
		}
	}
	return &ev, nil
}
