package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	_ "github.com/go-sql-driver/mysql"

	"ad-capture-pipeline/models"
)

// DefaultPageSize is the history page size when the caller does not pick
// one.
const DefaultPageSize = 12

// Records persists report rows in the reports table. Rows are append-only
// from the client's perspective: a later remote verdict supersedes the row
// in memory, any server-side correction is an external concern.
type Records struct {
	db *sql.DB
}

// NewRecords wraps an open database handle.
func NewRecords(db *sql.DB) *Records {
	return &Records{db: db}
}

// OpenDB opens the MySQL connection with the usual pool settings.
func OpenDB(user, password, host, port, name string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		user, password, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// EnsureSchema creates the reports table if it does not exist.
func (r *Records) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS reports (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL DEFAULT '',
		image_url TEXT NOT NULL,
		latitude DOUBLE NOT NULL DEFAULT 0,
		longitude DOUBLE NOT NULL DEFAULT 0,
		address VARCHAR(512) NOT NULL DEFAULT '',
		status ENUM('pending','success','violation','error','warning') NOT NULL DEFAULT 'pending',
		message TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX reports_created_at (created_at)
	)`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	return nil
}

// Insert writes a provisional report row and returns the assigned id.
func (r *Records) Insert(ctx context.Context, report *models.Report) (string, error) {
	id := uuid.New().String()

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (id, user_id, image_url, latitude, longitude, address, status, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, report.UserID, report.ImageURL, report.Latitude, report.Longitude,
		report.Address, string(report.Status), report.Message)
	if err != nil {
		return "", fmt.Errorf("failed to insert report: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get status of report insert: %w", err)
	}
	if rows != 1 {
		return "", fmt.Errorf("expected to affect 1 row, affected %d", rows)
	}

	log.WithFields(log.Fields{
		"id":     id,
		"status": report.Status,
	}).Info("Inserted report record")
	return id, nil
}

// List returns one history page ordered by created_at descending.
func (r *Records) List(ctx context.Context, offset, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, image_url, latitude, longitude, address, status, message, created_at
		FROM reports
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var rep models.Report
		var status string
		var message sql.NullString
		if err := rows.Scan(&rep.ID, &rep.UserID, &rep.ImageURL, &rep.Latitude, &rep.Longitude,
			&rep.Address, &status, &message, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		rep.Status = models.ReportStatus(status)
		rep.Message = message.String
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

// GetByID returns one report row, or sql.ErrNoRows.
func (r *Records) GetByID(ctx context.Context, id string) (*models.Report, error) {
	var rep models.Report
	var status string
	var message sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, image_url, latitude, longitude, address, status, message, created_at
		FROM reports
		WHERE id = ?`, id).
		Scan(&rep.ID, &rep.UserID, &rep.ImageURL, &rep.Latitude, &rep.Longitude,
			&rep.Address, &status, &message, &rep.CreatedAt)
	if err != nil {
		return nil, err
	}
	rep.Status = models.ReportStatus(status)
	rep.Message = message.String
	return &rep, nil
}

// CountByStatus returns the number of report rows per status, for the
// status surface.
func (r *Records) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reports GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
