package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"

	"ad-capture-pipeline/models"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
)

func setUp() {
	db, mock, _ = sqlmock.New()
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func TestInsertReport(t *testing.T) {
	it(func() {
		records := NewRecords(db)

		mock.ExpectExec(
			"(?s)INSERT INTO reports \\(id, user_id, image_url, latitude, longitude, address, status, message\\)\\s+VALUES \\((.+), (.+), (.+), (.+), (.+), (.+), (.+), (.+)\\)").
			WithArgs(sqlmock.AnyArg(), "user-1", "http://cdn/reports/x.jpg", 42.43, 19.25,
				"Main St, Podgorica, Montenegro", "violation", "Outside the permitted zone").
			WillReturnResult(sqlmock.NewResult(1, 1))

		id, err := records.Insert(context.Background(), &models.Report{
			UserID:    "user-1",
			ImageURL:  "http://cdn/reports/x.jpg",
			Latitude:  42.43,
			Longitude: 19.25,
			Address:   "Main St, Podgorica, Montenegro",
			Status:    models.StatusViolation,
			Message:   "Outside the permitted zone",
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if id == "" {
			t.Error("Insert should assign a non-empty id")
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestInsertReportFailure(t *testing.T) {
	it(func() {
		records := NewRecords(db)

		mock.ExpectExec("INSERT INTO reports").
			WillReturnError(sql.ErrConnDone)

		if _, err := records.Insert(context.Background(), &models.Report{
			ImageURL: "http://cdn/reports/x.jpg",
			Status:   models.StatusPending,
		}); err == nil {
			t.Error("expected an error when the insert fails")
		}
	})
}

func TestListReportsPaging(t *testing.T) {
	it(func() {
		records := NewRecords(db)

		created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		rows := sqlmock.NewRows([]string{
			"id", "user_id", "image_url", "latitude", "longitude", "address", "status", "message", "created_at",
		}).
			AddRow("id-2", "", "http://cdn/reports/b.jpg", 42.44, 19.26, "Somewhere", "pending", nil, created).
			AddRow("id-1", "", "http://cdn/reports/a.jpg", 42.43, 19.25, "Elsewhere", "success", "Stored", created.Add(-time.Hour))

		mock.ExpectQuery("(?s)SELECT id, user_id, image_url, latitude, longitude, address, status, message, created_at\\s+FROM reports\\s+ORDER BY created_at DESC\\s+LIMIT \\? OFFSET \\?").
			WithArgs(12, 24).
			WillReturnRows(rows)

		reports, err := records.List(context.Background(), 24, 12)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(reports) != 2 {
			t.Fatalf("expected 2 reports, got %d", len(reports))
		}
		if reports[0].ID != "id-2" || reports[0].Status != models.StatusPending {
			t.Errorf("unexpected first row: %+v", reports[0])
		}
		if reports[0].Message != "" {
			t.Errorf("NULL message should scan to empty, got %q", reports[0].Message)
		}
		if reports[1].Message != "Stored" {
			t.Errorf("unexpected second row message: %q", reports[1].Message)
		}
	})
}

func TestListReportsDefaults(t *testing.T) {
	it(func() {
		records := NewRecords(db)

		mock.ExpectQuery("(?s)SELECT id, user_id, image_url, latitude, longitude, address, status, message, created_at\\s+FROM reports\\s+ORDER BY created_at DESC\\s+LIMIT \\? OFFSET \\?").
			WithArgs(DefaultPageSize, 0).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "image_url", "latitude", "longitude", "address", "status", "message", "created_at",
			}))

		// Nonsense paging arguments fall back to the defaults.
		if _, err := records.List(context.Background(), -5, 0); err != nil {
			t.Fatalf("List: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestCountByStatus(t *testing.T) {
	it(func() {
		records := NewRecords(db)

		mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM reports GROUP BY status").
			WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
				AddRow("pending", 3).
				AddRow("violation", 1))

		counts, err := records.CountByStatus(context.Background())
		if err != nil {
			t.Fatalf("CountByStatus: %v", err)
		}
		if counts["pending"] != 3 || counts["violation"] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}
	})
}
