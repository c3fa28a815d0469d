package storage

import (
	"context"

	"ad-capture-pipeline/models"
)

// Store is the durable artifact store the orchestrator talks to: object
// upload plus the structured report record keyed by that artifact.
type Store struct {
	objects *ObjectStore
	records *Records
}

func NewStore(objects *ObjectStore, records *Records) *Store {
	return &Store{objects: objects, records: records}
}

// Upload stores the frame and returns its public URL.
func (s *Store) Upload(ctx context.Context, frame *models.CapturedFrame) (string, error) {
	return s.objects.Upload(ctx, frame)
}

// Insert writes a provisional report row and returns the assigned id.
func (s *Store) Insert(ctx context.Context, report *models.Report) (string, error) {
	return s.records.Insert(ctx, report)
}

// List returns one history page ordered by created_at descending.
func (s *Store) List(ctx context.Context, offset, limit int) ([]models.Report, error) {
	return s.records.List(ctx, offset, limit)
}

// GetByID returns one report row, or sql.ErrNoRows.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Report, error) {
	return s.records.GetByID(ctx, id)
}

// CountByStatus returns row counts per status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.records.CountByStatus(ctx)
}
