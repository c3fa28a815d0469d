package models

import (
	"time"
)

// Coordinates is a WGS84 point. The zero value (0,0) is the "unknown
// location" sentinel: every consumer must treat it as no fix, never as a
// real position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether c is the unknown-location sentinel.
func (c Coordinates) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

// ReportStatus is the lifecycle status of a report record and the status
// carried by a Verdict.
type ReportStatus string

const (
	StatusPending   ReportStatus = "pending"
	StatusSuccess   ReportStatus = "success"
	StatusViolation ReportStatus = "violation"
	StatusError     ReportStatus = "error"
	StatusWarning   ReportStatus = "warning"
)

// Valid reports whether s is one of the known statuses.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusViolation, StatusError, StatusWarning:
		return true
	}
	return false
}

// PolicyReason says why a local policy evaluation failed.
type PolicyReason string

const (
	ReasonOutOfZone     PolicyReason = "out_of_zone"
	ReasonOutsideWindow PolicyReason = "outside_window"
)

// PolicyVerdict is the result of one local geofence/time-window evaluation.
// Produced fresh per evaluation; only its reason is ever persisted, folded
// into the report message.
type PolicyVerdict struct {
	OK     bool
	Reason PolicyReason
}

// Report is the persisted entity kept in the reports table. The id is
// assigned by the store on insert. The client treats rows as append-only:
// the in-memory verdict supersedes the row for display, any later status
// correction is a server-side concern.
type Report struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id,omitempty"`
	ImageURL  string       `json:"image_url"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Address   string       `json:"address"`
	Status    ReportStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// CapturedFrame is one camera frame held for the duration of a single
// submission and discarded afterwards.
type CapturedFrame struct {
	Data     []byte
	MimeType string
}

// Verdict is the transient, UI-facing outcome of one submission. It is
// built exactly once per submission by the orchestrator's reconciliation
// step and never persisted as its own entity.
type Verdict struct {
	Status      ReportStatus `json:"status"`
	Message     string       `json:"message"`
	Address     string       `json:"address"`
	ArtifactURL string       `json:"artifact_url,omitempty"`
	ReportID    string       `json:"report_id,omitempty"`
	Coords      Coordinates  `json:"coords"`
}

// VerdictEvent is the JSON payload published to the verdict exchange when a
// submission resolves with a persisted record.
type VerdictEvent struct {
	ReportID  string       `json:"report_id"`
	Status    ReportStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Timestamp time.Time    `json:"timestamp"`
}
