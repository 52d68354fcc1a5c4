// Package models provides data model definitions for the FieldSync core.
package models

import (
	"encoding/json"
	"time"
)

// OutboxKind identifies the remote operation an outbox entry performs.
// The set is closed; the orchestrator dispatches over it exhaustively.
type OutboxKind string

const (
	KindReportCreate OutboxKind = "report_create"
	KindReportUpdate OutboxKind = "report_update"
	KindMediaUpload  OutboxKind = "media_upload"
)

// OutboxStatus is the delivery state of an outbox entry.
type OutboxStatus string

const (
	// OutboxPending entries are eligible for the next sync pass once
	// NextEligibleAt has passed and their dependency (if any) is resolved.
	OutboxPending OutboxStatus = "pending"

	// OutboxSuspended entries are parked until the user re-authenticates.
	OutboxSuspended OutboxStatus = "suspended"

	// OutboxFailed entries hit a permanent failure or the retry ceiling and
	// wait for the user to retry or discard them. They are never dropped.
	OutboxFailed OutboxStatus = "failed"
)

// OutboxEntry is one pending local mutation awaiting delivery to the remote
// authority. Entries are created in the same transaction as the mirror
// record they describe and removed only after the remote call acknowledged
// success.
type OutboxEntry struct {
	Seq            int64           `db:"seq" json:"seq"` // monotonic, defines processing order
	ID             UUID            `db:"id" json:"id"`
	Kind           OutboxKind      `db:"kind" json:"kind"`
	EntityType     string          `db:"entity_type" json:"entity_type"` // progress_report, media_asset
	LocalRef       UUID            `db:"local_ref" json:"local_ref"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key"`
	DependsOn      UUID            `db:"depends_on" json:"depends_on,omitempty"` // local ProgressReport ID
	Attempts       int             `db:"attempts" json:"attempts"`
	NextEligibleAt int64           `db:"next_eligible_at" json:"next_eligible_at"`
	Status         OutboxStatus    `db:"status" json:"status"`
	LastError      string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt      int64           `db:"created_at" json:"created_at"`
	UpdatedAt      int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for OutboxEntry.
func (OutboxEntry) TableName() string {
	return "outbox"
}

// Eligible reports whether the entry may be attempted at the given time.
// Dependency resolution is checked by the store query, not here.
func (e *OutboxEntry) Eligible(now time.Time) bool {
	return e.Status == OutboxPending && e.NextEligibleAt <= now.Unix()
}

// ReportCreatePayload is the serialized payload of a KindReportCreate or
// KindReportUpdate entry.
type ReportCreatePayload struct {
	ProjectID       UUID    `json:"project_id"`
	ReportedPercent float64 `json:"reported_percent"`
	ReportDate      string  `json:"report_date"`
	Remarks         string  `json:"remarks,omitempty"`
}

// MediaUploadPayload is the serialized payload of a KindMediaUpload entry.
type MediaUploadPayload struct {
	ProjectID   UUID    `json:"project_id"`
	MediaType   string  `json:"media_type"`
	Filename    string  `json:"filename"`
	ContentType string  `json:"content_type"`
	FilePath    string  `json:"file_path"`
	SizeBytes   int64   `json:"size_bytes"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	HasGeotag   bool    `json:"has_geotag"`
}
