// Package models provides data model definitions for the FieldSync core.
package models

import "time"

// ProgressReport mirrors a project progress log entry. Reports are authored
// on the device: ID is a client-generated UUID and ServerID stays empty until
// the remote authority accepts the create. A non-empty ServerID means the
// report has been accepted at least once.
type ProgressReport struct {
	ID              UUID    `db:"id" json:"id"`
	ServerID        string  `db:"server_id" json:"server_id,omitempty"`
	ProjectID       UUID    `db:"project_id" json:"project_id"`
	ReportedPercent float64 `db:"reported_percent" json:"reported_percent"`
	ReportDate      string  `db:"report_date" json:"report_date"` // YYYY-MM-DD
	Remarks         string  `db:"remarks" json:"remarks,omitempty"`
	ReportedBy      UUID    `db:"reported_by" json:"reported_by"`
	CreatedAt       int64   `db:"created_at" json:"created_at"`
	SyncedAt        int64   `db:"synced_at" json:"synced_at,omitempty"` // 0 until first successful sync
}

// TableName returns the table name for ProgressReport.
func (ProgressReport) TableName() string {
	return "progress_reports"
}

// Synced reports whether the remote authority has accepted this report.
func (r *ProgressReport) Synced() bool {
	return r.ServerID != ""
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (r *ProgressReport) CreatedAtTime() time.Time {
	return time.Unix(r.CreatedAt, 0)
}
