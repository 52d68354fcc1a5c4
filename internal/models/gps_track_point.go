// Package models provides data model definitions for the FieldSync core.
package models

import "time"

// GpsTrackPoint is one accepted GPS sample. Points are immutable after
// creation: written once by location capture, read by the sync pass for
// batch upload, and only ever touched again to record the synced timestamp.
type GpsTrackPoint struct {
	ID         UUID    `db:"id" json:"id"`
	ProjectID  UUID    `db:"project_id" json:"project_id"`
	ReportRef  UUID    `db:"report_ref" json:"report_ref,omitempty"` // local ProgressReport ID, optional
	RecordedAt int64   `db:"recorded_at" json:"recorded_at"`
	Latitude   float64 `db:"latitude" json:"latitude"`
	Longitude  float64 `db:"longitude" json:"longitude"`
	AccuracyM  float64 `db:"accuracy_m" json:"accuracy_m"`
	SyncedAt   int64   `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for GpsTrackPoint.
func (GpsTrackPoint) TableName() string {
	return "gps_track_points"
}

// RecordedAtTime returns the RecordedAt as time.Time.
func (p *GpsTrackPoint) RecordedAtTime() time.Time {
	return time.Unix(p.RecordedAt, 0)
}
