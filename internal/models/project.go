// Package models provides data model definitions for the FieldSync core.
package models

import "time"

// Project mirrors a server-owned infrastructure project assigned to the
// field worker's district. Projects are never created on the device, so the
// ID is always a server identifier.
type Project struct {
	ID              UUID    `db:"id" json:"project_id"`
	Name            string  `db:"name" json:"name"`
	DeoID           string  `db:"deo_id" json:"deo_id"`
	Region          string  `db:"region" json:"region,omitempty"`
	Status          string  `db:"status" json:"status"` // planned, ongoing, completed
	ProgressPercent float64 `db:"progress_percent" json:"progress_percent"`
	SyncedAt        int64   `db:"synced_at" json:"synced_at"`
}

// TableName returns the table name for Project.
func (Project) TableName() string {
	return "projects"
}

// SyncedAtTime returns the SyncedAt as time.Time.
func (p *Project) SyncedAtTime() time.Time {
	return time.Unix(p.SyncedAt, 0)
}
