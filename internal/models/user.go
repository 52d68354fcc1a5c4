// Package models provides data model definitions for the FieldSync core.
package models

import "time"

// User mirrors the server-side user profile of the logged-in field worker.
// Users are server-owned; the ID is always a server identifier.
type User struct {
	ID       UUID   `db:"id" json:"user_id"`
	Username string `db:"username" json:"username"`
	FullName string `db:"full_name" json:"full_name"`
	Role     string `db:"role" json:"role"` // deo_user, regional_admin, super_admin
	DeoID    string `db:"deo_id" json:"deo_id,omitempty"`
	Region   string `db:"region" json:"region,omitempty"`
	SyncedAt int64  `db:"synced_at" json:"synced_at"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// SyncedAtTime returns the SyncedAt as time.Time.
func (u *User) SyncedAtTime() time.Time {
	return time.Unix(u.SyncedAt, 0)
}
