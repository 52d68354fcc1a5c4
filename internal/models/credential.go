// Package models provides data model definitions for the FieldSync core.
package models

import "time"

// Credential holds the access/refresh token pair for the logged-in user.
// The row is owned exclusively by the token lifecycle manager; tokens are
// never exposed in JSON and no other component reads or writes this table.
type Credential struct {
	ID           UUID   `db:"id" json:"id"`
	UserID       UUID   `db:"user_id" json:"user_id"`
	AccessToken  string `db:"access_token" json:"-"`        // Never expose
	RefreshToken string `db:"refresh_token" json:"-"`       // Never expose
	ExpiresAt    int64  `db:"expires_at" json:"expires_at"` // expiry hint, zero if unknown
	UpdatedAt    int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Credential.
func (Credential) TableName() string {
	return "credentials"
}

// Expired reports whether the access token expiry hint has passed. A zero
// hint is treated as not expired; the server remains the authority.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != 0 && now.Unix() >= c.ExpiresAt
}
