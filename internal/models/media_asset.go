// Package models provides data model definitions for the FieldSync core.
package models

// MediaAsset mirrors a captured photo, video or document. The file itself
// stays on the device at FilePath until the upload pipeline has streamed it
// to object storage. StorageKey is set once a direct upload succeeded so a
// resumed entry never uploads the same bytes twice.
type MediaAsset struct {
	ID          UUID    `db:"id" json:"id"`
	ServerID    string  `db:"server_id" json:"server_id,omitempty"`
	ProjectID   UUID    `db:"project_id" json:"project_id"`
	ReportRef   UUID    `db:"report_ref" json:"report_ref,omitempty"` // local ProgressReport ID, optional
	MediaType   string  `db:"media_type" json:"media_type"`           // photo, video, document
	Filename    string  `db:"filename" json:"filename"`
	ContentType string  `db:"content_type" json:"content_type"`
	FilePath    string  `db:"file_path" json:"file_path"`
	SizeBytes   int64   `db:"size_bytes" json:"size_bytes"`
	Latitude    float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude   float64 `db:"longitude" json:"longitude,omitempty"`
	HasGeotag   bool    `db:"has_geotag" json:"has_geotag"`
	StorageKey  string  `db:"storage_key" json:"storage_key,omitempty"`
	CreatedAt   int64   `db:"created_at" json:"created_at"`
	SyncedAt    int64   `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for MediaAsset.
func (MediaAsset) TableName() string {
	return "media_assets"
}

// Synced reports whether the remote authority has registered this asset.
func (m *MediaAsset) Synced() bool {
	return m.ServerID != ""
}

// Uploaded reports whether the file bytes already reached object storage.
func (m *MediaAsset) Uploaded() bool {
	return m.StorageKey != ""
}
