// Package db provides CRUD and outbox operations for the FieldSync models.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/wirasto/fieldsync/internal/crypto"
	"github.com/wirasto/fieldsync/internal/models"
	"github.com/wirasto/fieldsync/internal/uuid"
)

// Store provides transactional access to the mirror tables and the outbox.
// The entity write and its outbox entry always commit in one transaction:
// there is never an orphaned mutation without a queue record or vice versa.
type Store struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries. Statements are
	// prepared on first use and reused across sync passes.
	stmtCache sync.Map // map[string]*sql.Stmt

	// credKey, when set, encrypts the token pair at rest.
	credKey []byte
}

// NewStore creates a new Store instance.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SetCredentialCipher enables token-at-rest encryption with a device key.
// Must be called before the first credential operation.
func (s *Store) SetCredentialCipher(key []byte) {
	s.credKey = key
}

// prepareStmt gets or creates a prepared statement from cache.
func (s *Store) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (s *Store) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// Entity Mirror Operations
// =====================================================

// UpsertUser inserts or replaces a mirrored user profile.
func (s *Store) UpsertUser(u *models.User) error {
	u.SyncedAt = time.Now().Unix()
	query := `
	INSERT INTO users (id, username, full_name, role, deo_id, region, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		username = excluded.username, full_name = excluded.full_name,
		role = excluded.role, deo_id = excluded.deo_id,
		region = excluded.region, synced_at = excluded.synced_at
	`
	_, err := s.db.Exec(query, u.ID, u.Username, u.FullName, u.Role, u.DeoID, u.Region, u.SyncedAt)
	return err
}

// UpsertProject inserts or replaces a mirrored project.
func (s *Store) UpsertProject(p *models.Project) error {
	p.SyncedAt = time.Now().Unix()
	query := `
	INSERT INTO projects (id, name, deo_id, region, status, progress_percent, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name, deo_id = excluded.deo_id, region = excluded.region,
		status = excluded.status, progress_percent = excluded.progress_percent,
		synced_at = excluded.synced_at
	`
	_, err := s.db.Exec(query, p.ID, p.Name, p.DeoID, p.Region, p.Status, p.ProgressPercent, p.SyncedAt)
	return err
}

// GetProject retrieves a mirrored project by server ID.
func (s *Store) GetProject(id models.UUID) (*models.Project, error) {
	query := `
	SELECT id, name, deo_id, region, status, progress_percent, synced_at
	FROM projects WHERE id = ?
	`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return nil, err
	}

	var p models.Project
	err = stmt.QueryRow(id).Scan(&p.ID, &p.Name, &p.DeoID, &p.Region, &p.Status, &p.ProgressPercent, &p.SyncedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProgressReport retrieves a progress report by local ID.
func (s *Store) GetProgressReport(id models.UUID) (*models.ProgressReport, error) {
	query := `
	SELECT id, server_id, project_id, reported_percent, report_date, remarks,
		   reported_by, created_at, synced_at
	FROM progress_reports WHERE id = ?
	`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return nil, err
	}

	var r models.ProgressReport
	var serverID sql.NullString
	var syncedAt sql.NullInt64
	err = stmt.QueryRow(id).Scan(&r.ID, &serverID, &r.ProjectID, &r.ReportedPercent,
		&r.ReportDate, &r.Remarks, &r.ReportedBy, &r.CreatedAt, &syncedAt)
	if err != nil {
		return nil, err
	}
	r.ServerID = serverID.String
	r.SyncedAt = syncedAt.Int64
	return &r, nil
}

// GetMediaAsset retrieves a media asset by local ID.
func (s *Store) GetMediaAsset(id models.UUID) (*models.MediaAsset, error) {
	query := `
	SELECT id, server_id, project_id, report_ref, media_type, filename, content_type,
		   file_path, size_bytes, latitude, longitude, has_geotag, storage_key,
		   created_at, synced_at
	FROM media_assets WHERE id = ?
	`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return nil, err
	}

	var m models.MediaAsset
	var serverID, reportRef sql.NullString
	var syncedAt sql.NullInt64
	err = stmt.QueryRow(id).Scan(&m.ID, &serverID, &m.ProjectID, &reportRef, &m.MediaType,
		&m.Filename, &m.ContentType, &m.FilePath, &m.SizeBytes, &m.Latitude, &m.Longitude,
		&m.HasGeotag, &m.StorageKey, &m.CreatedAt, &syncedAt)
	if err != nil {
		return nil, err
	}
	m.ServerID = serverID.String
	m.ReportRef = models.UUID(reportRef.String)
	m.SyncedAt = syncedAt.Int64
	return &m, nil
}

// CreateProgressReport persists a locally authored report and its outbox
// entry atomically.
func (s *Store) CreateProgressReport(r *models.ProgressReport, e *models.OutboxEntry) error {
	now := time.Now().Unix()
	if r.ID == "" {
		r.ID = models.UUID(uuid.New())
	}
	r.CreatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO progress_reports (id, server_id, project_id, reported_percent,
		report_date, remarks, reported_by, created_at, synced_at)
	VALUES (?, NULL, ?, ?, ?, ?, ?, ?, NULL)
	`
	if _, err := tx.Exec(query, r.ID, r.ProjectID, r.ReportedPercent, r.ReportDate,
		r.Remarks, r.ReportedBy, r.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert progress report: %w", err)
	}

	e.LocalRef = r.ID
	if err := insertOutboxEntry(tx, e, now); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateProgressReport rewrites the report's authored fields and enqueues
// the amendment atomically. The mirror keeps its server identifier; the
// entry carries the new field values.
func (s *Store) UpdateProgressReport(r *models.ProgressReport, e *models.OutboxEntry) error {
	now := time.Now().Unix()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	UPDATE progress_reports SET reported_percent = ?, report_date = ?, remarks = ?
	WHERE id = ?
	`
	res, err := tx.Exec(query, r.ReportedPercent, r.ReportDate, r.Remarks, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update progress report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("progress report %s not found", r.ID)
	}

	e.LocalRef = r.ID
	if err := insertOutboxEntry(tx, e, now); err != nil {
		return err
	}

	return tx.Commit()
}

// CreateMediaAsset persists a captured media asset and its outbox entry
// atomically.
func (s *Store) CreateMediaAsset(m *models.MediaAsset, e *models.OutboxEntry) error {
	now := time.Now().Unix()
	if m.ID == "" {
		m.ID = models.UUID(uuid.New())
	}
	m.CreatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO media_assets (id, server_id, project_id, report_ref, media_type,
		filename, content_type, file_path, size_bytes, latitude, longitude,
		has_geotag, storage_key, created_at, synced_at)
	VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, NULL)
	`
	var reportRef interface{}
	if m.ReportRef != "" {
		reportRef = string(m.ReportRef)
	}
	if _, err := tx.Exec(query, m.ID, m.ProjectID, reportRef, m.MediaType, m.Filename,
		m.ContentType, m.FilePath, m.SizeBytes, m.Latitude, m.Longitude, m.HasGeotag,
		m.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert media asset: %w", err)
	}

	e.LocalRef = m.ID
	if err := insertOutboxEntry(tx, e, now); err != nil {
		return err
	}

	return tx.Commit()
}

// SetMediaStorageKey remembers the object-storage key after a successful
// direct upload, so a resumed entry only retries the register step.
func (s *Store) SetMediaStorageKey(mediaID models.UUID, key string) error {
	_, err := s.db.Exec("UPDATE media_assets SET storage_key = ? WHERE id = ?", key, mediaID)
	return err
}

// =====================================================
// GPS Track Points
// =====================================================

// InsertTrackPoint writes one accepted GPS sample. Points are immutable;
// there is no corresponding update operation.
func (s *Store) InsertTrackPoint(p *models.GpsTrackPoint) error {
	if p.ID == "" {
		p.ID = models.UUID(uuid.New())
	}
	query := `
	INSERT INTO gps_track_points (id, project_id, report_ref, recorded_at,
		latitude, longitude, accuracy_m, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
	`
	var reportRef interface{}
	if p.ReportRef != "" {
		reportRef = string(p.ReportRef)
	}
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(p.ID, p.ProjectID, reportRef, p.RecordedAt, p.Latitude, p.Longitude, p.AccuracyM)
	return err
}

// UnsyncedTrackPoints returns up to limit track points that have not been
// uploaded yet, oldest first.
func (s *Store) UnsyncedTrackPoints(limit int) ([]*models.GpsTrackPoint, error) {
	query := `
	SELECT id, project_id, report_ref, recorded_at, latitude, longitude, accuracy_m
	FROM gps_track_points WHERE synced_at IS NULL
	ORDER BY recorded_at LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []*models.GpsTrackPoint
	for rows.Next() {
		var p models.GpsTrackPoint
		var reportRef sql.NullString
		if err := rows.Scan(&p.ID, &p.ProjectID, &reportRef, &p.RecordedAt,
			&p.Latitude, &p.Longitude, &p.AccuracyM); err != nil {
			return nil, err
		}
		p.ReportRef = models.UUID(reportRef.String)
		points = append(points, &p)
	}
	return points, rows.Err()
}

// MarkTrackPointsSynced records the upload acknowledgement for a batch.
func (s *Store) MarkTrackPointsSynced(ids []models.UUID, syncedAt int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE gps_track_points SET synced_at = ? WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(syncedAt, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// =====================================================
// Outbox Operations
// =====================================================

// insertOutboxEntry writes the entry within the caller's transaction.
func insertOutboxEntry(tx *sql.Tx, e *models.OutboxEntry, now int64) error {
	if e.ID == "" {
		e.ID = models.UUID(uuid.New())
	}
	if e.IdempotencyKey == "" {
		e.IdempotencyKey = uuid.New()
	}
	e.Status = models.OutboxPending
	e.CreatedAt = now
	e.UpdatedAt = now

	query := `
	INSERT INTO outbox (id, kind, entity_type, local_ref, payload, idempotency_key,
		depends_on, attempts, next_eligible_at, status, last_error, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, '', ?, ?)
	`
	var dependsOn interface{}
	if e.DependsOn != "" {
		dependsOn = string(e.DependsOn)
	}
	res, err := tx.Exec(query, e.ID, e.Kind, e.EntityType, e.LocalRef, string(e.Payload),
		e.IdempotencyKey, dependsOn, e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox entry: %w", err)
	}
	e.Seq, _ = res.LastInsertId()
	return nil
}

const outboxColumns = `e.seq, e.id, e.kind, e.entity_type, e.local_ref, e.payload,
	e.idempotency_key, e.depends_on, e.attempts, e.next_eligible_at, e.status,
	e.last_error, e.created_at, e.updated_at`

func scanOutboxEntries(rows *sql.Rows) ([]*models.OutboxEntry, error) {
	var entries []*models.OutboxEntry
	for rows.Next() {
		var e models.OutboxEntry
		var payload string
		var dependsOn sql.NullString
		if err := rows.Scan(&e.Seq, &e.ID, &e.Kind, &e.EntityType, &e.LocalRef, &payload,
			&e.IdempotencyKey, &dependsOn, &e.Attempts, &e.NextEligibleAt, &e.Status,
			&e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		e.DependsOn = models.UUID(dependsOn.String)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// NextOutboxEntries returns up to limit due entries in sequence order.
// An entry with an unresolved dependency (its parent report has no server
// identifier yet) is skipped, not delayed: it stays eligible and is
// re-evaluated on the next pass. Media uploads are the exception: they are
// handed out even while the parent report is unresolved, because their
// presign and upload phases do not need the server identifier. The pipeline
// defers only the register step.
func (s *Store) NextOutboxEntries(limit int, now time.Time) ([]*models.OutboxEntry, error) {
	query := `
	SELECT ` + outboxColumns + `
	FROM outbox e
	LEFT JOIN progress_reports d ON e.depends_on = d.id
	WHERE e.status = 'pending' AND e.next_eligible_at <= ?
	  AND (e.depends_on IS NULL OR d.server_id IS NOT NULL OR e.kind = 'media_upload')
	ORDER BY e.seq LIMIT ?
	`
	rows, err := s.db.Query(query, now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxEntries(rows)
}

// Resolution carries the canonical fields returned by the remote authority
// for a completed outbox entry.
type Resolution struct {
	EntityType string // progress_report or media_asset
	LocalRef   models.UUID
	ServerID   string
	SyncedAt   int64
}

// CompleteOutboxEntry removes the entry and updates its mirror record with
// the server-issued identifier in one transaction, so dependent entries can
// resolve. Entries are removed only here, never on failure.
func (s *Store) CompleteOutboxEntry(id models.UUID, res Resolution) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	del, err := tx.Exec("DELETE FROM outbox WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete outbox entry: %w", err)
	}
	if n, _ := del.RowsAffected(); n == 0 {
		return fmt.Errorf("outbox entry %s not found", id)
	}

	switch res.EntityType {
	case "progress_report":
		_, err = tx.Exec("UPDATE progress_reports SET server_id = ?, synced_at = ? WHERE id = ?",
			res.ServerID, res.SyncedAt, res.LocalRef)
	case "media_asset":
		_, err = tx.Exec("UPDATE media_assets SET server_id = ?, synced_at = ? WHERE id = ?",
			res.ServerID, res.SyncedAt, res.LocalRef)
	default:
		err = fmt.Errorf("unknown entity type %q", res.EntityType)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve mirror record: %w", err)
	}

	return tx.Commit()
}

// FailOutboxEntry records a transient failure: the attempt count increases
// and the entry becomes eligible again at nextEligibleAt. The entry is never
// removed on failure.
func (s *Store) FailOutboxEntry(id models.UUID, attempts int, nextEligibleAt time.Time, lastErr string) error {
	query := `
	UPDATE outbox SET attempts = ?, next_eligible_at = ?, last_error = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := s.db.Exec(query, attempts, nextEligibleAt.Unix(), lastErr, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("outbox entry %s not found", id)
	}
	return nil
}

// MarkOutboxFailed marks an entry terminally failed. It stays in the outbox,
// surfaced to the user for manual retry or discard; it is never silently
// dropped.
func (s *Store) MarkOutboxFailed(id models.UUID, lastErr string) error {
	query := `UPDATE outbox SET status = 'failed', last_error = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.Exec(query, lastErr, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("outbox entry %s not found", id)
	}
	return nil
}

// SuspendPendingEntries parks all pending entries until re-authentication.
func (s *Store) SuspendPendingEntries() (int, error) {
	res, err := s.db.Exec("UPDATE outbox SET status = 'suspended', updated_at = ? WHERE status = 'pending'",
		time.Now().Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ResumeSuspendedEntries returns suspended entries to the pending state,
// immediately eligible. Attempt counts are preserved.
func (s *Store) ResumeSuspendedEntries() (int, error) {
	res, err := s.db.Exec(`UPDATE outbox SET status = 'pending', next_eligible_at = 0, updated_at = ?
		WHERE status = 'suspended'`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RetryFailedEntry resets a terminally failed entry for a user-requested
// retry. The attempt counter starts over.
func (s *Store) RetryFailedEntry(id models.UUID) error {
	query := `
	UPDATE outbox SET status = 'pending', attempts = 0, next_eligible_at = 0,
		last_error = '', updated_at = ?
	WHERE id = ? AND status = 'failed'
	`
	res, err := s.db.Exec(query, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed outbox entry %s not found", id)
	}
	return nil
}

// DiscardFailedEntry removes a terminally failed entry at the user's
// explicit request. This is the only path that removes an entry without a
// remote acknowledgement. Discarding a report creation also fails its
// dependents: their dependency can never resolve once the creation is gone,
// so they are surfaced for retry or discard instead of waiting forever.
func (s *Store) DiscardFailedEntry(id models.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var kind string
	var localRef models.UUID
	err = tx.QueryRow("SELECT kind, local_ref FROM outbox WHERE id = ? AND status = 'failed'", id).
		Scan(&kind, &localRef)
	if err == sql.ErrNoRows {
		return fmt.Errorf("failed outbox entry %s not found", id)
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM outbox WHERE id = ?", id); err != nil {
		return err
	}

	if kind == string(models.KindReportCreate) {
		_, err = tx.Exec(`UPDATE outbox SET status = 'failed',
			last_error = 'parent report entry was discarded', updated_at = ?
			WHERE depends_on = ? AND status IN ('pending', 'suspended')`,
			time.Now().Unix(), localRef)
		if err != nil {
			return fmt.Errorf("failed to fail dependent entries: %w", err)
		}
	}

	return tx.Commit()
}

// FailedEntries returns all terminally failed entries for surfacing.
func (s *Store) FailedEntries() ([]*models.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox e WHERE e.status = 'failed' ORDER BY e.seq`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxEntries(rows)
}

// PendingCount returns the number of entries still awaiting delivery,
// including suspended ones. Terminally failed entries are surfaced
// separately via FailedEntries.
func (s *Store) PendingCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM outbox WHERE status IN ('pending', 'suspended')").Scan(&count)
	return count, err
}

// =====================================================
// Credential Operations
// =====================================================

// SaveCredential replaces the single credential row. With a cipher
// configured the token pair is encrypted before it touches disk.
func (s *Store) SaveCredential(c *models.Credential) error {
	if c.ID == "" {
		c.ID = models.UUID(uuid.New())
	}
	c.UpdatedAt = time.Now().Unix()

	accessToken, refreshToken := c.AccessToken, c.RefreshToken
	if s.credKey != nil {
		var err error
		if accessToken, err = crypto.EncryptString(accessToken, s.credKey); err != nil {
			return fmt.Errorf("failed to encrypt access token: %w", err)
		}
		if refreshToken, err = crypto.EncryptString(refreshToken, s.credKey); err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM credentials"); err != nil {
		return err
	}

	query := `
	INSERT INTO credentials (id, user_id, access_token, refresh_token, expires_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.Exec(query, c.ID, c.UserID, accessToken, refreshToken,
		c.ExpiresAt, c.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

// LoadCredential returns the stored credential pair, or nil if the user has
// never logged in (or has logged out). An undecryptable row (the device
// key changed) is treated as no credential: the user logs in again rather
// than crashing the core.
func (s *Store) LoadCredential() (*models.Credential, error) {
	query := `
	SELECT id, user_id, access_token, refresh_token, expires_at, updated_at
	FROM credentials LIMIT 1
	`
	var c models.Credential
	err := s.db.QueryRow(query).Scan(&c.ID, &c.UserID, &c.AccessToken, &c.RefreshToken,
		&c.ExpiresAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if s.credKey != nil {
		access, err := crypto.DecryptString(c.AccessToken, s.credKey)
		if err != nil {
			return nil, nil
		}
		refresh, err := crypto.DecryptString(c.RefreshToken, s.credKey)
		if err != nil {
			return nil, nil
		}
		c.AccessToken, c.RefreshToken = access, refresh
	}
	return &c, nil
}

// ClearCredential removes the stored credential pair on logout.
func (s *Store) ClearCredential() error {
	_, err := s.db.Exec("DELETE FROM credentials")
	return err
}
