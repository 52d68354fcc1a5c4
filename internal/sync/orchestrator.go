// Package sync drives the outbox to empty: it drains pending mutations in
// order, invokes the remote authority, reconciles results into the local
// store and reports pending-count telemetry. All retry policy lives here;
// the store and the API client never retry on their own.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/wirasto/fieldsync/internal/api"
	"github.com/wirasto/fieldsync/internal/config"
	"github.com/wirasto/fieldsync/internal/db"
	apperrors "github.com/wirasto/fieldsync/internal/errors"
	"github.com/wirasto/fieldsync/internal/logging"
	"github.com/wirasto/fieldsync/internal/models"
)

// Sync lifecycle events published to the status hub.
const (
	EventSyncStarted   = "sync.started"
	EventSyncProgress  = "sync.progress"
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
	EventAuthRequired  = "auth.required"
	EventEntryFailed   = "sync.entry_failed"
)

// Remote is the slice of the API client the orchestrator needs.
type Remote interface {
	CreateProgressReport(ctx context.Context, projectID models.UUID, payload models.ReportCreatePayload, idempotencyKey string) (*api.ReportResult, error)
	UpdateProgressReport(ctx context.Context, serverID string, payload models.ReportCreatePayload, idempotencyKey string) (*api.ReportResult, error)
	PresignMedia(ctx context.Context, req api.PresignRequest) (*api.PresignResult, error)
	UploadToPresignedURL(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error
	RegisterMedia(ctx context.Context, req api.RegisterRequest) (*api.MediaResult, error)
	UploadTrackPoints(ctx context.Context, batch api.TrackBatch) (int, error)
	FetchProjects(ctx context.Context) ([]*models.Project, error)
}

// Publisher receives sync lifecycle events. Implemented by the status hub.
type Publisher interface {
	Publish(event string, data map[string]interface{})
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(string, map[string]interface{}) {}

// Status is a snapshot of the orchestrator for sync indicators.
type Status struct {
	Running   bool       `json:"running"`
	Pending   int        `json:"pending"`
	Failed    int        `json:"failed"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Orchestrator drains the outbox. At most one pass runs at a time; a
// trigger arriving during a pass coalesces into one follow-up pass instead
// of queueing.
type Orchestrator struct {
	store  *db.Store
	remote Remote
	events Publisher
	media  *mediaPipeline
	cfg    config.SyncConfig

	mu       sync.Mutex
	runCtx   context.Context
	running  bool
	rerun    bool
	lastSync *time.Time
	lastErr  error
}

// NewOrchestrator creates the orchestrator.
func NewOrchestrator(store *db.Store, remote Remote, events Publisher, cfg config.SyncConfig) *Orchestrator {
	if events == nil {
		events = NopPublisher{}
	}
	o := &Orchestrator{
		store:  store,
		remote: remote,
		events: events,
		cfg:    cfg,
		runCtx: context.Background(),
	}
	o.media = &mediaPipeline{store: store, remote: remote}
	return o
}

// =====================================================
// Exposed Surface
// =====================================================

// EnqueueProgressReport writes the report and its outbox entry in one
// transaction and nudges the orchestrator. This is the only entry point
// for authoring a report.
func (o *Orchestrator) EnqueueProgressReport(projectID models.UUID, percent float64, reportDate, remarks string, reportedBy models.UUID) (*models.ProgressReport, error) {
	report := &models.ProgressReport{
		ProjectID:       projectID,
		ReportedPercent: percent,
		ReportDate:      reportDate,
		Remarks:         remarks,
		ReportedBy:      reportedBy,
	}

	payload, err := json.Marshal(models.ReportCreatePayload{
		ProjectID:       projectID,
		ReportedPercent: percent,
		ReportDate:      reportDate,
		Remarks:         remarks,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode report payload", err)
	}

	entry := &models.OutboxEntry{
		Kind:       models.KindReportCreate,
		EntityType: "progress_report",
		Payload:    payload,
	}

	if err := o.store.CreateProgressReport(report, entry); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to persist report", err)
	}

	o.TriggerSync()
	return report, nil
}

// EnqueueReportUpdate amends a locally authored report and queues the
// amendment. If the original create has not resolved yet the update entry
// depends on it, so the server never sees an update for an unknown report.
func (o *Orchestrator) EnqueueReportUpdate(reportID models.UUID, percent float64, reportDate, remarks string) (*models.ProgressReport, error) {
	report, err := o.store.GetProgressReport(reportID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "unknown report reference", err)
	}

	report.ReportedPercent = percent
	report.ReportDate = reportDate
	report.Remarks = remarks

	payload, err := json.Marshal(models.ReportCreatePayload{
		ProjectID:       report.ProjectID,
		ReportedPercent: percent,
		ReportDate:      reportDate,
		Remarks:         remarks,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode report payload", err)
	}

	entry := &models.OutboxEntry{
		Kind:       models.KindReportUpdate,
		EntityType: "progress_report",
		Payload:    payload,
	}
	if !report.Synced() {
		entry.DependsOn = report.ID
	}

	if err := o.store.UpdateProgressReport(report, entry); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to persist report update", err)
	}

	o.TriggerSync()
	return report, nil
}

// MediaParams describes a captured media file to enqueue.
type MediaParams struct {
	ProjectID   models.UUID
	ReportRef   models.UUID // local ProgressReport ID, optional
	MediaType   string
	Filename    string
	ContentType string
	FilePath    string
	SizeBytes   int64
	Latitude    float64
	Longitude   float64
	HasGeotag   bool
}

// EnqueueMedia writes the media asset and its outbox entry in one
// transaction. If the owning report has not been accepted by the server
// yet, the entry's dependency is pinned now, at enqueue time, so the
// register step defers until the report resolves.
func (o *Orchestrator) EnqueueMedia(p MediaParams) (*models.MediaAsset, error) {
	if p.ContentType == "" || p.MediaType == "" {
		if mt, err := mimetype.DetectFile(p.FilePath); err == nil && p.ContentType == "" {
			p.ContentType = mt.String()
		}
		if p.ContentType == "" {
			p.ContentType = "application/octet-stream"
		}
		if p.MediaType == "" {
			p.MediaType = mediaTypeFor(p.ContentType)
		}
	}

	asset := &models.MediaAsset{
		ProjectID:   p.ProjectID,
		ReportRef:   p.ReportRef,
		MediaType:   p.MediaType,
		Filename:    p.Filename,
		ContentType: p.ContentType,
		FilePath:    p.FilePath,
		SizeBytes:   p.SizeBytes,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		HasGeotag:   p.HasGeotag,
	}

	payload, err := json.Marshal(models.MediaUploadPayload{
		ProjectID:   p.ProjectID,
		MediaType:   p.MediaType,
		Filename:    p.Filename,
		ContentType: p.ContentType,
		FilePath:    p.FilePath,
		SizeBytes:   p.SizeBytes,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		HasGeotag:   p.HasGeotag,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode media payload", err)
	}

	entry := &models.OutboxEntry{
		Kind:       models.KindMediaUpload,
		EntityType: "media_asset",
		Payload:    payload,
	}

	if p.ReportRef != "" {
		report, err := o.store.GetProgressReport(p.ReportRef)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "unknown report reference", err)
		}
		if !report.Synced() {
			entry.DependsOn = report.ID
		}
	}

	if err := o.store.CreateMediaAsset(asset, entry); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to persist media asset", err)
	}

	o.TriggerSync()
	return asset, nil
}

// mediaTypeFor maps a sniffed content type to the backend's media classes.
func mediaTypeFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "photo"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	default:
		return "document"
	}
}

// PendingCount returns the number of mutations awaiting delivery.
func (o *Orchestrator) PendingCount() (int, error) {
	return o.store.PendingCount()
}

// FailedEntries surfaces terminally failed entries for manual handling.
func (o *Orchestrator) FailedEntries() ([]*models.OutboxEntry, error) {
	return o.store.FailedEntries()
}

// RetryFailed resets a terminally failed entry and nudges a pass.
func (o *Orchestrator) RetryFailed(id models.UUID) error {
	if err := o.store.RetryFailedEntry(id); err != nil {
		return err
	}
	o.TriggerSync()
	return nil
}

// DiscardFailed removes a terminally failed entry at the user's request.
func (o *Orchestrator) DiscardFailed(id models.UUID) error {
	return o.store.DiscardFailedEntry(id)
}

// Status returns a snapshot for sync indicators.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	running := o.running
	lastSync := o.lastSync
	lastErr := o.lastErr
	o.mu.Unlock()

	s := Status{Running: running, LastSync: lastSync}
	if lastErr != nil {
		s.LastError = lastErr.Error()
	}
	s.Pending, _ = o.store.PendingCount()
	if failed, err := o.store.FailedEntries(); err == nil {
		s.Failed = len(failed)
	}
	return s
}

// OnAuthenticated is called after a successful re-login: suspended entries
// return to the queue and a pass starts from where it left off.
func (o *Orchestrator) OnAuthenticated() {
	if n, err := o.store.ResumeSuspendedEntries(); err != nil {
		logging.Error("Failed to resume suspended entries", err)
	} else if n > 0 {
		logging.Info("Resumed suspended outbox entries", map[string]interface{}{"count": n})
	}
	o.TriggerSync()
}

// =====================================================
// Pass Scheduling
// =====================================================

// Start binds the orchestrator's pass context and launches periodic
// triggering. Cancelling ctx stops the ticker and interrupts a pass at the
// next entry boundary.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.runCtx = ctx
	o.mu.Unlock()

	interval := o.cfg.SyncInterval()
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.TriggerSync()
			}
		}
	}()
}

// TriggerSync starts a pass, fire-and-forget. A trigger while a pass is
// active is coalesced into exactly one follow-up pass.
func (o *Orchestrator) TriggerSync() {
	o.mu.Lock()
	if o.running {
		o.rerun = true
		o.mu.Unlock()
		return
	}
	o.running = true
	ctx := o.runCtx
	o.mu.Unlock()

	go func() {
		for {
			o.runPass(ctx)

			o.mu.Lock()
			if o.rerun && ctx.Err() == nil {
				o.rerun = false
				o.mu.Unlock()
				continue
			}
			o.running = false
			o.mu.Unlock()
			return
		}
	}()
}

// Wait blocks until no pass is running. Test helper and shutdown aid.
func (o *Orchestrator) Wait() {
	for {
		o.mu.Lock()
		running := o.running
		o.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// =====================================================
// Pass Algorithm
// =====================================================

// runPass drains the queue once: batches of due entries in sequence order,
// then the GPS backlog, then a mirror refresh.
// Cancellation is honored between entry boundaries only; a call already in
// flight completes and its result is applied, because a partially sent
// create might already have been accepted.
func (o *Orchestrator) runPass(ctx context.Context) {
	o.events.Publish(EventSyncStarted, nil)
	start := time.Now()

	err := o.drainOutbox(ctx)
	if err == nil && ctx.Err() == nil {
		err = o.flushTrackPoints(ctx)
	}
	if err == nil && ctx.Err() == nil {
		o.refreshProjects(ctx)
	}

	pending, _ := o.store.PendingCount()

	o.mu.Lock()
	o.lastErr = err
	if err == nil {
		now := time.Now()
		o.lastSync = &now
	}
	o.mu.Unlock()

	data := map[string]interface{}{
		"pending":     pending,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	switch {
	case err == nil:
		o.events.Publish(EventSyncCompleted, data)
	case apperrors.IsAuth(err):
		o.events.Publish(EventAuthRequired, data)
	default:
		data["error"] = err.Error()
		o.events.Publish(EventSyncFailed, data)
	}
}

// errAwaitingReport marks a media entry whose bytes are uploaded but whose
// register step must wait for the owning report's server identifier. The
// entry stays pending without consuming a retry attempt.
var errAwaitingReport = errors.New("register deferred until the owning report resolves")

// drainOutbox processes due entries until none remain. Returns an auth
// error when the pass had to suspend; transient and permanent entry
// failures are absorbed into per-entry retry state.
//
// Each remote call runs under a detached context: cancelling the pass must
// not abort a call already in flight, since the server may have accepted
// it. Cancellation takes effect at the next entry boundary.
func (o *Orchestrator) drainOutbox(ctx context.Context) error {
	deferred := make(map[models.UUID]bool)
	for {
		if ctx.Err() != nil {
			return nil
		}

		entries, err := o.store.NextOutboxEntries(o.cfg.BatchSize, time.Now())
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to fetch due entries", err)
		}
		if len(entries) == 0 {
			return nil
		}

		progressed := false
		for _, entry := range entries {
			if ctx.Err() != nil {
				return nil
			}
			if deferred[entry.ID] {
				continue
			}

			err := o.processEntry(context.WithoutCancel(ctx), entry)
			if errors.Is(err, errAwaitingReport) {
				deferred[entry.ID] = true
				continue
			}
			if err != nil {
				if handled := o.handleEntryFailure(entry, err); !handled {
					// Auth failure suspends the whole pass.
					return err
				}
				progressed = true
				continue
			}

			progressed = true
			pending, _ := o.store.PendingCount()
			o.events.Publish(EventSyncProgress, map[string]interface{}{"pending": pending})
		}
		if !progressed {
			// Everything still due was deferred; nothing left to do this pass.
			return nil
		}
	}
}

// processEntry executes one entry's remote operation and completes it.
// The dispatch over entry kinds is exhaustive.
func (o *Orchestrator) processEntry(ctx context.Context, entry *models.OutboxEntry) error {
	switch entry.Kind {
	case models.KindReportCreate:
		return o.processReportCreate(ctx, entry)
	case models.KindReportUpdate:
		return o.processReportUpdate(ctx, entry)
	case models.KindMediaUpload:
		return o.media.process(ctx, entry)
	default:
		return apperrors.New(apperrors.ErrInternal, fmt.Sprintf("unknown outbox kind %q", entry.Kind))
	}
}

func (o *Orchestrator) processReportCreate(ctx context.Context, entry *models.OutboxEntry) error {
	var payload models.ReportCreatePayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "malformed report payload", err)
	}

	result, err := o.remote.CreateProgressReport(ctx, payload.ProjectID, payload, entry.IdempotencyKey)
	if err != nil {
		return err
	}

	return o.store.CompleteOutboxEntry(entry.ID, db.Resolution{
		EntityType: "progress_report",
		LocalRef:   entry.LocalRef,
		ServerID:   result.ProgressID,
		SyncedAt:   time.Now().Unix(),
	})
}

func (o *Orchestrator) processReportUpdate(ctx context.Context, entry *models.OutboxEntry) error {
	var payload models.ReportCreatePayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "malformed report payload", err)
	}

	report, err := o.store.GetProgressReport(entry.LocalRef)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to load report for update", err)
	}
	if report.ServerID == "" {
		// Update entries are only handed out once their report resolved,
		// so this indicates a corrupted dependency link.
		return apperrors.New(apperrors.ErrInternal, "update entry for unsynced report")
	}

	result, err := o.remote.UpdateProgressReport(ctx, report.ServerID, payload, entry.IdempotencyKey)
	if err != nil {
		return err
	}

	return o.store.CompleteOutboxEntry(entry.ID, db.Resolution{
		EntityType: "progress_report",
		LocalRef:   entry.LocalRef,
		ServerID:   result.ProgressID,
		SyncedAt:   time.Now().Unix(),
	})
}

// handleEntryFailure applies the retry policy for a failed entry. Returns
// false for auth failures, which the caller escalates: the whole queue is
// suspended, nothing is discarded.
func (o *Orchestrator) handleEntryFailure(entry *models.OutboxEntry, err error) bool {
	switch {
	case apperrors.IsAuth(err):
		if _, suspendErr := o.store.SuspendPendingEntries(); suspendErr != nil {
			logging.Error("Failed to suspend outbox entries", suspendErr)
		}
		logging.Warn("Sync suspended, re-authentication required", map[string]interface{}{
			"entry": entry.ID.String(),
		})
		return false

	case apperrors.IsPermanent(err):
		if markErr := o.store.MarkOutboxFailed(entry.ID, err.Error()); markErr != nil {
			logging.Error("Failed to mark entry terminal", markErr)
		}
		o.events.Publish(EventEntryFailed, map[string]interface{}{
			"entry":  entry.ID.String(),
			"kind":   string(entry.Kind),
			"reason": err.Error(),
		})
		logging.Warn("Outbox entry failed permanently", map[string]interface{}{
			"entry": entry.ID.String(), "reason": err.Error(),
		})
		return true

	default:
		// Transient: back off, or give up into the terminal state at the
		// attempt ceiling. Either way the entry survives.
		attempts := entry.Attempts + 1
		if attempts >= o.cfg.MaxAttempts {
			if markErr := o.store.MarkOutboxFailed(entry.ID, err.Error()); markErr != nil {
				logging.Error("Failed to mark entry terminal", markErr)
			}
			o.events.Publish(EventEntryFailed, map[string]interface{}{
				"entry":  entry.ID.String(),
				"kind":   string(entry.Kind),
				"reason": err.Error(),
			})
			return true
		}

		retryAt := time.Now().Add(backoffDelay(attempts, o.cfg.BackoffBase(), o.cfg.BackoffCap()))
		if failErr := o.store.FailOutboxEntry(entry.ID, attempts, retryAt, err.Error()); failErr != nil {
			logging.Error("Failed to record entry failure", failErr)
		}
		logging.Debug("Outbox entry deferred", map[string]interface{}{
			"entry": entry.ID.String(), "attempts": attempts,
		})
		return true
	}
}

// backoffDelay doubles the base delay per attempt, capped.
func backoffDelay(attempts int, base, cap time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

// =====================================================
// GPS Backlog
// =====================================================

// flushTrackPoints uploads the unsynced GPS backlog in project batches.
// Loss tolerance is zero here despite GPS capture itself being
// best-effort: once a point is stored it is delivered at least once.
func (o *Orchestrator) flushTrackPoints(ctx context.Context) error {
	points, err := o.store.UnsyncedTrackPoints(o.cfg.GpsBatchSize)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to load GPS backlog", err)
	}
	if len(points) == 0 {
		return nil
	}

	type groupKey struct {
		project models.UUID
		report  models.UUID
	}
	groups := make(map[groupKey][]*models.GpsTrackPoint)
	var order []groupKey
	for _, p := range points {
		k := groupKey{p.ProjectID, p.ReportRef}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}

	for _, k := range order {
		if ctx.Err() != nil {
			return nil
		}

		group := groups[k]
		batch := api.TrackBatch{ProjectID: k.project}

		if k.report != "" {
			report, err := o.store.GetProgressReport(k.report)
			if err != nil || report.ServerID == "" {
				// Linked report not synced yet; this group waits.
				continue
			}
			batch.ReportServerID = report.ServerID
		}

		ids := make([]models.UUID, 0, len(group))
		for _, p := range group {
			batch.Points = append(batch.Points, api.TrackPointUpload{
				RecordedAt: p.RecordedAt,
				Latitude:   p.Latitude,
				Longitude:  p.Longitude,
				AccuracyM:  p.AccuracyM,
			})
			ids = append(ids, p.ID)
		}

		if _, err := o.remote.UploadTrackPoints(context.WithoutCancel(ctx), batch); err != nil {
			if apperrors.IsAuth(err) {
				return err
			}
			// Transient or rejected batch: the backlog is retried wholesale
			// on the next pass.
			logging.Warn("GPS batch upload failed", map[string]interface{}{
				"project": k.project.String(), "points": len(group), "error": err.Error(),
			})
			continue
		}

		if err := o.store.MarkTrackPointsSynced(ids, time.Now().Unix()); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to mark GPS points synced", err)
		}
	}

	return nil
}

// =====================================================
// Mirror Refresh
// =====================================================

// refreshProjects pulls the project list to keep the local mirror current.
// Best effort: a failure here never fails the pass.
func (o *Orchestrator) refreshProjects(ctx context.Context) {
	projects, err := o.remote.FetchProjects(context.WithoutCancel(ctx))
	if err != nil {
		logging.Debug("Project mirror refresh skipped", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, p := range projects {
		if err := o.store.UpsertProject(p); err != nil {
			logging.Error("Failed to upsert project mirror", err)
			return
		}
	}
}
