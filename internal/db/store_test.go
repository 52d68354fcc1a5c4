// Package db provides unit tests for the local store and outbox.
package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/wirasto/fieldsync/internal/crypto"
	"github.com/wirasto/fieldsync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database := openTestDB(t)
	store := NewStore(database.DB)
	t.Cleanup(func() { store.Close() })
	return store
}

func reportPayload(t *testing.T, projectID models.UUID, percent float64) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(models.ReportCreatePayload{
		ProjectID:       projectID,
		ReportedPercent: percent,
		ReportDate:      "2026-08-30",
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func createTestReport(t *testing.T, store *Store, projectID models.UUID) (*models.ProgressReport, *models.OutboxEntry) {
	t.Helper()
	report := &models.ProgressReport{
		ProjectID:       projectID,
		ReportedPercent: 40,
		ReportDate:      "2026-08-30",
		ReportedBy:      "u1",
	}
	entry := &models.OutboxEntry{
		Kind:       models.KindReportCreate,
		EntityType: "progress_report",
		Payload:    reportPayload(t, projectID, 40),
	}
	if err := store.CreateProgressReport(report, entry); err != nil {
		t.Fatalf("CreateProgressReport failed: %v", err)
	}
	return report, entry
}

// TestCreateProgressReportTransactional tests that the mirror record and its
// outbox entry are written together.
func TestCreateProgressReportTransactional(t *testing.T) {
	store := newTestStore(t)

	report, entry := createTestReport(t, store, "p1")

	if report.ID == "" {
		t.Error("Report ID was not generated")
	}
	if entry.IdempotencyKey == "" {
		t.Error("Idempotency key was not generated")
	}
	if entry.LocalRef != report.ID {
		t.Errorf("Entry local ref %s does not match report %s", entry.LocalRef, report.ID)
	}

	stored, err := store.GetProgressReport(report.ID)
	if err != nil {
		t.Fatalf("GetProgressReport failed: %v", err)
	}
	if stored.ServerID != "" {
		t.Error("Fresh report must have no server ID")
	}

	count, err := store.PendingCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected pending count 1, got %d", count)
	}
}

// TestUpdateProgressReportTransactional tests the amendment rewrites the
// mirror and enqueues in one transaction, keeping the server identifier.
func TestUpdateProgressReportTransactional(t *testing.T) {
	store := newTestStore(t)

	report, createEntry := createTestReport(t, store, "p1")
	err := store.CompleteOutboxEntry(createEntry.ID, Resolution{
		EntityType: "progress_report",
		LocalRef:   report.ID,
		ServerID:   "pr-001",
		SyncedAt:   time.Now().Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}

	report.ReportedPercent = 60
	report.Remarks = "revised"
	updateEntry := &models.OutboxEntry{
		Kind:       models.KindReportUpdate,
		EntityType: "progress_report",
		Payload:    reportPayload(t, "p1", 60),
	}
	if err := store.UpdateProgressReport(report, updateEntry); err != nil {
		t.Fatalf("UpdateProgressReport failed: %v", err)
	}

	stored, err := store.GetProgressReport(report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ReportedPercent != 60 || stored.Remarks != "revised" {
		t.Errorf("Amendment not applied: %+v", stored)
	}
	if stored.ServerID != "pr-001" {
		t.Errorf("Server ID lost on amendment: %q", stored.ServerID)
	}

	count, _ := store.PendingCount()
	if count != 1 {
		t.Errorf("Expected the update entry pending, count = %d", count)
	}

	// Unknown report: nothing is written.
	err = store.UpdateProgressReport(&models.ProgressReport{ID: "nope"}, &models.OutboxEntry{
		Kind: models.KindReportUpdate, EntityType: "progress_report", Payload: []byte(`{}`),
	})
	if err == nil {
		t.Error("Expected error updating unknown report")
	}
}

// TestNextOutboxEntriesOrder tests FIFO ordering by sequence number.
func TestNextOutboxEntriesOrder(t *testing.T) {
	store := newTestStore(t)

	first, _ := createTestReport(t, store, "p1")
	second, _ := createTestReport(t, store, "p2")

	entries, err := store.NextOutboxEntries(10, time.Now())
	if err != nil {
		t.Fatalf("NextOutboxEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].LocalRef != first.ID || entries[1].LocalRef != second.ID {
		t.Error("Entries not returned in sequence order")
	}
	if entries[0].Seq >= entries[1].Seq {
		t.Error("Sequence numbers not monotonic")
	}
}

// TestDependencyDeferral tests dependency gating: an update entry depending
// on an unsynced report is withheld until the report resolves, while a media
// entry with the same dependency is handed out immediately so its presign
// and upload phases can run ahead of the report.
func TestDependencyDeferral(t *testing.T) {
	store := newTestStore(t)

	report, reportEntry := createTestReport(t, store, "p1")

	report.ReportedPercent = 60
	updateEntry := &models.OutboxEntry{
		Kind:       models.KindReportUpdate,
		EntityType: "progress_report",
		Payload:    reportPayload(t, "p1", 60),
		DependsOn:  report.ID,
	}
	if err := store.UpdateProgressReport(report, updateEntry); err != nil {
		t.Fatalf("UpdateProgressReport failed: %v", err)
	}

	media := &models.MediaAsset{
		ProjectID:   "p1",
		ReportRef:   report.ID,
		MediaType:   "photo",
		Filename:    "site.jpg",
		ContentType: "image/jpeg",
		FilePath:    "/tmp/site.jpg",
	}
	mediaEntry := &models.OutboxEntry{
		Kind:       models.KindMediaUpload,
		EntityType: "media_asset",
		Payload:    json.RawMessage(`{}`),
		DependsOn:  report.ID,
	}
	if err := store.CreateMediaAsset(media, mediaEntry); err != nil {
		t.Fatalf("CreateMediaAsset failed: %v", err)
	}

	// Dependency unresolved: the update is withheld, the media entry is
	// due anyway.
	entries, err := store.NextOutboxEntries(10, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected the create and media entries, got %d entries", len(entries))
	}
	if entries[0].ID != reportEntry.ID || entries[1].ID != mediaEntry.ID {
		t.Errorf("Expected create then media in sequence order, got %s then %s",
			entries[0].Kind, entries[1].Kind)
	}

	// Resolve the report; the update becomes eligible too.
	err = store.CompleteOutboxEntry(reportEntry.ID, Resolution{
		EntityType: "progress_report",
		LocalRef:   report.ID,
		ServerID:   "pr-001",
		SyncedAt:   time.Now().Unix(),
	})
	if err != nil {
		t.Fatalf("CompleteOutboxEntry failed: %v", err)
	}

	entries, err = store.NextOutboxEntries(10, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ID != updateEntry.ID || entries[1].ID != mediaEntry.ID {
		t.Fatalf("Expected update and media entries after dependency resolved, got %d entries", len(entries))
	}
}

// TestCompleteOutboxEntryResolvesMirror tests the round-trip property: a
// completed entry leaves its mirror record with a server identifier.
func TestCompleteOutboxEntryResolvesMirror(t *testing.T) {
	store := newTestStore(t)

	report, entry := createTestReport(t, store, "p1")

	syncedAt := time.Now().Unix()
	err := store.CompleteOutboxEntry(entry.ID, Resolution{
		EntityType: "progress_report",
		LocalRef:   report.ID,
		ServerID:   "pr-001",
		SyncedAt:   syncedAt,
	})
	if err != nil {
		t.Fatalf("CompleteOutboxEntry failed: %v", err)
	}

	stored, err := store.GetProgressReport(report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ServerID != "pr-001" {
		t.Errorf("Expected server ID pr-001, got %q", stored.ServerID)
	}
	if stored.SyncedAt != syncedAt {
		t.Errorf("Expected synced_at %d, got %d", syncedAt, stored.SyncedAt)
	}

	count, _ := store.PendingCount()
	if count != 0 {
		t.Errorf("Expected pending count 0 after completion, got %d", count)
	}

	// Completing twice must fail: the entry is gone.
	if err := store.CompleteOutboxEntry(entry.ID, Resolution{}); err == nil {
		t.Error("Expected error completing a removed entry")
	}
}

// TestFailOutboxEntryKeepsEntry tests that a transient failure increments
// the attempt count and defers the entry without removing it.
func TestFailOutboxEntryKeepsEntry(t *testing.T) {
	store := newTestStore(t)

	_, entry := createTestReport(t, store, "p1")

	retryAt := time.Now().Add(30 * time.Second)
	if err := store.FailOutboxEntry(entry.ID, 1, retryAt, "connection refused"); err != nil {
		t.Fatalf("FailOutboxEntry failed: %v", err)
	}

	// Not due before the retry time.
	entries, err := store.NextOutboxEntries(10, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no due entries before retry time, got %d", len(entries))
	}

	// Due again after the retry time.
	entries, err = store.NextOutboxEntries(10, retryAt.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 due entry after retry time, got %d", len(entries))
	}
	if entries[0].Attempts != 1 {
		t.Errorf("Expected attempts 1, got %d", entries[0].Attempts)
	}
	if entries[0].LastError != "connection refused" {
		t.Errorf("Expected last error recorded, got %q", entries[0].LastError)
	}

	count, _ := store.PendingCount()
	if count != 1 {
		t.Errorf("Failed entry must stay pending, count = %d", count)
	}
}

// TestSuspendAndResume tests auth suspension semantics.
func TestSuspendAndResume(t *testing.T) {
	store := newTestStore(t)

	createTestReport(t, store, "p1")
	createTestReport(t, store, "p2")

	n, err := store.SuspendPendingEntries()
	if err != nil {
		t.Fatalf("SuspendPendingEntries failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 suspended, got %d", n)
	}

	entries, _ := store.NextOutboxEntries(10, time.Now())
	if len(entries) != 0 {
		t.Errorf("Suspended entries must not be due, got %d", len(entries))
	}

	// Suspension keeps the data: pending count still reports them.
	count, _ := store.PendingCount()
	if count != 2 {
		t.Errorf("Expected pending count 2 while suspended, got %d", count)
	}

	n, err = store.ResumeSuspendedEntries()
	if err != nil {
		t.Fatalf("ResumeSuspendedEntries failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 resumed, got %d", n)
	}

	entries, _ = store.NextOutboxEntries(10, time.Now())
	if len(entries) != 2 {
		t.Errorf("Expected 2 due entries after resume, got %d", len(entries))
	}
}

// TestTerminalFailureLifecycle tests marking, surfacing, retrying and
// discarding terminally failed entries.
func TestTerminalFailureLifecycle(t *testing.T) {
	store := newTestStore(t)

	_, entry := createTestReport(t, store, "p1")

	if err := store.MarkOutboxFailed(entry.ID, "progress already reported for date"); err != nil {
		t.Fatalf("MarkOutboxFailed failed: %v", err)
	}

	failed, err := store.FailedEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 {
		t.Fatalf("Expected 1 failed entry, got %d", len(failed))
	}
	if failed[0].LastError == "" {
		t.Error("Expected server-provided reason on failed entry")
	}

	// User retry resets the attempt counter.
	if err := store.RetryFailedEntry(entry.ID); err != nil {
		t.Fatalf("RetryFailedEntry failed: %v", err)
	}
	entries, _ := store.NextOutboxEntries(10, time.Now())
	if len(entries) != 1 || entries[0].Attempts != 0 {
		t.Error("Retried entry must be pending with attempts reset")
	}

	// Discard only works on failed entries.
	if err := store.DiscardFailedEntry(entry.ID); err == nil {
		t.Error("Expected error discarding a pending entry")
	}
	if err := store.MarkOutboxFailed(entry.ID, "still rejected"); err != nil {
		t.Fatal(err)
	}
	if err := store.DiscardFailedEntry(entry.ID); err != nil {
		t.Fatalf("DiscardFailedEntry failed: %v", err)
	}
}

// TestDiscardCascadesToDependents tests that discarding a report creation
// fails the entries depending on it. Their dependency can never resolve, so
// leaving them pending would strand them invisibly forever.
func TestDiscardCascadesToDependents(t *testing.T) {
	store := newTestStore(t)

	report, reportEntry := createTestReport(t, store, "p1")

	media := &models.MediaAsset{
		ProjectID:   "p1",
		ReportRef:   report.ID,
		MediaType:   "photo",
		Filename:    "site.jpg",
		ContentType: "image/jpeg",
		FilePath:    "/tmp/site.jpg",
	}
	mediaEntry := &models.OutboxEntry{
		Kind:       models.KindMediaUpload,
		EntityType: "media_asset",
		Payload:    json.RawMessage(`{}`),
		DependsOn:  report.ID,
	}
	if err := store.CreateMediaAsset(media, mediaEntry); err != nil {
		t.Fatalf("CreateMediaAsset failed: %v", err)
	}

	if err := store.MarkOutboxFailed(reportEntry.ID, "project closed for reporting"); err != nil {
		t.Fatal(err)
	}
	if err := store.DiscardFailedEntry(reportEntry.ID); err != nil {
		t.Fatalf("DiscardFailedEntry failed: %v", err)
	}

	failed, err := store.FailedEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ID != mediaEntry.ID {
		t.Fatalf("Expected the dependent media entry to surface as failed, got %d entries", len(failed))
	}
	if failed[0].LastError == "" {
		t.Error("Expected a reason on the cascaded failure")
	}

	pending, err := store.PendingCount()
	if err != nil {
		t.Fatal(err)
	}
	if pending != 0 {
		t.Errorf("Expected no stranded pending entries, got %d", pending)
	}
}

// TestTrackPointLifecycle tests GPS point insert, unsynced query and batch
// acknowledgement.
func TestTrackPointLifecycle(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		err := store.InsertTrackPoint(&models.GpsTrackPoint{
			ProjectID:  "p1",
			RecordedAt: int64(1000 + i),
			Latitude:   -6.2 + float64(i)*0.001,
			Longitude:  106.8,
			AccuracyM:  8,
		})
		if err != nil {
			t.Fatalf("InsertTrackPoint failed: %v", err)
		}
	}

	points, err := store.UnsyncedTrackPoints(10)
	if err != nil {
		t.Fatalf("UnsyncedTrackPoints failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("Expected 3 unsynced points, got %d", len(points))
	}
	if points[0].RecordedAt > points[1].RecordedAt {
		t.Error("Points not ordered oldest first")
	}

	ids := []models.UUID{points[0].ID, points[1].ID}
	if err := store.MarkTrackPointsSynced(ids, time.Now().Unix()); err != nil {
		t.Fatalf("MarkTrackPointsSynced failed: %v", err)
	}

	points, _ = store.UnsyncedTrackPoints(10)
	if len(points) != 1 {
		t.Errorf("Expected 1 unsynced point after ack, got %d", len(points))
	}
}

// TestCredentialRoundTrip tests the single-row credential store.
func TestCredentialRoundTrip(t *testing.T) {
	store := newTestStore(t)

	cred, err := store.LoadCredential()
	if err != nil {
		t.Fatal(err)
	}
	if cred != nil {
		t.Fatal("Expected no credential before login")
	}

	err = store.SaveCredential(&models.Credential{
		UserID:       "u1",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	// A second save replaces, never accumulates.
	err = store.SaveCredential(&models.Credential{
		UserID:       "u1",
		AccessToken:  "at-2",
		RefreshToken: "rt-2",
	})
	if err != nil {
		t.Fatal(err)
	}

	cred, err = store.LoadCredential()
	if err != nil {
		t.Fatal(err)
	}
	if cred == nil || cred.AccessToken != "at-2" {
		t.Errorf("Expected replaced credential, got %+v", cred)
	}

	if err := store.ClearCredential(); err != nil {
		t.Fatalf("ClearCredential failed: %v", err)
	}
	cred, _ = store.LoadCredential()
	if cred != nil {
		t.Error("Expected no credential after logout")
	}
}

// TestCredentialEncryptedAtRest tests the token pair is unreadable in the
// raw row when a cipher is configured, and that a changed device key reads
// back as "never logged in" instead of failing.
func TestCredentialEncryptedAtRest(t *testing.T) {
	store := newTestStore(t)
	store.SetCredentialCipher(crypto.DeriveKey("device-a"))

	err := store.SaveCredential(&models.Credential{
		UserID:       "u1",
		AccessToken:  "plaintext-access",
		RefreshToken: "plaintext-refresh",
	})
	if err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	var rawAccess, rawRefresh string
	err = store.db.QueryRow("SELECT access_token, refresh_token FROM credentials").
		Scan(&rawAccess, &rawRefresh)
	if err != nil {
		t.Fatalf("Failed to read raw row: %v", err)
	}
	if rawAccess == "plaintext-access" || rawRefresh == "plaintext-refresh" {
		t.Fatal("Token pair stored in plaintext")
	}

	cred, err := store.LoadCredential()
	if err != nil {
		t.Fatalf("LoadCredential failed: %v", err)
	}
	if cred == nil || cred.AccessToken != "plaintext-access" || cred.RefreshToken != "plaintext-refresh" {
		t.Errorf("Expected decrypted pair, got %+v", cred)
	}

	store.SetCredentialCipher(crypto.DeriveKey("device-b"))
	cred, err = store.LoadCredential()
	if err != nil {
		t.Fatalf("LoadCredential with wrong key failed: %v", err)
	}
	if cred != nil {
		t.Error("Expected undecryptable row treated as no credential")
	}
}

// TestUpsertProject tests mirror upsert semantics.
func TestUpsertProject(t *testing.T) {
	store := newTestStore(t)

	p := &models.Project{ID: "p1", Name: "Bridge Rehab", Status: "ongoing"}
	if err := store.UpsertProject(p); err != nil {
		t.Fatalf("UpsertProject failed: %v", err)
	}

	p.ProgressPercent = 55
	if err := store.UpsertProject(p); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	stored, err := store.GetProject("p1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.ProgressPercent != 55 {
		t.Errorf("Expected progress 55, got %v", stored.ProgressPercent)
	}
}
