// Package location tests the accuracy gate and session attribution.
package location

import (
	"context"
	"testing"
	"time"

	"github.com/wirasto/fieldsync/internal/config"
	"github.com/wirasto/fieldsync/internal/db"
)

func newTestCapture(t *testing.T) (*Capture, *db.Store) {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	store := db.NewStore(database.DB)
	t.Cleanup(func() { store.Close() })

	return NewCapture(store, config.LocationConfig{MaxAccuracyMeters: 25}), store
}

func sampleAt(accuracy float64) Sample {
	return Sample{
		RecordedAt: time.Now(),
		Latitude:   27.7172,
		Longitude:  85.3240,
		AccuracyM:  accuracy,
	}
}

// TestAccuracyGate tests samples above the accuracy threshold are discarded,
// not stored.
func TestAccuracyGate(t *testing.T) {
	capture, store := newTestCapture(t)
	capture.StartSession("proj-1", "")

	cases := []struct {
		name     string
		accuracy float64
		accepted bool
	}{
		{"precise fix", 8, true},
		{"at threshold", 25, true},
		{"coarse fix", 60, false},
		{"missing accuracy", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := capture.Offer(sampleAt(tc.accuracy)); got != tc.accepted {
				t.Errorf("Offer(accuracy=%v) = %v, want %v", tc.accuracy, got, tc.accepted)
			}
		})
	}

	points, err := store.UnsyncedTrackPoints(10)
	if err != nil {
		t.Fatalf("Failed to load track points: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 stored points, got %d", len(points))
	}
	for _, p := range points {
		if p.AccuracyM > 25 {
			t.Errorf("Stored point with accuracy %v above threshold", p.AccuracyM)
		}
	}

	stats := capture.SessionStats()
	if stats.Accepted != 2 || stats.Discarded != 2 {
		t.Errorf("Expected 2 accepted / 2 discarded, got %+v", stats)
	}
}

// TestSamplesOutsideSessionDropped tests fixes arriving with no active
// session are not attributed to anything.
func TestSamplesOutsideSessionDropped(t *testing.T) {
	capture, store := newTestCapture(t)

	if capture.Offer(sampleAt(5)) {
		t.Error("Expected sample rejected outside a session")
	}

	capture.StartSession("proj-1", "")
	capture.Offer(sampleAt(5))
	capture.EndSession()

	if capture.Offer(sampleAt(5)) {
		t.Error("Expected sample rejected after session end")
	}

	points, _ := store.UnsyncedTrackPoints(10)
	if len(points) != 1 {
		t.Errorf("Expected only the in-session point stored, got %d", len(points))
	}
}

// TestSessionAttribution tests accepted points carry the session's project
// and report linkage.
func TestSessionAttribution(t *testing.T) {
	capture, store := newTestCapture(t)
	capture.StartSession("proj-1", "report-local-id")

	if !capture.Offer(sampleAt(10)) {
		t.Fatal("Expected sample accepted")
	}

	points, _ := store.UnsyncedTrackPoints(10)
	if len(points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(points))
	}
	if points[0].ProjectID != "proj-1" {
		t.Errorf("Expected project proj-1, got %q", points[0].ProjectID)
	}
	if points[0].ReportRef != "report-local-id" {
		t.Errorf("Expected report linkage, got %q", points[0].ReportRef)
	}
}

// TestRunConsumesSource tests the source loop stores accepted fixes and
// stops when the source closes.
func TestRunConsumesSource(t *testing.T) {
	capture, store := newTestCapture(t)
	capture.StartSession("proj-1", "")

	ch := make(chan Sample, 4)
	ch <- sampleAt(5)
	ch <- sampleAt(90) // gated out
	ch <- sampleAt(12)
	close(ch)

	capture.Run(context.Background(), chanSource(ch))

	points, _ := store.UnsyncedTrackPoints(10)
	if len(points) != 2 {
		t.Errorf("Expected 2 accepted points, got %d", len(points))
	}
}

type chanSource <-chan Sample

func (s chanSource) Samples() <-chan Sample { return s }
