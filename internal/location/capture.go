// Package location captures GPS samples during a site visit. Capture is
// best-effort dense sampling: a sample that fails the accuracy gate, arrives
// outside a tracking session, or cannot be written is dropped without retry.
// Losing one sample is acceptable; an inaccurate stored point is not.
package location

import (
	"context"
	"sync"
	"time"

	"github.com/wirasto/fieldsync/internal/config"
	"github.com/wirasto/fieldsync/internal/db"
	"github.com/wirasto/fieldsync/internal/logging"
	"github.com/wirasto/fieldsync/internal/models"
)

// Sample is one raw GPS fix from the platform location service.
type Sample struct {
	RecordedAt time.Time
	Latitude   float64
	Longitude  float64
	AccuracyM  float64 // accuracy radius in meters
}

// Source delivers raw fixes. The UI shell bridges the platform location
// service into this channel.
type Source interface {
	Samples() <-chan Sample
}

// Stats counts the fate of offered samples since capture started.
type Stats struct {
	Accepted  int64 `json:"accepted"`
	Discarded int64 `json:"discarded"`
}

// Capture gates raw fixes and writes the accepted ones as immutable track
// points. Points are only ever read again by the sync pass for batch upload.
type Capture struct {
	store       *db.Store
	maxAccuracy float64

	mu        sync.Mutex
	projectID models.UUID // empty when no tracking session is active
	reportRef models.UUID
	stats     Stats
}

// NewCapture creates a capture with the configured accuracy gate.
func NewCapture(store *db.Store, cfg config.LocationConfig) *Capture {
	return &Capture{store: store, maxAccuracy: cfg.MaxAccuracyMeters}
}

// StartSession begins attributing accepted samples to a project, optionally
// linked to a locally authored progress report.
func (c *Capture) StartSession(projectID, reportRef models.UUID) {
	c.mu.Lock()
	c.projectID = projectID
	c.reportRef = reportRef
	c.stats = Stats{}
	c.mu.Unlock()

	logging.Info("Location session started", map[string]interface{}{
		"project": projectID.String(),
	})
}

// EndSession stops attributing samples. Fixes arriving outside a session are
// dropped.
func (c *Capture) EndSession() {
	c.mu.Lock()
	stats := c.stats
	c.projectID = ""
	c.reportRef = ""
	c.mu.Unlock()

	logging.Info("Location session ended", map[string]interface{}{
		"accepted": stats.Accepted, "discarded": stats.Discarded,
	})
}

// Offer gates and stores one fix. Returns whether the sample was accepted.
func (c *Capture) Offer(s Sample) bool {
	c.mu.Lock()
	projectID := c.projectID
	reportRef := c.reportRef
	c.mu.Unlock()

	if projectID == "" {
		return false
	}
	if s.AccuracyM <= 0 || s.AccuracyM > c.maxAccuracy {
		c.count(false)
		return false
	}

	point := &models.GpsTrackPoint{
		ProjectID:  projectID,
		ReportRef:  reportRef,
		RecordedAt: s.RecordedAt.Unix(),
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		AccuracyM:  s.AccuracyM,
	}
	if err := c.store.InsertTrackPoint(point); err != nil {
		logging.Warn("Dropped track point", map[string]interface{}{"error": err.Error()})
		c.count(false)
		return false
	}

	c.count(true)
	return true
}

// Run consumes a source until ctx is cancelled or the source closes.
func (c *Capture) Run(ctx context.Context, src Source) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-src.Samples():
			if !ok {
				return
			}
			c.Offer(s)
		}
	}
}

// SessionStats returns the counters for the current session.
func (c *Capture) SessionStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Capture) count(accepted bool) {
	c.mu.Lock()
	if accepted {
		c.stats.Accepted++
	} else {
		c.stats.Discarded++
	}
	c.mu.Unlock()
}
