// Package sync: the three-phase media upload pipeline.
package sync

import (
	"context"
	"os"
	"time"

	"github.com/wirasto/fieldsync/internal/api"
	"github.com/wirasto/fieldsync/internal/db"
	apperrors "github.com/wirasto/fieldsync/internal/errors"
	"github.com/wirasto/fieldsync/internal/logging"
	"github.com/wirasto/fieldsync/internal/models"
)

// mediaPipeline runs presign, direct upload and register for media
// entries. Two guarantees:
//   - a file is never registered without a prior successful upload;
//   - the same entry never uploads its bytes twice: a completed upload's
//     object key is persisted, so a resumed entry retries only the
//     register step.
//
// A failed direct upload restarts from presign: presigned URLs are
// time-limited and a stale URL is never reused.
//
// When the owning report has not resolved yet, presign and upload still
// run; only register waits for the report's server identifier.
type mediaPipeline struct {
	store  *db.Store
	remote Remote
}

func (p *mediaPipeline) process(ctx context.Context, entry *models.OutboxEntry) error {
	asset, err := p.store.GetMediaAsset(entry.LocalRef)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to load media asset", err)
	}

	// Media attached to a report may be handed out before that report has
	// resolved. The bytes go up regardless; only the register step needs
	// the report's server identifier.
	reportServerID := ""
	awaitingReport := false
	if asset.ReportRef != "" {
		report, err := p.store.GetProgressReport(asset.ReportRef)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to load owning report", err)
		}
		if report.ServerID == "" {
			awaitingReport = true
		} else {
			reportServerID = report.ServerID
		}
	}

	if !asset.Uploaded() {
		if err := p.presignAndUpload(ctx, asset); err != nil {
			return err
		}
	}

	if awaitingReport {
		// The object key is persisted, so the resumed entry skips straight
		// to register once the owning report resolves.
		return errAwaitingReport
	}

	result, err := p.remote.RegisterMedia(ctx, api.RegisterRequest{
		MediaKey:       asset.StorageKey,
		ProjectID:      asset.ProjectID,
		MediaType:      asset.MediaType,
		Filename:       asset.Filename,
		ContentType:    asset.ContentType,
		SizeBytes:      asset.SizeBytes,
		Latitude:       asset.Latitude,
		Longitude:      asset.Longitude,
		HasGeotag:      asset.HasGeotag,
		ReportServerID: reportServerID,
		IdempotencyKey: entry.IdempotencyKey,
	})
	if err != nil {
		return err
	}

	return p.store.CompleteOutboxEntry(entry.ID, db.Resolution{
		EntityType: "media_asset",
		LocalRef:   entry.LocalRef,
		ServerID:   result.MediaID,
		SyncedAt:   time.Now().Unix(),
	})
}

// presignAndUpload requests a fresh upload URL and streams the file. The
// object key is persisted only after the upload succeeded.
func (p *mediaPipeline) presignAndUpload(ctx context.Context, asset *models.MediaAsset) error {
	presign, err := p.remote.PresignMedia(ctx, api.PresignRequest{
		ProjectID:   asset.ProjectID,
		MediaType:   asset.MediaType,
		Filename:    asset.Filename,
		ContentType: asset.ContentType,
		Latitude:    asset.Latitude,
		Longitude:   asset.Longitude,
	})
	if err != nil {
		return err
	}

	file, err := os.Open(asset.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			// The captured file is gone from disk; retrying cannot help.
			return apperrors.Wrap(apperrors.ErrValidation, "media file missing from device", err)
		}
		return apperrors.Wrap(apperrors.ErrStorage, "failed to open media file", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to stat media file", err)
	}

	if err := p.remote.UploadToPresignedURL(ctx, presign.UploadURL, asset.ContentType, file, info.Size()); err != nil {
		// Deliberately not remembering the key: the retry re-presigns.
		return err
	}

	if err := p.store.SetMediaStorageKey(asset.ID, presign.MediaKey); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to record uploaded key", err)
	}
	asset.StorageKey = presign.MediaKey

	logging.Debug("Media uploaded to object storage", map[string]interface{}{
		"asset": asset.ID.String(), "key": presign.MediaKey,
	})
	return nil
}
