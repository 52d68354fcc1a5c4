// Package main provides the FFI bridge for the mobile UI shell.
// All exported functions use C calling convention and can be called from
// Dart FFI. Build as shared library: libfieldsync.so (Android) /
// fieldsync.framework (iOS).
package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/wirasto/fieldsync/internal/app"
	"github.com/wirasto/fieldsync/internal/location"
	"github.com/wirasto/fieldsync/internal/models"
	syncpkg "github.com/wirasto/fieldsync/internal/sync"
)

var (
	once    sync.Once
	core    *app.App
	lastMu  sync.RWMutex
	lastErr string
)

func setLastError(err string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = err
}

func jsonOut(v interface{}) *C.char {
	data, err := json.Marshal(v)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

// Init builds and starts the core from the config file at configPath.
//
//export Init
func Init(configPath *C.char) {
	once.Do(func() {
		var err error
		core, err = app.New(C.GoString(configPath))
		if err != nil {
			setLastError(fmt.Sprintf("Failed to initialize core: %v", err))
			return
		}
		core.Start(context.Background())
	})
}

// Cleanup stops background work and releases the local store.
//
//export Cleanup
func Cleanup() {
	if core != nil {
		core.Close()
	}
}

// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
//
//export GetLastError
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return C.CString(lastErr)
}

// =====================================================
// Authentication
// =====================================================

// Login authenticates with username, password and optional one-time code.
// Returns the user profile as JSON, or nil on failure.
//
//export Login
func Login(username, password, oneTimeCode *C.char) *C.char {
	if core == nil {
		setLastError("Core not initialized")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	user, err := core.Login(ctx, C.GoString(username), C.GoString(password), C.GoString(oneTimeCode))
	if err != nil {
		setLastError(fmt.Sprintf("Login failed: %v", err))
		return nil
	}
	return jsonOut(user)
}

// Logout clears the session. Queued mutations survive.
// Returns 0 on success, non-zero on error.
//
//export Logout
func Logout() int32 {
	if core == nil {
		setLastError("Core not initialized")
		return 1
	}
	if err := core.Logout(); err != nil {
		setLastError(fmt.Sprintf("Logout failed: %v", err))
		return 1
	}
	return 0
}

// AuthState returns the token lifecycle state as a string.
//
//export AuthState
func AuthState() *C.char {
	if core == nil {
		setLastError("Core not initialized")
		return nil
	}
	return C.CString(string(core.Auth.State()))
}

// =====================================================
// Enqueue Operations
// =====================================================

// EnqueueProgressReport writes a report and queues it for delivery.
// Returns the local report record as JSON, or nil on failure.
//
//export EnqueueProgressReport
func EnqueueProgressReport(projectID *C.char, percent C.double, reportDate, remarks, reportedBy *C.char) *C.char {
	if core == nil {
		setLastError("Core not initialized")
		return nil
	}

	report, err := core.Orchestrator.EnqueueProgressReport(
		models.UUID(C.GoString(projectID)),
		float64(percent),
		C.GoString(reportDate),
		C.GoString(remarks),
		models.UUID(C.GoString(reportedBy)),
	)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to enqueue report: %v", err))
		return nil
	}
	return jsonOut(report)
}

// EnqueueReportUpdate amends a local report and queues the amendment.
// Returns the updated local record as JSON, or nil on failure.
//
//export EnqueueReportUpdate
func EnqueueReportUpdate(reportID *C.char, percent C.double, reportDate, remarks *C.char) *C.char {
	if core == nil {
		setLastError("Core not initialized")
		return nil
	}

	report, err := core.Orchestrator.EnqueueReportUpdate(
		models.UUID(C.GoString(reportID)),
		float64(percent),
		C.GoString(reportDate),
		C.GoString(remarks),
	)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to enqueue report update: %v", err))
		return nil
	}
	return jsonOut(report)
}

// EnqueueMedia queues a captured file for the three-phase upload.
// reportRef may be empty. Returns the local media record as JSON.
//
//export EnqueueMedia
func EnqueueMedia(projectID, reportRef, mediaType, filename, contentType, filePath *C.char,
	sizeBytes C.longlong, latitude, longitude C.double, hasGeotag C.int) *C.char {
	if core == nil {
		setLastError("Core not initialized")
		return nil
	}

	asset, err := core.Orchestrator.EnqueueMedia(syncpkg.MediaParams{
		ProjectID:   models.UUID(C.GoString(projectID)),
		ReportRef:   models.UUID(C.GoString(reportRef)),
		MediaType:   C.GoString(mediaType),
		Filename:    C.GoString(filename),
		ContentType: C.GoString(contentType),
		FilePath:    C.GoString(filePath),
		SizeBytes:   int64(sizeBytes),
		Latitude:    float64(latitude),
		Longitude:   float64(longitude),
		HasGeotag:   hasGeotag != 0,
	})
	if err != nil {
		setLastError(fmt.Sprintf("Failed to enqueue media: %v", err))
		return nil
	}
	return jsonOut(asset)
}

// =====================================================
// Sync Surface
// =====================================================

// TriggerSync nudges the orchestrator. Fire-and-forget.
//
//export TriggerSync
func TriggerSync() {
	if core != nil {
		core.Orchestrator.TriggerSync()
	}
}

// PendingCount returns the number of mutations awaiting delivery, or -1 on
// error.
//
//export PendingCount
func PendingCount() int32 {
	if core == nil {
		setLastError("Core not initialized")
		return -1
	}
	n, err := core.Orchestrator.PendingCount()
	if err != nil {
		setLastError(fmt.Sprintf("Failed to count pending: %v", err))
		return -1
	}
	return int32(n)
}

// SyncStatus returns the orchestrator snapshot as JSON.
//
//export SyncStatus
func SyncStatus() *C.char {
	if core == nil {
		setLastError("Core not initialized")
		return nil
	}
	return jsonOut(core.Orchestrator.Status())
}

// FailedEntries returns terminally failed queue entries as a JSON array.
//
//export FailedEntries
func FailedEntries() *C.char {
	if core == nil {
		setLastError("Core not initialized")
		return nil
	}
	entries, err := core.Orchestrator.FailedEntries()
	if err != nil {
		setLastError(fmt.Sprintf("Failed to list failed entries: %v", err))
		return nil
	}
	return jsonOut(map[string]interface{}{"entries": entries, "total": len(entries)})
}

// RetryFailed requeues a terminally failed entry.
// Returns 0 on success, non-zero on error.
//
//export RetryFailed
func RetryFailed(entryID *C.char) int32 {
	if core == nil {
		setLastError("Core not initialized")
		return 1
	}
	if err := core.Orchestrator.RetryFailed(models.UUID(C.GoString(entryID))); err != nil {
		setLastError(fmt.Sprintf("Failed to retry entry: %v", err))
		return 1
	}
	return 0
}

// DiscardFailed removes a terminally failed entry.
// Returns 0 on success, non-zero on error.
//
//export DiscardFailed
func DiscardFailed(entryID *C.char) int32 {
	if core == nil {
		setLastError("Core not initialized")
		return 1
	}
	if err := core.Orchestrator.DiscardFailed(models.UUID(C.GoString(entryID))); err != nil {
		setLastError(fmt.Sprintf("Failed to discard entry: %v", err))
		return 1
	}
	return 0
}

// =====================================================
// Location Capture
// =====================================================

// LocationStartSession begins attributing GPS fixes to a project visit.
//
//export LocationStartSession
func LocationStartSession(projectID, reportRef *C.char) {
	if core != nil {
		core.Capture.StartSession(models.UUID(C.GoString(projectID)), models.UUID(C.GoString(reportRef)))
	}
}

// LocationOffer gates and stores one GPS fix from the platform location
// service. recordedAt is a Unix timestamp. Returns 1 if accepted.
//
//export LocationOffer
func LocationOffer(recordedAt C.longlong, latitude, longitude, accuracyM C.double) int32 {
	if core == nil {
		return 0
	}
	accepted := core.Capture.Offer(location.Sample{
		RecordedAt: time.Unix(int64(recordedAt), 0),
		Latitude:   float64(latitude),
		Longitude:  float64(longitude),
		AccuracyM:  float64(accuracyM),
	})
	if accepted {
		return 1
	}
	return 0
}

// LocationEndSession stops attributing fixes.
//
//export LocationEndSession
func LocationEndSession() {
	if core != nil {
		core.Capture.EndSession()
	}
}

// =====================================================
// Memory Management Helpers
// =====================================================

// FreeString frees a string allocated by Go.
//
//export FreeString
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

func main() {
	// Main function is required for c-shared build mode
	// but is not actually executed when used as shared library
}
