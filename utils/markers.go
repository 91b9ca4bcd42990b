package utils

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Idempotency markers replace the per-browser localStorage flags of the web
// clients: one flag per (kind, subject, visitor) once that visitor has voted
// or rated. They are advisory only: a lost marker lets a repeat through, and
// nothing downstream deduplicates. Redis is preferred so markers survive
// restarts; the in-memory map is a single-instance fallback.

const markerTTL = 180 * 24 * time.Hour

var (
	markerMem   = map[string]struct{}{}
	markerMemMu sync.Mutex
)

// MarkerKey builds the storage key for one (kind, subject, visitor) marker.
func MarkerKey(kind string, subjectID uint, visitorID string) string {
	return fmt.Sprintf("marker:%s:%d:%s", kind, subjectID, visitorID)
}

// HasMarker reports whether the visitor already performed the action.
func HasMarker(kind string, subjectID uint, visitorID string) bool {
	key := MarkerKey(kind, subjectID, visitorID)
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if n, err := rc.Exists(ctx, key).Result(); err == nil {
			return n > 0
		}
	}
	markerMemMu.Lock()
	_, ok := markerMem[key]
	markerMemMu.Unlock()
	return ok
}

// SetMarker records that the visitor performed the action.
func SetMarker(kind string, subjectID uint, visitorID string) {
	key := MarkerKey(kind, subjectID, visitorID)
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, key, "true", markerTTL).Err(); err == nil {
			return
		}
	}
	markerMemMu.Lock()
	markerMem[key] = struct{}{}
	markerMemMu.Unlock()
}
