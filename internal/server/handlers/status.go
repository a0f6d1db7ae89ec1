package handlers

import (
	"net/http"

	"github.com/3leaps/edison/pkg/status"
)

// SnapshotSource returns the current aggregated status.
type SnapshotSource interface {
	Snapshot() status.Snapshot
}

// StatusHandler serves the cached status snapshot. The response is 200 for
// every level; callers read the level from the body.
func StatusHandler(source SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, source.Snapshot())
	}
}
