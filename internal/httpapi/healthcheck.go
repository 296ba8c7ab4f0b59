package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"bsf-dashboard/internal/modules/readings/types"
	"bsf-dashboard/internal/utils"
)

// Pinger checks the local database. It is nil when readings come from
// DynamoDB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PollerStatus is the read-only view of a poller the health check reports on.
type PollerStatus interface {
	Name() string
	Snapshot() types.Snapshot
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db      Pinger
	pollers []PollerStatus
}

func NewHealthchecker(db Pinger, pollers []PollerStatus) healthchecker {
	return &healthcheckerImpl{db: db, pollers: pollers}
}

type variantHealth struct {
	Loading bool `json:"loading"`
	Failed  bool `json:"failed"`
	Rows    int  `json:"rows"`
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Variants map[string]variantHealth `json:"variants"`
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			slog.Error("failed to check database connectivity", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
			return
		}
	}

	resp := healthResponse{Status: "ok", Variants: make(map[string]variantHealth, len(h.pollers))}
	for _, p := range h.pollers {
		snap := p.Snapshot()
		resp.Variants[p.Name()] = variantHealth{
			Loading: snap.Loading,
			Failed:  snap.Batch.Failed,
			Rows:    len(snap.Batch.Readings),
		}
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func registerHealthcheck(mux *http.ServeMux, db Pinger, pollers []PollerStatus) {
	healthchecker := NewHealthchecker(db, pollers)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
