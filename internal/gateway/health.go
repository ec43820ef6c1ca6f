package gateway

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/realtime-ai/realtime-message-gateway/internal/message"
	"github.com/realtime-ai/realtime-message-gateway/internal/store"
)

// HealthHandler reports gateway health and operator-facing worker state.
type HealthHandler struct {
	store         store.Store
	workerTimeout time.Duration
	logger        *zap.Logger
}

// NewHealthHandler creates a HealthHandler. workerTimeout must match the
// router's so both agree on which workers count as live.
func NewHealthHandler(st store.Store, workerTimeout time.Duration, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:         st,
		workerTimeout: workerTimeout,
		logger:        logger.Named("health"),
	}
}

// Health handles GET /health. The gateway is "ok" when the routing store
// answers a ping; otherwise "degraded": it can still serve cached routes
// but cannot accept publishes.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	storeStatus := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
		storeStatus = "unreachable"
		h.logger.Warn("health: routing store unreachable", zap.Error(err))
	}

	activeWorkers := 0
	if workers, err := h.store.ListActiveWorkers(r.Context()); err == nil {
		cutoff := time.Now().Add(-h.workerTimeout)
		for _, wk := range workers {
			if wk.LastHeartbeat.After(cutoff) {
				activeWorkers++
			}
		}
	}

	JSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"timestamp":     message.FormatTimestamp(time.Now()),
		"store":         storeStatus,
		"activeWorkers": activeWorkers,
	})
}

// workerView is one row of the worker listing.
type workerView struct {
	ID            string            `json:"id"`
	LastHeartbeat string            `json:"lastHeartbeat"`
	Live          bool              `json:"live"`
	Info          map[string]string `json:"info,omitempty"`
}

// Workers handles GET /workers: every registry entry with its liveness and
// advisory info hash. Operator visibility only; routing decisions never
// read this endpoint.
func (h *HealthHandler) Workers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.store.ListActiveWorkers(r.Context())
	if err != nil {
		h.logger.Error("worker listing failed", zap.Error(err))
		Internal(w)
		return
	}

	cutoff := time.Now().Add(-h.workerTimeout)
	views := make([]workerView, 0, len(workers))
	for _, wk := range workers {
		view := workerView{
			ID:            wk.ID,
			LastHeartbeat: message.FormatTimestamp(wk.LastHeartbeat),
			Live:          wk.LastHeartbeat.After(cutoff),
		}
		info, err := h.store.GetWorkerInfo(r.Context(), wk.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			h.logger.Warn("worker info lookup failed", zap.String("worker_id", wk.ID), zap.Error(err))
		}
		view.Info = info
		views = append(views, view)
	}

	JSON(w, http.StatusOK, envelope{"workers": views})
}
