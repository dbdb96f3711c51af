package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/launchpad/internal/database"
	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/shape"
)

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db  database.Pinger
	now func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db database.Pinger) *HealthHandler {
	return &HealthHandler{db: db, now: time.Now}
}

type healthResponse struct {
	Status         string  `json:"status"`
	Database       string  `json:"database"`
	ResponseTimeMs int64   `json:"responseTimeMs"`
	Timestamp      *string `json:"timestamp"`
}

// Check はDBへの疎通を確認する。疎通できない場合は503を返す。
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	elapsed, err := database.Ping(r.Context(), h.db)

	resp := healthResponse{
		Status:         "ok",
		Database:       "connected",
		ResponseTimeMs: elapsed.Milliseconds(),
		Timestamp:      shape.Timestamp(h.now()),
	}
	status := http.StatusOK
	if err != nil {
		slog.Error("health check failed", slog.String("error", err.Error()))
		resp.Status = "error"
		resp.Database = "disconnected"
		status = http.StatusServiceUnavailable
	}

	middleware.WriteJSON(w, status, resp)
}
