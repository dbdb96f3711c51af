package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/shape"
)

// TimetableServiceInterface は時間割ハンドラーが必要とするサービスインターフェース。
type TimetableServiceInterface interface {
	List(ctx context.Context, ownerID string) ([]*model.TimetableEntry, error)
	Create(ctx context.Context, ownerID string, in model.TimetableInput) (*model.TimetableEntry, error)
	Update(ctx context.Context, ownerID, id string, in model.TimetableInput) (*model.TimetableEntry, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// TimetableHandler は時間割のHTTPハンドラー。
type TimetableHandler struct {
	service TimetableServiceInterface
}

// NewTimetableHandler はTimetableHandlerを生成する。
func NewTimetableHandler(service TimetableServiceInterface) *TimetableHandler {
	return &TimetableHandler{service: service}
}

type timetableRequest struct {
	Title     *string `json:"title"`
	DayOfWeek *int    `json:"dayOfWeek"`
	StartsAt  *string `json:"startsAt"`
	EndsAt    *string `json:"endsAt"`
	Location  *string `json:"location"`
}

func (req timetableRequest) toInput() model.TimetableInput {
	return model.TimetableInput{
		Title:     req.Title,
		DayOfWeek: req.DayOfWeek,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Location:  req.Location,
	}
}

// List は自分の時間割を返す。
// GET /api/timetable
func (h *TimetableHandler) List(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "fetch timetable")
		return
	}

	entries, err := h.service.List(r.Context(), u.ID)
	if err != nil {
		middleware.ReportError(w, r, err, "fetch timetable")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.TimetableEntries(entries))
}

// Create は時間割エントリを作成する。
// POST /api/timetable
func (h *TimetableHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "create entry")
		return
	}

	var req timetableRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.ReportError(w, r, err, "create entry")
		return
	}

	e, err := h.service.Create(r.Context(), u.ID, req.toInput())
	if err != nil {
		middleware.ReportError(w, r, err, "create entry")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, shape.TimetableEntry(e))
}

// Update は時間割エントリを部分更新する。
// PATCH /api/timetable/{id}
func (h *TimetableHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "update entry")
		return
	}

	var req timetableRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.ReportError(w, r, err, "update entry")
		return
	}

	e, err := h.service.Update(r.Context(), u.ID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		middleware.ReportError(w, r, err, "update entry")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.TimetableEntry(e))
}

// Delete は時間割エントリを削除する。
// DELETE /api/timetable/{id}
func (h *TimetableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "delete entry")
		return
	}

	if err := h.service.Delete(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
		middleware.ReportError(w, r, err, "delete entry")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, successBody)
}
