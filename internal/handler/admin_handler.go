package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/shape"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdateUser(ctx context.Context, actor *model.User, id string, upd model.UserUpdate) (*model.User, error)
	BulkUpdate(ctx context.Context, actor *model.User, ids []string, tier *model.Tier, credits *int64) (int64, error)
}

// AdminHandler は管理者向けのHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

type adminCheckResponse struct {
	IsAdmin bool `json:"isAdmin"`
}

type updateUserRequest struct {
	Role    *model.Role `json:"role"`
	Tier    *model.Tier `json:"tier"`
	Credits *int64      `json:"credits"`
}

type bulkUpdateRequest struct {
	UserIDs []string    `json:"userIds"`
	Tier    *model.Tier `json:"tier"`
	Credits *int64      `json:"credits"`
}

type bulkUpdateResponse struct {
	Updated *int64 `json:"updated"`
}

// Check は現在のアクターが管理者かどうかを返す。
// 匿名リクエストに対してもエラーにせず、常に200で応答する。
// GET /api/admin/check
func (h *AdminHandler) Check(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	middleware.WriteJSON(w, http.StatusOK, adminCheckResponse{IsAdmin: u.IsAdmin()})
}

// ListUsers は全ユーザーを返す。
// GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		middleware.ReportError(w, r, err, "fetch users")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.Users(users))
}

// UpdateUser はユーザーのロール・プラン・クレジットを更新する。
// PATCH /api/admin/users/{id}
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "update user")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.ReportError(w, r, err, "update user")
		return
	}

	updated, err := h.service.UpdateUser(r.Context(), u, chi.URLParam(r, "id"), model.UserUpdate{
		Role:    req.Role,
		Tier:    req.Tier,
		Credits: req.Credits,
	})
	if err != nil {
		middleware.ReportError(w, r, err, "update user")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.User(updated))
}

// BulkUpdate は複数ユーザーのプラン・クレジットを一括更新する。
// POST /api/admin/users/bulk-update
func (h *AdminHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "update users")
		return
	}

	var req bulkUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.ReportError(w, r, err, "update users")
		return
	}

	n, err := h.service.BulkUpdate(r.Context(), u, req.UserIDs, req.Tier, req.Credits)
	if err != nil {
		middleware.ReportError(w, r, err, "update users")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, bulkUpdateResponse{Updated: shape.Counter(n)})
}
