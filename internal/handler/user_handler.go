package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/shape"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// EraseData はユーザーの所有データとセッションを削除する。ユーザー自体は残す。
	EraseData(ctx context.Context, userID string) error
}

// UserHandler はユーザー自身に関するHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookies CookieConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, cookies CookieConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookies: cookies,
	}
}

// Me は現在のユーザー情報を返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "fetch user")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.User(u))
}

// EraseData はユーザーの所有データを削除し、セッションCookieをクリアする。
// DELETE /api/users/me/data
func (h *UserHandler) EraseData(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "erase user data")
		return
	}

	if err := h.service.EraseData(r.Context(), u.ID); err != nil {
		middleware.ReportError(w, r, err, "erase user data")
		return
	}

	clearSessionCookie(w, h.cookies)
	middleware.WriteJSON(w, http.StatusOK, successBody)
}
