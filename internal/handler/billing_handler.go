package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/shape"
)

// BillingServiceInterface は課金ハンドラーが必要とするサービスインターフェース。
type BillingServiceInterface interface {
	Checkout(ctx context.Context, user *model.User, tier model.Tier) (string, error)
	Portal(ctx context.Context, user *model.User) (string, error)
}

// BillingHandler は課金のHTTPハンドラー。
type BillingHandler struct {
	service BillingServiceInterface
}

// NewBillingHandler はBillingHandlerを生成する。
func NewBillingHandler(service BillingServiceInterface) *BillingHandler {
	return &BillingHandler{service: service}
}

type checkoutRequest struct {
	Tier model.Tier `json:"tier"`
}

type redirectResponse struct {
	URL string `json:"url"`
}

// Checkout はチェックアウトセッションを作成し、遷移先URLを返す。
// POST /api/billing/checkout
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "create checkout session")
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.ReportError(w, r, err, "create checkout session")
		return
	}

	url, err := h.service.Checkout(r.Context(), u, req.Tier)
	if err != nil {
		middleware.ReportError(w, r, err, "create checkout session")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, redirectResponse{URL: url})
}

// Portal は請求管理ポータルのURLを返す。
// POST /api/billing/portal
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "create portal session")
		return
	}

	url, err := h.service.Portal(r.Context(), u)
	if err != nil {
		middleware.ReportError(w, r, err, "create portal session")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, redirectResponse{URL: url})
}

// Usage は現在のプランとクレジット残高を返す。
// GET /api/billing/usage
func (h *BillingHandler) Usage(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "fetch usage")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.Usage(u))
}
