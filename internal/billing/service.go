// Package billing はプラン購入と請求管理のドメインロジックを提供する。
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/launchpad/internal/metrics"
	"github.com/hitoshi/launchpad/internal/model"
)

// providerName はメトリクスとエラーで使用する決済プロバイダー名。
const providerName = "stripe"

// ErrBillingDisabled は決済プロバイダーが設定されていないことを表す。
var ErrBillingDisabled = errors.New("billing is not configured")

// CustomerStore は決済顧客IDを保存するインターフェース。
type CustomerStore interface {
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
}

// Config は請求サービスの設定。
type Config struct {
	// Prices はプランごとの価格ID。含まれないプランは購入できない。
	Prices map[model.Tier]string
	// BaseURL はリダイレクト先URLの組み立てに使用するフロントエンドのURL。
	BaseURL string
}

// Service は請求のサービス層。
type Service struct {
	provider Provider
	users    CustomerStore
	config   Config
	recorder metrics.Recorder
}

// NewService はServiceの新しいインスタンスを生成する。
// providerがnilの場合、チェックアウトとポータルは上流エラーを返す。
func NewService(provider Provider, users CustomerStore, config Config, recorder metrics.Recorder) *Service {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Service{
		provider: provider,
		users:    users,
		config:   config,
		recorder: recorder,
	}
}

// Checkout は指定プランのチェックアウトセッションを作成し、URLを返す。
// 決済顧客が未作成の場合は作成して保存する。
func (s *Service) Checkout(ctx context.Context, user *model.User, tier model.Tier) (string, error) {
	if tier == "" {
		return "", model.NewRequiredFieldError("tier")
	}
	price, ok := s.config.Prices[tier]
	if !ok || price == "" {
		return "", model.NewInvalidFieldError("tier")
	}
	if s.provider == nil {
		return "", model.NewUpstreamError(providerName, ErrBillingDisabled)
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		id, err := s.call("create customer", func() (string, error) {
			return s.provider.CreateCustomer(ctx, user.Email, user.ID)
		})
		if err != nil {
			return "", err
		}
		if err := s.users.SetStripeCustomerID(ctx, user.ID, id); err != nil {
			return "", fmt.Errorf("決済顧客IDの保存に失敗しました: %w", err)
		}
		customerID = id
	}

	url, err := s.call("create checkout session", func() (string, error) {
		return s.provider.CreateCheckoutSession(ctx, CheckoutParams{
			CustomerID: customerID,
			PriceID:    price,
			UserID:     user.ID,
			SuccessURL: s.config.BaseURL + "/billing?status=success",
			CancelURL:  s.config.BaseURL + "/billing?status=cancelled",
		})
	})
	if err != nil {
		return "", err
	}

	slog.Info("checkout session created",
		slog.String("user_id", user.ID),
		slog.String("tier", string(tier)),
	)
	return url, nil
}

// Portal は請求管理ポータルのURLを返す。決済顧客が無い場合はNotFoundを返す。
func (s *Service) Portal(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID == "" {
		return "", model.NewNotFoundError("Billing account")
	}
	if s.provider == nil {
		return "", model.NewUpstreamError(providerName, ErrBillingDisabled)
	}
	return s.call("create portal session", func() (string, error) {
		return s.provider.CreatePortalSession(ctx, user.StripeCustomerID, s.config.BaseURL+"/billing")
	})
}

// call はプロバイダー呼び出しの結果とレイテンシを記録し、失敗を上流エラーに変換する。
func (s *Service) call(op string, fn func() (string, error)) (string, error) {
	start := time.Now()
	v, err := fn()
	s.recorder.RecordUpstreamCall(providerName, err == nil, time.Since(start))
	if err != nil {
		return "", model.NewUpstreamError(providerName, fmt.Errorf("%s: %w", op, err))
	}
	return v, nil
}
