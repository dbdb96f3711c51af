// Package admin は管理者向けのユーザー管理ロジックを提供する。
// 呼び出し元は事前に認可ゲートで管理者ロールを確認している前提とする。
package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/repository"
	"github.com/hitoshi/launchpad/internal/shape"
)

// MaxBulkUsers は一括更新で指定できるユーザー数の上限。
const MaxBulkUsers = 500

// Service は管理者向けユーザー管理のサービス層。
type Service struct {
	users repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users repository.UserRepository) *Service {
	return &Service{users: users}
}

// ListUsers は全ユーザーを返す。
func (s *Service) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// UpdateUser はユーザーのロール・プラン・クレジットを更新する。
// 管理者が自分自身の管理者ロールを外すことはできない。
func (s *Service) UpdateUser(ctx context.Context, actor *model.User, id string, upd model.UserUpdate) (*model.User, error) {
	if err := model.CheckID("User", id); err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return nil, model.NewBadInputError("No fields to update")
	}
	if upd.Role != nil && !upd.Role.IsValid() {
		return nil, model.NewInvalidFieldError("role")
	}
	if err := validateTierAndCredits(upd.Tier, upd.Credits); err != nil {
		return nil, err
	}
	if actor != nil && actor.ID == id && upd.Role != nil && *upd.Role != model.RoleAdmin {
		return nil, model.NewBadInputError("Cannot remove your own admin role")
	}

	user, err := s.users.Update(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("User")
	}

	slog.Info("user updated by admin",
		slog.String("user_id", id),
		slog.String("admin_id", actorID(actor)),
		slog.String("role", string(user.Role)),
		slog.String("tier", string(user.Tier)),
	)
	return user, nil
}

// BulkUpdate は複数ユーザーのプラン・クレジットを一括更新し、更新件数を返す。
func (s *Service) BulkUpdate(ctx context.Context, actor *model.User, ids []string, tier *model.Tier, credits *int64) (int64, error) {
	if len(ids) == 0 {
		return 0, model.NewRequiredFieldError("userIds")
	}
	if len(ids) > MaxBulkUsers {
		return 0, model.NewInvalidFieldError("userIds")
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return 0, model.NewInvalidFieldError("userIds")
		}
	}
	if tier == nil && credits == nil {
		return 0, model.NewBadInputError("No fields to update")
	}
	if err := validateTierAndCredits(tier, credits); err != nil {
		return 0, err
	}

	n, err := s.users.BulkUpdate(ctx, ids, tier, credits)
	if err != nil {
		return 0, fmt.Errorf("ユーザーの一括更新に失敗しました: %w", err)
	}

	slog.Info("users bulk updated by admin",
		slog.String("admin_id", actorID(actor)),
		slog.Int("requested", len(ids)),
		slog.Int64("updated", n),
	)
	return n, nil
}

// validateTierAndCredits はプランとクレジットを検証する。
// クレジットはJSONで精度を失わない範囲に制限し、書き込んだ値がそのまま読み戻せることを保証する。
func validateTierAndCredits(tier *model.Tier, credits *int64) error {
	if tier != nil && !tier.IsValid() {
		return model.NewInvalidFieldError("tier")
	}
	if credits != nil && (*credits < 0 || !shape.IsSafeCounter(*credits)) {
		return model.NewInvalidFieldError("credits")
	}
	return nil
}

func actorID(actor *model.User) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}
