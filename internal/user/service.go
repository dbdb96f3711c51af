// Package user はユーザー自身によるアカウント操作のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/launchpad/internal/model"
)

// UserStore はユーザーの存在確認に使うユーザーストアのインターフェース。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionDeleter はセッションの一括削除インターフェース。
type SessionDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// OwnerDeleter は所有者のデータを一括削除するインターフェース。
type OwnerDeleter interface {
	DeleteByOwner(ctx context.Context, ownerID string) error
}

// Service はユーザー自身によるアカウント操作のサービス層。
// ユーザーレコード自体はこの層では削除しない。
type Service struct {
	users     UserStore
	sessions  SessionDeleter
	envVars   OwnerDeleter
	projects  OwnerDeleter
	timetable OwnerDeleter
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users UserStore,
	sessions SessionDeleter,
	envVars OwnerDeleter,
	projects OwnerDeleter,
	timetable OwnerDeleter,
) *Service {
	return &Service{
		users:     users,
		sessions:  sessions,
		envVars:   envVars,
		projects:  projects,
		timetable: timetable,
	}
}

// EraseData はユーザーが所有するデータを全て削除し、全セッションを失効させる。
// ユーザーレコード（ロール・プラン・クレジット）は残す。
// 削除順序: env vars → projects → timetable → sessions
// 途中で失敗した場合は再実行で残りを削除できるよう、各ステップは冪等である。
func (s *Service) EraseData(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewNotFoundError("User")
	}

	steps := []struct {
		name string
		fn   func(ctx context.Context, id string) error
	}{
		{"環境変数", s.envVars.DeleteByOwner},
		{"プロジェクト", s.projects.DeleteByOwner},
		{"時間割", s.timetable.DeleteByOwner},
		{"セッション", s.sessions.DeleteByUserID},
	}
	for _, step := range steps {
		if err := step.fn(ctx, userID); err != nil {
			return fmt.Errorf("%sの削除に失敗しました: %w", step.name, err)
		}
	}

	slog.Info("user data erased",
		slog.String("user_id", userID),
	)
	return nil
}
