package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/launchpad/internal/model"
)

// AdminSeedStore は管理者シードに必要なユーザーストアのインターフェース。
type AdminSeedStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error)
}

// SeedAdmins は設定された許可リストのメールアドレスに一致する既存ユーザーを管理者に昇格する。
// 許可リストはブートストラップ専用であり、リクエスト処理時には参照しない。
// 存在しないユーザーはスキップする。昇格したユーザー数を返す。
func SeedAdmins(ctx context.Context, store AdminSeedStore, emails []string) (int, error) {
	promoted := 0
	admin := model.RoleAdmin

	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" {
			continue
		}

		user, err := store.FindByEmail(ctx, email)
		if err != nil {
			return promoted, fmt.Errorf("failed to find user %s: %w", email, err)
		}
		if user == nil {
			slog.Info("admin seed skipped: user not found", slog.String("email", email))
			continue
		}
		if user.IsAdmin() {
			continue
		}

		if _, err := store.Update(ctx, user.ID, model.UserUpdate{Role: &admin}); err != nil {
			return promoted, fmt.Errorf("failed to promote user %s: %w", user.ID, err)
		}
		slog.Info("user promoted to admin",
			slog.String("user_id", user.ID),
			slog.String("email", email),
		)
		promoted++
	}

	return promoted, nil
}
