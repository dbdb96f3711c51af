package middleware

import (
	"context"

	"github.com/hitoshi/launchpad/internal/auth"
	"github.com/hitoshi/launchpad/internal/model"
)

type requestIDKey struct{}
type identityKey struct{}
type requestStateKey struct{}

// identity はセッションミドルウェアが解決したアクター。
type identity struct {
	user   *model.User
	method auth.Method
}

// requestState はロギングミドルウェアが用意し、内側のミドルウェアが書き込む可変領域。
// 外側のミドルウェアからは内側で派生したコンテキストが見えないため、これで受け渡す。
type requestState struct {
	userID string
}

// RequestIDFromContext はリクエストIDを返す。未設定の場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// UserFromContext は認証済みユーザーを返す。未認証の場合はnil。
func UserFromContext(ctx context.Context) *model.User {
	id, ok := ctx.Value(identityKey{}).(identity)
	if !ok {
		return nil
	}
	return id.user
}

// AuthMethodFromContext は認証に使用された手段を返す。
func AuthMethodFromContext(ctx context.Context) auth.Method {
	id, ok := ctx.Value(identityKey{}).(identity)
	if !ok {
		return auth.MethodNone
	}
	return id.method
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User, method auth.Method) context.Context {
	if state, ok := ctx.Value(requestStateKey{}).(*requestState); ok && user != nil {
		state.userID = user.ID
	}
	return context.WithValue(ctx, identityKey{}, identity{user: user, method: method})
}

func userIDForLog(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	if state, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		return state.userID
	}
	return ""
}
