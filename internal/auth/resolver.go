// Package auth はリクエストから認証済みユーザーを解決するセッションリゾルバと、
// セッション・トークンの管理を提供する。
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/launchpad/internal/model"
)

// SessionCookieName はセッションIDを格納するCookie名。
const SessionCookieName = "session_id"

// Method は認証に使用された手段を表す。
type Method string

const (
	// MethodNone は未認証。
	MethodNone Method = ""
	// MethodBearer はAuthorizationヘッダーのBearerトークン。
	MethodBearer Method = "bearer"
	// MethodCookie はセッションCookie。
	MethodCookie Method = "cookie"
)

// SessionFinder は有効なセッションを検索するインターフェース。
// 期限切れまたは存在しない場合は(nil, nil)を返す。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// UserFinder はユーザーを検索するインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Resolver はリクエストから認証済みユーザーを解決する。
type Resolver struct {
	sessions SessionFinder
	users    UserFinder
	tokens   *TokenValidator
}

// NewResolver はResolverを生成する。tokensがnilの場合はBearerトークンを受け付けない。
func NewResolver(sessions SessionFinder, users UserFinder, tokens *TokenValidator) *Resolver {
	return &Resolver{sessions: sessions, users: users, tokens: tokens}
}

// Resolve はリクエストの認証情報からユーザーを解決する。
//
// 認証情報が無い、期限切れ、または不正な場合は(nil, MethodNone, nil)を返す。
// これは失敗ではなく未認証という正常な結果である。
// エラーを返すのはセッションストアやユーザーストアへのアクセスに失敗した場合のみ。
// ロールは常にユーザーストアから読み込み、トークンのクレームは使用しない。
func (r *Resolver) Resolve(req *http.Request) (*model.User, Method, error) {
	ctx := req.Context()

	if token := BearerToken(req); token != "" {
		if r.tokens == nil {
			return nil, MethodNone, nil
		}
		userID, err := r.tokens.Validate(token)
		if err != nil {
			return nil, MethodNone, nil
		}
		user, err := r.lookupUser(ctx, userID)
		if err != nil || user == nil {
			return nil, MethodNone, err
		}
		return user, MethodBearer, nil
	}

	cookie, err := req.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, MethodNone, nil
	}

	session, err := r.sessions.FindByID(ctx, cookie.Value)
	if err != nil {
		return nil, MethodNone, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, MethodNone, nil
	}

	user, err := r.lookupUser(ctx, session.UserID)
	if err != nil || user == nil {
		return nil, MethodNone, err
	}
	return user, MethodCookie, nil
}

func (r *Resolver) lookupUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
