// Package middleware はHTTPミドルウェアとAPI境界の共通処理を提供する。
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/launchpad/internal/auth"
	"github.com/hitoshi/launchpad/internal/model"
)

// IdentityResolver はリクエストから認証済みユーザーを解決するインターフェース。
type IdentityResolver interface {
	Resolve(r *http.Request) (*model.User, auth.Method, error)
}

// NewSessionMiddleware はリクエストのアクターを解決してコンテキストに注入するミドルウェアを返す。
// このミドルウェアはリクエストを拒否しない。未認証は正常な結果として下流に渡し、
// 拒否の判断はRequireCapabilityに委ねる。
// ストアへのアクセスに失敗した場合はログに記録し、未認証として扱う。
func NewSessionMiddleware(resolver IdentityResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, method, err := resolver.Resolve(r)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()),
				)
				user, method = nil, auth.MethodNone
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user, method)))
		})
	}
}
