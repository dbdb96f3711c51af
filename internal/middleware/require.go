package middleware

import (
	"net/http"

	"github.com/hitoshi/launchpad/internal/authz"
	"github.com/hitoshi/launchpad/internal/model"
)

type requireOptions struct {
	forbiddenMessage string
}

// RequireOption はRequireCapabilityの設定オプション。
type RequireOption func(*requireOptions)

// WithForbiddenMessage はロール不足時の403レスポンスのメッセージを差し替える。
func WithForbiddenMessage(message string) RequireOption {
	return func(o *requireOptions) {
		o.forbiddenMessage = message
	}
}

// RequireCapability はアクターが権限を満たさない場合にハンドラーを実行せず
// 401または403で応答するミドルウェアを返す。
// ハンドラーより前に判定するため、拒否されたアクターに対してデータアクセスは行われない。
func RequireCapability(gate *authz.Gate, c authz.Capability, opts ...RequireOption) func(next http.Handler) http.Handler {
	o := requireOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Check(UserFromContext(r.Context()), c)
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			err := d.Err("Resource")
			if d.Reason == authz.ReasonForbidden && o.forbiddenMessage != "" {
				err = &model.AppError{Kind: model.KindForbidden, Message: o.forbiddenMessage}
			}
			ReportError(w, r, err, "authorize request")
		})
	}
}
