// Package authz はアクターが操作を実行できるかを判定する認可ゲートを提供する。
//
// 判定結果はDecisionとして明示的に返し、HTTP境界で一度だけエラーレスポンスに変換する。
// 管理者判定はデータストアから読み込んだユーザーのロールのみを根拠とする。
package authz

import (
	"fmt"

	"github.com/hitoshi/launchpad/internal/model"
)

// Reason は拒否理由を表す。
type Reason string

const (
	// ReasonNone は許可された場合の理由（空）。
	ReasonNone Reason = ""
	// ReasonUnauthenticated はアクターが存在しない場合の拒否理由。
	ReasonUnauthenticated Reason = "unauthenticated"
	// ReasonForbidden はロールが不足している場合の拒否理由。
	ReasonForbidden Reason = "forbidden"
	// ReasonNotOwner はリソースの所有者でない場合の拒否理由。
	ReasonNotOwner Reason = "not-owner"
)

type capabilityKind int

const (
	kindAuthenticated capabilityKind = iota
	kindHasRole
	kindOwnsResource
)

// Capability は判定対象の権限を表す。
// Authenticated、HasRole、OwnsResourceのいずれかで生成する。
type Capability struct {
	kind          capabilityKind
	role          model.Role
	ownerID       string
	adminOverride bool
}

// Authenticated は認証済みであることを要求する権限。
func Authenticated() Capability {
	return Capability{kind: kindAuthenticated}
}

// HasRole は指定ロールを要求する権限。
func HasRole(role model.Role) Capability {
	return Capability{kind: kindHasRole, role: role}
}

// OwnsResource はリソースの所有者であることを要求する権限。
// adminOverrideがtrueの場合、管理者は所有者でなくても許可される。
func OwnsResource(ownerID string, adminOverride bool) Capability {
	return Capability{kind: kindOwnsResource, ownerID: ownerID, adminOverride: adminOverride}
}

// String はログ・メトリクス用の権限名を返す。
func (c Capability) String() string {
	switch c.kind {
	case kindHasRole:
		return fmt.Sprintf("has-role(%s)", c.role)
	case kindOwnsResource:
		return "owns-resource"
	default:
		return "authenticated"
	}
}

// Decision は認可判定の結果。
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err は拒否判定を型付きエラーに変換する。許可の場合はnilを返す。
// 所有者でない場合は存在の有無を漏らさないようNotFoundとして扱う。
func (d Decision) Err(resource string) error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return model.NewUnauthorizedError()
	case ReasonNotOwner:
		return model.NewNotFoundError(resource)
	default:
		return model.NewForbiddenError()
	}
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// DenyObserver は拒否判定を受け取るコールバック。メトリクス記録に使用する。
type DenyObserver func(c Capability, d Decision)

// Gate は認可ゲート。状態を持たず、複数のgoroutineから安全に使用できる。
type Gate struct {
	onDeny DenyObserver
}

// GateOption はGateの設定オプション。
type GateOption func(*Gate)

// WithDenyObserver は拒否判定ごとに呼ばれるコールバックを設定する。
func WithDenyObserver(fn DenyObserver) GateOption {
	return func(g *Gate) {
		g.onDeny = fn
	}
}

// NewGate は新しいGateを生成する。
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check はアクターが権限を満たすかを判定する。
// アクターがnilの場合は全ての権限を拒否する。
func (g *Gate) Check(user *model.User, c Capability) Decision {
	d := evaluate(user, c)
	if !d.Allowed && g.onDeny != nil {
		g.onDeny(c, d)
	}
	return d
}

func evaluate(user *model.User, c Capability) Decision {
	if user == nil || user.ID == "" {
		return deny(ReasonUnauthenticated)
	}

	switch c.kind {
	case kindAuthenticated:
		return allow()
	case kindHasRole:
		if user.Role == c.role {
			return allow()
		}
		return deny(ReasonForbidden)
	case kindOwnsResource:
		if c.ownerID != "" && c.ownerID == user.ID {
			return allow()
		}
		if c.adminOverride && user.IsAdmin() {
			return allow()
		}
		return deny(ReasonNotOwner)
	default:
		return deny(ReasonForbidden)
	}
}
