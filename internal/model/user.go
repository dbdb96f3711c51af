// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーのロールタグを表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
)

// IsValid はロールが定義済みの値かどうかを返す。
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Tier はユーザーの契約プランを表す。
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// IsValid はプランが定義済みの値かどうかを返す。
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	default:
		return false
	}
}

// User はサービス利用ユーザーを表す。
// 認証済みリクエストのアクター（Identity）としてもこの型を使用する。
// Roleは常にデータストアから読み込んだ最新値であり、トークン等のクレームからは取得しない。
type User struct {
	ID               string
	Email            string
	Name             string
	Role             Role
	Tier             Tier
	Credits          int64
	GenerationCount  int64
	StripeCustomerID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAdmin はユーザーが管理者ロールを持つかどうかを返す。
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserUpdate は管理者によるユーザー更新の差分を表す。
// nilフィールドは変更しない。
type UserUpdate struct {
	Role    *Role
	Tier    *Tier
	Credits *int64
}

// IsEmpty は更新対象のフィールドが1つもないかどうかを返す。
func (u UserUpdate) IsEmpty() bool {
	return u.Role == nil && u.Tier == nil && u.Credits == nil
}
