// Package repository はデータ永続化のインターフェースを定義する。
//
// 所有者を持つリソースの読み書きは全て所有者IDで絞り込む。
// 見つからない場合と他人の所有である場合はどちらも(nil, nil)またはfalseを返し、区別しない。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/launchpad/internal/model"
)

// ErrDuplicateKey は一意制約違反を表す。
var ErrDuplicateKey = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// List は全ユーザーをcreated_at, id順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Update はロール・プラン・クレジットを部分更新する。nilフィールドは変更しない。
	// 見つからない場合はnilを返す。
	Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error)

	// BulkUpdate は複数ユーザーのプラン・クレジットを一括更新し、更新件数を返す。
	BulkUpdate(ctx context.Context, ids []string, tier *model.Tier, credits *int64) (int64, error)

	// SetStripeCustomerID は決済プロバイダーの顧客IDを保存する。
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpiredBefore はbefore以前に期限切れとなったセッションを削除し、削除件数を返す。
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// ProjectRepository はプロジェクトデータの永続化インターフェース。
type ProjectRepository interface {
	// ListByOwner は所有者のプロジェクトをcreated_at, id順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Project, error)

	// FindByID は所有者を問わずプロジェクトを取得する。
	// 呼び出し側で認可ゲートによる所有者判定を行う場合にのみ使用する。
	FindByID(ctx context.Context, id string) (*model.Project, error)

	// FindByIDAndOwner は所有者で絞り込んでプロジェクトを取得する。
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Project, error)

	// Create はプロジェクトを作成する。
	Create(ctx context.Context, project *model.Project) error

	// Update は所有者で絞り込んでプロジェクトを部分更新し、更新後の値を返す。
	Update(ctx context.Context, id, ownerID string, in model.ProjectInput) (*model.Project, error)

	// DeleteByIDAndOwner は所有者で絞り込んでプロジェクトを削除する。削除した場合はtrue。
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error)

	// IncrementDeployCount はデプロイ回数を原子的に1増やし、更新後の値を返す。
	IncrementDeployCount(ctx context.Context, id, ownerID string) (*model.Project, error)

	// DeleteByOwner は所有者の全プロジェクトを削除する。
	DeleteByOwner(ctx context.Context, ownerID string) error
}

// EnvVarRepository は環境変数データの永続化インターフェース。
// 所有者判定はprojects.owner_idを経由して行う。
type EnvVarRepository interface {
	// ListByProject はプロジェクトの環境変数をcreated_at, id順で返す。
	ListByProject(ctx context.Context, projectID, ownerID string) ([]*model.EnvVar, error)

	// Create は環境変数を作成する。キーが重複する場合はErrDuplicateKeyを返す。
	Create(ctx context.Context, envVar *model.EnvVar) error

	// DeleteByIDAndOwner は所有者で絞り込んで環境変数を削除する。削除した場合はtrue。
	DeleteByIDAndOwner(ctx context.Context, id, projectID, ownerID string) (bool, error)

	// DeleteByOwner は所有者の全プロジェクトの環境変数を削除する。
	DeleteByOwner(ctx context.Context, ownerID string) error
}

// TimetableRepository は時間割データの永続化インターフェース。
type TimetableRepository interface {
	// ListByOwner は所有者のエントリをday_of_week, starts_at, id順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.TimetableEntry, error)

	// Create はエントリを作成する。
	Create(ctx context.Context, entry *model.TimetableEntry) error

	// Update は所有者で絞り込んでエントリを部分更新し、更新後の値を返す。
	Update(ctx context.Context, id, ownerID string, in model.TimetableInput) (*model.TimetableEntry, error)

	// DeleteByIDAndOwner は所有者で絞り込んでエントリを削除する。削除した場合はtrue。
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error)

	// DeleteByOwner は所有者の全エントリを削除する。
	DeleteByOwner(ctx context.Context, ownerID string) error
}
