package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/launchpad/internal/model"
)

const userColumns = `id, email, name, role, tier, credits, generation_count, stripe_customer_id, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var role, tier string
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &role, &tier,
		&user.Credits, &user.GenerationCount, &user.StripeCustomerID,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	user.Tier = model.Tier(tier)
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// List は全ユーザーをcreated_at, id順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Update はロール・プラン・クレジットを単一のUPDATE文で部分更新する。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	var role, tier sql.NullString
	var credits sql.NullInt64
	if upd.Role != nil {
		role = sql.NullString{String: string(*upd.Role), Valid: true}
	}
	if upd.Tier != nil {
		tier = sql.NullString{String: string(*upd.Tier), Valid: true}
	}
	if upd.Credits != nil {
		credits = sql.NullInt64{Int64: *upd.Credits, Valid: true}
	}

	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET role = COALESCE($2, role),
		     tier = COALESCE($3, tier),
		     credits = COALESCE($4, credits),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, role, tier, credits,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// BulkUpdate は複数ユーザーのプラン・クレジットを単一のUPDATE文で更新し、更新件数を返す。
func (r *PostgresUserRepo) BulkUpdate(ctx context.Context, ids []string, tier *model.Tier, credits *int64) (int64, error) {
	var tierArg sql.NullString
	var creditsArg sql.NullInt64
	if tier != nil {
		tierArg = sql.NullString{String: string(*tier), Valid: true}
	}
	if credits != nil {
		creditsArg = sql.NullInt64{Int64: *credits, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET tier = COALESCE($2, tier),
		     credits = COALESCE($3, credits),
		     updated_at = now()
		 WHERE id = ANY($1::uuid[])`,
		pq.Array(ids), tierArg, creditsArg,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk update users: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// SetStripeCustomerID は決済プロバイダーの顧客IDを保存する。
func (r *PostgresUserRepo) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`,
		id, customerID,
	)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer id: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
