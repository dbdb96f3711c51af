package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/launchpad/internal/model"
)

const projectColumns = `id, owner_id, name, description, framework, repository_url, deploy_hook_url, deploy_count, created_at, updated_at`

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

func scanProject(row rowScanner) (*model.Project, error) {
	p := &model.Project{}
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Framework,
		&p.RepositoryURL, &p.DeployHookURL, &p.DeployCount,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// findOne は単一行クエリを実行し、行が無い場合はnilを返す。
func (r *PostgresProjectRepo) findOne(ctx context.Context, op, query string, args ...any) (*model.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s project: %w", op, err)
	}
	return p, nil
}

// ListByOwner は所有者のプロジェクトをcreated_at, id順で返す。
func (r *PostgresProjectRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE owner_id = $1 ORDER BY created_at, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, nil
}

// FindByID は所有者を問わずプロジェクトを取得する。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	return r.findOne(ctx, "find",
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`,
		id,
	)
}

// FindByIDAndOwner は所有者で絞り込んでプロジェクトを取得する。
func (r *PostgresProjectRepo) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Project, error) {
	return r.findOne(ctx, "find",
		`SELECT `+projectColumns+` FROM projects WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
}

// Create はプロジェクトを作成する。
func (r *PostgresProjectRepo) Create(ctx context.Context, p *model.Project) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, name, description, framework, repository_url, deploy_hook_url, deploy_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.OwnerID, p.Name, p.Description, p.Framework,
		p.RepositoryURL, p.DeployHookURL, p.DeployCount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// Update は所有者で絞り込んでプロジェクトを単一のUPDATE文で部分更新する。
// nilフィールドは変更しない。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) Update(ctx context.Context, id, ownerID string, in model.ProjectInput) (*model.Project, error) {
	return r.findOne(ctx, "update",
		`UPDATE projects
		 SET name = COALESCE($3, name),
		     description = COALESCE($4, description),
		     framework = COALESCE($5, framework),
		     repository_url = COALESCE($6, repository_url),
		     deploy_hook_url = COALESCE($7, deploy_hook_url),
		     updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+projectColumns,
		id, ownerID,
		nullString(in.Name), nullString(in.Description), nullString(in.Framework),
		nullString(in.RepositoryURL), nullString(in.DeployHookURL),
	)
}

// DeleteByIDAndOwner は所有者で絞り込んでプロジェクトを削除する。
// 環境変数はCASCADE削除される。
func (r *PostgresProjectRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM projects WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete project: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// IncrementDeployCount はデプロイ回数を原子的に1増やし、更新後の値を返す。
func (r *PostgresProjectRepo) IncrementDeployCount(ctx context.Context, id, ownerID string) (*model.Project, error) {
	return r.findOne(ctx, "increment deploy count of",
		`UPDATE projects
		 SET deploy_count = deploy_count + 1, updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+projectColumns,
		id, ownerID,
	)
}

// DeleteByOwner は所有者の全プロジェクトを削除する。
func (r *PostgresProjectRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("failed to delete projects: %w", err)
	}
	return nil
}

// nullString はnilをSQL NULLに変換する。COALESCEによる部分更新で使用する。
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)
