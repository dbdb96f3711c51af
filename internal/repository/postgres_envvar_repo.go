package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/launchpad/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresEnvVarRepo はPostgreSQLを使用した環境変数リポジトリ。
type PostgresEnvVarRepo struct {
	db *sql.DB
}

// NewPostgresEnvVarRepo はPostgresEnvVarRepoを生成する。
func NewPostgresEnvVarRepo(db *sql.DB) *PostgresEnvVarRepo {
	return &PostgresEnvVarRepo{db: db}
}

// ListByProject はプロジェクトの環境変数をcreated_at, id順で返す。
// プロジェクトの所有者で絞り込む。
func (r *PostgresEnvVarRepo) ListByProject(ctx context.Context, projectID, ownerID string) ([]*model.EnvVar, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.project_id, e.key, e.value, e.created_at, e.updated_at
		 FROM project_env_vars e
		 INNER JOIN projects p ON p.id = e.project_id
		 WHERE e.project_id = $1 AND p.owner_id = $2
		 ORDER BY e.created_at, e.id`,
		projectID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list env vars: %w", err)
	}
	defer rows.Close()

	var vars []*model.EnvVar
	for rows.Next() {
		e := &model.EnvVar{}
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Key, &e.Value, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan env var: %w", err)
		}
		vars = append(vars, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate env vars: %w", err)
	}
	return vars, nil
}

// Create は環境変数を作成する。キーが重複する場合はErrDuplicateKeyを返す。
func (r *PostgresEnvVarRepo) Create(ctx context.Context, e *model.EnvVar) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO project_env_vars (id, project_id, key, value, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.ProjectID, e.Key, e.Value, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create env var: %w", err)
	}
	return nil
}

// DeleteByIDAndOwner はプロジェクトの所有者で絞り込んで環境変数を削除する。
func (r *PostgresEnvVarRepo) DeleteByIDAndOwner(ctx context.Context, id, projectID, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM project_env_vars e
		 USING projects p
		 WHERE e.id = $1 AND e.project_id = $2 AND p.id = e.project_id AND p.owner_id = $3`,
		id, projectID, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete env var: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// DeleteByOwner は所有者の全プロジェクトの環境変数を削除する。
func (r *PostgresEnvVarRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM project_env_vars e
		 USING projects p
		 WHERE p.id = e.project_id AND p.owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete env vars: %w", err)
	}
	return nil
}

// compile-time interface check
var _ EnvVarRepository = (*PostgresEnvVarRepo)(nil)
