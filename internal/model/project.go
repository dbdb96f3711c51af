package model

import "time"

// Project はユーザーが所有するプロジェクトを表す。
type Project struct {
	ID            string
	OwnerID       string
	Name          string
	Description   string // サニタイズ済みHTML
	Framework     string
	RepositoryURL string
	DeployHookURL string
	DeployCount   int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProjectInput はプロジェクト作成・更新の入力を表す。
// 更新時はnilフィールドを変更しない。
type ProjectInput struct {
	Name          *string
	Description   *string
	Framework     *string
	RepositoryURL *string
	DeployHookURL *string
}

// EnvVar はプロジェクトに紐づく環境変数を表す。
// 所有者はプロジェクト経由で決まる。
type EnvVar struct {
	ID        string
	ProjectID string
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
