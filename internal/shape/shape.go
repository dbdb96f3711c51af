// Package shape はエンティティをJSONレスポンス用のビューに正規化する。
//
// 64bit整数カウンタはJSONの数値として安全に表現できる範囲（±(2^53-1)）に収まる場合のみ
// 数値として出力し、範囲外の値はnullに変換する。タイムスタンプはUTCのミリ秒精度
// ISO 8601文字列に統一し、ゼロ値はnullとする。
// 全ての関数は全域的であり、どの入力に対してもパニックやエラーを起こさない。
package shape

import (
	"time"

	"github.com/hitoshi/launchpad/internal/model"
)

// MaxSafeInteger はJSONの数値として精度を失わずに表現できる最大の整数。
const MaxSafeInteger int64 = 1<<53 - 1

// TimestampLayout はレスポンスで使用するタイムスタンプの書式。
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// IsSafeCounter はカウンタ値がJSON数値として安全な範囲にあるかを返す。
// 書き込み時のバリデーションにも使用し、書いた値と読んだ値が一致することを保証する。
func IsSafeCounter(v int64) bool {
	return v >= -MaxSafeInteger && v <= MaxSafeInteger
}

// Counter はカウンタ値をレスポンス用に変換する。範囲外の値はnilを返す。
func Counter(v int64) *int64 {
	if !IsSafeCounter(v) {
		return nil
	}
	return &v
}

// Timestamp は時刻をレスポンス用文字列に変換する。ゼロ値はnilを返す。
func Timestamp(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(TimestampLayout)
	return &s
}

// optionalString は空文字列をnilに変換する。
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UserView はユーザーのレスポンス表現。
type UserView struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	Name            string  `json:"name"`
	Role            string  `json:"role"`
	IsAdmin         bool    `json:"isAdmin"`
	Tier            string  `json:"tier"`
	Credits         *int64  `json:"credits"`
	GenerationCount *int64  `json:"generationCount"`
	HasBilling      bool    `json:"hasBilling"`
	CreatedAt       *string `json:"createdAt"`
	UpdatedAt       *string `json:"updatedAt"`
}

// User はmodel.UserをUserViewに変換する。
func User(u *model.User) UserView {
	return UserView{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Role:            string(u.Role),
		IsAdmin:         u.IsAdmin(),
		Tier:            string(u.Tier),
		Credits:         Counter(u.Credits),
		GenerationCount: Counter(u.GenerationCount),
		HasBilling:      u.StripeCustomerID != "",
		CreatedAt:       Timestamp(u.CreatedAt),
		UpdatedAt:       Timestamp(u.UpdatedAt),
	}
}

// Users はユーザー一覧を変換する。空の場合もnullではなく空配列を返す。
func Users(users []*model.User) []UserView {
	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, User(u))
	}
	return views
}

// UsageView は利用状況のレスポンス表現。
type UsageView struct {
	Tier            string `json:"tier"`
	Credits         *int64 `json:"credits"`
	GenerationCount *int64 `json:"generationCount"`
}

// Usage はユーザーの利用状況を変換する。
func Usage(u *model.User) UsageView {
	return UsageView{
		Tier:            string(u.Tier),
		Credits:         Counter(u.Credits),
		GenerationCount: Counter(u.GenerationCount),
	}
}

// ProjectView はプロジェクトのレスポンス表現。
type ProjectView struct {
	ID            string  `json:"id"`
	OwnerID       string  `json:"ownerId"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Framework     *string `json:"framework"`
	RepositoryURL *string `json:"repositoryUrl"`
	HasDeployHook bool    `json:"hasDeployHook"`
	DeployCount   *int64  `json:"deployCount"`
	CreatedAt     *string `json:"createdAt"`
	UpdatedAt     *string `json:"updatedAt"`
}

// Project はmodel.ProjectをProjectViewに変換する。
// デプロイフックURLは秘密情報を含み得るため有無のみを返す。
func Project(p *model.Project) ProjectView {
	return ProjectView{
		ID:            p.ID,
		OwnerID:       p.OwnerID,
		Name:          p.Name,
		Description:   p.Description,
		Framework:     optionalString(p.Framework),
		RepositoryURL: optionalString(p.RepositoryURL),
		HasDeployHook: p.DeployHookURL != "",
		DeployCount:   Counter(p.DeployCount),
		CreatedAt:     Timestamp(p.CreatedAt),
		UpdatedAt:     Timestamp(p.UpdatedAt),
	}
}

// Projects はプロジェクト一覧を変換する。
func Projects(projects []*model.Project) []ProjectView {
	views := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, Project(p))
	}
	return views
}

// EnvVarView は環境変数のレスポンス表現。
type EnvVarView struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"projectId"`
	Key       string  `json:"key"`
	Value     string  `json:"value"`
	CreatedAt *string `json:"createdAt"`
	UpdatedAt *string `json:"updatedAt"`
}

// EnvVar はmodel.EnvVarをEnvVarViewに変換する。
func EnvVar(e *model.EnvVar) EnvVarView {
	return EnvVarView{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		Key:       e.Key,
		Value:     e.Value,
		CreatedAt: Timestamp(e.CreatedAt),
		UpdatedAt: Timestamp(e.UpdatedAt),
	}
}

// EnvVars は環境変数一覧を変換する。
func EnvVars(vars []*model.EnvVar) []EnvVarView {
	views := make([]EnvVarView, 0, len(vars))
	for _, e := range vars {
		views = append(views, EnvVar(e))
	}
	return views
}

// TimetableEntryView は時間割エントリのレスポンス表現。
type TimetableEntryView struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"ownerId"`
	Title     string  `json:"title"`
	DayOfWeek int     `json:"dayOfWeek"`
	StartsAt  string  `json:"startsAt"`
	EndsAt    string  `json:"endsAt"`
	Location  *string `json:"location"`
	CreatedAt *string `json:"createdAt"`
	UpdatedAt *string `json:"updatedAt"`
}

// TimetableEntry はmodel.TimetableEntryを変換する。
func TimetableEntry(e *model.TimetableEntry) TimetableEntryView {
	return TimetableEntryView{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Title:     e.Title,
		DayOfWeek: e.DayOfWeek,
		StartsAt:  e.StartsAt,
		EndsAt:    e.EndsAt,
		Location:  optionalString(e.Location),
		CreatedAt: Timestamp(e.CreatedAt),
		UpdatedAt: Timestamp(e.UpdatedAt),
	}
}

// TimetableEntries は時間割エントリ一覧を変換する。
func TimetableEntries(entries []*model.TimetableEntry) []TimetableEntryView {
	views := make([]TimetableEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, TimetableEntry(e))
	}
	return views
}
