// Package project はプロジェクトと環境変数のドメインロジックを提供する。
package project

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/launchpad/internal/authz"
	"github.com/hitoshi/launchpad/internal/metrics"
	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/repository"
	"github.com/hitoshi/launchpad/internal/security"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 5000
	maxFrameworkLength   = 50
	maxURLLength         = 2048
	maxEnvKeyLength      = 128
	maxEnvValueLength    = 4096

	// hookProvider はメトリクスとエラーで使用するデプロイフックのプロバイダー名。
	hookProvider = "deploy_hook"
)

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TextSanitizer はユーザー入力のHTMLを無害化するインターフェース。
type TextSanitizer interface {
	RichText(raw string) string
	PlainText(raw string) string
}

// HookClient はデプロイフックを呼び出すHTTPクライアントのインターフェース。
type HookClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Service はプロジェクト管理のサービス層。
// 全ての読み書きは所有者IDで絞り込む。
type Service struct {
	projects  repository.ProjectRepository
	envVars   repository.EnvVarRepository
	gate      *authz.Gate
	sanitizer TextSanitizer
	guard     security.URLValidator
	hooks     HookClient
	recorder  metrics.Recorder
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	projects repository.ProjectRepository,
	envVars repository.EnvVarRepository,
	gate *authz.Gate,
	sanitizer TextSanitizer,
	guard security.URLValidator,
	hooks HookClient,
	recorder metrics.Recorder,
) *Service {
	return &Service{
		projects:  projects,
		envVars:   envVars,
		gate:      gate,
		sanitizer: sanitizer,
		guard:     guard,
		hooks:     hooks,
		recorder:  recorder,
		now:       time.Now,
	}
}

// List は所有者のプロジェクト一覧を返す。
func (s *Service) List(ctx context.Context, ownerID string) ([]*model.Project, error) {
	projects, err := s.projects.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}
	return projects, nil
}

// Get はプロジェクトを取得する。
// 管理者は他ユーザーのプロジェクトも参照できる。
// 存在しない場合と参照権限がない場合はどちらもNotFoundを返す。
func (s *Service) Get(ctx context.Context, actor *model.User, id string) (*model.Project, error) {
	if err := model.CheckID("Project", id); err != nil {
		return nil, err
	}
	p, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewNotFoundError("Project")
	}
	if d := s.gate.Check(actor, authz.OwnsResource(p.OwnerID, true)); !d.Allowed {
		return nil, d.Err("Project")
	}
	return p, nil
}

// Create はプロジェクトを作成する。nameは必須。
func (s *Service) Create(ctx context.Context, ownerID string, in model.ProjectInput) (*model.Project, error) {
	if in.Name == nil {
		return nil, model.NewRequiredFieldError("name")
	}
	clean, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &model.Project{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      *clean.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if clean.Description != nil {
		p.Description = *clean.Description
	}
	if clean.Framework != nil {
		p.Framework = *clean.Framework
	}
	if clean.RepositoryURL != nil {
		p.RepositoryURL = *clean.RepositoryURL
	}
	if clean.DeployHookURL != nil {
		p.DeployHookURL = *clean.DeployHookURL
	}

	if err := s.projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("プロジェクトの作成に失敗しました: %w", err)
	}

	slog.Info("project created",
		slog.String("project_id", p.ID),
		slog.String("owner_id", ownerID),
	)
	return p, nil
}

// Update はプロジェクトを部分更新する。
func (s *Service) Update(ctx context.Context, ownerID, id string, in model.ProjectInput) (*model.Project, error) {
	if err := model.CheckID("Project", id); err != nil {
		return nil, err
	}
	if in == (model.ProjectInput{}) {
		return nil, model.NewBadInputError("No fields to update")
	}
	clean, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	p, err := s.projects.Update(ctx, id, ownerID, clean)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの更新に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewNotFoundError("Project")
	}
	return p, nil
}

// Delete はプロジェクトを削除する。環境変数も削除される。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := model.CheckID("Project", id); err != nil {
		return err
	}
	deleted, err := s.projects.DeleteByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("プロジェクトの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("Project")
	}

	slog.Info("project deleted",
		slog.String("project_id", id),
		slog.String("owner_id", ownerID),
	)
	return nil
}

// deployPayload はデプロイフックに送信するJSONボディ。
type deployPayload struct {
	ProjectID   string `json:"projectId"`
	Name        string `json:"name"`
	TriggeredAt string `json:"triggeredAt"`
}

// Deploy はプロジェクトのデプロイフックを呼び出し、成功した場合にデプロイ回数を1増やす。
// フックが失敗した場合は回数を変更しない。
func (s *Service) Deploy(ctx context.Context, ownerID, id string) (*model.Project, error) {
	if err := model.CheckID("Project", id); err != nil {
		return nil, err
	}
	p, err := s.projects.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewNotFoundError("Project")
	}
	if p.DeployHookURL == "" {
		return nil, model.NewRequiredFieldError("deployHookUrl")
	}
	if err := s.guard.ValidateURL(p.DeployHookURL); err != nil {
		return nil, model.NewInvalidFieldError("deployHookUrl")
	}

	if err := s.callHook(ctx, p); err != nil {
		return nil, err
	}

	updated, err := s.projects.IncrementDeployCount(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("デプロイ回数の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError("Project")
	}

	slog.Info("project deployed",
		slog.String("project_id", id),
		slog.String("owner_id", ownerID),
		slog.Int64("deploy_count", updated.DeployCount),
	)
	return updated, nil
}

func (s *Service) callHook(ctx context.Context, p *model.Project) error {
	body, err := json.Marshal(deployPayload{
		ProjectID:   p.ID,
		Name:        p.Name,
		TriggeredAt: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("デプロイリクエストの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.DeployHookURL, bytes.NewReader(body))
	if err != nil {
		return model.NewInvalidFieldError("deployHookUrl")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "launchpad-deploy/1.0")

	start := time.Now()
	resp, err := s.hooks.Do(req)
	if err != nil {
		s.recorder.RecordUpstreamCall(hookProvider, false, time.Since(start))
		return model.NewUpstreamError(hookProvider, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	s.recorder.RecordUpstreamCall(hookProvider, ok, time.Since(start))
	if !ok {
		return model.NewUpstreamError(hookProvider, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// ListEnvVars はプロジェクトの環境変数一覧を返す。
func (s *Service) ListEnvVars(ctx context.Context, ownerID, projectID string) ([]*model.EnvVar, error) {
	if err := s.requireOwnedProject(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	vars, err := s.envVars.ListByProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("環境変数一覧の取得に失敗しました: %w", err)
	}
	return vars, nil
}

// CreateEnvVar はプロジェクトに環境変数を追加する。
// 同じキーが既に存在する場合はBadInputを返す。
func (s *Service) CreateEnvVar(ctx context.Context, ownerID, projectID, key, value string) (*model.EnvVar, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, model.NewRequiredFieldError("key")
	}
	if len(key) > maxEnvKeyLength || !envKeyPattern.MatchString(key) {
		return nil, model.NewInvalidFieldError("key")
	}
	if len(value) > maxEnvValueLength || !utf8.ValidString(value) {
		return nil, model.NewInvalidFieldError("value")
	}

	if err := s.requireOwnedProject(ctx, ownerID, projectID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &model.EnvVar{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.envVars.Create(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, model.NewBadInputError("key already exists")
		}
		return nil, fmt.Errorf("環境変数の作成に失敗しました: %w", err)
	}
	return e, nil
}

// DeleteEnvVar はプロジェクトの環境変数を削除する。
func (s *Service) DeleteEnvVar(ctx context.Context, ownerID, projectID, envVarID string) error {
	if err := model.CheckID("Environment variable", projectID, envVarID); err != nil {
		return err
	}
	deleted, err := s.envVars.DeleteByIDAndOwner(ctx, envVarID, projectID, ownerID)
	if err != nil {
		return fmt.Errorf("環境変数の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("Environment variable")
	}
	return nil
}

func (s *Service) requireOwnedProject(ctx context.Context, ownerID, projectID string) error {
	if err := model.CheckID("Project", projectID); err != nil {
		return err
	}
	p, err := s.projects.FindByIDAndOwner(ctx, projectID, ownerID)
	if err != nil {
		return fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	if p == nil {
		return model.NewNotFoundError("Project")
	}
	return nil
}

// normalize は入力を無害化・検証し、保存可能な値を返す。nilフィールドはそのまま残す。
func (s *Service) normalize(in model.ProjectInput) (model.ProjectInput, error) {
	var out model.ProjectInput

	if in.Name != nil {
		name := s.sanitizer.PlainText(*in.Name)
		if name == "" {
			return out, model.NewRequiredFieldError("name")
		}
		if utf8.RuneCountInString(name) > maxNameLength {
			return out, model.NewInvalidFieldError("name")
		}
		out.Name = &name
	}
	if in.Description != nil {
		desc := s.sanitizer.RichText(*in.Description)
		if utf8.RuneCountInString(desc) > maxDescriptionLength {
			return out, model.NewInvalidFieldError("description")
		}
		out.Description = &desc
	}
	if in.Framework != nil {
		fw := s.sanitizer.PlainText(*in.Framework)
		if utf8.RuneCountInString(fw) > maxFrameworkLength {
			return out, model.NewInvalidFieldError("framework")
		}
		out.Framework = &fw
	}
	if in.RepositoryURL != nil {
		u := strings.TrimSpace(*in.RepositoryURL)
		if u != "" && !isWebURL(u) {
			return out, model.NewInvalidFieldError("repositoryUrl")
		}
		out.RepositoryURL = &u
	}
	if in.DeployHookURL != nil {
		u := strings.TrimSpace(*in.DeployHookURL)
		if u != "" {
			if len(u) > maxURLLength || s.guard.ValidateURL(u) != nil {
				return out, model.NewInvalidFieldError("deployHookUrl")
			}
		}
		out.DeployHookURL = &u
	}
	return out, nil
}

// isWebURL はhttpまたはhttpsの絶対URLかを判定する。
func isWebURL(raw string) bool {
	if len(raw) > maxURLLength {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
