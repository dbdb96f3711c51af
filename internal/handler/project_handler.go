package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/shape"
)

// ProjectServiceInterface はプロジェクトハンドラーが必要とするサービスインターフェース。
type ProjectServiceInterface interface {
	List(ctx context.Context, ownerID string) ([]*model.Project, error)
	Get(ctx context.Context, actor *model.User, id string) (*model.Project, error)
	Create(ctx context.Context, ownerID string, in model.ProjectInput) (*model.Project, error)
	Update(ctx context.Context, ownerID, id string, in model.ProjectInput) (*model.Project, error)
	Delete(ctx context.Context, ownerID, id string) error
	Deploy(ctx context.Context, ownerID, id string) (*model.Project, error)
	ListEnvVars(ctx context.Context, ownerID, projectID string) ([]*model.EnvVar, error)
	CreateEnvVar(ctx context.Context, ownerID, projectID, key, value string) (*model.EnvVar, error)
	DeleteEnvVar(ctx context.Context, ownerID, projectID, envVarID string) error
}

// ProjectHandler はプロジェクトと環境変数のHTTPハンドラー。
type ProjectHandler struct {
	service ProjectServiceInterface
}

// NewProjectHandler はProjectHandlerを生成する。
func NewProjectHandler(service ProjectServiceInterface) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// projectRequest はプロジェクト作成・更新リクエストのボディ。
type projectRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	Framework     *string `json:"framework"`
	RepositoryURL *string `json:"repositoryUrl"`
	DeployHookURL *string `json:"deployHookUrl"`
}

func (req projectRequest) toInput() model.ProjectInput {
	return model.ProjectInput{
		Name:          req.Name,
		Description:   req.Description,
		Framework:     req.Framework,
		RepositoryURL: req.RepositoryURL,
		DeployHookURL: req.DeployHookURL,
	}
}

// envVarRequest は環境変数作成リクエストのボディ。
type envVarRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// List は自分のプロジェクト一覧を返す。
// GET /api/projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "fetch projects")
		return
	}

	projects, err := h.service.List(r.Context(), u.ID)
	if err != nil {
		middleware.ReportError(w, r, err, "fetch projects")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.Projects(projects))
}

// Create はプロジェクトを作成する。
// POST /api/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "create project")
		return
	}

	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.ReportError(w, r, err, "create project")
		return
	}

	p, err := h.service.Create(r.Context(), u.ID, req.toInput())
	if err != nil {
		middleware.ReportError(w, r, err, "create project")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, shape.Project(p))
}

// Get はプロジェクト詳細を返す。管理者は他ユーザーのプロジェクトも参照できる。
// GET /api/projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "fetch project")
		return
	}

	p, err := h.service.Get(r.Context(), u, chi.URLParam(r, "id"))
	if err != nil {
		middleware.ReportError(w, r, err, "fetch project")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.Project(p))
}

// Update はプロジェクトを部分更新する。
// PATCH /api/projects/{id}
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "update project")
		return
	}

	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.ReportError(w, r, err, "update project")
		return
	}

	p, err := h.service.Update(r.Context(), u.ID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		middleware.ReportError(w, r, err, "update project")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.Project(p))
}

// Delete はプロジェクトを削除する。
// DELETE /api/projects/{id}
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "delete project")
		return
	}

	if err := h.service.Delete(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
		middleware.ReportError(w, r, err, "delete project")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, successBody)
}

// Deploy はデプロイフックを呼び出し、デプロイ回数を更新したプロジェクトを返す。
// POST /api/projects/{id}/deploy
func (h *ProjectHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "trigger deploy")
		return
	}

	p, err := h.service.Deploy(r.Context(), u.ID, chi.URLParam(r, "id"))
	if err != nil {
		middleware.ReportError(w, r, err, "trigger deploy")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.Project(p))
}

// ListEnvVars はプロジェクトの環境変数一覧を返す。
// GET /api/projects/{id}/env
func (h *ProjectHandler) ListEnvVars(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "fetch environment variables")
		return
	}

	vars, err := h.service.ListEnvVars(r.Context(), u.ID, chi.URLParam(r, "id"))
	if err != nil {
		middleware.ReportError(w, r, err, "fetch environment variables")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, shape.EnvVars(vars))
}

// CreateEnvVar はプロジェクトに環境変数を追加する。
// POST /api/projects/{id}/env
func (h *ProjectHandler) CreateEnvVar(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "create environment variable")
		return
	}

	var req envVarRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.ReportError(w, r, err, "create environment variable")
		return
	}

	v, err := h.service.CreateEnvVar(r.Context(), u.ID, chi.URLParam(r, "id"), req.Key, req.Value)
	if err != nil {
		middleware.ReportError(w, r, err, "create environment variable")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, shape.EnvVar(v))
}

// DeleteEnvVar は環境変数を削除する。
// DELETE /api/projects/{id}/env/{envId}
func (h *ProjectHandler) DeleteEnvVar(w http.ResponseWriter, r *http.Request) {
	u, err := actor(r)
	if err != nil {
		middleware.ReportError(w, r, err, "delete environment variable")
		return
	}

	err = h.service.DeleteEnvVar(r.Context(), u.ID, chi.URLParam(r, "id"), chi.URLParam(r, "envId"))
	if err != nil {
		middleware.ReportError(w, r, err, "delete environment variable")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, successBody)
}
