package project

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/launchpad/internal/authz"
	"github.com/hitoshi/launchpad/internal/metrics"
	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/repository"
	"github.com/hitoshi/launchpad/internal/security"
)

// テスト用の固定ID。
const (
	testProjectID = "6f2d8e4a-1c3b-4a5d-8e9f-0000000000a1"
	testEnvVarID  = "9c4b2a1d-7e6f-4d3c-b2a1-0000000000e1"
)

// --- モック ---

type mockProjectRepo struct {
	listByOwnerFn          func(ctx context.Context, ownerID string) ([]*model.Project, error)
	findByIDFn             func(ctx context.Context, id string) (*model.Project, error)
	findByIDAndOwnerFn     func(ctx context.Context, id, ownerID string) (*model.Project, error)
	createFn               func(ctx context.Context, p *model.Project) error
	updateFn               func(ctx context.Context, id, ownerID string, in model.ProjectInput) (*model.Project, error)
	deleteByIDAndOwnerFn   func(ctx context.Context, id, ownerID string) (bool, error)
	incrementDeployCountFn func(ctx context.Context, id, ownerID string) (*model.Project, error)
	incrementCalls         int
}

func (m *mockProjectRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Project, error) {
	return m.listByOwnerFn(ctx, ownerID)
}

func (m *mockProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockProjectRepo) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Project, error) {
	return m.findByIDAndOwnerFn(ctx, id, ownerID)
}

func (m *mockProjectRepo) Create(ctx context.Context, p *model.Project) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}

func (m *mockProjectRepo) Update(ctx context.Context, id, ownerID string, in model.ProjectInput) (*model.Project, error) {
	return m.updateFn(ctx, id, ownerID, in)
}

func (m *mockProjectRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	return m.deleteByIDAndOwnerFn(ctx, id, ownerID)
}

func (m *mockProjectRepo) IncrementDeployCount(ctx context.Context, id, ownerID string) (*model.Project, error) {
	m.incrementCalls++
	return m.incrementDeployCountFn(ctx, id, ownerID)
}

func (m *mockProjectRepo) DeleteByOwner(context.Context, string) error { return nil }

var _ repository.ProjectRepository = (*mockProjectRepo)(nil)

type mockEnvVarRepo struct {
	listByProjectFn      func(ctx context.Context, projectID, ownerID string) ([]*model.EnvVar, error)
	createFn             func(ctx context.Context, e *model.EnvVar) error
	deleteByIDAndOwnerFn func(ctx context.Context, id, projectID, ownerID string) (bool, error)
}

func (m *mockEnvVarRepo) ListByProject(ctx context.Context, projectID, ownerID string) ([]*model.EnvVar, error) {
	return m.listByProjectFn(ctx, projectID, ownerID)
}

func (m *mockEnvVarRepo) Create(ctx context.Context, e *model.EnvVar) error {
	if m.createFn != nil {
		return m.createFn(ctx, e)
	}
	return nil
}

func (m *mockEnvVarRepo) DeleteByIDAndOwner(ctx context.Context, id, projectID, ownerID string) (bool, error) {
	return m.deleteByIDAndOwnerFn(ctx, id, projectID, ownerID)
}

func (m *mockEnvVarRepo) DeleteByOwner(context.Context, string) error { return nil }

var _ repository.EnvVarRepository = (*mockEnvVarRepo)(nil)

type allowAllURLs struct{}

func (allowAllURLs) ValidateURL(string) error { return nil }

type hookFunc func(req *http.Request) (*http.Response, error)

func (f hookFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func okResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}
}

func newTestService(projects *mockProjectRepo, envVars *mockEnvVarRepo, guard security.URLValidator, hooks HookClient) *Service {
	if envVars == nil {
		envVars = &mockEnvVarRepo{}
	}
	if guard == nil {
		guard = allowAllURLs{}
	}
	s := NewService(projects, envVars, authz.NewGate(), security.NewSanitizer(), guard, hooks, metrics.Nop{})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func wantKind(t *testing.T, err error, kind model.ErrorKind, message string) {
	t.Helper()
	var appErr *model.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %v, want *model.AppError", err)
	}
	if appErr.Kind != kind {
		t.Errorf("Kind = %v, want %v", appErr.Kind, kind)
	}
	if message != "" && appErr.Message != message {
		t.Errorf("Message = %q, want %q", appErr.Message, message)
	}
}

func ptr[T any](v T) *T { return &v }

// --- Get ---

func TestService_Get(t *testing.T) {
	owned := &model.Project{ID: testProjectID, OwnerID: "owner"}

	tests := []struct {
		name    string
		actor   *model.User
		found   *model.Project
		wantErr bool
	}{
		{name: "owner", actor: &model.User{ID: "owner", Role: model.RoleUser}, found: owned},
		{name: "admin override", actor: &model.User{ID: "admin", Role: model.RoleAdmin}, found: owned},
		{name: "other user", actor: &model.User{ID: "other", Role: model.RoleUser}, found: owned, wantErr: true},
		{name: "missing", actor: &model.User{ID: "owner", Role: model.RoleUser}, found: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockProjectRepo{
				findByIDFn: func(ctx context.Context, id string) (*model.Project, error) { return tt.found, nil },
			}
			s := newTestService(repo, nil, nil, nil)

			p, err := s.Get(context.Background(), tt.actor, testProjectID)
			if tt.wantErr {
				wantKind(t, err, model.KindNotFound, "Project not found")
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.ID != testProjectID {
				t.Errorf("ID = %q, want p1", p.ID)
			}
		})
	}
}

// --- Create / Update ---

func TestService_Create_SanitizesAndPersists(t *testing.T) {
	var saved *model.Project
	repo := &mockProjectRepo{
		createFn: func(ctx context.Context, p *model.Project) error {
			saved = p
			return nil
		},
	}
	s := newTestService(repo, nil, nil, nil)

	p, err := s.Create(context.Background(), "owner", model.ProjectInput{
		Name:          ptr("  <b>My App</b> "),
		Description:   ptr(`<p>hello</p><script>alert(1)</script>`),
		RepositoryURL: ptr("https://github.com/example/app"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved == nil {
		t.Fatal("project should be persisted")
	}
	if p.Name != "My App" {
		t.Errorf("Name = %q, want %q", p.Name, "My App")
	}
	if strings.Contains(p.Description, "script") {
		t.Errorf("Description = %q, script should be removed", p.Description)
	}
	if p.OwnerID != "owner" {
		t.Errorf("OwnerID = %q, want owner", p.OwnerID)
	}
	if p.ID == "" {
		t.Error("ID should be generated")
	}
	if p.DeployCount != 0 {
		t.Errorf("DeployCount = %d, want 0", p.DeployCount)
	}
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name    string
		in      model.ProjectInput
		guard   security.URLValidator
		message string
	}{
		{name: "missing name", in: model.ProjectInput{}, message: "name required"},
		{name: "blank name", in: model.ProjectInput{Name: ptr("   ")}, message: "name required"},
		{name: "long name", in: model.ProjectInput{Name: ptr(strings.Repeat("a", maxNameLength+1))}, message: "name invalid"},
		{name: "bad repository url", in: model.ProjectInput{Name: ptr("app"), RepositoryURL: ptr("ftp://x")}, message: "repositoryUrl invalid"},
		{
			name: "private deploy hook", in: model.ProjectInput{Name: ptr("app"), DeployHookURL: ptr("http://10.0.0.1/hook")},
			guard: security.NewHookGuard(), message: "deployHookUrl invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockProjectRepo{
				createFn: func(ctx context.Context, p *model.Project) error {
					t.Fatal("Create should not be called")
					return nil
				},
			}
			s := newTestService(repo, nil, tt.guard, nil)

			_, err := s.Create(context.Background(), "owner", tt.in)
			wantKind(t, err, model.KindBadInput, tt.message)
		})
	}
}

func TestService_Update(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		s := newTestService(&mockProjectRepo{}, nil, nil, nil)
		_, err := s.Update(context.Background(), "owner", testProjectID, model.ProjectInput{})
		wantKind(t, err, model.KindBadInput, "No fields to update")
	})

	t.Run("not owned", func(t *testing.T) {
		repo := &mockProjectRepo{
			updateFn: func(ctx context.Context, id, ownerID string, in model.ProjectInput) (*model.Project, error) {
				return nil, nil
			},
		}
		s := newTestService(repo, nil, nil, nil)
		_, err := s.Update(context.Background(), "owner", testProjectID, model.ProjectInput{Framework: ptr("next")})
		wantKind(t, err, model.KindNotFound, "Project not found")
	})

	t.Run("passes owner to repository", func(t *testing.T) {
		var gotOwner string
		repo := &mockProjectRepo{
			updateFn: func(ctx context.Context, id, ownerID string, in model.ProjectInput) (*model.Project, error) {
				gotOwner = ownerID
				return &model.Project{ID: id, OwnerID: ownerID, Framework: *in.Framework}, nil
			},
		}
		s := newTestService(repo, nil, nil, nil)
		p, err := s.Update(context.Background(), "owner", testProjectID, model.ProjectInput{Framework: ptr("next")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotOwner != "owner" {
			t.Errorf("ownerID = %q, want owner", gotOwner)
		}
		if p.Framework != "next" {
			t.Errorf("Framework = %q, want next", p.Framework)
		}
	})
}

func TestService_Delete_NotOwned_ReturnsNotFound(t *testing.T) {
	repo := &mockProjectRepo{
		deleteByIDAndOwnerFn: func(ctx context.Context, id, ownerID string) (bool, error) { return false, nil },
	}
	s := newTestService(repo, nil, nil, nil)

	err := s.Delete(context.Background(), "owner", testProjectID)
	wantKind(t, err, model.KindNotFound, "Project not found")
}

// --- Deploy ---

func TestService_Deploy(t *testing.T) {
	project := &model.Project{ID: testProjectID, OwnerID: "owner", Name: "app", DeployHookURL: "https://hooks.example.com/deploy"}

	tests := []struct {
		name           string
		project        *model.Project
		hook           hookFunc
		wantKind       model.ErrorKind
		wantIncrements int
	}{
		{
			name: "success", project: project,
			hook:           func(req *http.Request) (*http.Response, error) { return okResponse(http.StatusAccepted), nil },
			wantIncrements: 1,
		},
		{
			name: "hook error status", project: project,
			hook:     func(req *http.Request) (*http.Response, error) { return okResponse(http.StatusInternalServerError), nil },
			wantKind: model.KindUpstream,
		},
		{
			name: "hook transport error", project: project,
			hook:     func(req *http.Request) (*http.Response, error) { return nil, errors.New("dial tcp: timeout") },
			wantKind: model.KindUpstream,
		},
		{
			name: "no hook configured", project: &model.Project{ID: testProjectID, OwnerID: "owner"},
			wantKind: model.KindBadInput,
		},
		{
			name: "not owned", project: nil,
			wantKind: model.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockProjectRepo{
				findByIDAndOwnerFn: func(ctx context.Context, id, ownerID string) (*model.Project, error) {
					return tt.project, nil
				},
				incrementDeployCountFn: func(ctx context.Context, id, ownerID string) (*model.Project, error) {
					return &model.Project{ID: id, OwnerID: ownerID, DeployCount: 1}, nil
				},
			}
			var hooks HookClient
			var gotReq *http.Request
			if tt.hook != nil {
				hooks = hookFunc(func(req *http.Request) (*http.Response, error) {
					gotReq = req
					return tt.hook(req)
				})
			}
			s := newTestService(repo, nil, nil, hooks)

			p, err := s.Deploy(context.Background(), "owner", testProjectID)
			if repo.incrementCalls != tt.wantIncrements {
				t.Errorf("IncrementDeployCount calls = %d, want %d", repo.incrementCalls, tt.wantIncrements)
			}
			if tt.wantKind != model.KindUnknown {
				wantKind(t, err, tt.wantKind, "")
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.DeployCount != 1 {
				t.Errorf("DeployCount = %d, want 1", p.DeployCount)
			}
			if gotReq.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", gotReq.Method)
			}
			if ct := gotReq.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
		})
	}
}

// --- 環境変数 ---

func TestService_CreateEnvVar(t *testing.T) {
	owned := func(ctx context.Context, id, ownerID string) (*model.Project, error) {
		return &model.Project{ID: id, OwnerID: ownerID}, nil
	}

	tests := []struct {
		name      string
		key       string
		value     string
		findFn    func(ctx context.Context, id, ownerID string) (*model.Project, error)
		createErr error
		wantKind  model.ErrorKind
		wantMsg   string
	}{
		{name: "valid", key: "DATABASE_URL", value: "postgres://", findFn: owned},
		{name: "missing key", key: " ", findFn: owned, wantKind: model.KindBadInput, wantMsg: "key required"},
		{name: "invalid key", key: "1BAD-KEY", findFn: owned, wantKind: model.KindBadInput, wantMsg: "key invalid"},
		{name: "value too long", key: "K", value: strings.Repeat("v", maxEnvValueLength+1), findFn: owned, wantKind: model.KindBadInput, wantMsg: "value invalid"},
		{
			name: "not owned", key: "K",
			findFn:   func(ctx context.Context, id, ownerID string) (*model.Project, error) { return nil, nil },
			wantKind: model.KindNotFound, wantMsg: "Project not found",
		},
		{name: "duplicate", key: "K", findFn: owned, createErr: repository.ErrDuplicateKey, wantKind: model.KindBadInput, wantMsg: "key already exists"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projects := &mockProjectRepo{findByIDAndOwnerFn: tt.findFn}
			envVars := &mockEnvVarRepo{
				createFn: func(ctx context.Context, e *model.EnvVar) error { return tt.createErr },
			}
			s := newTestService(projects, envVars, nil, nil)

			e, err := s.CreateEnvVar(context.Background(), "owner", testProjectID, tt.key, tt.value)
			if tt.wantKind != model.KindUnknown {
				wantKind(t, err, tt.wantKind, tt.wantMsg)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if e.ProjectID != testProjectID || e.Key != tt.key {
				t.Errorf("env var = %+v, want project p1 key %s", e, tt.key)
			}
		})
	}
}

func TestService_ListEnvVars_NotOwned_SkipsQuery(t *testing.T) {
	projects := &mockProjectRepo{
		findByIDAndOwnerFn: func(ctx context.Context, id, ownerID string) (*model.Project, error) { return nil, nil },
	}
	envVars := &mockEnvVarRepo{
		listByProjectFn: func(ctx context.Context, projectID, ownerID string) ([]*model.EnvVar, error) {
			t.Fatal("ListByProject should not be called")
			return nil, nil
		},
	}
	s := newTestService(projects, envVars, nil, nil)

	_, err := s.ListEnvVars(context.Background(), "owner", testProjectID)
	wantKind(t, err, model.KindNotFound, "Project not found")
}

func TestService_DeleteEnvVar_NotFound(t *testing.T) {
	envVars := &mockEnvVarRepo{
		deleteByIDAndOwnerFn: func(ctx context.Context, id, projectID, ownerID string) (bool, error) { return false, nil },
	}
	s := newTestService(&mockProjectRepo{}, envVars, nil, nil)

	err := s.DeleteEnvVar(context.Background(), "owner", testProjectID, testEnvVarID)
	wantKind(t, err, model.KindNotFound, "Environment variable not found")
}

func TestService_RepositoryError_IsUnknown(t *testing.T) {
	repo := &mockProjectRepo{
		listByOwnerFn: func(ctx context.Context, ownerID string) ([]*model.Project, error) {
			return nil, errors.New("connection refused")
		},
	}
	s := newTestService(repo, nil, nil, nil)

	_, err := s.List(context.Background(), "owner")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := model.KindOf(err); kind != model.KindUnknown {
		t.Errorf("KindOf = %v, want %v", kind, model.KindUnknown)
	}
}

func TestService_MalformedID_ReturnsNotFoundWithoutQuery(t *testing.T) {
	fail := func(name string) {
		t.Helper()
		t.Fatalf("%s should not be called for a malformed id", name)
	}
	repo := &mockProjectRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Project, error) { fail("FindByID"); return nil, nil },
		findByIDAndOwnerFn: func(ctx context.Context, id, ownerID string) (*model.Project, error) {
			fail("FindByIDAndOwner")
			return nil, nil
		},
		updateFn: func(ctx context.Context, id, ownerID string, in model.ProjectInput) (*model.Project, error) {
			fail("Update")
			return nil, nil
		},
		deleteByIDAndOwnerFn: func(ctx context.Context, id, ownerID string) (bool, error) { fail("DeleteByIDAndOwner"); return false, nil },
	}
	envVars := &mockEnvVarRepo{
		deleteByIDAndOwnerFn: func(ctx context.Context, id, projectID, ownerID string) (bool, error) {
			fail("DeleteByIDAndOwner")
			return false, nil
		},
	}
	s := newTestService(repo, envVars, nil, nil)
	ctx := context.Background()
	actor := &model.User{ID: "owner", Role: model.RoleAdmin}

	tests := []struct {
		name    string
		call    func() error
		wantMsg string
	}{
		{"get", func() error { _, err := s.Get(ctx, actor, "nope"); return err }, "Project not found"},
		{"update", func() error {
			_, err := s.Update(ctx, "owner", "nope", model.ProjectInput{Name: ptr("x")})
			return err
		}, "Project not found"},
		{"delete", func() error { return s.Delete(ctx, "owner", "nope") }, "Project not found"},
		{"deploy", func() error { _, err := s.Deploy(ctx, "owner", "nope"); return err }, "Project not found"},
		{"list env vars", func() error { _, err := s.ListEnvVars(ctx, "owner", "nope"); return err }, "Project not found"},
		{"create env var", func() error { _, err := s.CreateEnvVar(ctx, "owner", "nope", "KEY", "v"); return err }, "Project not found"},
		{"delete env var, bad project", func() error { return s.DeleteEnvVar(ctx, "owner", "nope", testEnvVarID) }, "Environment variable not found"},
		{"delete env var, bad id", func() error { return s.DeleteEnvVar(ctx, "owner", testProjectID, "nope") }, "Environment variable not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantKind(t, tt.call(), model.KindNotFound, tt.wantMsg)
		})
	}
}
