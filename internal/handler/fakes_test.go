package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/launchpad/internal/admin"
	"github.com/hitoshi/launchpad/internal/auth"
	"github.com/hitoshi/launchpad/internal/authz"
	"github.com/hitoshi/launchpad/internal/billing"
	"github.com/hitoshi/launchpad/internal/metrics"
	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/project"
	"github.com/hitoshi/launchpad/internal/repository"
	"github.com/hitoshi/launchpad/internal/security"
	"github.com/hitoshi/launchpad/internal/timetable"
	"github.com/hitoshi/launchpad/internal/user"
)

// --- インメモリストア ---

// memStore はテスト用のインメモリデータストア。
// calls はデータアクセスの呼び出し回数で、認可前にデータアクセスが起きないことの検証に使う。
type memStore struct {
	mu        sync.Mutex
	calls     int
	users     map[string]*model.User
	projects  map[string]*model.Project
	envVars   map[string]*model.EnvVar
	timetable map[string]*model.TimetableEntry
	clock     time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[string]*model.User),
		projects:  make(map[string]*model.Project),
		envVars:   make(map[string]*model.EnvVar),
		timetable: make(map[string]*model.TimetableEntry),
		clock:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// uuidSyntax はPostgreSQLのUUID列と同じく、UUID形式でないIDを22P02エラーで拒否する。
func uuidSyntax(ids ...string) error {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
			return &pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid: \"" + id + "\""}
		}
	}
	return nil
}

// hit は呼び出し回数を数え、ロックを取得する。呼び出し側でunlockする。
func (s *memStore) hit() {
	s.mu.Lock()
	s.calls++
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *memStore) resetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = 0
}

// tick は単調増加する時刻を返す。作成順の並び替えを決定的にする。
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addUser(u *model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	if u.Tier == "" {
		u.Tier = model.TierFree
	}
	u.CreatedAt = s.tick()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return u
}

func (s *memStore) addProject(p *model.Project) *model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.CreatedAt = s.tick()
	p.UpdatedAt = p.CreatedAt
	s.projects[p.ID] = p
	return p
}

// lookupUser はセッション解決用。データアクセスとして数えない。
func (s *memStore) lookupUser(id string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func byCreated[T any](items []T, created func(T) time.Time, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return id(items[i]) < id(items[j])
	})
}

// --- UserRepository ---

type memUserRepo struct{ s *memStore }

func (r memUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id); err != nil {
		return nil, err
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r memUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memUserRepo) List(ctx context.Context) ([]*model.User, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	var out []*model.User
	for _, u := range r.s.users {
		cp := *u
		out = append(out, &cp)
	}
	byCreated(out, func(u *model.User) time.Time { return u.CreatedAt }, func(u *model.User) string { return u.ID })
	return out, nil
}

func (r memUserRepo) Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id); err != nil {
		return nil, err
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Tier != nil {
		u.Tier = *upd.Tier
	}
	if upd.Credits != nil {
		u.Credits = *upd.Credits
	}
	cp := *u
	return &cp, nil
}

func (r memUserRepo) BulkUpdate(ctx context.Context, ids []string, tier *model.Tier, credits *int64) (int64, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(ids...); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		u, ok := r.s.users[id]
		if !ok {
			continue
		}
		if tier != nil {
			u.Tier = *tier
		}
		if credits != nil {
			u.Credits = *credits
		}
		n++
	}
	return n, nil
}

func (r memUserRepo) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id); err != nil {
		return err
	}
	if u, ok := r.s.users[id]; ok {
		u.StripeCustomerID = customerID
	}
	return nil
}

// --- SessionDeleter ---

type memSessionRepo struct{ s *memStore }

func (r memSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(userID); err != nil {
		return err
	}
	return nil
}

// --- ProjectRepository ---

type memProjectRepo struct{ s *memStore }

func (r memProjectRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Project, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(ownerID); err != nil {
		return nil, err
	}
	var out []*model.Project
	for _, p := range r.s.projects {
		if p.OwnerID == ownerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	byCreated(out, func(p *model.Project) time.Time { return p.CreatedAt }, func(p *model.Project) string { return p.ID })
	return out, nil
}

func (r memProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id); err != nil {
		return nil, err
	}
	p, ok := r.s.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r memProjectRepo) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Project, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id, ownerID); err != nil {
		return nil, err
	}
	p, ok := r.s.projects[id]
	if !ok || p.OwnerID != ownerID {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r memProjectRepo) Create(ctx context.Context, p *model.Project) error {
	r.s.hit()
	defer r.s.mu.Unlock()
	cp := *p
	cp.CreatedAt = r.s.tick()
	cp.UpdatedAt = cp.CreatedAt
	r.s.projects[p.ID] = &cp
	return nil
}

func (r memProjectRepo) Update(ctx context.Context, id, ownerID string, in model.ProjectInput) (*model.Project, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id, ownerID); err != nil {
		return nil, err
	}
	p, ok := r.s.projects[id]
	if !ok || p.OwnerID != ownerID {
		return nil, nil
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Framework != nil {
		p.Framework = *in.Framework
	}
	if in.RepositoryURL != nil {
		p.RepositoryURL = *in.RepositoryURL
	}
	if in.DeployHookURL != nil {
		p.DeployHookURL = *in.DeployHookURL
	}
	cp := *p
	return &cp, nil
}

func (r memProjectRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id, ownerID); err != nil {
		return false, err
	}
	p, ok := r.s.projects[id]
	if !ok || p.OwnerID != ownerID {
		return false, nil
	}
	delete(r.s.projects, id)
	for eid, e := range r.s.envVars {
		if e.ProjectID == id {
			delete(r.s.envVars, eid)
		}
	}
	return true, nil
}

func (r memProjectRepo) IncrementDeployCount(ctx context.Context, id, ownerID string) (*model.Project, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id, ownerID); err != nil {
		return nil, err
	}
	p, ok := r.s.projects[id]
	if !ok || p.OwnerID != ownerID {
		return nil, nil
	}
	p.DeployCount++
	cp := *p
	return &cp, nil
}

func (r memProjectRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(ownerID); err != nil {
		return err
	}
	for id, p := range r.s.projects {
		if p.OwnerID == ownerID {
			delete(r.s.projects, id)
		}
	}
	return nil
}

// --- EnvVarRepository ---

type memEnvVarRepo struct{ s *memStore }

func (r memEnvVarRepo) owns(projectID, ownerID string) bool {
	p, ok := r.s.projects[projectID]
	return ok && p.OwnerID == ownerID
}

func (r memEnvVarRepo) ListByProject(ctx context.Context, projectID, ownerID string) ([]*model.EnvVar, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(projectID, ownerID); err != nil {
		return nil, err
	}
	if !r.owns(projectID, ownerID) {
		return nil, nil
	}
	var out []*model.EnvVar
	for _, e := range r.s.envVars {
		if e.ProjectID == projectID {
			cp := *e
			out = append(out, &cp)
		}
	}
	byCreated(out, func(e *model.EnvVar) time.Time { return e.CreatedAt }, func(e *model.EnvVar) string { return e.ID })
	return out, nil
}

func (r memEnvVarRepo) Create(ctx context.Context, e *model.EnvVar) error {
	r.s.hit()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.envVars {
		if existing.ProjectID == e.ProjectID && existing.Key == e.Key {
			return repository.ErrDuplicateKey
		}
	}
	cp := *e
	cp.CreatedAt = r.s.tick()
	cp.UpdatedAt = cp.CreatedAt
	r.s.envVars[e.ID] = &cp
	return nil
}

func (r memEnvVarRepo) DeleteByIDAndOwner(ctx context.Context, id, projectID, ownerID string) (bool, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id, projectID, ownerID); err != nil {
		return false, err
	}
	e, ok := r.s.envVars[id]
	if !ok || e.ProjectID != projectID || !r.owns(projectID, ownerID) {
		return false, nil
	}
	delete(r.s.envVars, id)
	return true, nil
}

func (r memEnvVarRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(ownerID); err != nil {
		return err
	}
	for id, e := range r.s.envVars {
		if r.owns(e.ProjectID, ownerID) {
			delete(r.s.envVars, id)
		}
	}
	return nil
}

// --- TimetableRepository ---

type memTimetableRepo struct{ s *memStore }

func (r memTimetableRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.TimetableEntry, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(ownerID); err != nil {
		return nil, err
	}
	var out []*model.TimetableEntry
	for _, e := range r.s.timetable {
		if e.OwnerID == ownerID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		if out[i].StartsAt != out[j].StartsAt {
			return out[i].StartsAt < out[j].StartsAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memTimetableRepo) Create(ctx context.Context, e *model.TimetableEntry) error {
	r.s.hit()
	defer r.s.mu.Unlock()
	cp := *e
	r.s.timetable[e.ID] = &cp
	return nil
}

func (r memTimetableRepo) Update(ctx context.Context, id, ownerID string, in model.TimetableInput) (*model.TimetableEntry, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id, ownerID); err != nil {
		return nil, err
	}
	e, ok := r.s.timetable[id]
	if !ok || e.OwnerID != ownerID {
		return nil, nil
	}
	if in.Title != nil {
		e.Title = *in.Title
	}
	if in.DayOfWeek != nil {
		e.DayOfWeek = *in.DayOfWeek
	}
	if in.StartsAt != nil {
		e.StartsAt = *in.StartsAt
	}
	if in.EndsAt != nil {
		e.EndsAt = *in.EndsAt
	}
	if in.Location != nil {
		e.Location = *in.Location
	}
	cp := *e
	return &cp, nil
}

func (r memTimetableRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(id, ownerID); err != nil {
		return false, err
	}
	e, ok := r.s.timetable[id]
	if !ok || e.OwnerID != ownerID {
		return false, nil
	}
	delete(r.s.timetable, id)
	return true, nil
}

func (r memTimetableRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	r.s.hit()
	defer r.s.mu.Unlock()
	if err := uuidSyntax(ownerID); err != nil {
		return err
	}
	for id, e := range r.s.timetable {
		if e.OwnerID == ownerID {
			delete(r.s.timetable, id)
		}
	}
	return nil
}

var (
	_ repository.UserRepository      = memUserRepo{}
	_ repository.ProjectRepository   = memProjectRepo{}
	_ repository.EnvVarRepository    = memEnvVarRepo{}
	_ repository.TimetableRepository = memTimetableRepo{}
)

// --- 外部依存のフェイク ---

// headerResolver は "Authorization: Bearer <userID>" をストアのユーザーに解決する。
// ロールは毎回ストアから読み込む。
type headerResolver struct{ s *memStore }

func (r headerResolver) Resolve(req *http.Request) (*model.User, auth.Method, error) {
	id := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	if id == "" {
		return nil, auth.MethodNone, nil
	}
	u := r.s.lookupUser(id)
	if u == nil {
		return nil, auth.MethodNone, nil
	}
	return u, auth.MethodBearer, nil
}

// allowAllValidator はテスト用に全URLを許可する。
type allowAllValidator struct{}

func (allowAllValidator) ValidateURL(string) error { return nil }

// fakeProvider はbilling.Providerのフェイク実装。
type fakeProvider struct{}

func (fakeProvider) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	return "cus_" + userID, nil
}

func (fakeProvider) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (string, error) {
	return "https://checkout.example.com/" + p.CustomerID + "/" + p.PriceID, nil
}

func (fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.example.com/" + customerID, nil
}

type nopAuthService struct{}

func (nopAuthService) Logout(ctx context.Context, sessionID string) error { return nil }

type stubPinger struct{ err error }

func (p stubPinger) PingContext(ctx context.Context) error { return p.err }

// testEnv は実サービスとインメモリストアで構成したルーター。
type testEnv struct {
	store  *memStore
	router http.Handler
}

func newTestEnv(hooks project.HookClient) *testEnv {
	s := newMemStore()
	users := memUserRepo{s}
	projects := memProjectRepo{s}
	envVars := memEnvVarRepo{s}
	entries := memTimetableRepo{s}
	gate := authz.NewGate()
	sanitizer := security.NewSanitizer()
	if hooks == nil {
		hooks = http.DefaultClient
	}

	deps := &RouterDeps{
		Logger:           slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Resolver:         headerResolver{s},
		Gate:             gate,
		Recorder:         metrics.Nop{},
		GeneralLimiter:   middleware.NewMemoryLimiter(middleware.MemoryLimiterConfig{Limit: 10000, Window: time.Minute}),
		StrictLimiter:    middleware.NewMemoryLimiter(middleware.MemoryLimiterConfig{Limit: 10000, Window: time.Minute}),
		DB:               stubPinger{},
		AuthService:      nopAuthService{},
		AdminService:     admin.NewService(users),
		UserService:      user.NewService(users, memSessionRepo{s}, envVars, projects, entries),
		ProjectService:   project.NewService(projects, envVars, gate, sanitizer, allowAllValidator{}, hooks, metrics.Nop{}),
		TimetableService: timetable.NewService(entries, sanitizer),
		BillingService: billing.NewService(fakeProvider{}, users, billing.Config{
			Prices:  map[model.Tier]string{model.TierPro: "price_pro"},
			BaseURL: "https://app.example.com",
		}, metrics.Nop{}),
	}
	return &testEnv{store: s, router: NewRouter(deps)}
}
