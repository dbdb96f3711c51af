package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/launchpad/internal/authz"
	"github.com/hitoshi/launchpad/internal/database"
	"github.com/hitoshi/launchpad/internal/metrics"
	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Resolver          middleware.IdentityResolver
	Gate              *authz.Gate
	Recorder          metrics.Recorder
	GeneralLimiter    middleware.Limiter
	StrictLimiter     middleware.Limiter
	CORSAllowedOrigin string
	Cookies           CookieConfig

	// ヘルスチェック・メトリクス
	DB             database.Pinger
	MetricsHandler http.Handler

	// サービス
	AuthService      AuthServiceInterface
	AdminService     AdminServiceInterface
	UserService      UserServiceInterface
	ProjectService   ProjectServiceInterface
	TimetableService TimetableServiceInterface
	BillingService   BillingServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS → Session
//	/api 以下: CSRF → RateLimit(general) → RequireCapability（ルートごと）
//
// Sessionはリクエストを拒否せず、認可の判断はルートごとのRequireCapabilityで行う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Recorder))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookies.Secure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.Resolver))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.Cookies.Secure,
		CookieDomain: deps.Cookies.Domain,
	}

	authenticated := middleware.RequireCapability(deps.Gate, authz.Authenticated())
	admin := middleware.RequireCapability(deps.Gate, authz.HasRole(model.RoleAdmin))
	// 一括更新は既存クライアント互換のため403でも "Unauthorized" を返す
	bulkAdmin := middleware.RequireCapability(deps.Gate, authz.HasRole(model.RoleAdmin),
		middleware.WithForbiddenMessage("Unauthorized"))
	strict := middleware.NewRateLimitMiddleware(deps.StrictLimiter, "strict", deps.Recorder)

	healthHandler := NewHealthHandler(deps.DB)
	authHandler := NewAuthHandler(deps.AuthService, deps.Cookies)
	adminHandler := NewAdminHandler(deps.AdminService)
	userHandler := NewUserHandler(deps.UserService, deps.Cookies)
	projectHandler := NewProjectHandler(deps.ProjectService)
	timetableHandler := NewTimetableHandler(deps.TimetableService)
	billingHandler := NewBillingHandler(deps.BillingService)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler.Check)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Post("/auth/logout", authHandler.Logout)

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))
		r.Use(middleware.NewRateLimitMiddleware(deps.GeneralLimiter, "general", deps.Recorder))

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

		// 管理者
		r.Route("/admin", func(r chi.Router) {
			r.Get("/check", adminHandler.Check)
			r.With(admin).Get("/users", adminHandler.ListUsers)
			r.With(admin).Patch("/users/{id}", adminHandler.UpdateUser)
			// メソッドの判定より先に認可するため、GETでも非管理者には403を返す
			r.Route("/users/bulk-update", func(r chi.Router) {
				r.Use(bulkAdmin)
				r.Post("/", adminHandler.BulkUpdate)
			})
		})

		// 認証必須
		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Get("/users/me", userHandler.Me)
			r.Delete("/users/me/data", userHandler.EraseData)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectHandler.List)
				r.Post("/", projectHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", projectHandler.Get)
					r.Patch("/", projectHandler.Update)
					r.Delete("/", projectHandler.Delete)
					r.With(strict).Post("/deploy", projectHandler.Deploy)

					r.Get("/env", projectHandler.ListEnvVars)
					r.Post("/env", projectHandler.CreateEnvVar)
					r.Delete("/env/{envId}", projectHandler.DeleteEnvVar)
				})
			})

			r.Route("/timetable", func(r chi.Router) {
				r.Get("/", timetableHandler.List)
				r.Post("/", timetableHandler.Create)
				r.Patch("/{id}", timetableHandler.Update)
				r.Delete("/{id}", timetableHandler.Delete)
			})

			r.Route("/billing", func(r chi.Router) {
				r.With(strict).Post("/checkout", billingHandler.Checkout)
				r.Post("/portal", billingHandler.Portal)
				r.Get("/usage", billingHandler.Usage)
			})
		})
	})

	return r
}
