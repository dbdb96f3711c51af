// Package app はサブコマンドごとの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hitoshi/launchpad/internal/admin"
	"github.com/hitoshi/launchpad/internal/auth"
	"github.com/hitoshi/launchpad/internal/authz"
	"github.com/hitoshi/launchpad/internal/billing"
	"github.com/hitoshi/launchpad/internal/config"
	"github.com/hitoshi/launchpad/internal/database"
	"github.com/hitoshi/launchpad/internal/handler"
	"github.com/hitoshi/launchpad/internal/logger"
	"github.com/hitoshi/launchpad/internal/metrics"
	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/project"
	"github.com/hitoshi/launchpad/internal/repository"
	"github.com/hitoshi/launchpad/internal/security"
	"github.com/hitoshi/launchpad/internal/timetable"
	"github.com/hitoshi/launchpad/internal/user"
	"github.com/hitoshi/launchpad/internal/worker/cleanup"
)

// rateLimitWindow はレート制限の単位時間。RATE_LIMIT_* はこの時間あたりのリクエスト数。
const rateLimitWindow = time.Minute

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeedAdmins:
		return runSeedAdmins(cfg)
	case CommandToken:
		return runIssueToken(cfg, w, args[1:])
	case CommandSession:
		return runIssueSession(cfg, w, args[1:])
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := database.Ping(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// openRedis はREDIS_URLが設定されている場合にRedisクライアントを生成し、疎通を確認する。
// 未設定の場合はnilを返し、レート制限はプロセス内で行う。
func openRedis(cfg *config.Config) (*goredis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis connection established", slog.String("addr", opts.Addr))
	return client, nil
}

// newLimiters は一般用と厳格用のレートリミッターを生成する。
// Redisクライアントがある場合は複数インスタンスで共有するRedisLimiterを使用する。
// 返される関数はバックグラウンド処理を停止する。
func newLimiters(cfg *config.Config, rdb goredis.Cmdable) (general, strict middleware.Limiter, stop func()) {
	if rdb != nil {
		return middleware.NewRedisLimiter(rdb, "general", cfg.RateLimitGeneral, rateLimitWindow),
			middleware.NewRedisLimiter(rdb, "strict", cfg.RateLimitStrict, rateLimitWindow),
			func() {}
	}

	g := middleware.NewMemoryLimiter(middleware.MemoryLimiterConfig{Limit: cfg.RateLimitGeneral, Window: rateLimitWindow})
	s := middleware.NewMemoryLimiter(middleware.MemoryLimiterConfig{Limit: cfg.RateLimitStrict, Window: rateLimitWindow})
	return g, s, func() {
		g.Stop()
		s.Stop()
	}
}

// newBillingProvider は決済プロバイダーを生成する。
// 未設定の場合はnilを返し、課金エンドポイントは上流エラーを返す。
func newBillingProvider(cfg *config.Config) billing.Provider {
	if !cfg.BillingEnabled() {
		slog.Warn("billing is disabled: STRIPE_SECRET_KEY is not set")
		return nil
	}
	return billing.NewStripeProvider(cfg.StripeSecretKey)
}

// newRouter はプロセス全体で共有するシングルトンからルーターを構築する。
// 返される関数はバックグラウンド処理を停止する。
func newRouter(cfg *config.Config, db *sql.DB, rdb goredis.Cmdable, reg *prometheus.Registry, provider billing.Provider) (http.Handler, func(), error) {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	projectRepo := repository.NewPostgresProjectRepo(db)
	envVarRepo := repository.NewPostgresEnvVarRepo(db)
	timetableRepo := repository.NewPostgresTimetableRepo(db)

	// 3. 認証・認可
	tokens, err := auth.NewTokenValidator(cfg.SessionSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token validator: %w", err)
	}
	resolver := auth.NewResolver(sessionRepo, userRepo, tokens)
	gate := authz.NewGate(authz.WithDenyObserver(func(c authz.Capability, d authz.Decision) {
		collector.RecordAuthzDenial(string(d.Reason))
	}))

	// 4. セキュリティ
	sanitizer := security.NewSanitizer()
	hookGuard := security.NewHookGuard()

	// 5. ドメインサービスの初期化
	authService := auth.NewService(sessionRepo, cfg.SessionMaxAge)
	adminService := admin.NewService(userRepo)
	userService := user.NewService(userRepo, sessionRepo, envVarRepo, projectRepo, timetableRepo)
	projectService := project.NewService(
		projectRepo, envVarRepo, gate, sanitizer, hookGuard,
		hookGuard.NewClient(cfg.DeployHookTimeout), collector,
	)
	timetableService := timetable.NewService(timetableRepo, sanitizer)
	billingService := billing.NewService(provider, userRepo, billing.Config{
		Prices: map[model.Tier]string{
			model.TierPro:        cfg.StripePricePro,
			model.TierEnterprise: cfg.StripePriceEnterprise,
		},
		BaseURL: cfg.BaseURL,
	}, collector)

	// 6. ルーターの構築
	general, strict, stop := newLimiters(cfg, rdb)

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		Resolver:          resolver,
		Gate:              gate,
		Recorder:          collector,
		GeneralLimiter:    general,
		StrictLimiter:     strict,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Cookies: handler.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
		},

		DB:             db,
		MetricsHandler: metrics.Handler(reg),

		AuthService:      authService,
		AdminService:     adminService,
		UserService:      userService,
		ProjectService:   projectService,
		TimetableService: timetableService,
		BillingService:   billingService,
	}

	return handler.NewRouter(deps), stop, nil
}

// runServe はAPIサーバーモードで起動する。
// DB・Redis・決済プロバイダー・メトリクスレジストリをプロセスで一度だけ生成し、
// 全依存関係をワイヤリングしてHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. Redis接続（任意）
	rdb, err := openRedis(cfg)
	if err != nil {
		return err
	}
	var limiterStore goredis.Cmdable
	if rdb != nil {
		defer rdb.Close()
		limiterStore = rdb
	}

	// 3. 管理者のブートストラップ
	if len(cfg.AdminEmails) > 0 {
		if err := seedAdmins(context.Background(), db, cfg.AdminEmails); err != nil {
			return err
		}
	}

	// 4. メトリクスレジストリ
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 5. ルーターの構築
	router, stopLimiters, err := newRouter(cfg, db, limiterStore, reg, newBillingProvider(cfg))
	if err != nil {
		return err
	}
	defer stopLimiters()

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを起動直後と24時間ごとに実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default(), metrics.Nop{})
	job.RetentionDays = cfg.SessionRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("worker starting",
		slog.Int("retention_days", job.RetentionDays),
	)

	job.Start(ctx, 24*time.Hour)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(result.Version)),
		slog.Bool("changed", result.Changed),
	)
	return nil
}

// runSeedAdmins はADMIN_EMAILSに一致する既存ユーザーを管理者に昇格する。
func runSeedAdmins(cfg *config.Config) error {
	if len(cfg.AdminEmails) == 0 {
		slog.Warn("ADMIN_EMAILS is empty; nothing to seed")
		return nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return seedAdmins(context.Background(), db, cfg.AdminEmails)
}

func seedAdmins(ctx context.Context, db *sql.DB, emails []string) error {
	promoted, err := authz.SeedAdmins(ctx, repository.NewPostgresUserRepo(db), emails)
	if err != nil {
		return fmt.Errorf("failed to seed admins: %w", err)
	}
	slog.Info("admin seed completed",
		slog.Int("configured", len(emails)),
		slog.Int("promoted", promoted),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
