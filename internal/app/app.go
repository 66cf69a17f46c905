package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/blogapp/internal/auth"
	"github.com/hitoshi/blogapp/internal/config"
	"github.com/hitoshi/blogapp/internal/content"
	"github.com/hitoshi/blogapp/internal/database"
	"github.com/hitoshi/blogapp/internal/handler"
	"github.com/hitoshi/blogapp/internal/logger"
	"github.com/hitoshi/blogapp/internal/metrics"
	"github.com/hitoshi/blogapp/internal/middleware"
	"github.com/hitoshi/blogapp/internal/repository"
	"github.com/hitoshi/blogapp/internal/security"
	"github.com/hitoshi/blogapp/internal/user"
	"github.com/hitoshi/blogapp/internal/validation"
	"github.com/hitoshi/blogapp/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
	dbPingTimeout = 5 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	if w == nil {
		w = os.Stdout
	}

	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	slog.SetDefault(logger.SetupWithLevel(w, logger.ParseLevel(cfg.LogLevel)))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

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
		slog.String("env", string(cfg.Env)),
		slog.String("port", cfg.ServerPort),
		slog.String("session_store", cfg.SessionStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// newSessionRepository は設定に応じたセッションストアを生成する。
// Redisを使う場合は、呼び出し側でクローズするためにクライアントも返す。
func newSessionRepository(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.SessionRepository, io.Closer, error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return repository.NewPostgresSessionRepo(db), nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis session store connected", slog.String("addr", opts.Addr))
	return repository.NewRedisSessionRepo(client), client, nil
}

// newRegistry はアプリケーションのメトリクスとランタイムのメトリクスを登録したレジストリを生成する。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, metrics.NewCollector(registry)
}

// services はHTTPサーバーが使う依存関係の組。
type services struct {
	router      http.Handler
	rateLimiter *middleware.RateLimiter
}

// buildServices は設定とストアから全依存関係をワイヤリングする。
func buildServices(
	cfg *config.Config,
	db *sql.DB,
	sessionRepo repository.SessionRepository,
	registry *prometheus.Registry,
	collector *metrics.Collector,
) *services {
	// 1. リポジトリの初期化
	identityRepo := repository.NewPostgresIdentityRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)

	// 2. 認証コンポーネントの初期化
	hasher := auth.NewBcryptHasher(auth.BcryptHasherConfig{
		Cost:     cfg.BcryptCost,
		Recorder: collector,
	})
	sessionAuth := auth.NewSessionAuthenticator(identityRepo, sessionRepo, hasher, auth.SessionConfig{
		Secret:       []byte(cfg.SessionSecret),
		TTL:          auth.DefaultTTL,
		StoreTimeout: cfg.StoreTimeout,
	})
	tokenAuth := auth.NewTokenAuthenticator(auth.TokenConfig{
		Secret:       []byte(cfg.JWTSecret),
		Issuer:       cfg.JWTIssuer,
		Audience:     cfg.JWTAudience,
		TTL:          auth.DefaultTTL,
		StoreTimeout: cfg.StoreTimeout,
		Recorder:     collector,
	}, identityRepo)
	cookies := auth.NewCookiePolicy(cfg.IsProduction(), cfg.CookieDomain, auth.DefaultTTL)
	authService := auth.NewService(sessionAuth, tokenAuth, cookies, collector)

	// 3. ドメインサービスの初期化
	validator := validation.New()
	userService := user.NewService(identityRepo, sessionRepo, hasher, validator, user.Config{StoreTimeout: cfg.StoreTimeout})
	contentService := content.NewService(postRepo, categoryRepo, security.NewContentSanitizer(), validator)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Production:        cfg.IsProduction(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure:   cookies.Secure,
			CookieDomain:   cookies.Domain,
			CookieSameSite: cookies.SameSite,
		},
		RateLimiter:    rateLimiter,
		StatusRecorder: collector,

		Gate:      middleware.NewGate(authService.Authenticators(), collector),
		TokenGate: middleware.NewGate([]auth.Authenticator{authService.Tokens()}, collector),

		HealthChecker:   db,
		MetricsGatherer: registry,

		AuthService:    authService,
		UserService:    userService,
		ContentService: contentService,
		Validator:      validator,
	})

	return &services{router: router, rateLimiter: rateLimiter}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessionRepo, closer, err := newSessionRepository(ctx, cfg, db)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	registry, collector := newRegistry()
	svc := buildServices(cfg, db, sessionRepo, registry, collector)
	defer svc.rateLimiter.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           svc.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// PostgreSQLのセッションストアでは期限切れセッションを定期的に削除する。
// Redisのセッションストアはキーの有効期限で自動的に消えるため、何もせず終了する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.SessionStore == config.SessionStoreRedis {
		slog.Info("session store expires keys by itself; worker has nothing to do",
			slog.String("session_store", cfg.SessionStore),
		)
		return nil
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	registry, collector := newRegistry()
	sweeper := cleanup.NewSessionSweeper(db, slog.Default(), collector)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Start(gctx, cleanup.DefaultInterval)
		return nil
	})
	g.Go(func() error {
		return serveWorkerMetrics(gctx, cfg.ServerPort, registry)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// serveWorkerMetrics はワーカーのメトリクスとヘルスチェックを公開する。
// コンテキストがキャンセルされるとシャットダウンする。
func serveWorkerMetrics(ctx context.Context, port string, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(registry))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("worker metrics server error: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
