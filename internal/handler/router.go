package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/blogapp/internal/metrics"
	"github.com/hitoshi/blogapp/internal/middleware"
	"github.com/hitoshi/blogapp/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Production        bool
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder

	// Gate はセッション、トークンの順で本人確認する認可ゲート。
	Gate *middleware.Gate
	// TokenGate はトークンのみで本人確認する認可ゲート（/jwt-verify 用）。
	TokenGate *middleware.Gate

	// 運用
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer

	// サービス
	AuthService    AuthServiceInterface
	UserService    UserServiceInterface
	ContentService ContentServiceInterface
	Validator      *validation.Validator
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェアの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// 資格情報を受け取るルート（/register, /login, /jwt-login）はIP単位の厳しいレート制限を受ける。
// 保護ルートは Gate → RateLimit(General) → CSRF の順に通す。
// CSRF検証はCookieで認証するクライアントの状態変更リクエストのみが対象。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Production))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.UserService, deps.Validator)
	contentHandler := NewContentHandler(deps.ContentService)

	tokenGate := deps.TokenGate
	if tokenGate == nil {
		tokenGate = deps.Gate
	}

	// --- 運用エンドポイント ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 資格情報を受け取るルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.CredentialMiddleware())

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/jwt-login", authHandler.JWTLogin)
	})

	// --- 公開の閲覧ルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/posts", contentHandler.ListPosts)
		r.Get("/posts/{slug}", contentHandler.GetPost)
		r.Get("/categories", contentHandler.ListCategories)
		r.Get("/categories/{slug}", contentHandler.GetCategory)
		r.Get("/categories/{slug}/posts", contentHandler.ListCategoryPosts)
	})

	// ログアウトは資格情報が無くても成功させる（ソフトガード）
	r.With(deps.Gate.Optional()).Get("/logout", authHandler.Logout)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.Gate.RequireAuthenticated())
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/profile", authHandler.Profile)
		r.Delete("/profile", authHandler.Withdraw)
	})

	r.Group(func(r chi.Router) {
		r.Use(tokenGate.RequireAuthenticated())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/jwt-verify", authHandler.JWTVerify)
	})

	// --- 管理者ルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.Gate.RequireAdmin())
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/admin/profile", authHandler.AdminProfile)
		r.Get("/admin-profile", authHandler.AdminProfile)

		r.Route("/admin/posts", func(r chi.Router) {
			r.Get("/", contentHandler.ListPosts)
			r.Post("/", contentHandler.CreatePost)
			r.Put("/{id}", contentHandler.UpdatePost)
			r.Delete("/{id}", contentHandler.DeletePost)
		})

		r.Route("/admin/categories", func(r chi.Router) {
			r.Post("/", contentHandler.CreateCategory)
			r.Get("/{id}", contentHandler.GetCategoryByID)
			r.Put("/{id}", contentHandler.UpdateCategory)
			r.Delete("/{id}", contentHandler.DeleteCategory)
		})
	})

	return r
}
