package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/blogapp/internal/auth"
	"github.com/hitoshi/blogapp/internal/middleware"
	"github.com/hitoshi/blogapp/internal/model"
	"github.com/hitoshi/blogapp/internal/user"
	"github.com/hitoshi/blogapp/internal/validation"
)

// AuthServiceInterface は認証ハンドラーが必要とする認証サービスのインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	LoginToken(ctx context.Context, email, password string) (*auth.LoginResult, error)
	SetLoginCookies(w http.ResponseWriter, res *auth.LoginResult)
	Logout(w http.ResponseWriter, r *http.Request)
}

// UserServiceInterface は認証ハンドラーが必要とするユーザーサービスのインターフェース。
type UserServiceInterface interface {
	Register(ctx context.Context, in user.RegisterInput) (*model.Identity, error)
	GetProfile(ctx context.Context, userID string) (*model.Identity, error)
	// Withdraw は退会処理を実行する。ユーザーの全セッションも削除する。
	Withdraw(ctx context.Context, userID string) error
}

// AuthHandler は登録・ログイン・プロフィール関連のHTTPハンドラー。
type AuthHandler struct {
	auth      AuthServiceInterface
	users     UserServiceInterface
	validator *validation.Validator
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(authService AuthServiceInterface, users UserServiceInterface, validator *validation.Validator) *AuthHandler {
	return &AuthHandler{
		auth:      authService,
		users:     users,
		validator: validator,
	}
}

// loginRequest はログインのリクエストボディ。
// 必須チェックのみを400で返し、長さの上限はwithinLoginLimitsで401として扱う。
type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// maxLoginEmailBytes はログイン時に受け付けるメールアドレスの最大長。
const maxLoginEmailBytes = 254

// withinLoginLimits は登録時に受け付けられる長さの範囲内かを返す。
// 範囲外の値で登録されたアカウントは存在し得ないため、資格情報の不一致と同じ応答にする。
func (r loginRequest) withinLoginLimits() bool {
	return len(r.Email) <= maxLoginEmailBytes && len(r.Password) <= auth.MaxPasswordBytes
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Message   string       `json:"message"`
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// userEnvelope はユーザー情報を返すエンドポイントのレスポンス。
type userEnvelope struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// Register はユーザー登録を処理する。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	identity, err := h.users.Register(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, userEnvelope{
		Message: "ユーザーを登録しました。",
		User:    toUserResponse(identity),
	})
}

// Login は資格情報を検証し、セッションCookieとトークンCookieを発行する。
// トークンはCookieを使えないクライアント向けにレスポンスボディにも含める。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.auth.Login)
}

// JWTLogin はサーバー側セッションを作らずにトークンのみを発行する。
// POST /jwt-login
func (h *AuthHandler) JWTLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.auth.LoginToken)
}

func (h *AuthHandler) login(
	w http.ResponseWriter,
	r *http.Request,
	issue func(ctx context.Context, email, password string) (*auth.LoginResult, error),
) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.validate(w, req) {
		return
	}
	if !req.withinLoginLimits() {
		writeLoginError(w, &auth.Error{Kind: auth.KindInvalidCredential})
		return
	}

	res, err := issue(r.Context(), user.NormalizeEmail(req.Email), req.Password)
	if err != nil {
		writeLoginError(w, err)
		return
	}

	h.auth.SetLoginCookies(w, res)

	var expiresAt time.Time
	if res.Claims != nil {
		expiresAt = res.Claims.ExpiresAt
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Message:   "ログインしました。",
		User:      toUserResponse(res.Identity),
		Token:     res.Token,
		ExpiresAt: expiresAt,
	})
}

// writeLoginError はログイン失敗を応答する。
// 未登録メールとパスワード不一致は同じ401応答にまとめる。
func writeLoginError(w http.ResponseWriter, err error) {
	if auth.IsCredentialRejection(err) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}
	slog.Error("login failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// Logout はサーバー側セッションを破棄し、認証Cookieを削除する。
// セッションが無い場合も成功する。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(w, r)
	writeJSON(w, http.StatusOK, messageResponse{Message: "ログアウトしました。"})
}

// Profile は呼び出し元ユーザーの最新情報を返す。
// GET /profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	current, err := h.users.GetProfile(r.Context(), identity.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userEnvelope{
		Message: "認証済みユーザーのプロフィールです。",
		User:    toUserResponse(current),
	})
}

// Withdraw は呼び出し元ユーザーの退会処理を実行し、認証Cookieを削除する。
// DELETE /profile
func (h *AuthHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	if err := h.users.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.auth.Logout(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// JWTVerify はトークンから解決したユーザー情報をそのまま返す。
// GET /jwt-verify
func (h *AuthHandler) JWTVerify(w http.ResponseWriter, r *http.Request) {
	h.echoIdentity(w, r, "トークンによる認証に成功しました。")
}

// AdminProfile は管理者の情報を返す。権限の確認は認可ゲートが行う。
// GET /admin/profile
func (h *AuthHandler) AdminProfile(w http.ResponseWriter, r *http.Request) {
	h.echoIdentity(w, r, "管理者のプロフィールです。")
}

func (h *AuthHandler) echoIdentity(w http.ResponseWriter, r *http.Request, message string) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{
		Message: message,
		User:    toUserResponse(identity),
	})
}

// validate は入力検証を行い、失敗した場合は400を書き込んでfalseを返す。
func (h *AuthHandler) validate(w http.ResponseWriter, in any) bool {
	err := h.validator.Struct(in)
	if err == nil {
		return true
	}
	var fe *validation.FieldErrors
	if errors.As(err, &fe) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(fe.Detail()))
		return false
	}
	slog.Error("validation failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
	return false
}
