// Package auth は本人確認（セッション・トークン）と認証Cookieの管理を提供する。
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/blogapp/internal/model"
)

// ログイン結果のメトリクスラベル。
const (
	LoginOutcomeSuccess  = "success"
	LoginOutcomeRejected = "rejected"
	LoginOutcomeError    = "error"
)

// LoginResult はログイン成功時に発行された資格情報。
type LoginResult struct {
	Identity *model.Identity
	// Session とSessionCookie はトークンのみのログインでは空。
	Session       *model.Session
	SessionCookie string
	Token         string
	Claims        *Claims
}

// Service はログイン・ログアウトと、ルートガードが使うAuthenticatorの組を提供する。
// プロセス起動時に一度だけ生成し、ハンドラーとミドルウェアに参照で渡す。
type Service struct {
	sessions *SessionAuthenticator
	tokens   *TokenAuthenticator
	cookies  CookiePolicy
	recorder Recorder
}

// NewService はServiceを生成する。
func NewService(sessions *SessionAuthenticator, tokens *TokenAuthenticator, cookies CookiePolicy, recorder Recorder) *Service {
	return &Service{
		sessions: sessions,
		tokens:   tokens,
		cookies:  cookies,
		recorder: recorderOrNop(recorder),
	}
}

// Authenticators はルートガードが試行する順（セッション、トークン）でAuthenticatorを返す。
func (s *Service) Authenticators() []Authenticator {
	return []Authenticator{s.sessions, s.tokens}
}

// Tokens はTokenAuthenticatorを返す。
func (s *Service) Tokens() *TokenAuthenticator {
	return s.tokens
}

// Login は資格情報を検証し、セッションとトークンの両方を発行する。
// 未登録メールとパスワード不一致はどちらもKindが区別された*Errorで返るが、
// 応答境界では同じ「資格情報が無効」として扱うこと。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	identity, err := s.verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	// トークンを先に署名する。署名に失敗した場合はセッション行を作らない。
	token, claims, err := s.tokens.Issue(identity)
	if err != nil {
		s.recorder.RecordLogin(LoginOutcomeError)
		return nil, err
	}

	session, cookieValue, err := s.sessions.CreateSession(ctx, identity)
	if err != nil {
		s.recorder.RecordLogin(LoginOutcomeError)
		return nil, err
	}

	s.recorder.RecordLogin(LoginOutcomeSuccess)
	slog.Info("user logged in", slog.String("user_id", identity.ID))

	return &LoginResult{
		Identity:      identity,
		Session:       session,
		SessionCookie: cookieValue,
		Token:         token,
		Claims:        claims,
	}, nil
}

// LoginToken は資格情報を検証し、トークンのみを発行する（サーバー側セッションは作らない）。
func (s *Service) LoginToken(ctx context.Context, email, password string) (*LoginResult, error) {
	identity, err := s.verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	token, claims, err := s.tokens.Issue(identity)
	if err != nil {
		s.recorder.RecordLogin(LoginOutcomeError)
		return nil, err
	}

	s.recorder.RecordLogin(LoginOutcomeSuccess)
	slog.Info("user logged in with token", slog.String("user_id", identity.ID))

	return &LoginResult{Identity: identity, Token: token, Claims: claims}, nil
}

func (s *Service) verify(ctx context.Context, email, password string) (*model.Identity, error) {
	result := s.sessions.Verify(ctx, email, password)
	switch result.Status {
	case StatusAuthenticated:
		return result.Identity, nil
	case StatusError:
		s.recorder.RecordLogin(LoginOutcomeError)
		return nil, result.Err
	default:
		s.recorder.RecordLogin(LoginOutcomeRejected)
		slog.Info("login rejected", slog.String("reason", string(result.Reason)))
		return nil, &Error{Kind: result.Reason}
	}
}

// SetLoginCookies はログイン結果のセッションCookieとトークンCookieを設定する。
func (s *Service) SetLoginCookies(w http.ResponseWriter, res *LoginResult) {
	var expiresAt time.Time
	if res.Claims != nil {
		expiresAt = res.Claims.ExpiresAt
	}
	if res.Session != nil {
		expiresAt = res.Session.ExpiresAt
	}
	s.cookies.SetLoginCookies(w, res.SessionCookie, res.Token, expiresAt)
}

// Logout はサーバー側セッションを破棄し、認証Cookieを削除する。
// セッション破棄の失敗はログに残すのみで、Cookieは常に削除する。セッションが無くても成功する。
// 発行済みトークンは失効させない。
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.DestroySession(r.Context(), r); err != nil {
		slog.Error("failed to destroy session",
			slog.String("error", err.Error()),
		)
	}
	s.cookies.ClearAuthCookies(w)
}
