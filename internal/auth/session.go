package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/blogapp/internal/model"
	"github.com/hitoshi/blogapp/internal/repository"
)

// DefaultStoreTimeout はストア参照のタイムアウト既定値。
const DefaultStoreTimeout = 3 * time.Second

// dummyPassword は未登録メールアドレスでも照合処理を行うためのダミー。
const dummyPassword = "blogapp-timing-equalizer"

// SessionConfig はSessionAuthenticatorの設定。
type SessionConfig struct {
	Secret       []byte        // セッションCookie署名用の鍵
	TTL          time.Duration // セッション有効期間（既定1時間）
	StoreTimeout time.Duration // ストア参照のタイムアウト（既定3秒）
	Now          func() time.Time
}

// SessionAuthenticator はメールアドレスとパスワードによる本人確認と
// サーバー側セッションの発行・解決を行う。
type SessionAuthenticator struct {
	identities   repository.IdentityRepository
	sessions     repository.SessionRepository
	hasher       PasswordHasher
	signer       cookieSigner
	ttl          time.Duration
	storeTimeout time.Duration
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewSessionAuthenticator はSessionAuthenticatorを生成する。
func NewSessionAuthenticator(
	identities repository.IdentityRepository,
	sessions repository.SessionRepository,
	hasher PasswordHasher,
	cfg SessionConfig,
) *SessionAuthenticator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionAuthenticator{
		identities:   identities,
		sessions:     sessions,
		hasher:       hasher,
		signer:       cookieSigner{key: cfg.Secret},
		ttl:          cfg.TTL,
		storeTimeout: cfg.StoreTimeout,
		now:          cfg.Now,
	}
}

// Name はAuthenticatorの識別名を返す。
func (a *SessionAuthenticator) Name() string {
	return "session"
}

// Verify はメールアドレスとパスワードを照合する。
// 未登録のメールアドレスはRejected(IdentityNotFound)、パスワード不一致はRejected(InvalidCredential)。
func (a *SessionAuthenticator) Verify(ctx context.Context, email, password string) AuthResult {
	email = strings.ToLower(strings.TrimSpace(email))

	lookupCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	identity, err := a.identities.FindByEmail(lookupCtx, email)
	cancel()
	if err != nil {
		return Failed(internalError("find identity by email", err))
	}

	if identity == nil {
		// 登録有無が応答時間から推測されないよう、ダミーハッシュと照合しておく
		a.compareDummy(ctx, password)
		return Rejected(KindIdentityNotFound, nil)
	}

	ok, err := a.hasher.Verify(ctx, password, identity.PasswordHash)
	if err != nil {
		return Failed(err)
	}
	if !ok {
		return Rejected(KindInvalidCredential, nil)
	}
	return Authenticated(identity)
}

func (a *SessionAuthenticator) compareDummy(ctx context.Context, password string) {
	a.dummyOnce.Do(func() {
		hashed, err := a.hasher.Hash(context.Background(), dummyPassword)
		if err != nil {
			slog.Warn("failed to prepare dummy password hash", slog.String("error", err.Error()))
			return
		}
		a.dummyHash = hashed
	})
	if a.dummyHash == "" {
		return
	}
	_, _ = a.hasher.Verify(ctx, password, a.dummyHash)
}

// Serialize はセッションに保存する最小限の情報（ユーザーID）を返す。
func (a *SessionAuthenticator) Serialize(identity *model.Identity) string {
	return identity.ID
}

// Deserialize はユーザーIDからIdentityを再取得する。
// ユーザーが存在しない場合は(nil, nil)を返し、セッションは未認証として扱われる。
func (a *SessionAuthenticator) Deserialize(ctx context.Context, id string) (*model.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()

	identity, err := a.identities.FindByID(ctx, id)
	if err != nil {
		return nil, internalError("find identity by id", err)
	}
	return identity, nil
}

// CreateSession はIdentityに紐づくセッションを作成し、署名済みCookie値とともに返す。
// クライアント切断で書き込みが中断されないよう、挿入はリクエストのキャンセルから切り離して行う。
func (a *SessionAuthenticator) CreateSession(ctx context.Context, identity *model.Identity) (*model.Session, string, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, "", internalError("generate session id", err)
	}

	now := a.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    a.Serialize(identity),
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.storeTimeout)
	defer cancel()

	if err := a.sessions.Create(writeCtx, session); err != nil {
		return nil, "", internalError("create session", err)
	}

	return session, a.signer.sign(sessionID), nil
}

// DestroySession はリクエストのセッションCookieが指すセッションを削除する。
// Cookieが無い、または署名が不正な場合は何もしない。
func (a *SessionAuthenticator) DestroySession(ctx context.Context, r *http.Request) error {
	sessionID, ok := a.sessionIDFromRequest(r)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()

	if err := a.sessions.DeleteByID(ctx, sessionID); err != nil {
		return internalError("delete session", err)
	}
	return nil
}

// Authenticate はセッションCookieからIdentityを解決する。
func (a *SessionAuthenticator) Authenticate(r *http.Request) AuthResult {
	sessionID, ok := a.sessionIDFromRequest(r)
	if !ok {
		return Rejected(KindUnauthenticated, nil)
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.storeTimeout)
	session, err := a.sessions.FindByID(ctx, sessionID)
	cancel()
	if err != nil {
		return Failed(internalError("find session", err))
	}
	if session == nil || session.Expired(a.now()) {
		return Rejected(KindUnauthenticated, nil)
	}

	identity, err := a.Deserialize(r.Context(), session.UserID)
	if err != nil {
		return Failed(err)
	}
	if identity == nil {
		return Rejected(KindUnauthenticated, nil)
	}
	return Authenticated(identity)
}

func (a *SessionAuthenticator) sessionIDFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return a.signer.unsign(cookie.Value)
}

// generateSessionID は暗号的に安全なセッションID（256bit）を生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// cookieSigner はセッションIDにHMAC-SHA256署名を付与・検証する。
// Cookie値の形式は "<sessionID>.<base64url(mac)>"。
type cookieSigner struct {
	key []byte
}

func (s cookieSigner) mac(value string) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(value))
	return m.Sum(nil)
}

func (s cookieSigner) sign(value string) string {
	return value + "." + base64.RawURLEncoding.EncodeToString(s.mac(value))
}

func (s cookieSigner) unsign(signed string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 {
		return "", false
	}
	value, sig := signed[:i], signed[i+1:]

	got, err := base64.RawURLEncoding.Strict().DecodeString(sig)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(got, s.mac(value)) {
		return "", false
	}
	return value, true
}

// compile-time interface check
var _ Authenticator = (*SessionAuthenticator)(nil)
