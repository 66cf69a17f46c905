package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/blogapp/internal/model"
	"github.com/hitoshi/blogapp/internal/repository"
)

// signingMethod は発行・検証ともにHS256に固定する。
var signingMethod = jwt.SigningMethodHS256

// TokenConfig はTokenAuthenticatorの設定。
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration // 既定1時間
	// ResolveFromStore がtrueの場合、検証後にユーザーを再取得し、削除済みユーザーを拒否する。
	ResolveFromStore bool
	StoreTimeout     time.Duration
	Now              func() time.Time
	Recorder         Recorder
}

// Claims はトークンに埋め込まれた本人情報。署名後は不変で、永続化しない。
type Claims struct {
	Subject   string
	Email     string
	IsAdmin   bool
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// tokenClaims はJWTのペイロード表現。
type tokenClaims struct {
	Email   string    `json:"email"`
	IsAdmin adminFlag `json:"isAdmin"`
	jwt.RegisteredClaims
}

// adminFlag は管理者フラグ。過去のトークンが持つ数値表現0|1も受け付け、boolに正規化する。
type adminFlag bool

func (f adminFlag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

func (f *adminFlag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("invalid isAdmin value: %s", data)
	}
	return nil
}

// TokenAuthenticator は署名付きトークンの発行・抽出・検証を行う。
// トークンは失効リストを持たないため、ログアウト後も有効期限まで検証に成功する。
type TokenAuthenticator struct {
	secret           []byte
	issuer           string
	audience         string
	ttl              time.Duration
	resolveFromStore bool
	storeTimeout     time.Duration
	now              func() time.Time
	identities       repository.IdentityRepository
	recorder         Recorder
	parser           *jwt.Parser
}

// NewTokenAuthenticator はTokenAuthenticatorを生成する。
// identitiesはResolveFromStoreが有効な場合のみ使用する。
func NewTokenAuthenticator(cfg TokenConfig, identities repository.IdentityRepository) *TokenAuthenticator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	a := &TokenAuthenticator{
		secret:           cfg.Secret,
		issuer:           cfg.Issuer,
		audience:         cfg.Audience,
		ttl:              cfg.TTL,
		resolveFromStore: cfg.ResolveFromStore,
		storeTimeout:     cfg.StoreTimeout,
		now:              cfg.Now,
		identities:       identities,
		recorder:         recorderOrNop(cfg.Recorder),
	}
	a.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithStrictDecoding(),
	)
	return a
}

// Name はAuthenticatorの識別名を返す。
func (a *TokenAuthenticator) Name() string {
	return "token"
}

// Issue はIdentityに対するトークンを発行する。
func (a *TokenAuthenticator) Issue(identity *model.Identity) (string, *Claims, error) {
	now := a.now()
	claims := tokenClaims{
		Email:   identity.Email,
		IsAdmin: adminFlag(identity.IsAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(a.secret)
	if err != nil {
		return "", nil, internalError("sign token", err)
	}
	return signed, claims.toClaims(), nil
}

// Extract はリクエストからトークンを取り出す。
// Authorization: Bearer ヘッダー、トークンCookieの順に調べ、最初に見つかったものを返す。
func (a *TokenAuthenticator) Extract(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token, true
			}
		}
	}

	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

// Verify は署名・発行者・対象者・有効期限を検証し、Claimsを返す。
// 失敗時は理由コード付きの*Errorを返す。
func (a *TokenAuthenticator) Verify(token string) (*Claims, error) {
	var tc tokenClaims
	_, err := a.parser.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, tokenError(reasonFor(err), err)
	}
	if tc.Subject == "" {
		return nil, tokenError(ReasonMalformed, errors.New("token has no subject"))
	}
	return tc.toClaims(), nil
}

// Authenticate はリクエストに提示されたトークンからIdentityを解決する。
func (a *TokenAuthenticator) Authenticate(r *http.Request) AuthResult {
	token, ok := a.Extract(r)
	if !ok {
		return Rejected(KindTokenMissing, nil)
	}

	claims, err := a.Verify(token)
	if err != nil {
		var authErr *Error
		if errors.As(err, &authErr) {
			a.recorder.RecordTokenRejected(string(authErr.Reason))
			return Rejected(authErr.Kind, err)
		}
		return Failed(err)
	}

	if !a.resolveFromStore {
		return Authenticated(&model.Identity{
			ID:      claims.Subject,
			Email:   claims.Email,
			IsAdmin: claims.IsAdmin,
		})
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.storeTimeout)
	defer cancel()

	identity, err := a.identities.FindByID(ctx, claims.Subject)
	if err != nil {
		return Failed(internalError("find identity by id", err))
	}
	if identity == nil {
		return Rejected(KindUnauthenticated, nil)
	}
	return Authenticated(identity)
}

// reasonFor はjwtライブラリのエラーを理由コードに変換する。
func reasonFor(err error) TokenReason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ReasonIssuerMismatch
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ReasonAudienceMismatch
	default:
		return ReasonMalformed
	}
}

func (tc *tokenClaims) toClaims() *Claims {
	c := &Claims{
		Subject:  tc.Subject,
		Email:    tc.Email,
		IsAdmin:  bool(tc.IsAdmin),
		Issuer:   tc.Issuer,
		Audience: []string(tc.Audience),
	}
	if tc.IssuedAt != nil {
		c.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	return c
}

// compile-time interface check
var _ Authenticator = (*TokenAuthenticator)(nil)
