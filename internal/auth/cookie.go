package auth

import (
	"net/http"
	"time"
)

const (
	// SessionCookieName はセッションIDを運ぶCookie名。
	SessionCookieName = "session_id"
	// TokenCookieName はアクセストークンを運ぶCookie名。
	TokenCookieName = "access_token"
	// DefaultTTL はセッションとトークンの有効期間。
	DefaultTTL = time.Hour
)

// legacyCookieNames は過去に発行していた認証Cookie名。ログアウト時にあわせて削除する。
var legacyCookieNames = []string{"jwt", "connect.sid"}

// CookiePolicy は認証Cookieの属性を環境に応じて決定する。
// 本番環境ではHTTPS配下のクロスサイトSPAからの送信を許可するためSameSite=None+Secureとする。
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
	TTL      time.Duration
}

// NewCookiePolicy は環境に応じたCookiePolicyを生成する。
// domainは本番環境でのみ使用する。
func NewCookiePolicy(production bool, domain string, ttl time.Duration) CookiePolicy {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	p := CookiePolicy{
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
		TTL:      ttl,
	}
	if production {
		p.SameSite = http.SameSiteNoneMode
		p.Domain = domain
	}
	return p
}

// SetLoginCookies はログイン成功時にセッションCookieとトークンCookieを設定する。
// 値が空のCookieは設定しない。
func (p CookiePolicy) SetLoginCookies(w http.ResponseWriter, sessionValue, token string, expiresAt time.Time) {
	if sessionValue != "" {
		http.SetCookie(w, p.cookie(SessionCookieName, sessionValue, int(p.TTL.Seconds()), expiresAt))
	}
	if token != "" {
		http.SetCookie(w, p.cookie(TokenCookieName, token, int(p.TTL.Seconds()), expiresAt))
	}
}

// ClearAuthCookies は認識しているすべての認証Cookieを削除する。
// ブラウザに確実に削除させるため、設定時と同じ属性でMaxAge=-1を送る。
func (p CookiePolicy) ClearAuthCookies(w http.ResponseWriter) {
	names := append([]string{SessionCookieName, TokenCookieName}, legacyCookieNames...)
	for _, name := range names {
		http.SetCookie(w, p.cookie(name, "", -1, time.Unix(0, 0)))
	}
}

func (p CookiePolicy) cookie(name, value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   maxAge,
		Expires:  expires.UTC(),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}
