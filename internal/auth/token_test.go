package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/blogapp/internal/model"
)

var testTokenSecret = []byte("jwt-secret-for-tests-0123456789abcdef")

const (
	testIssuer   = "blogapp"
	testAudience = "blogapp-clients"
)

// fakeClock はテストから時刻を進められる時計。
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTokenAuthenticator(clock *fakeClock) *TokenAuthenticator {
	return NewTokenAuthenticator(TokenConfig{
		Secret:   testTokenSecret,
		Issuer:   testIssuer,
		Audience: testAudience,
		Now:      clock.Now,
	}, nil)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestTokenAuthenticator_IssueVerify_RoundTrip(t *testing.T) {
	clock := newClock()
	a := newTestTokenAuthenticator(clock)
	identity := &model.Identity{ID: "user-1", Email: "a@x.com", IsAdmin: true, PasswordHash: "secret-hash"}

	token, issued, err := a.Issue(identity)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != identity.ID {
		t.Errorf("Subject = %q, want %q", claims.Subject, identity.ID)
	}
	if claims.Email != identity.Email || !claims.IsAdmin {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != testIssuer || len(claims.Audience) != 1 || claims.Audience[0] != testAudience {
		t.Errorf("issuer/audience = %q/%v", claims.Issuer, claims.Audience)
	}
	if !claims.IssuedAt.Equal(clock.t) || !claims.ExpiresAt.Equal(clock.t.Add(time.Hour)) {
		t.Errorf("iat/exp = %v/%v", claims.IssuedAt, claims.ExpiresAt)
	}
	if !issued.ExpiresAt.Equal(claims.ExpiresAt) {
		t.Errorf("issued exp %v != verified exp %v", issued.ExpiresAt, claims.ExpiresAt)
	}
}

func TestTokenAuthenticator_Issue_DoesNotEmbedPasswordHash(t *testing.T) {
	a := newTestTokenAuthenticator(newClock())

	token, _, err := a.Issue(&model.Identity{ID: "user-1", Email: "a@x.com", PasswordHash: "$2a$12$secret"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var raw jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &raw); err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}
	for key := range raw {
		switch key {
		case "sub", "email", "isAdmin", "iss", "aud", "iat", "exp":
		default:
			t.Errorf("unexpected claim %q", key)
		}
	}
}

// 署名済みトークンのどの1ビットを反転させても検証に失敗する。
func TestTokenAuthenticator_Verify_SingleBitFlipInvalidates(t *testing.T) {
	a := newTestTokenAuthenticator(newClock())

	token, _, err := a.Issue(&model.Identity{ID: "user-1", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	for i := 0; i < len(token); i++ {
		for bit := 0; bit < 8; bit++ {
			b := []byte(token)
			b[i] ^= 1 << bit
			if _, err := a.Verify(string(b)); err == nil {
				t.Fatalf("token with bit %d of byte %d flipped still verified", bit, i)
			}
		}
	}
}

func TestTokenAuthenticator_Verify_ExpiryBoundary(t *testing.T) {
	clock := newClock()
	a := newTestTokenAuthenticator(clock)

	token, _, err := a.Issue(&model.Identity{ID: "user-1", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(3599 * time.Second)
	if _, err := a.Verify(token); err != nil {
		t.Fatalf("Verify() at T+3599s error = %v", err)
	}

	clock.Advance(2 * time.Second)
	_, err = a.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify() at T+3601s error = %v, want TokenExpired", err)
	}
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Reason != ReasonExpired {
		t.Errorf("reason = %v, want %q", err, ReasonExpired)
	}
}

func TestTokenAuthenticator_Verify_Reasons(t *testing.T) {
	clock := newClock()
	a := newTestTokenAuthenticator(clock)
	identity := &model.Identity{ID: "user-1", Email: "a@x.com"}

	otherSecret := NewTokenAuthenticator(TokenConfig{
		Secret: []byte("a-different-secret-0123456789abcdef"), Issuer: testIssuer, Audience: testAudience, Now: clock.Now,
	}, nil)
	otherIssuer := NewTokenAuthenticator(TokenConfig{
		Secret: testTokenSecret, Issuer: "someone-else", Audience: testAudience, Now: clock.Now,
	}, nil)
	otherAudience := NewTokenAuthenticator(TokenConfig{
		Secret: testTokenSecret, Issuer: testIssuer, Audience: "another-app", Now: clock.Now,
	}, nil)

	issue := func(src *TokenAuthenticator) string {
		t.Helper()
		tok, _, err := src.Issue(identity)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		return tok
	}

	// HS256以外のアルゴリズムで同じ鍵を使って署名したトークン
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "user-1", "iss": testIssuer, "aud": testAudience,
		"iat": clock.t.Unix(), "exp": clock.t.Add(time.Hour).Unix(),
	}).SignedString(testTokenSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	tests := []struct {
		name       string
		token      string
		wantReason TokenReason
		wantKind   *Error
	}{
		{"異なる鍵", issue(otherSecret), ReasonBadSignature, ErrTokenInvalidSignature},
		{"アルゴリズム差し替え", hs512, ReasonBadSignature, ErrTokenInvalidSignature},
		{"発行者不一致", issue(otherIssuer), ReasonIssuerMismatch, ErrUnauthenticated},
		{"対象者不一致", issue(otherAudience), ReasonAudienceMismatch, ErrUnauthenticated},
		{"形式不正", "not-a-token", ReasonMalformed, ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Verify(tt.token)
			var authErr *Error
			if !errors.As(err, &authErr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if authErr.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", authErr.Reason, tt.wantReason)
			}
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("Kind = %q, want %q", authErr.Kind, tt.wantKind.Kind)
			}
		})
	}
}

// 過去の数値表現の管理者フラグはboolに正規化し、それ以外の値は拒否する。
func TestTokenAuthenticator_Verify_NumericAdminFlag(t *testing.T) {
	clock := newClock()
	a := newTestTokenAuthenticator(clock)

	sign := func(isAdmin any) string {
		t.Helper()
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "user-1", "email": "a@x.com", "isAdmin": isAdmin,
			"iss": testIssuer, "aud": testAudience,
			"iat": clock.t.Unix(), "exp": clock.t.Add(time.Hour).Unix(),
		}).SignedString(testTokenSecret)
		if err != nil {
			t.Fatalf("SignedString() error = %v", err)
		}
		return tok
	}

	tests := []struct {
		name    string
		value   any
		want    bool
		wantErr bool
	}{
		{"true", true, true, false},
		{"false", false, false, false},
		{"数値1", 1, true, false},
		{"数値0", 0, false, false},
		{"文字列", "yes", false, true},
		{"数値2", 2, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := a.Verify(sign(tt.value))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if claims.IsAdmin != tt.want {
				t.Errorf("IsAdmin = %v, want %v", claims.IsAdmin, tt.want)
			}
		})
	}
}

func TestTokenAuthenticator_Extract(t *testing.T) {
	a := newTestTokenAuthenticator(newClock())

	tests := []struct {
		name   string
		header string
		cookie string
		want   string
		wantOK bool
	}{
		{"Bearerヘッダー", "Bearer abc", "", "abc", true},
		{"スキームは大文字小文字を区別しない", "bearer abc", "", "abc", true},
		{"ヘッダーがCookieより優先", "Bearer from-header", "from-cookie", "from-header", true},
		{"Cookieのみ", "", "from-cookie", "from-cookie", true},
		{"Bearer以外のスキームはCookieにフォールバック", "Basic dXNlcjpwYXNz", "from-cookie", "from-cookie", true},
		{"空のBearer", "Bearer ", "", "", false},
		{"どちらも無い", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: tt.cookie})
			}

			got, ok := a.Extract(req)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Extract() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTokenAuthenticator_Authenticate(t *testing.T) {
	clock := newClock()
	rec := &mockRecorder{}
	a := NewTokenAuthenticator(TokenConfig{
		Secret: testTokenSecret, Issuer: testIssuer, Audience: testAudience,
		Now: clock.Now, Recorder: rec,
	}, nil)

	t.Run("トークン無しはTokenMissing", func(t *testing.T) {
		result := a.Authenticate(httptest.NewRequest(http.MethodGet, "/profile", nil))
		if result.Status != StatusRejected || result.Reason != KindTokenMissing {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("有効なトークンはクレームからIdentityを構築", func(t *testing.T) {
		token, _, err := a.Issue(&model.Identity{ID: "admin-1", Email: "admin@x.com", IsAdmin: true})
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		result := a.Authenticate(req)
		if !result.OK() {
			t.Fatalf("result = %+v", result)
		}
		if result.Identity.ID != "admin-1" || !result.Identity.IsAdmin {
			t.Errorf("Identity = %+v", result.Identity)
		}
	})

	t.Run("不正なトークンは拒否され理由が記録される", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.Header.Set("Authorization", "Bearer garbage")

		result := a.Authenticate(req)
		if result.Status != StatusRejected {
			t.Errorf("Status = %v, want rejected", result.Status)
		}
		if len(rec.rejected) == 0 || rec.rejected[len(rec.rejected)-1] != string(ReasonMalformed) {
			t.Errorf("recorded reasons = %v", rec.rejected)
		}
	})
}

func TestTokenAuthenticator_Authenticate_ResolveFromStore(t *testing.T) {
	clock := newClock()
	users := testUsers()
	a := NewTokenAuthenticator(TokenConfig{
		Secret: testTokenSecret, Issuer: testIssuer, Audience: testAudience,
		Now: clock.Now, ResolveFromStore: true,
	}, newUserRepo(users))

	request := func(identity *model.Identity) *http.Request {
		token, _, err := a.Issue(identity)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	result := a.Authenticate(request(users["a@x.com"]))
	if !result.OK() || result.Identity.Name != "Alice" {
		t.Errorf("result = %+v, want identity loaded from store", result)
	}

	result = a.Authenticate(request(&model.Identity{ID: "deleted-user", Email: "gone@x.com"}))
	if result.Status != StatusRejected {
		t.Errorf("Status = %v, want rejected for deleted user", result.Status)
	}

	failing := NewTokenAuthenticator(TokenConfig{
		Secret: testTokenSecret, Issuer: testIssuer, Audience: testAudience,
		Now: clock.Now, ResolveFromStore: true,
	}, &mockIdentityRepo{
		findByIDFn: func(context.Context, string) (*model.Identity, error) {
			return nil, errors.New("db down")
		},
	})
	token, _, _ := failing.Issue(users["a@x.com"])
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if result := failing.Authenticate(req); result.Status != StatusError {
		t.Errorf("Status = %v, want error", result.Status)
	}
}
