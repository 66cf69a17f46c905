package auth

import (
	"net/http"

	"github.com/hitoshi/blogapp/internal/model"
)

// Status は認証結果の種別。
type Status int

const (
	// StatusRejected は資格情報が無い、または無効であることを表す。ゼロ値。
	StatusRejected Status = iota
	// StatusAuthenticated は本人確認に成功したことを表す。
	StatusAuthenticated
	// StatusError はストアやハッシュ処理の失敗で判定できなかったことを表す。
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusError:
		return "error"
	default:
		return "rejected"
	}
}

// AuthResult はすべての認証経路が返す共通の結果。
// Status=Authenticated のときIdentityが、Rejected のときReasonが、Error のときErrが設定される。
type AuthResult struct {
	Status   Status
	Identity *model.Identity
	Reason   ErrorKind
	Err      error
}

// Authenticated は認証成功の結果を返す。
func Authenticated(identity *model.Identity) AuthResult {
	return AuthResult{Status: StatusAuthenticated, Identity: identity}
}

// Rejected は認証拒否の結果を返す。errは診断用で省略可。
func Rejected(reason ErrorKind, err error) AuthResult {
	return AuthResult{Status: StatusRejected, Reason: reason, Err: err}
}

// Failed は内部エラーの結果を返す。
func Failed(err error) AuthResult {
	return AuthResult{Status: StatusError, Reason: KindInternal, Err: err}
}

// OK は認証に成功したかどうかを返す。
func (r AuthResult) OK() bool {
	return r.Status == StatusAuthenticated && r.Identity != nil
}

// Authenticator はリクエストに提示された資格情報をAuthResultに変換する。
// ルートガードは具体的な実装ではなくこのインターフェースに依存する。
type Authenticator interface {
	// Name はログやメトリクスで使う識別名を返す。
	Name() string
	// Authenticate はリクエストから資格情報を取り出して検証する。
	Authenticate(r *http.Request) AuthResult
}
