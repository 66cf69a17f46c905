package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/blogapp/internal/auth"
	"github.com/hitoshi/blogapp/internal/model"
)

// 認可判定のメトリクスラベル。
const (
	decisionAllowed         = "allowed"
	decisionUnauthenticated = "unauthenticated"
	decisionForbidden       = "forbidden"
	decisionError           = "error"
)

// DecisionRecorder は認可判定の結果を記録する。metrics.Collector が実装する。
type DecisionRecorder interface {
	RecordAuthDecision(guard, outcome string)
}

// Gate は認証方式を組み合わせてIdentityを解決し、ロールによる認可を行う。
// 認証方式は登録順（通常はセッション、トークン）に試行し、最初に成功したものを採用する。
type Gate struct {
	authenticators []auth.Authenticator
	recorder       DecisionRecorder
}

// NewGate はGateを生成する。recorderはnilでもよい。
func NewGate(authenticators []auth.Authenticator, recorder DecisionRecorder) *Gate {
	return &Gate{authenticators: authenticators, recorder: recorder}
}

// resolution はIdentity解決の結果。
type resolution struct {
	identity *model.Identity
	failed   bool // いずれかの認証方式が内部エラーで判定できなかった
}

func (g *Gate) resolve(r *http.Request) resolution {
	if identity, ok := IdentityFromContext(r.Context()); ok {
		return resolution{identity: identity}
	}

	var res resolution
	for _, a := range g.authenticators {
		result := a.Authenticate(r)
		switch result.Status {
		case auth.StatusAuthenticated:
			if result.Identity != nil {
				noteAuthMethod(r.Context(), a.Name())
				return resolution{identity: result.Identity}
			}
		case auth.StatusError:
			slog.Error("authentication failed with internal error",
				slog.String("authenticator", a.Name()),
				slog.String("error", errorString(result.Err)),
			)
			res.failed = true
		}
	}
	return res
}

// RequireAuthenticated は認証済みリクエストのみを通すミドルウェアを返す。
// 資格情報が無い・無効な場合は401、判定中の内部エラーは500を返す。
func (g *Gate) RequireAuthenticated() func(next http.Handler) http.Handler {
	return g.require("authenticated", nil)
}

// RequireAdmin は管理者のみを通すミドルウェアを返す。
// 認証済みだが管理者でない場合は401ではなく403を返す。
func (g *Gate) RequireAdmin() func(next http.Handler) http.Handler {
	return g.require("admin", func(identity *model.Identity) bool {
		return identity.IsAdmin
	})
}

// RequirePredicate は任意の条件を満たすIdentityのみを通すミドルウェアを返す。
// 未認証は401、条件不成立は403を返す。nameはログとメトリクスのラベルに使う。
func (g *Gate) RequirePredicate(name string, allow func(*model.Identity) bool) func(next http.Handler) http.Handler {
	return g.require(name, allow)
}

func (g *Gate) require(guard string, allow func(*model.Identity) bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := g.resolve(r)

			if res.identity == nil {
				if res.failed {
					g.record(guard, decisionError)
					WriteInternalServerError(w)
					return
				}
				g.record(guard, decisionUnauthenticated)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			if allow != nil && !allow(res.identity) {
				g.record(guard, decisionForbidden)
				slog.Warn("authorization denied",
					slog.String("guard", guard),
					slog.String("user_id", res.identity.ID),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			g.record(guard, decisionAllowed)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), res.identity)))
		})
	}
}

// Optional は資格情報があればIdentityを解決してコンテキストに注入するが、拒否はしないミドルウェアを返す。
func (g *Gate) Optional() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := g.resolve(r)
			if res.identity != nil {
				r = r.WithContext(ContextWithIdentity(r.Context(), res.identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) record(guard, outcome string) {
	if g.recorder != nil {
		g.recorder.RecordAuthDecision(guard, outcome)
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
