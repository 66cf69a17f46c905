// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/blogapp/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// identityContextKey はリクエストコンテキストに認証済みIdentityを格納するためのキー。
	identityContextKey = contextKey("identity")
	// requestLogContextKey はロギングミドルウェアが用意する記録先のキー。
	requestLogContextKey = contextKey("request_log")
)

// requestLog はロギングミドルウェアより内側で解決された情報を外側に伝える。
type requestLog struct {
	userID     string
	authMethod string
}

// noteAuthMethod はIdentityを解決した認証方式をアクセスログ用に記録する。
func noteAuthMethod(ctx context.Context, method string) {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		rl.authMethod = method
	}
}

// ContextWithIdentity はコンテキストに認証済みIdentityを注入する。
// ロギングミドルウェア配下であれば、アクセスログにもユーザーIDが記録される。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok && identity != nil {
		rl.userID = identity.ID
	}
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext はリクエストコンテキストから認証済みIdentityを取得する。
// 認可ゲートを通過したリクエストでのみ存在する。
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.ID, nil
}
