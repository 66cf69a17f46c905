// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は登録済みユーザー（認証主体）を表す。
// PasswordHashはどのレスポンス・セッション・トークンにも含めない。
type Identity struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string `json:"-"`
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はサーバー側で保持するログインセッションを表す。
// IDは推測不可能な乱数（256bit）で、作成後に更新されることはない。
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired は指定時刻においてセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
