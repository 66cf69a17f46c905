// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/blogapp/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate key")

// ErrInUse は他の行から参照されているため削除できないことを表す。
var ErrInUse = errors.New("referenced by other rows")

// IdentityRepository はユーザー（認証主体）の永続化インターフェース。
type IdentityRepository interface {
	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Identity, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateをラップして返す。
	Create(ctx context.Context, identity *model.Identity) error

	// DeleteByID はユーザーを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。1回の書き込みで完結し、部分的な状態は残さない。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// CategoryRepository はカテゴリの永続化インターフェース。
type CategoryRepository interface {
	// List は作成日時の降順でカテゴリ一覧を返す。
	List(ctx context.Context) ([]*model.Category, error)
	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)
	// FindBySlug はスラッグでカテゴリを取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Category, error)
	// Create はカテゴリを作成する。スラッグが重複する場合はErrDuplicateをラップして返す。
	Create(ctx context.Context, category *model.Category) error
	// Update はカテゴリ名とスラッグを更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, category *model.Category) (bool, error)
	// Delete はカテゴリを削除する。記事から参照されている場合はErrInUseをラップして返す。
	Delete(ctx context.Context, id string) (bool, error)
}

// PostRepository は記事の永続化インターフェース。
type PostRepository interface {
	// List は作成日時の降順で記事一覧をカテゴリ情報付きで返す。
	List(ctx context.Context) ([]model.PostWithCategory, error)
	// ListByCategory は指定カテゴリの記事一覧を返す。
	ListByCategory(ctx context.Context, categoryID string) ([]model.PostWithCategory, error)
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PostWithCategory, error)
	// FindBySlug はスラッグで記事を取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.PostWithCategory, error)
	// Create は記事を作成する。スラッグが重複する場合はErrDuplicateをラップして返す。
	Create(ctx context.Context, post *model.Post) error
	// Update は記事を上書き更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, post *model.Post) (bool, error)
	// Delete は記事を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
}
