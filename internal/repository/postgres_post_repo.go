package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/blogapp/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// postSelect は記事とカテゴリを結合して取得するSELECT句。
const postSelect = `SELECT p.id, p.title, p.slug, p.description, p.content, p.category_id,
       p.created_at, p.updated_at, c.name, c.slug
  FROM posts p
  JOIN categories c ON c.id = p.category_id`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(s rowScanner) (*model.PostWithCategory, error) {
	p := &model.PostWithCategory{}
	err := s.Scan(
		&p.ID, &p.Title, &p.Slug, &p.Description, &p.Content, &p.CategoryID,
		&p.CreatedAt, &p.UpdatedAt, &p.CategoryName, &p.CategorySlug,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List は作成日時の降順で記事一覧をカテゴリ情報付きで返す。
func (r *PostgresPostRepo) List(ctx context.Context) ([]model.PostWithCategory, error) {
	return r.list(ctx, postSelect+` ORDER BY p.created_at DESC, p.id`)
}

// ListByCategory は指定カテゴリの記事一覧を作成日時の降順で返す。
func (r *PostgresPostRepo) ListByCategory(ctx context.Context, categoryID string) ([]model.PostWithCategory, error) {
	return r.list(ctx, postSelect+` WHERE p.category_id = $1 ORDER BY p.created_at DESC, p.id`, categoryID)
}

func (r *PostgresPostRepo) list(ctx context.Context, query string, args ...any) ([]model.PostWithCategory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	posts := make([]model.PostWithCategory, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.PostWithCategory, error) {
	p, err := scanPost(r.db.QueryRowContext(ctx, postSelect+` WHERE p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindBySlug はスラッグで記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindBySlug(ctx context.Context, slug string) (*model.PostWithCategory, error) {
	p, err := scanPost(r.db.QueryRowContext(ctx, postSelect+` WHERE p.slug = $1`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スラッグによる記事の検索に失敗しました: %w", err)
	}
	return p, nil
}

// Create は記事を作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, title, slug, description, content, category_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		post.ID, post.Title, post.Slug, post.Description, post.Content,
		post.CategoryID, post.CreatedAt, post.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("記事の作成に失敗しました: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は記事を上書き更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts
		    SET title = $2, slug = $3, description = $4, content = $5,
		        category_id = $6, updated_at = $7
		  WHERE id = $1`,
		post.ID, post.Title, post.Slug, post.Description, post.Content,
		post.CategoryID, post.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return false, fmt.Errorf("記事の更新に失敗しました: %w", ErrDuplicate)
	}
	if err != nil {
		return false, fmt.Errorf("記事の更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// Delete は記事を削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("記事の削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
