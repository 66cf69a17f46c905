// Package content は記事とカテゴリのドメインロジックを提供する。
// 書き込み操作は管理者ルートからのみ呼ばれる前提で、権限の確認は認可ゲートが行う。
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/hitoshi/blogapp/internal/model"
	"github.com/hitoshi/blogapp/internal/repository"
	"github.com/hitoshi/blogapp/internal/security"
	"github.com/hitoshi/blogapp/internal/validation"
)

// PostInput は記事の作成・更新の入力。Slugを省略した場合はTitleから生成する。
type PostInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Slug        string `json:"slug" validate:"required,slug"`
	Description string `json:"description" validate:"max=500"`
	Content     string `json:"content" validate:"required"`
	CategoryID  string `json:"categoryId" validate:"required,uuid"`
}

// CategoryInput はカテゴリ作成の入力。Slugを省略した場合はNameから生成する。
type CategoryInput struct {
	Name string `json:"name" validate:"required,max=100"`
	Slug string `json:"slug" validate:"required,slug"`
}

// Service は記事とカテゴリのサービス層。
type Service struct {
	posts      repository.PostRepository
	categories repository.CategoryRepository
	sanitizer  security.Sanitizer
	validator  *validation.Validator
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	posts repository.PostRepository,
	categories repository.CategoryRepository,
	sanitizer security.Sanitizer,
	validator *validation.Validator,
) *Service {
	return &Service{
		posts:      posts,
		categories: categories,
		sanitizer:  sanitizer,
		validator:  validator,
		now:        time.Now,
	}
}

// ListPosts は記事一覧を新しい順に返す。
func (s *Service) ListPosts(ctx context.Context) ([]model.PostWithCategory, error) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// GetPostBySlug はスラッグで記事を取得する。
func (s *Service) GetPostBySlug(ctx context.Context, slug string) (*model.PostWithCategory, error) {
	post, err := s.posts.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(slug)
	}
	return post, nil
}

// ListCategories はカテゴリ一覧を返す。
func (s *Service) ListCategories(ctx context.Context) ([]*model.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	return categories, nil
}

// GetCategoryBySlug はスラッグでカテゴリを取得する。
func (s *Service) GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	category, err := s.categories.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	if category == nil {
		return nil, model.NewCategoryNotFoundError(slug)
	}
	return category, nil
}

// GetCategoryByID はIDでカテゴリを取得する。UUID形式でないIDは見つからない扱いにする。
func (s *Service) GetCategoryByID(ctx context.Context, id string) (*model.Category, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewCategoryNotFoundError(id)
	}
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	if category == nil {
		return nil, model.NewCategoryNotFoundError(id)
	}
	return category, nil
}

// ListPostsByCategory はカテゴリのスラッグからそのカテゴリの記事一覧を返す。
func (s *Service) ListPostsByCategory(ctx context.Context, categorySlug string) (*model.Category, []model.PostWithCategory, error) {
	category, err := s.GetCategoryBySlug(ctx, categorySlug)
	if err != nil {
		return nil, nil, err
	}
	posts, err := s.posts.ListByCategory(ctx, category.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("カテゴリ別記事一覧の取得に失敗しました: %w", err)
	}
	return category, posts, nil
}

// CreateCategory はカテゴリを作成する。
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*model.Category, error) {
	in.Name = s.sanitizer.StripTags(in.Name)
	in.Slug = slugOrDerive(in.Slug, in.Name)

	if err := s.validate(in); err != nil {
		return nil, err
	}

	category := &model.Category{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Slug:      in.Slug,
		CreatedAt: s.now(),
	}
	if err := s.categories.Create(ctx, category); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewSlugTakenError(in.Slug)
		}
		return nil, fmt.Errorf("カテゴリの作成に失敗しました: %w", err)
	}

	slog.Info("カテゴリを作成しました",
		slog.String("category_id", category.ID),
		slog.String("slug", category.Slug),
	)
	return category, nil
}

// UpdateCategory はカテゴリ名とスラッグを更新する。作成日時は保持する。
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*model.Category, error) {
	existing, err := s.GetCategoryByID(ctx, id)
	if err != nil {
		return nil, err
	}

	in.Name = s.sanitizer.StripTags(in.Name)
	in.Slug = slugOrDerive(in.Slug, in.Name)

	if err := s.validate(in); err != nil {
		return nil, err
	}

	category := &model.Category{
		ID:        existing.ID,
		Name:      in.Name,
		Slug:      in.Slug,
		CreatedAt: existing.CreatedAt,
	}
	updated, err := s.categories.Update(ctx, category)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewSlugTakenError(in.Slug)
		}
		return nil, fmt.Errorf("カテゴリの更新に失敗しました: %w", err)
	}
	if !updated {
		return nil, model.NewCategoryNotFoundError(id)
	}

	slog.Info("カテゴリを更新しました",
		slog.String("category_id", category.ID),
		slog.String("slug", category.Slug),
	)
	return category, nil
}

// DeleteCategory はカテゴリを削除する。記事が残っているカテゴリは削除できない。
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewCategoryNotFoundError(id)
	}
	deleted, err := s.categories.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrInUse) {
			return model.NewCategoryInUseError(id)
		}
		return fmt.Errorf("カテゴリの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewCategoryNotFoundError(id)
	}

	slog.Info("カテゴリを削除しました", slog.String("category_id", id))
	return nil
}

// CreatePost は記事を作成する。本文はサニタイズしてから保存する。
func (s *Service) CreatePost(ctx context.Context, in PostInput) (*model.PostWithCategory, error) {
	category, err := s.preparePost(ctx, &in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	post := &model.Post{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Slug:        in.Slug,
		Description: in.Description,
		Content:     in.Content,
		CategoryID:  category.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewSlugTakenError(in.Slug)
		}
		return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
	}

	slog.Info("記事を作成しました",
		slog.String("post_id", post.ID),
		slog.String("slug", post.Slug),
	)
	return withCategory(post, category), nil
}

// UpdatePost は記事を上書き更新する。作成日時は保持する。
func (s *Service) UpdatePost(ctx context.Context, id string, in PostInput) (*model.PostWithCategory, error) {
	existing, err := s.findPost(ctx, id)
	if err != nil {
		return nil, err
	}

	category, err := s.preparePost(ctx, &in)
	if err != nil {
		return nil, err
	}

	post := &model.Post{
		ID:          existing.ID,
		Title:       in.Title,
		Slug:        in.Slug,
		Description: in.Description,
		Content:     in.Content,
		CategoryID:  category.ID,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   s.now(),
	}
	updated, err := s.posts.Update(ctx, post)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewSlugTakenError(in.Slug)
		}
		return nil, fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	if !updated {
		// 取得から更新までの間に削除された
		return nil, model.NewPostNotFoundError(id)
	}

	slog.Info("記事を更新しました", slog.String("post_id", post.ID))
	return withCategory(post, category), nil
}

// DeletePost は記事を削除する。
func (s *Service) DeletePost(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewPostNotFoundError(id)
	}
	deleted, err := s.posts.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewPostNotFoundError(id)
	}

	slog.Info("記事を削除しました", slog.String("post_id", id))
	return nil
}

func (s *Service) findPost(ctx context.Context, id string) (*model.PostWithCategory, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewPostNotFoundError(id)
	}
	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(id)
	}
	return post, nil
}

// preparePost は入力を正規化・検証し、参照先のカテゴリを返す。
func (s *Service) preparePost(ctx context.Context, in *PostInput) (*model.Category, error) {
	in.Title = s.sanitizer.StripTags(in.Title)
	in.Description = s.sanitizer.StripTags(in.Description)
	in.Content = strings.TrimSpace(s.sanitizer.SanitizeHTML(in.Content))
	in.Slug = slugOrDerive(in.Slug, in.Title)

	if err := s.validate(*in); err != nil {
		return nil, err
	}

	category, err := s.categories.FindByID(ctx, in.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	if category == nil {
		return nil, model.NewCategoryNotFoundError(in.CategoryID)
	}
	return category, nil
}

func (s *Service) validate(in any) error {
	err := s.validator.Struct(in)
	if err == nil {
		return nil
	}
	var fe *validation.FieldErrors
	if errors.As(err, &fe) {
		return model.NewValidationError(fe.Detail())
	}
	return err
}

func withCategory(post *model.Post, category *model.Category) *model.PostWithCategory {
	return &model.PostWithCategory{
		Post:         *post,
		CategoryName: category.Name,
		CategorySlug: category.Slug,
	}
}

// slugOrDerive は指定されたスラッグを正規化し、空であればsourceから生成する。
func slugOrDerive(slug, source string) string {
	if slug = strings.TrimSpace(slug); slug != "" {
		return strings.ToLower(slug)
	}
	return Slugify(source)
}

// Slugify はASCIIの英数字を小文字にし、それ以外の連続をハイフン1つに置き換える。
// 英数字を含まない文字列（日本語のみのタイトルなど）は空文字になる。
func Slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	out := b.String()
	if len(out) > 100 {
		out = strings.TrimRight(out[:100], "-")
	}
	return out
}
