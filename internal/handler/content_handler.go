package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/blogapp/internal/content"
	"github.com/hitoshi/blogapp/internal/model"
)

// ContentServiceInterface は記事・カテゴリハンドラーが必要とするサービスインターフェース。
type ContentServiceInterface interface {
	ListPosts(ctx context.Context) ([]model.PostWithCategory, error)
	GetPostBySlug(ctx context.Context, slug string) (*model.PostWithCategory, error)
	CreatePost(ctx context.Context, in content.PostInput) (*model.PostWithCategory, error)
	UpdatePost(ctx context.Context, id string, in content.PostInput) (*model.PostWithCategory, error)
	DeletePost(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]*model.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error)
	GetCategoryByID(ctx context.Context, id string) (*model.Category, error)
	ListPostsByCategory(ctx context.Context, categorySlug string) (*model.Category, []model.PostWithCategory, error)
	CreateCategory(ctx context.Context, in content.CategoryInput) (*model.Category, error)
	UpdateCategory(ctx context.Context, id string, in content.CategoryInput) (*model.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// ContentHandler は記事とカテゴリのHTTPハンドラー。
// 公開の閲覧ルートと管理者ルートの両方を扱う。
type ContentHandler struct {
	service ContentServiceInterface
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(service ContentServiceInterface) *ContentHandler {
	return &ContentHandler{service: service}
}

// categoryResponse はカテゴリのレスポンス。
type categoryResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// postResponse は記事のレスポンス。
type postResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Slug        string               `json:"slug"`
	Description string               `json:"description"`
	Content     string               `json:"content"`
	Category    postCategoryResponse `json:"category"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

type postCategoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// categoryPostsResponse はカテゴリ別記事一覧のレスポンス。
type categoryPostsResponse struct {
	Category categoryResponse `json:"category"`
	Posts    []postResponse   `json:"posts"`
}

func toCategoryResponse(c *model.Category) categoryResponse {
	return categoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		CreatedAt: c.CreatedAt,
	}
}

func toPostResponse(p *model.PostWithCategory) postResponse {
	return postResponse{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		Content:     p.Content,
		Category: postCategoryResponse{
			ID:   p.CategoryID,
			Name: p.CategoryName,
			Slug: p.CategorySlug,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toPostResponses(posts []model.PostWithCategory) []postResponse {
	res := make([]postResponse, 0, len(posts))
	for i := range posts {
		res = append(res, toPostResponse(&posts[i]))
	}
	return res
}

// ListPosts は記事一覧を返す。
// GET /posts, GET /admin/posts
func (h *ContentHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.ListPosts(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponses(posts))
}

// GetPost はスラッグで記事を返す。
// GET /posts/{slug}
func (h *ContentHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.GetPostBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// CreatePost は記事を作成する。
// POST /admin/posts
func (h *ContentHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req content.PostInput
	if !decodeJSON(w, r, &req) {
		return
	}

	post, err := h.service.CreatePost(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

// UpdatePost は記事を上書き更新する。
// PUT /admin/posts/{id}
func (h *ContentHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var req content.PostInput
	if !decodeJSON(w, r, &req) {
		return
	}

	post, err := h.service.UpdatePost(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// DeletePost は記事を削除する。
// DELETE /admin/posts/{id}
func (h *ContentHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePost(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCategories はカテゴリ一覧を返す。
// GET /categories
func (h *ContentHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	res := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		res = append(res, toCategoryResponse(c))
	}
	writeJSON(w, http.StatusOK, res)
}

// GetCategory はスラッグでカテゴリを返す。
// GET /categories/{slug}
func (h *ContentHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.service.GetCategoryBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(category))
}

// ListCategoryPosts はカテゴリに属する記事一覧を返す。
// GET /categories/{slug}/posts
func (h *ContentHandler) ListCategoryPosts(w http.ResponseWriter, r *http.Request) {
	category, posts, err := h.service.ListPostsByCategory(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryPostsResponse{
		Category: toCategoryResponse(category),
		Posts:    toPostResponses(posts),
	})
}

// GetCategoryByID はIDでカテゴリを返す。
// GET /admin/categories/{id}
func (h *ContentHandler) GetCategoryByID(w http.ResponseWriter, r *http.Request) {
	category, err := h.service.GetCategoryByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(category))
}

// CreateCategory はカテゴリを作成する。
// POST /admin/categories
func (h *ContentHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req content.CategoryInput
	if !decodeJSON(w, r, &req) {
		return
	}

	category, err := h.service.CreateCategory(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryResponse(category))
}

// UpdateCategory はカテゴリ名とスラッグを更新する。
// PUT /admin/categories/{id}
func (h *ContentHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req content.CategoryInput
	if !decodeJSON(w, r, &req) {
		return
	}

	category, err := h.service.UpdateCategory(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(category))
}

// DeleteCategory はカテゴリを削除する。記事が残っている場合は409を返す。
// DELETE /admin/categories/{id}
func (h *ContentHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
