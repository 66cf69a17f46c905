package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/blogapp/internal/auth"
	"github.com/hitoshi/blogapp/internal/content"
	"github.com/hitoshi/blogapp/internal/middleware"
	"github.com/hitoshi/blogapp/internal/model"
	"github.com/hitoshi/blogapp/internal/user"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	loginFn           func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	loginTokenFn      func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	setLoginCookiesFn func(w http.ResponseWriter, res *auth.LoginResult)
	logoutFn          func(w http.ResponseWriter, r *http.Request)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, auth.ErrInvalidCredential
}

func (m *mockAuthService) LoginToken(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginTokenFn != nil {
		return m.loginTokenFn(ctx, email, password)
	}
	return nil, auth.ErrInvalidCredential
}

func (m *mockAuthService) SetLoginCookies(w http.ResponseWriter, res *auth.LoginResult) {
	if m.setLoginCookiesFn != nil {
		m.setLoginCookiesFn(w, res)
	}
}

func (m *mockAuthService) Logout(w http.ResponseWriter, r *http.Request) {
	if m.logoutFn != nil {
		m.logoutFn(w, r)
	}
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	registerFn   func(ctx context.Context, in user.RegisterInput) (*model.Identity, error)
	getProfileFn func(ctx context.Context, userID string) (*model.Identity, error)
	withdrawFn   func(ctx context.Context, userID string) error
}

func (m *mockUserService) Register(ctx context.Context, in user.RegisterInput) (*model.Identity, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.Identity, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// mockContentService はContentServiceInterfaceのモック実装。
type mockContentService struct {
	listPostsFn           func(ctx context.Context) ([]model.PostWithCategory, error)
	getPostBySlugFn       func(ctx context.Context, slug string) (*model.PostWithCategory, error)
	createPostFn          func(ctx context.Context, in content.PostInput) (*model.PostWithCategory, error)
	updatePostFn          func(ctx context.Context, id string, in content.PostInput) (*model.PostWithCategory, error)
	deletePostFn          func(ctx context.Context, id string) error
	listCategoriesFn      func(ctx context.Context) ([]*model.Category, error)
	getCategoryBySlugFn   func(ctx context.Context, slug string) (*model.Category, error)
	getCategoryByIDFn     func(ctx context.Context, id string) (*model.Category, error)
	listPostsByCategoryFn func(ctx context.Context, slug string) (*model.Category, []model.PostWithCategory, error)
	createCategoryFn      func(ctx context.Context, in content.CategoryInput) (*model.Category, error)
	updateCategoryFn      func(ctx context.Context, id string, in content.CategoryInput) (*model.Category, error)
	deleteCategoryFn      func(ctx context.Context, id string) error
}

func (m *mockContentService) ListPosts(ctx context.Context) ([]model.PostWithCategory, error) {
	if m.listPostsFn != nil {
		return m.listPostsFn(ctx)
	}
	return []model.PostWithCategory{}, nil
}

func (m *mockContentService) GetPostBySlug(ctx context.Context, slug string) (*model.PostWithCategory, error) {
	if m.getPostBySlugFn != nil {
		return m.getPostBySlugFn(ctx, slug)
	}
	return nil, model.NewPostNotFoundError(slug)
}

func (m *mockContentService) CreatePost(ctx context.Context, in content.PostInput) (*model.PostWithCategory, error) {
	if m.createPostFn != nil {
		return m.createPostFn(ctx, in)
	}
	return nil, nil
}

func (m *mockContentService) UpdatePost(ctx context.Context, id string, in content.PostInput) (*model.PostWithCategory, error) {
	if m.updatePostFn != nil {
		return m.updatePostFn(ctx, id, in)
	}
	return nil, model.NewPostNotFoundError(id)
}

func (m *mockContentService) DeletePost(ctx context.Context, id string) error {
	if m.deletePostFn != nil {
		return m.deletePostFn(ctx, id)
	}
	return nil
}

func (m *mockContentService) ListCategories(ctx context.Context) ([]*model.Category, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx)
	}
	return []*model.Category{}, nil
}

func (m *mockContentService) GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	if m.getCategoryBySlugFn != nil {
		return m.getCategoryBySlugFn(ctx, slug)
	}
	return nil, model.NewCategoryNotFoundError(slug)
}

func (m *mockContentService) GetCategoryByID(ctx context.Context, id string) (*model.Category, error) {
	if m.getCategoryByIDFn != nil {
		return m.getCategoryByIDFn(ctx, id)
	}
	return nil, model.NewCategoryNotFoundError(id)
}

func (m *mockContentService) ListPostsByCategory(ctx context.Context, slug string) (*model.Category, []model.PostWithCategory, error) {
	if m.listPostsByCategoryFn != nil {
		return m.listPostsByCategoryFn(ctx, slug)
	}
	return nil, nil, model.NewCategoryNotFoundError(slug)
}

func (m *mockContentService) CreateCategory(ctx context.Context, in content.CategoryInput) (*model.Category, error) {
	if m.createCategoryFn != nil {
		return m.createCategoryFn(ctx, in)
	}
	return nil, nil
}

func (m *mockContentService) UpdateCategory(ctx context.Context, id string, in content.CategoryInput) (*model.Category, error) {
	if m.updateCategoryFn != nil {
		return m.updateCategoryFn(ctx, id, in)
	}
	return nil, model.NewCategoryNotFoundError(id)
}

func (m *mockContentService) DeleteCategory(ctx context.Context, id string) error {
	if m.deleteCategoryFn != nil {
		return m.deleteCategoryFn(ctx, id)
	}
	return nil
}

// --- テストヘルパー ---

// withIdentity はテスト用にリクエストコンテキストに認証済みIdentityを注入するヘルパー。
func withIdentity(r *http.Request, identity *model.Identity) *http.Request {
	return r.WithContext(middleware.ContextWithIdentity(r.Context(), identity))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}
