package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/blogapp/internal/database"
	"github.com/hitoshi/blogapp/internal/model"
)

// setupIntegrationDB はマイグレーション済みのテスト用DBを返す。
// TEST_DATABASE_URL に接続できない場合はテストをスキップする。
func setupIntegrationDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if _, err := database.RunMigrations(dbURL); err != nil {
		db.Close()
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE posts, categories, sessions, users CASCADE`); err != nil {
		db.Close()
		t.Fatalf("テーブルの初期化に失敗: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func createTestIdentity(t *testing.T, repo *PostgresIdentityRepo, email string) *model.Identity {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	identity := &model.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(context.Background(), identity); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return identity
}

func TestPostgresIdentityRepo_Integration(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	repo := NewPostgresIdentityRepo(db)

	created := createTestIdentity(t, repo, "alice@example.com")

	got, err := repo.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("FindByEmail() = %+v, want ID %s", got, created.ID)
	}
	if got.IsAdmin {
		t.Error("IsAdmin = true, want false")
	}

	missing, err := repo.FindByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("FindByEmail(missing) error = %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown email, got %+v", missing)
	}

	dup := *created
	dup.ID = uuid.NewString()
	err = repo.Create(ctx, &dup)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create(duplicate) error = %v, want ErrDuplicate", err)
	}

	if err := repo.DeleteByID(ctx, created.ID); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if got, _ := repo.FindByID(ctx, created.ID); got != nil {
		t.Error("user should be deleted")
	}
	// 存在しないIDの削除はエラーにしない
	if err := repo.DeleteByID(ctx, created.ID); err != nil {
		t.Errorf("second DeleteByID() error = %v", err)
	}
}

func TestPostgresSessionRepo_Integration(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	identity := createTestIdentity(t, NewPostgresIdentityRepo(db), "session@example.com")
	repo := NewPostgresSessionRepo(db)

	now := time.Now()
	live := &model.Session{ID: "live-session", UserID: identity.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	expired := &model.Session{ID: "expired-session", UserID: identity.ID, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}

	for _, s := range []*model.Session{live, expired} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create(%s) error = %v", s.ID, err)
		}
	}

	collision := &model.Session{ID: live.ID, UserID: identity.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := repo.Create(ctx, collision); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create(duplicate id) error = %v, want ErrDuplicate", err)
	}

	got, err := repo.FindByID(ctx, live.ID)
	if err != nil || got == nil {
		t.Fatalf("FindByID(live) = %v, %v", got, err)
	}
	if got.UserID != identity.ID {
		t.Errorf("UserID = %q, want %q", got.UserID, identity.ID)
	}

	got, err = repo.FindByID(ctx, expired.ID)
	if err != nil {
		t.Fatalf("FindByID(expired) error = %v", err)
	}
	if got != nil {
		t.Error("expired session should not be returned")
	}

	if err := repo.DeleteByUserID(ctx, identity.ID); err != nil {
		t.Fatalf("DeleteByUserID() error = %v", err)
	}
	if got, _ := repo.FindByID(ctx, live.ID); got != nil {
		t.Error("session should be deleted")
	}
}

func TestPostgresContentRepos_Integration(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	categories := NewPostgresCategoryRepo(db)
	posts := NewPostgresPostRepo(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	category := &model.Category{ID: uuid.NewString(), Name: "Go", Slug: "go", CreatedAt: now}
	if err := categories.Create(ctx, category); err != nil {
		t.Fatalf("Create(category) error = %v", err)
	}
	if err := categories.Create(ctx, &model.Category{ID: uuid.NewString(), Name: "Golang", Slug: "go", CreatedAt: now}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate category slug error = %v, want ErrDuplicate", err)
	}

	post := &model.Post{
		ID:          uuid.NewString(),
		Title:       "Hello",
		Slug:        "hello",
		Description: "first post",
		Content:     "<p>hi</p>",
		CategoryID:  category.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := posts.Create(ctx, post); err != nil {
		t.Fatalf("Create(post) error = %v", err)
	}

	got, err := posts.FindBySlug(ctx, "hello")
	if err != nil || got == nil {
		t.Fatalf("FindBySlug() = %v, %v", got, err)
	}
	if got.CategorySlug != "go" {
		t.Errorf("CategorySlug = %q, want %q", got.CategorySlug, "go")
	}

	list, err := posts.ListByCategory(ctx, category.ID)
	if err != nil {
		t.Fatalf("ListByCategory() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("len(ListByCategory) = %d, want 1", len(list))
	}

	post.Title = "Hello again"
	post.UpdatedAt = now.Add(time.Minute)
	updated, err := posts.Update(ctx, post)
	if err != nil || !updated {
		t.Fatalf("Update() = %v, %v", updated, err)
	}

	category.Name = "Golang"
	category.Slug = "golang"
	if ok, err := categories.Update(ctx, category); err != nil || !ok {
		t.Fatalf("category Update() = %v, %v", ok, err)
	}
	if _, err := categories.Delete(ctx, category.ID); !errors.Is(err, ErrInUse) {
		t.Errorf("category Delete() with posts error = %v, want ErrInUse", err)
	}

	deleted, err := posts.Delete(ctx, post.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v", deleted, err)
	}
	deleted, err = posts.Delete(ctx, post.ID)
	if err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if deleted {
		t.Error("second Delete() should report false")
	}

	if ok, err := categories.Delete(ctx, category.ID); err != nil || !ok {
		t.Errorf("category Delete() without posts = %v, %v", ok, err)
	}
}
