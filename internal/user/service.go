// Package user はユーザー登録とプロフィール管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/blogapp/internal/model"
	"github.com/hitoshi/blogapp/internal/repository"
	"github.com/hitoshi/blogapp/internal/validation"
)

// PasswordHasher はパスワードのハッシュ化インターフェース。auth.BcryptHasher が実装する。
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=8,password_bytes"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// DefaultStoreTimeout はConfig.StoreTimeoutが未指定のときのストア呼び出しの上限。
const DefaultStoreTimeout = 3 * time.Second

// Config はServiceの設定。
type Config struct {
	// StoreTimeout は1回のストア呼び出しの上限。期限切れは内部エラー（500）になる。
	StoreTimeout time.Duration
}

// Service はユーザー管理のサービス層。
type Service struct {
	identities   repository.IdentityRepository
	sessions     repository.SessionRepository
	hasher       PasswordHasher
	validator    *validation.Validator
	storeTimeout time.Duration
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	identities repository.IdentityRepository,
	sessions repository.SessionRepository,
	hasher PasswordHasher,
	validator *validation.Validator,
	cfg Config,
) *Service {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	return &Service{
		identities:   identities,
		sessions:     sessions,
		hasher:       hasher,
		validator:    validator,
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
	}
}

// withStoreTimeout はストア呼び出しをStoreTimeoutで打ち切るコンテキストを返す。
func (s *Service) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) findByID(ctx context.Context, userID string) (*model.Identity, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	return s.identities.FindByID(ctx, userID)
}

// NormalizeEmail はメールアドレスを比較用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register は新しいユーザーを登録する。
// 登録されるユーザーは常に一般ユーザーで、管理者権限はデータベースで直接付与する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.Identity, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)

	if err := s.validator.Struct(in); err != nil {
		var fe *validation.FieldErrors
		if errors.As(err, &fe) {
			return nil, model.NewValidationError(fe.Detail())
		}
		return nil, err
	}
	if in.Password != in.ConfirmPassword {
		return nil, model.NewPasswordMismatchError()
	}

	findCtx, cancel := s.withStoreTimeout(ctx)
	existing, err := s.identities.FindByEmail(findCtx, in.Email)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now()
	identity := &model.Identity{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		IsAdmin:      false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 事前確認と作成の間に同じメールアドレスで登録された場合は一意制約で検出する
	createCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	if err := s.identities.Create(createCtx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", identity.ID),
	)

	return identity, nil
}

// GetProfile は指定ユーザーの最新情報をストアから取得する。
// トークン発行後に削除されたユーザーはUSER_NOT_FOUNDになる。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.Identity, error) {
	identity, err := s.findByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return nil, model.NewUserNotFoundError()
	}
	return identity, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user。Postgresのsessionsは外部キーでも消えるが、
// Redisストアには外部キーが無いため明示的に削除する。
// 発行済みのトークンは失効させられないため、有効期限まで利用できる。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	identity, err := s.findByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if s.sessions != nil {
		sessCtx, cancel := s.withStoreTimeout(ctx)
		err := s.sessions.DeleteByUserID(sessCtx, userID)
		cancel()
		if err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	deleteCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	if err := s.identities.DeleteByID(deleteCtx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
