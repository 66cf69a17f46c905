package auth

import (
	"context"
	"errors"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultBcryptCost はBCRYPT_COST未指定時のコスト。
	DefaultBcryptCost = 12
	// MinBcryptCost は許容する最小コスト。これより小さい値は引き上げる。
	MinBcryptCost = 10
	// MaxPasswordBytes はbcryptが扱えるパスワードの最大バイト長。
	MaxPasswordBytes = 72
)

// ErrPasswordTooLong はパスワードがMaxPasswordBytesを超えることを表す。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// PasswordHasher はパスワードのハッシュ化と照合を行う。
type PasswordHasher interface {
	// Hash は平文パスワードをソルト付きでハッシュ化する。
	Hash(ctx context.Context, plaintext string) (string, error)
	// Verify は平文パスワードとハッシュを照合する。
	// 不一致は(false, nil)、ハッシュ処理自体の失敗はInternalErrorを返す。
	Verify(ctx context.Context, plaintext, hashed string) (bool, error)
}

// BcryptHasherConfig はBcryptHasherの設定。
type BcryptHasherConfig struct {
	Cost          int
	MaxConcurrent int64 // 同時に実行するハッシュ処理の上限。0以下ならCPU数。
	Recorder      Recorder
}

// BcryptHasher はbcryptによるPasswordHasherの実装。
// ハッシュ処理はCPUを占有するため、セマフォで同時実行数を制限する。
type BcryptHasher struct {
	cost     int
	sem      *semaphore.Weighted
	recorder Recorder
}

// NewBcryptHasher はBcryptHasherを生成する。
func NewBcryptHasher(cfg BcryptHasherConfig) *BcryptHasher {
	cost := cfg.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < MinBcryptCost {
		cost = MinBcryptCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = int64(runtime.NumCPU())
	}

	return &BcryptHasher{
		cost:     cost,
		sem:      semaphore.NewWeighted(limit),
		recorder: recorderOrNop(cfg.Recorder),
	}
}

// Cost は実際に使用するbcryptコストを返す。
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash は平文パスワードをハッシュ化する。
func (h *BcryptHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", internalError("acquire hash slot", err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	h.recorder.RecordHashLatency("hash", time.Since(start))
	if err != nil {
		return "", internalError("generate password hash", err)
	}
	return string(hashed), nil
}

// Verify は平文パスワードとハッシュを照合する。比較はbcrypt内で定数時間に行われる。
func (h *BcryptHasher) Verify(ctx context.Context, plaintext, hashed string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, internalError("acquire hash slot", err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
	h.recorder.RecordHashLatency("verify", time.Since(start))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, internalError("compare password hash", err)
	}
}

// compile-time interface check
var _ PasswordHasher = (*BcryptHasher)(nil)
