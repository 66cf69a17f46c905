package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/blogapp/internal/model"
	"github.com/hitoshi/blogapp/internal/repository"
)

// --- モック定義 ---

type mockIdentityRepo struct {
	findByEmailFn func(ctx context.Context, email string) (*model.Identity, error)
	findByIDFn    func(ctx context.Context, id string) (*model.Identity, error)
	createFn      func(ctx context.Context, identity *model.Identity) error
}

func (m *mockIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	if m.createFn != nil {
		return m.createFn(ctx, identity)
	}
	return nil
}

func (m *mockIdentityRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}

// memorySessionRepo はテスト用のインメモリセッションストア。
type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	createFn     func(ctx context.Context, session *model.Session) error
	deleteByIDFn func(ctx context.Context, id string) error
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *memorySessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, session); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *session
	m.sessions[session.ID] = &s
	return nil
}

func (m *memorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memorySessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memorySessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memorySessionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// mockHasher は平文に接頭辞を付けるだけの高速なハッシュ実装。
type mockHasher struct {
	mu          sync.Mutex
	verifyCalls int
	hashFn      func(ctx context.Context, plaintext string) (string, error)
	verifyFn    func(ctx context.Context, plaintext, hashed string) (bool, error)
}

func (m *mockHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if m.hashFn != nil {
		return m.hashFn(ctx, plaintext)
	}
	return "hashed:" + plaintext, nil
}

func (m *mockHasher) Verify(ctx context.Context, plaintext, hashed string) (bool, error) {
	m.mu.Lock()
	m.verifyCalls++
	m.mu.Unlock()
	if m.verifyFn != nil {
		return m.verifyFn(ctx, plaintext, hashed)
	}
	return hashed == "hashed:"+plaintext, nil
}

type mockRecorder struct {
	mu       sync.Mutex
	logins   []string
	rejected []string
	hashOps  []string
}

func (m *mockRecorder) RecordLogin(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, outcome)
}

func (m *mockRecorder) RecordTokenRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, reason)
}

func (m *mockRecorder) RecordHashLatency(op string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashOps = append(m.hashOps, op)
}

// --- compile-time interface checks ---
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*memorySessionRepo)(nil)
var _ PasswordHasher = (*mockHasher)(nil)
var _ Recorder = (*mockRecorder)(nil)

// --- テスト用ヘルパー ---

var testSessionSecret = []byte("session-secret-for-tests-0123456789")

// testUsers はメールアドレスをキーにしたテスト用ユーザー。パスワードは"pw1"。
func testUsers() map[string]*model.Identity {
	return map[string]*model.Identity{
		"a@x.com": {
			ID:           "user-1",
			Email:        "a@x.com",
			Name:         "Alice",
			PasswordHash: "hashed:pw1",
		},
		"admin@x.com": {
			ID:           "admin-1",
			Email:        "admin@x.com",
			Name:         "Admin",
			PasswordHash: "hashed:pw1",
			IsAdmin:      true,
		},
	}
}

func newUserRepo(users map[string]*model.Identity) *mockIdentityRepo {
	return &mockIdentityRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.Identity, error) {
			return users[email], nil
		},
		findByIDFn: func(_ context.Context, id string) (*model.Identity, error) {
			for _, u := range users {
				if u.ID == id {
					return u, nil
				}
			}
			return nil, nil
		},
	}
}
