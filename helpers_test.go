package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/retailops/authcore/password"
	"github.com/retailops/authcore/role"
	"github.com/retailops/authcore/session"
)

var errConnRefused = errors.New("connection refused")

type mockUserStore struct {
	mu           sync.Mutex
	users        map[string]User
	byIdentifier map[string]string
	nextID       int

	// findFailures makes the next N lookup calls fail transiently.
	findFailures      int
	createErr         error
	updatePasswordErr error

	findByIdentifierCalls int
	findByIDCalls         int
	createCalls           int
	updatePasswordCalls   int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:        make(map[string]User),
		byIdentifier: make(map[string]string),
	}
}

func (m *mockUserStore) add(u User) User {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	u.ID = fmt.Sprintf("u%d", m.nextID)
	m.users[u.ID] = u
	m.byIdentifier[u.Email] = u.ID
	m.byIdentifier[u.Username] = u.ID
	return u
}

func (m *mockUserStore) FindUserByIdentifier(ctx context.Context, identifier string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findByIdentifierCalls++
	if m.findFailures > 0 {
		m.findFailures--
		return User{}, errConnRefused
	}

	id, ok := m.byIdentifier[identifier]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *mockUserStore) FindUserByID(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findByIDCalls++
	if m.findFailures > 0 {
		m.findFailures--
		return User{}, errConnRefused
	}

	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserStore) CreateUser(ctx context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if m.createErr != nil {
		return User{}, m.createErr
	}
	if _, exists := m.byIdentifier[u.Email]; exists {
		return User{}, ErrAccountExists
	}
	if _, exists := m.byIdentifier[u.Username]; exists {
		return User{}, ErrAccountExists
	}

	m.nextID++
	u.ID = fmt.Sprintf("u%d", m.nextID)
	m.users[u.ID] = u
	m.byIdentifier[u.Email] = u.ID
	m.byIdentifier[u.Username] = u.ID
	return u, nil
}

func (m *mockUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updatePasswordCalls++
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	m.users[userID] = u
	return nil
}

func (m *mockUserStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLoginAt = &at
	m.users[userID] = u
	return nil
}

func (m *mockUserStore) UpdateLastActivity(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LastActivityAt = &at
	m.users[userID] = u
	return nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]session.Session)}
}

func (m *memSessionStore) Insert(ctx context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = s
	return nil
}

func (m *memSessionStore) Get(ctx context.Context, id string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (m *memSessionStore) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
	s.Active = active
	if !active {
		s.InvalidatedAt = &at
	}
	m.sessions[id] = s
	return nil
}

func (m *memSessionStore) InvalidateOthers(ctx context.Context, userID, keepID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if s.UserID != userID || id == keepID || !s.Active {
			continue
		}
		s.Active = false
		s.InvalidatedAt = &at
		m.sessions[id] = s
		n++
	}
	return n, nil
}

func (m *memSessionStore) InvalidateAll(ctx context.Context, userID string, at time.Time) (int64, error) {
	return m.InvalidateOthers(ctx, userID, "", at)
}

func (m *memSessionStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if !s.Active || s.ExpiresAt.After(now) {
			continue
		}
		s.Active = false
		s.InvalidatedAt = &now
		m.sessions[id] = s
		n++
	}
	return n, nil
}

func (m *memSessionStore) activeCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active {
			count++
		}
	}
	return count
}

func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig(EnvTest)
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

type testDeps struct {
	users    *mockUserStore
	sessions *memSessionStore
	redis    *miniredis.Miniredis
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *testDeps) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	deps := &testDeps{
		users:    newMockUserStore(),
		sessions: newMemSessionStore(),
		redis:    mr,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(deps.users).
		WithSessionStore(deps.sessions).
		Build()
	if err != nil {
		t.Fatalf("build engine failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, deps
}

// seedUser stores a user with the given password already hashed at the
// test-tier work factor.
func seedUser(t *testing.T, deps *testDeps, username, passwd string, r role.Role, status Status) User {
	t.Helper()

	hasher, err := password.New(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("new hasher failed: %v", err)
	}

	hash, err := hasher.Hash(passwd)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	return deps.users.add(User{
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: hash,
		Role:         r,
		Status:       status,
	})
}
