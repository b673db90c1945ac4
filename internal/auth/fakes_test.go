package auth

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory CredentialStore. Transactions are serialised and
// roll back by restoring a snapshot.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users  map[string]*User
	resets map[string]ResetToken
	now    func() time.Time

	// failNext makes the next store call return this error.
	failNext error
	calls    int
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[string]*User),
		resets: make(map[string]ResetToken),
		now:    time.Now,
	}
}

func (m *memStore) addUser(id, email, hash string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &User{ID: id, Email: email, PasswordHash: hash}
	m.users[id] = u
	return u
}

func (m *memStore) passwordHash(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].PasswordHash
}

func (m *memStore) reset(userID string) (ResetToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[userID]
	return r, ok
}

func (m *memStore) takeFailure() error {
	m.calls++
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindUserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpsertResetToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.resets[userID] = ResetToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt, CreatedAt: m.now()}
	return nil
}

func (m *memStore) FindResetTokenIfValid(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return "", err
	}
	for _, r := range m.resets {
		if r.TokenHash == tokenHash && r.ExpiresAt.After(m.now()) {
			return r.UserID, nil
		}
	}
	return "", ErrNotFound
}

func (m *memStore) RotatePassword(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (m *memStore) DeleteResetToken(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	delete(m.resets, userID)
	return nil
}

func (m *memStore) DeleteExpiredResetTokens(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	var n int64
	for id, r := range m.resets {
		if !r.ExpiresAt.After(m.now()) {
			delete(m.resets, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) WithinTx(_ context.Context, fn func(CredentialStore) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	users := make(map[string]*User, len(m.users))
	for id, u := range m.users {
		cp := *u
		users[id] = &cp
	}
	resets := maps.Clone(m.resets)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.users = users
		m.resets = resets
		m.mu.Unlock()
		return err
	}
	return nil
}

// mockMailer records reset mails.
type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	args := m.Called(ctx, to, resetURL)
	return args.Error(0)
}

// captureMailer keeps the last link sent to each address.
type captureMailer struct {
	mu    sync.Mutex
	links map[string][]string
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{links: make(map[string][]string)}
}

func (c *captureMailer) SendPasswordReset(_ context.Context, to, resetURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[to] = append(c.links[to], resetURL)
	return nil
}

func (c *captureMailer) sent(to string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.links[to]...)
}

func (c *captureMailer) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.links {
		n += len(l)
	}
	return n
}
