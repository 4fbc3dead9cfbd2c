package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"splitshifts/internal/domain"
	"splitshifts/internal/email"
	"splitshifts/internal/repository"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
	updates      int
	getErr       error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usersByEmail[normalizeEmail(user.Email)]; ok {
		return repository.ErrDuplicateEmail
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[normalizeEmail(user.Email)] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.User{}, m.getErr
	}
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByEmail[normalizeEmail(email)]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) Update(_ context.Context, id string, patch domain.UserPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	m.usersByID[id] = patch.Apply(user)
	m.updates++
	return nil
}

func (m *mockUserRepo) get(id string) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usersByID[id]
}

func (m *mockUserRepo) delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.usersByID[id]
	delete(m.usersByEmail, normalizeEmail(user.Email))
	delete(m.usersByID, id)
}

type mockTokenRepo struct {
	mu       sync.Mutex
	purpose  domain.TokenPurpose
	users    *mockUserRepo
	byToken  map[string]domain.TokenRecord
	consumed int
	deleted  int
}

func newMockTokenRepo(purpose domain.TokenPurpose, users *mockUserRepo) *mockTokenRepo {
	return &mockTokenRepo{
		purpose: purpose,
		users:   users,
		byToken: make(map[string]domain.TokenRecord),
	}
}

func (m *mockTokenRepo) Purpose() domain.TokenPurpose { return m.purpose }

func (m *mockTokenRepo) UpsertByUser(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, rec := range m.byToken {
		if rec.UserID == userID {
			delete(m.byToken, tok)
		}
	}
	m.byToken[token] = domain.TokenRecord{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *mockTokenRepo) FindByToken(ctx context.Context, token string, now time.Time) (domain.TokenRecord, error) {
	m.mu.Lock()
	rec, ok := m.byToken[token]
	m.mu.Unlock()
	if !ok || rec.Expired(now) {
		return domain.TokenRecord{}, pgx.ErrNoRows
	}
	owner, err := m.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return domain.TokenRecord{}, err
	}
	rec.Email = owner.Email
	rec.FirstName = owner.FirstName
	rec.EmailVerified = owner.EmailVerified
	rec.IsActive = owner.IsActive
	return rec, nil
}

func (m *mockTokenRepo) Consume(ctx context.Context, token string, now time.Time) (domain.TokenRecord, error) {
	m.mu.Lock()
	rec, ok := m.byToken[token]
	if !ok || rec.Expired(now) {
		m.mu.Unlock()
		return domain.TokenRecord{}, pgx.ErrNoRows
	}
	delete(m.byToken, token)
	m.consumed++
	m.mu.Unlock()

	owner, err := m.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return domain.TokenRecord{}, err
	}
	rec.Email = owner.Email
	rec.FirstName = owner.FirstName
	rec.EmailVerified = owner.EmailVerified
	rec.IsActive = owner.IsActive
	return rec, nil
}

func (m *mockTokenRepo) DeleteByToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byToken[token]; ok {
		delete(m.byToken, token)
		m.deleted++
	}
	return nil
}

func (m *mockTokenRepo) DeleteByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, rec := range m.byToken {
		if rec.UserID == userID {
			delete(m.byToken, tok)
			m.deleted++
		}
	}
	return nil
}

func (m *mockTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for tok, rec := range m.byToken {
		if rec.Expired(before) {
			delete(m.byToken, tok)
			n++
		}
	}
	return n, nil
}

func (m *mockTokenRepo) tokenFor(userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, rec := range m.byToken {
		if rec.UserID == userID {
			return tok, true
		}
	}
	return "", false
}

func (m *mockTokenRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byToken)
}

type mockEmailSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (m *mockEmailSender) SendMail(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockEmailSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockLimiter struct {
	allow  bool
	keys   []string
	resets []string
}

func (m *mockLimiter) Allow(key string) bool {
	m.keys = append(m.keys, key)
	return m.allow
}

func (m *mockLimiter) Blocked(string) bool { return !m.allow }

func (m *mockLimiter) Reset(key string) {
	m.resets = append(m.resets, key)
}

type mockRevoker struct {
	revoked []string
}

func (m *mockRevoker) RevokeUser(_ context.Context, userID string) (int, error) {
	m.revoked = append(m.revoked, userID)
	return 1, nil
}

// fastHasher usa el costo mínimo de bcrypt para que los tests sean rápidos.
func fastHasher() *BcryptHasher {
	return &BcryptHasher{cost: bcrypt.MinCost}
}

func mustHash(h PasswordHasher, password string) string {
	hash, err := h.Hash(password)
	if err != nil {
		panic(err)
	}
	return hash
}

func seedUser(repo *mockUserRepo, hasher PasswordHasher, mutate func(*domain.User)) domain.User {
	now := time.Now().UTC()
	user := domain.User{
		ID:            "u1",
		FirstName:     "Ana",
		LastName:      "Pérez",
		Email:         "ana@example.com",
		PasswordHash:  mustHash(hasher, "Secret#123"),
		EmailVerified: true,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(&user)
	}
	_ = repo.Create(context.Background(), user)
	return user
}

func testLinks() *LinkBuilder {
	links, err := NewLinkBuilder("https://splitshifts.app", true)
	if err != nil {
		panic(err)
	}
	return links
}
