package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"splitshifts/internal/domain"
	"splitshifts/internal/email"
	"splitshifts/internal/repository"
	"splitshifts/internal/service"
)

type memUserRepo struct {
	mu    sync.Mutex
	byID  map[string]domain.User
	index map[string]string
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[string]domain.User), index: make(map[string]string)}
}

func (m *memUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(user.Email)
	if _, ok := m.index[key]; ok {
		return repository.ErrDuplicateEmail
	}
	m.byID[user.ID] = user
	m.index[key] = user.ID
	return nil
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.index[strings.ToLower(email)]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

func (m *memUserRepo) Update(_ context.Context, id string, patch domain.UserPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	m.byID[id] = patch.Apply(user)
	return nil
}

func (m *memUserRepo) byEmail(t *testing.T, email string) domain.User {
	t.Helper()
	user, err := m.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("user %s not found: %v", email, err)
	}
	return user
}

type memTokenRepo struct {
	mu      sync.Mutex
	purpose domain.TokenPurpose
	users   *memUserRepo
	tokens  map[string]domain.TokenRecord
}

func newMemTokenRepo(purpose domain.TokenPurpose, users *memUserRepo) *memTokenRepo {
	return &memTokenRepo{purpose: purpose, users: users, tokens: make(map[string]domain.TokenRecord)}
}

func (m *memTokenRepo) Purpose() domain.TokenPurpose { return m.purpose }

func (m *memTokenRepo) UpsertByUser(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, rec := range m.tokens {
		if rec.UserID == userID {
			delete(m.tokens, tok)
		}
	}
	m.tokens[token] = domain.TokenRecord{UserID: userID, Token: token, ExpiresAt: expiresAt}
	return nil
}

func (m *memTokenRepo) FindByToken(ctx context.Context, token string, now time.Time) (domain.TokenRecord, error) {
	m.mu.Lock()
	rec, ok := m.tokens[token]
	m.mu.Unlock()
	if !ok || rec.Expired(now) {
		return domain.TokenRecord{}, pgx.ErrNoRows
	}
	user, err := m.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return domain.TokenRecord{}, err
	}
	rec.Email, rec.FirstName = user.Email, user.FirstName
	rec.EmailVerified, rec.IsActive = user.EmailVerified, user.IsActive
	return rec, nil
}

func (m *memTokenRepo) Consume(_ context.Context, token string, now time.Time) (domain.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[token]
	if !ok || rec.Expired(now) {
		return domain.TokenRecord{}, pgx.ErrNoRows
	}
	delete(m.tokens, token)
	return rec, nil
}

func (m *memTokenRepo) DeleteByToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

func (m *memTokenRepo) DeleteByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, rec := range m.tokens {
		if rec.UserID == userID {
			delete(m.tokens, tok)
		}
	}
	return nil
}

func (m *memTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for tok, rec := range m.tokens {
		if rec.Expired(before) {
			delete(m.tokens, tok)
			n++
		}
	}
	return n, nil
}

var tokenInLink = regexp.MustCompile(`token=([0-9a-f]{64})`)

type captureSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (s *captureSender) SendMail(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

// lastToken extrae el token del último enlace enviado.
func (s *captureSender) lastToken(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatalf("expected an email to be sent")
	}
	m := tokenInLink.FindStringSubmatch(s.sent[len(s.sent)-1].Text)
	if m == nil {
		t.Fatalf("no token link in email body")
	}
	return m[1]
}

type testApp struct {
	router *gin.Engine
	users  *memUserRepo
	sender *captureSender
	jwt    *service.JWTService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	users := newMemUserRepo()
	verifyTokens := newMemTokenRepo(domain.TokenPurposeVerification, users)
	resetTokens := newMemTokenRepo(domain.TokenPurposeReset, users)
	sender := &captureSender{}
	hasher := service.NewBcryptHasher(bcrypt.MinCost)
	links, err := service.NewLinkBuilder("https://splitshifts.app", true)
	if err != nil {
		t.Fatalf("link builder: %v", err)
	}
	jwtSvc := service.NewJWTServiceWithStore("test-secret", 15*time.Minute, time.Hour, service.NewMemoryRefreshTokenStore())
	guard := service.NewSessionGuard(logger, users, jwtSvc, nil)
	engine := service.NewOTPEngine()

	verifySvc := service.NewEmailVerificationService(logger, users, verifyTokens, sender, links, service.FlowConfig{Production: true})
	resetSvc := service.NewPasswordResetService(logger, users, resetTokens, hasher, jwtSvc, sender, links, service.FlowConfig{Production: true})
	userSvc := service.NewUserService(logger, users, hasher, verifySvc, jwtSvc, nil)
	authSvc := service.NewAuthService(logger, users, hasher, engine, jwtSvc, guard, nil, nil)
	twoFactorSvc := service.NewTwoFactorService(logger, users, engine, "SplitShifts App", true, nil)

	router := NewRouter(logger, RouterDeps{
		Auth:    NewAuthHandler(logger, userSvc, verifySvc, resetSvc, authSvc),
		Account: NewAccountHandler(logger, userSvc, twoFactorSvc, jwtSvc),
		JWT:     jwtSvc,
		Guard:   guard,
	})
	return &testApp{router: router, users: users, sender: sender, jwt: jwtSvc}
}

func performRequest(r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

const testPassword = "Secret#123"

// registerVerified registra un usuario y canjea su token de verificación.
func (a *testApp) registerVerified(t *testing.T, emailAddr string) {
	t.Helper()
	rec := performRequest(a.router, http.MethodPost, "/auth/register", map[string]string{
		"firstName":       "Ana",
		"lastName":        "Pérez",
		"email":           emailAddr,
		"password":        testPassword,
		"confirmPassword": testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = performRequest(a.router, http.MethodPost, "/auth/verification/verify", map[string]string{
		"token": a.sender.lastToken(t),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func (a *testApp) login(t *testing.T, emailAddr, code string) service.LoginResult {
	t.Helper()
	rec := performRequest(a.router, http.MethodPost, "/auth/login", map[string]string{
		"email":    emailAddr,
		"password": testPassword,
		"code":     code,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res service.LoginResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return res
}
