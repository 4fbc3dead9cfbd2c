package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"splitshifts/internal/domain"
	"splitshifts/internal/repository"
)

const defaultRefreshTTL = 30 * 24 * time.Hour

// RefreshTokenStore guarda jti para refresh tokens y permite revocarlos,
// uno a uno o todos los de un usuario.
type RefreshTokenStore interface {
	Store(ctx context.Context, jti, userID string, ttl time.Duration) error
	Exists(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string) error
	RevokeUser(ctx context.Context, userID string) (int, error)
}

type memoryRefreshEntry struct {
	userID    string
	expiresAt time.Time
}

type memoryRefreshTokenStore struct {
	mu    sync.Mutex
	items map[string]memoryRefreshEntry
}

func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{
		items: make(map[string]memoryRefreshEntry),
	}
}

func (s *memoryRefreshTokenStore) Store(_ context.Context, jti, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	s.items[jti] = memoryRefreshEntry{userID: userID, expiresAt: time.Now().UTC().Add(ttl)}
	return nil
}

func (s *memoryRefreshTokenStore) Exists(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[jti]
	if !ok {
		return false, nil
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(s.items, jti)
		return false, nil
	}
	return true, nil
}

func (s *memoryRefreshTokenStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, jti)
	return nil
}

func (s *memoryRefreshTokenStore) RevokeUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for jti, entry := range s.items {
		if entry.userID == userID {
			delete(s.items, jti)
			n++
		}
	}
	return n, nil
}

type redisKVClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

type redisRefreshTokenStore struct {
	client redisKVClient
	prefix string
}

func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return &redisRefreshTokenStore{
		client: client,
		prefix: "auth:refresh:",
	}
}

func (s *redisRefreshTokenStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

func (s *redisRefreshTokenStore) Store(ctx context.Context, jti, userID string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := s.client.Set(ctx, s.prefix+jti, userID, ttl).Err(); err != nil {
		return err
	}
	if userID == "" {
		return nil
	}
	if err := s.client.SAdd(ctx, s.userKey(userID), jti).Err(); err != nil {
		return err
	}
	// El índice por usuario vive lo mismo que el refresh más reciente.
	return s.client.Expire(ctx, s.userKey(userID), ttl).Err()
}

func (s *redisRefreshTokenStore) Exists(ctx context.Context, jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisRefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Del(ctx, s.prefix+jti).Err()
}

func (s *redisRefreshTokenStore) RevokeUser(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	jtis, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(jtis)+1)
	for _, jti := range jtis {
		keys = append(keys, s.prefix+jti)
	}
	deleted := 0
	if len(keys) > 0 {
		n, err := s.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, err
		}
		deleted = int(n)
	}
	if err := s.client.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// pgRefreshTokenStore persiste las sesiones en refresh_sessions; se usa
// cuando no hay Redis.
type pgRefreshTokenStore struct {
	sessions repository.SessionRepository
	now      func() time.Time
}

func NewPgRefreshTokenStore(sessions repository.SessionRepository) RefreshTokenStore {
	if sessions == nil {
		return nil
	}
	return &pgRefreshTokenStore{sessions: sessions, now: time.Now}
}

func (s *pgRefreshTokenStore) Store(ctx context.Context, jti, userID string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	now := s.now().UTC()
	return s.sessions.Create(ctx, domain.Session{
		ID:        jti,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
}

func (s *pgRefreshTokenStore) Exists(ctx context.Context, jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, nil
	}
	return s.sessions.Exists(ctx, jti, s.now().UTC())
}

func (s *pgRefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	return s.sessions.Delete(ctx, jti)
}

func (s *pgRefreshTokenStore) RevokeUser(ctx context.Context, userID string) (int, error) {
	n, err := s.sessions.DeleteByUser(ctx, userID)
	return int(n), err
}
