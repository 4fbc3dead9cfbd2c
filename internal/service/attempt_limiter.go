package service

import (
	"strings"
	"sync"
	"time"
)

// AttemptLimiter limita la frecuencia de intentos por clave (normalmente el email).
//
// Allow registra un intento y dice si entraba en el cupo. Blocked consulta sin
// registrar nada y Reset vacía la clave.
type AttemptLimiter interface {
	Allow(key string) bool
	Blocked(key string) bool
	Reset(key string)
}

// LimitPolicy es el cupo de intentos admitidos dentro de una ventana.
type LimitPolicy struct {
	Window time.Duration
	Max    int
}

// Limiters agrupa un limiter por flujo. Verificación y reset tienen cupos
// separados aunque usen la misma política.
type Limiters struct {
	Verification AttemptLimiter
	Reset        AttemptLimiter
	Login        AttemptLimiter
}

// NewMemoryLimiters arma los limiters en memoria del proceso.
func NewMemoryLimiters(issuance, login LimitPolicy) Limiters {
	return Limiters{
		Verification: NewMemoryAttemptLimiter(issuance.Window, issuance.Max),
		Reset:        NewMemoryAttemptLimiter(issuance.Window, issuance.Max),
		Login:        NewMemoryAttemptLimiter(login.Window, login.Max),
	}
}

type memoryAttemptLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewMemoryAttemptLimiter crea un limiter de ventana deslizante en memoria.
func NewMemoryAttemptLimiter(window time.Duration, max int) AttemptLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryAttemptLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *memoryAttemptLimiter) Allow(key string) bool {
	key = limiterKey(key)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now().UTC()
	kept := l.prune(key, now)
	if len(kept) >= l.max {
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

func (l *memoryAttemptLimiter) Blocked(key string) bool {
	key = limiterKey(key)
	if key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key, l.now().UTC())) >= l.max
}

func (l *memoryAttemptLimiter) Reset(key string) {
	key = limiterKey(key)
	l.mu.Lock()
	delete(l.hits, key)
	l.mu.Unlock()
}

// prune descarta los intentos fuera de la ventana. Requiere l.mu tomado.
func (l *memoryAttemptLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = kept
	return kept
}

func limiterKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

type allowAll struct{}

func (allowAll) Allow(string) bool   { return true }
func (allowAll) Blocked(string) bool { return false }
func (allowAll) Reset(string)        {}
