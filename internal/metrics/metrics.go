// Package metrics expone contadores Prometheus del ciclo de vida de credenciales.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder es lo que usan los servicios; Collector y Nop lo implementan.
type Recorder interface {
	RecordLogin(outcome string)
	RecordTokenIssued(purpose string)
	RecordTokenRedeemed(purpose string)
	RecordTokenRejected(purpose string)
	RecordTwoFactor(event string)
	RecordSessionsRevoked(reason string, count int)
	RecordEmailFailure(purpose string)
	RecordRateLimited(scope string)
}

// Collector implementa Recorder sobre Prometheus.
type Collector struct {
	logins          *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	tokensRedeemed  *prometheus.CounterVec
	tokensRejected  *prometheus.CounterVec
	twoFactor       *prometheus.CounterVec
	sessionsRevoked *prometheus.CounterVec
	emailFailures   *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitshifts_auth_login_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitshifts_auth_tokens_issued_total",
			Help: "Single-use tokens issued by purpose.",
		}, []string{"purpose"}),
		tokensRedeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitshifts_auth_tokens_redeemed_total",
			Help: "Single-use tokens redeemed by purpose.",
		}, []string{"purpose"}),
		tokensRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitshifts_auth_tokens_rejected_total",
			Help: "Invalid or expired single-use tokens presented, by purpose.",
		}, []string{"purpose"}),
		twoFactor: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitshifts_auth_two_factor_total",
			Help: "Two-factor enrollment events.",
		}, []string{"event"}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitshifts_auth_sessions_revoked_total",
			Help: "Refresh sessions revoked by reason.",
		}, []string{"reason"}),
		emailFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitshifts_auth_email_failures_total",
			Help: "Transactional email delivery failures by purpose.",
		}, []string{"purpose"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitshifts_auth_rate_limited_total",
			Help: "Requests rejected or silenced by a limiter, by scope.",
		}, []string{"scope"}),
	}

	reg.MustRegister(
		c.logins,
		c.tokensIssued,
		c.tokensRedeemed,
		c.tokensRejected,
		c.twoFactor,
		c.sessionsRevoked,
		c.emailFailures,
		c.rateLimited,
	)
	return c
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordTokenIssued(purpose string) {
	c.tokensIssued.WithLabelValues(purpose).Inc()
}

func (c *Collector) RecordTokenRedeemed(purpose string) {
	c.tokensRedeemed.WithLabelValues(purpose).Inc()
}

func (c *Collector) RecordTokenRejected(purpose string) {
	c.tokensRejected.WithLabelValues(purpose).Inc()
}

func (c *Collector) RecordTwoFactor(event string) {
	c.twoFactor.WithLabelValues(event).Inc()
}

func (c *Collector) RecordSessionsRevoked(reason string, count int) {
	if count <= 0 {
		return
	}
	c.sessionsRevoked.WithLabelValues(reason).Add(float64(count))
}

func (c *Collector) RecordEmailFailure(purpose string) {
	c.emailFailures.WithLabelValues(purpose).Inc()
}

func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// Nop descarta todas las métricas.
type Nop struct{}

func (Nop) RecordLogin(string)                {}
func (Nop) RecordTokenIssued(string)          {}
func (Nop) RecordTokenRedeemed(string)        {}
func (Nop) RecordTokenRejected(string)        {}
func (Nop) RecordTwoFactor(string)            {}
func (Nop) RecordSessionsRevoked(string, int) {}
func (Nop) RecordEmailFailure(string)         {}
func (Nop) RecordRateLimited(string)          {}

// Handler devuelve el handler de scrape para el gatherer dado.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
