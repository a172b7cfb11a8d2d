package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pofara/identity-service/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	loginAttempts *prometheus.CounterVec
	accountLocks  prometheus.Counter
}

// Attach configures telemetry collectors and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	loginAttempts := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts by outcome",
	}, []string{"outcome"})

	accountLocks := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "account_locks_total",
		Help:      "Total number of account locks applied",
	})

	return &Provider{
		loginAttempts: loginAttempts,
		accountLocks:  accountLocks,
	}, nil
}

// ObserveLogin increments the login attempt counter for an outcome.
func (p *Provider) ObserveLogin(outcome string) {
	if p == nil || p.loginAttempts == nil {
		return
	}
	p.loginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveAccountLock increments the account lock counter.
func (p *Provider) ObserveAccountLock() {
	if p == nil || p.accountLocks == nil {
		return
	}
	p.accountLocks.Inc()
}
