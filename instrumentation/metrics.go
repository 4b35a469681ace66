package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authentication core.
type Metrics struct {
	// Login flow
	LoginAttemptsTotal metric.Int64Counter
	LoginDuration      metric.Float64Histogram

	// Token lifecycle
	TokensIssued    metric.Int64Counter
	TokensRefreshed metric.Int64Counter
	TokensRevoked   metric.Int64Counter

	// Abuse controls
	LockoutBlocks   metric.Int64Counter
	ThrottleRejects metric.Int64Counter
	CSRFRejects     metric.Int64Counter

	// Security telemetry
	SecurityEventsTotal metric.Int64Counter

	// Gauges observed via callbacks
	BlockedKeys      metric.Int64ObservableGauge
	ActiveCSRFTokens metric.Int64ObservableGauge
	RevokedTokens    metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	meter := inst.Meter("auth")
	m := &Metrics{}

	var err error
	m.LoginAttemptsTotal, err = meter.Int64Counter(
		"auth.login.attempts.total",
		metric.WithDescription("Total number of login attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create login.attempts.total counter: %w", err)
	}

	m.LoginDuration, err = meter.Float64Histogram(
		"auth.login.duration",
		metric.WithDescription("Login sequence duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create login.duration histogram: %w", err)
	}

	m.TokensIssued, err = meter.Int64Counter(
		"auth.tokens.issued",
		metric.WithDescription("Number of token pairs issued"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.issued counter: %w", err)
	}

	m.TokensRefreshed, err = meter.Int64Counter(
		"auth.tokens.refreshed",
		metric.WithDescription("Number of access tokens refreshed"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.refreshed counter: %w", err)
	}

	m.TokensRevoked, err = meter.Int64Counter(
		"auth.tokens.revoked",
		metric.WithDescription("Number of tokens revoked"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.revoked counter: %w", err)
	}

	m.LockoutBlocks, err = meter.Int64Counter(
		"auth.lockout.blocks",
		metric.WithDescription("Number of attempts rejected by the login lockout"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lockout.blocks counter: %w", err)
	}

	m.ThrottleRejects, err = meter.Int64Counter(
		"auth.throttle.rejects",
		metric.WithDescription("Number of requests rejected by the request throttle"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create throttle.rejects counter: %w", err)
	}

	m.CSRFRejects, err = meter.Int64Counter(
		"auth.csrf.rejects",
		metric.WithDescription("Number of requests rejected for invalid anti-forgery tokens"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create csrf.rejects counter: %w", err)
	}

	m.SecurityEventsTotal, err = meter.Int64Counter(
		"auth.security.events.total",
		metric.WithDescription("Security events recorded, by type and severity"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security.events.total counter: %w", err)
	}

	m.BlockedKeys, err = meter.Int64ObservableGauge(
		"auth.lockout.blocked_keys",
		metric.WithDescription("Currently blocked IP and user keys"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lockout.blocked_keys gauge: %w", err)
	}

	m.ActiveCSRFTokens, err = meter.Int64ObservableGauge(
		"auth.csrf.active_tokens",
		metric.WithDescription("Issued anti-forgery tokens not yet consumed"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create csrf.active_tokens gauge: %w", err)
	}

	m.RevokedTokens, err = meter.Int64ObservableGauge(
		"auth.tokens.revoked_set_size",
		metric.WithDescription("Current size of the token revocation set"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.revoked_set_size gauge: %w", err)
	}

	return m, nil
}

// RegisterSizeCallbacks wires the observable gauges to live size functions.
// The callbacks must be cheap and lock-free where possible; they run on the
// metric collection path.
func (i *Instrumentation) RegisterSizeCallbacks(blockedKeys, activeCSRF, revokedTokens func() int64) error {
	meter := i.Meter("auth")
	m := i.metrics

	_, err := meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(m.BlockedKeys, blockedKeys())
			o.ObserveInt64(m.ActiveCSRFTokens, activeCSRF())
			o.ObserveInt64(m.RevokedTokens, revokedTokens())
			return nil
		},
		m.BlockedKeys, m.ActiveCSRFTokens, m.RevokedTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to register size callbacks: %w", err)
	}
	return nil
}

// RecordLoginAttempt increments the attempt counter with an outcome attribute.
func (m *Metrics) RecordLoginAttempt(ctx context.Context, outcome string) {
	m.LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordSecurityEvent increments the event counter by type and severity.
func (m *Metrics) RecordSecurityEvent(ctx context.Context, eventType, severity string) {
	m.SecurityEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("severity", severity),
	))
}
