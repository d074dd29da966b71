package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "ratings_auth"

// Outcome labels shared by the auth counters.
const (
	OutcomeSuccess     = "success"
	OutcomeIncomplete  = "incomplete"
	OutcomeExpired     = "expired"
	OutcomeBadSig      = "invalid_signature"
	OutcomeInvalidCode = "invalid_code"
	OutcomeThrottled   = "throttled"
	OutcomeMalformed   = "malformed"
	OutcomeStoreError  = "store_error"
)

// AuthMetricsOptions configures the auth outcome collectors.
type AuthMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// AuthMetrics counts trust-boundary decisions. A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	handoffs           *prometheus.CounterVec
	codesIssued        *prometheus.CounterVec
	codeConsumes       *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
	logins             *prometheus.CounterVec
}

// NewAuthMetrics registers the collectors, reusing any that are already registered.
func NewAuthMetrics(opts AuthMetricsOptions) (*AuthMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &AuthMetrics{}
	var err error

	if m.handoffs, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sso",
		Name:      "handoffs_total",
		Help:      "Signed handoff attempts partitioned by outcome.",
	}, "outcome"); err != nil {
		return nil, err
	}

	if m.codesIssued, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "email_code",
		Name:      "issued_total",
		Help:      "Verification codes issued partitioned by purpose.",
	}, "purpose"); err != nil {
		return nil, err
	}

	if m.codeConsumes, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "email_code",
		Name:      "consumes_total",
		Help:      "Verification code consume attempts partitioned by purpose and outcome.",
	}, "purpose", "outcome"); err != nil {
		return nil, err
	}

	if m.tokenVerifications, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "token",
		Name:      "verifications_total",
		Help:      "Session token verifications partitioned by outcome.",
	}, "outcome"); err != nil {
		return nil, err
	}

	if m.logins, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts partitioned by method and status.",
	}, "method", "status"); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *AuthMetrics) ObserveHandoff(outcome string) {
	if m == nil {
		return
	}
	m.handoffs.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) ObserveCodeIssued(purpose string) {
	if m == nil {
		return
	}
	m.codesIssued.WithLabelValues(purpose).Inc()
}

func (m *AuthMetrics) ObserveCodeConsume(purpose, outcome string) {
	if m == nil {
		return
	}
	m.codeConsumes.WithLabelValues(purpose, outcome).Inc()
}

func (m *AuthMetrics) ObserveTokenVerification(outcome string) {
	if m == nil {
		return
	}
	m.tokenVerifications.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) ObserveLogin(method, status string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, status).Inc()
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, fmt.Errorf("existing %s collector has unexpected type %T", opts.Name, already.ExistingCollector)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("register %s collector: %w", opts.Name, err)
	}
	return vec, nil
}
