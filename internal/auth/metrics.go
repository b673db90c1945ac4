package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the authentication flows. Results are internal labels only;
// they are never reflected in responses.
var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agenda_auth_login_attempts_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	resetRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agenda_auth_reset_requests_total",
		Help: "Forgot-password requests by result",
	}, []string{"result"})

	resetConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agenda_auth_reset_confirmations_total",
		Help: "Reset-password confirmations by result",
	}, []string{"result"})

	gateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agenda_auth_gate_rejections_total",
		Help: "Requests rejected by the session gate by reason",
	}, []string{"reason"})

	expiredResetTokensSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agenda_auth_expired_reset_tokens_swept_total",
		Help: "Expired reset tokens removed by the background sweeper",
	})
)
