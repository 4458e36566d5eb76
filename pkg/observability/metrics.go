package observability

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics carries the credential-lifecycle counters recorded by the
// service layer.
type AuthMetrics struct {
	Registrations   metric.Int64Counter
	Logins          metric.Int64Counter
	LoginFailures   metric.Int64Counter
	Rotations       metric.Int64Counter
	ReuseDetections metric.Int64Counter
	EmailsQueued    metric.Int64Counter
}

// NewAuthMetrics creates the counter set on the global meter provider.
func NewAuthMetrics(serviceName string) (*AuthMetrics, error) {
	meter := otel.Meter(serviceName)

	registrations, err := meter.Int64Counter("auth_registrations_total",
		metric.WithDescription("Completed user registrations"))
	if err != nil {
		return nil, err
	}

	logins, err := meter.Int64Counter("auth_logins_total",
		metric.WithDescription("Successful logins"))
	if err != nil {
		return nil, err
	}

	loginFailures, err := meter.Int64Counter("auth_login_failures_total",
		metric.WithDescription("Rejected login attempts"))
	if err != nil {
		return nil, err
	}

	rotations, err := meter.Int64Counter("auth_refresh_rotations_total",
		metric.WithDescription("Successful refresh token rotations"))
	if err != nil {
		return nil, err
	}

	reuseDetections, err := meter.Int64Counter("auth_token_reuse_detections_total",
		metric.WithDescription("Refresh secrets presented after rotation or revocation"))
	if err != nil {
		return nil, err
	}

	emailsQueued, err := meter.Int64Counter("auth_emails_queued_total",
		metric.WithDescription("Verification and reset emails handed to the mail queue"))
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		Registrations:   registrations,
		Logins:          logins,
		LoginFailures:   loginFailures,
		Rotations:       rotations,
		ReuseDetections: reuseDetections,
		EmailsQueued:    emailsQueued,
	}, nil
}

// PrometheusHandler returns a Gin handler for Prometheus metrics
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}
