package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	OTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_requests_total",
			Help: "Total number of OTP delivery requests.",
		},
		[]string{"service", "channel", "result"},
	)

	OTPVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "Total number of OTP verification attempts.",
		},
		[]string{"service", "result"},
	)

	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_delivery_attempts_total",
			Help: "Total number of provider delivery calls.",
		},
		[]string{"service", "provider", "outcome"},
	)

	ProviderHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otp_provider_healthy",
			Help: "Provider health as reported by the service registry (1 healthy, 0 unhealthy).",
		},
		[]string{"service", "provider"},
	)

	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the sliding-window limiter.",
		},
		[]string{"service", "operation"},
	)

	AuthenticationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authentication_attempts_total",
			Help: "Total number of bearer-token validations.",
		},
		[]string{"service", "method", "result"},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName}).(*prometheus.HistogramVec)
	OTPRequestsTotal = OTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	OTPVerificationsTotal = OTPVerificationsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	DeliveryAttemptsTotal = DeliveryAttemptsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	ProviderHealthy = ProviderHealthy.MustCurryWith(prometheus.Labels{"service": serviceName})
	RateLimitRejectionsTotal = RateLimitRejectionsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	AuthenticationAttemptsTotal = AuthenticationAttemptsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		OTPRequestsTotal,
		OTPVerificationsTotal,
		DeliveryAttemptsTotal,
		ProviderHealthy,
		RateLimitRejectionsTotal,
		AuthenticationAttemptsTotal,
	)
}
