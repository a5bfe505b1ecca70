package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//go:generate mockgen -source=metrics.go -destination=mock/metrics_mock.go -package=mock
type Recorder interface {
	SubmissionDecided(decision string)
	RateLimitBlocked()
	MotionViolation()
	DeviceTrustFailed()
}

type PrometheusRecorder struct {
	submissions      *prometheus.CounterVec
	rateLimitBlocks  prometheus.Counter
	motionViolations prometheus.Counter
	deviceTrustFails prometheus.Counter
}

func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_submissions_total",
			Help: "Presence submissions by terminal decision.",
		}, []string{"decision"}),
		rateLimitBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_rate_limit_blocks_total",
			Help: "Submissions rejected by the sliding-window rate limiter.",
		}),
		motionViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_motion_violations_total",
			Help: "Submissions with a teleport or over-speed violation.",
		}),
		deviceTrustFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_device_trust_failures_total",
			Help: "Submissions rejected by the device trust evaluator.",
		}),
	}
}

func (r *PrometheusRecorder) SubmissionDecided(decision string) {
	r.submissions.WithLabelValues(decision).Inc()
}

func (r *PrometheusRecorder) RateLimitBlocked() {
	r.rateLimitBlocks.Inc()
}

func (r *PrometheusRecorder) MotionViolation() {
	r.motionViolations.Inc()
}

func (r *PrometheusRecorder) DeviceTrustFailed() {
	r.deviceTrustFails.Inc()
}

// Nop is used in tests and in binaries that do not expose /metrics.
type Nop struct{}

func (Nop) SubmissionDecided(string) {}
func (Nop) RateLimitBlocked()        {}
func (Nop) MotionViolation()         {}
func (Nop) DeviceTrustFailed()       {}
