package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global logger instance
	Logger *zap.Logger

	violationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_violations_total",
			Help: "Total number of content violations detected",
		},
		[]string{"reason"},
	)

	warningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_warnings_total",
			Help: "Total number of warnings issued",
		},
	)

	restrictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_restrictions_total",
			Help: "Total number of timed restrictions applied",
		},
		[]string{"kind"},
	)

	restrictionLiftsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_restriction_lifts_total",
			Help: "Total number of restrictions lifted by the reconciler",
		},
		[]string{"kind"},
	)

	messageProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_processing_duration_seconds",
			Help:    "Time spent processing messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init(ctx context.Context, metricsAddr string) error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(violationsTotal)
	prometheus.MustRegister(warningsTotal)
	prometheus.MustRegister(restrictionsTotal)
	prometheus.MustRegister(restrictionLiftsTotal)
	prometheus.MustRegister(messageProcessingDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return nil
}

func RecordViolation(reason string) {
	violationsTotal.WithLabelValues(reason).Inc()
}

func RecordWarning() {
	warningsTotal.Inc()
}

func RecordRestriction(kind string) {
	restrictionsTotal.WithLabelValues(kind).Inc()
}

func RecordRestrictionLift(kind string) {
	restrictionLiftsTotal.WithLabelValues(kind).Inc()
}

// LogDecision writes a structured decision record; a no-op before Init.
func LogDecision(msg string, fields ...zap.Field) {
	if Logger == nil {
		return
	}
	Logger.Info(msg, fields...)
}

// StartMessageProcessing returns a function to record message processing duration
func StartMessageProcessing() func(status string) {
	timer := prometheus.NewTimer(nil)
	return func(status string) {
		messageProcessingDuration.WithLabelValues(status).Observe(timer.ObserveDuration().Seconds())
	}
}
