// Package metrics exposes AgentKit's Prometheus collectors and the /metrics
// handler. Collectors live on a private registry so tests and embedders do
// not collide with the global default registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentkit"

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests processed by the status API.",
	}, []string{"handler", "method", "code"})

	httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Status API request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "method"})

	mentionsReceived = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mentions_received_total",
		Help:      "Mention events decoded from the filtered stream.",
	})

	replies = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replies_total",
		Help:      "Reply attempts by result (success, failed, noop, duplicate).",
	}, []string{"result"})

	modelDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_call_duration_seconds",
		Help:      "Language model completion latency by pipeline step.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
	}, []string{"step"})

	sessionFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_failures_total",
		Help:      "Stream sessions that ended in the FAILED state, by stage.",
	}, []string{"stage"})

	supervisorState = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "supervisor_state",
		Help:      "1 for the supervisor's current state, 0 otherwise.",
	}, []string{"state"})

	swaps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swaps_total",
		Help:      "Swap attempts by result.",
	}, []string{"result"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// MentionReceived counts one decoded mention event.
func MentionReceived() { mentionsReceived.Inc() }

// ReplyFinished counts one terminal reply attempt.
func ReplyFinished(result string) { replies.WithLabelValues(result).Inc() }

// ObserveModelCall records one completion round-trip.
func ObserveModelCall(step string, duration time.Duration) {
	modelDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// SessionFailed counts a failed stream session.
func SessionFailed(stage string) { sessionFailures.WithLabelValues(stage).Inc() }

// SetSupervisorState flips the state gauge so exactly one state reads 1.
func SetSupervisorState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		supervisorState.WithLabelValues(s).Set(v)
	}
}

// SwapFinished counts one swap attempt.
func SwapFinished(result string) { swaps.WithLabelValues(result).Inc() }

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
