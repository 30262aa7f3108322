package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Transport labels used on request metrics.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// PredictionCollector bundles the Prometheus metrics of the prediction
// service and the helpers that feed them from HTTP and gRPC.
type PredictionCollector struct {
	gatherer prometheus.Gatherer

	Requests         *prometheus.CounterVec
	RequestDurations *prometheus.HistogramVec

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	PredictedDuration prometheus.Histogram
	ModelFeatures     prometheus.Gauge
}

// NewPredictionCollector registers the service metrics against reg, falling
// back to the global registry when reg is nil. Registering twice against the
// same registry reuses the existing collectors.
func NewPredictionCollector(reg prometheus.Registerer) (*PredictionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prediction_requests_total",
		Help: "Prediction requests by transport and terminal outcome.",
	}, []string{"transport", "outcome"}), "prediction_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prediction_request_duration_seconds",
		Help:    "End-to-end prediction request latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"transport"}), "prediction_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	rpcRequests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grpc_server_requests_total",
		Help: "Handled gRPC calls by service, method and status code.",
	}, []string{"service", "method", "code"}), "grpc_server_requests_total")
	if err != nil {
		return nil, err
	}

	rpcDurations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grpc_server_request_duration_seconds",
		Help:    "gRPC call latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"service", "method"}), "grpc_server_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	// Buckets span 1 minute to roughly 4.5 hours.
	predicted, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "predicted_trip_duration_seconds",
		Help:    "Distribution of predicted trip durations.",
		Buckets: prometheus.ExponentialBuckets(60, 2, 9),
	}), "predicted_trip_duration_seconds")
	if err != nil {
		return nil, err
	}

	features, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "model_features",
		Help: "Number of features in the loaded model schema.",
	}), "model_features")
	if err != nil {
		return nil, err
	}

	return &PredictionCollector{
		gatherer:          gatherer,
		Requests:          requests,
		RequestDurations:  durations,
		RPCRequests:       rpcRequests,
		RPCDurations:      rpcDurations,
		PredictedDuration: predicted,
		ModelFeatures:     features,
	}, nil
}

// ObserveRequest records one finished prediction request.
func (c *PredictionCollector) ObserveRequest(transport, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(transport, outcome).Inc()
	c.RequestDurations.WithLabelValues(transport).Observe(elapsed.Seconds())
}

// ObservePrediction records a successful predicted duration in seconds.
func (c *PredictionCollector) ObservePrediction(seconds float64) {
	if c == nil {
		return
	}
	c.PredictedDuration.Observe(seconds)
}

// SetModelFeatures publishes the size of the loaded feature schema.
func (c *PredictionCollector) SetModelFeatures(n int) {
	if c == nil {
		return
	}
	c.ModelFeatures.Set(float64(n))
}

// UnaryServerInterceptor records call counts and latencies for unary RPCs.
func (c *PredictionCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *PredictionCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod splits "/pkg.Service/Method" into its short service and method
// names, returning "unknown" for parts it cannot find.
func SplitMethod(fullMethod string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service, method := parts[len(parts)-2], parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
		err = fmt.Errorf("collector %s already registered with incompatible type", name)
	}
	var zero C
	return zero, err
}
