package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/tripduration/internal/logging"
	"github.com/signalsfoundry/tripduration/internal/observability"
)

// RequestIDHeader carries the caller's correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxBodyBytes bounds /predict bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 64 << 10

// RequestObserver receives one call per finished prediction request.
type RequestObserver interface {
	ObserveRequest(transport, outcome string, elapsed time.Duration)
}

// HTTPConfig tunes the HTTP transport.
type HTTPConfig struct {
	MaxBodyBytes int64
	Observer     RequestObserver
}

type httpServer struct {
	handler  *RequestHandler
	log      logging.Logger
	maxBytes int64
	observer RequestObserver
}

// NewHTTPHandler returns the HTTP surface:
//
//	POST /predict[?format=both|seconds|hms]
//	GET  /healthz
//	GET  /model
func NewHTTPHandler(h *RequestHandler, log logging.Logger, cfg HTTPConfig) http.Handler {
	if log == nil {
		log = logging.Noop()
	}
	s := &httpServer{
		handler:  h,
		log:      log,
		maxBytes: cfg.MaxBodyBytes,
		observer: cfg.Observer,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxBodyBytes
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/predict", s.predict)
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/model", s.schema)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Envelope{Error: fmt.Sprintf("no route for %s", r.URL.Path)})
	})
	return s.middleware(mux)
}

// middleware attaches the request id, request logger and a server span.
func (s *httpServer) middleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("github.com/signalsfoundry/tripduration/internal/api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		if id := r.Header.Get(RequestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, s.log.With(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		))
		id := logging.RequestIDFromContext(ctx)
		w.Header().Set(RequestIDHeader, id)

		ctx, span := tracer.Start(ctx, "HTTP "+r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("request_id", id),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
		reqLog.Debug(ctx, "http request served",
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *httpServer) predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{Error: "method not allowed; use POST"})
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			writeJSON(w, http.StatusUnsupportedMediaType, Envelope{Error: "content type must be application/json"})
			return
		}
	}

	start := time.Now()
	resp := s.decodeAndHandle(w, r)
	if resp == nil {
		return
	}
	if s.observer != nil {
		s.observer.ObserveRequest(observability.TransportHTTP, resp.Outcome.String(), time.Since(start))
	}
	writeJSON(w, httpStatus(resp.Outcome), resp.Envelope)
}

// decodeAndHandle returns nil when a transport-level error has already been
// written.
func (s *httpServer) decodeAndHandle(w http.ResponseWriter, r *http.Request) *Response {
	ctx := r.Context()

	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		resp := failure(ValidationFailure, err)
		return &resp
	}

	payload, err := DecodeJSON(http.MaxBytesReader(w, r.Body, s.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, Envelope{
				Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return nil
		}
		resp := failure(ValidationFailure, err)
		logging.FromContext(ctx, s.log).Info(ctx, "undecodable request body", logging.Err(err))
		return &resp
	}

	resp := s.handler.Handle(ctx, payload, format)
	return &resp
}

func (s *httpServer) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{Error: "method not allowed; use GET"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) schema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{Error: "method not allowed; use GET"})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"features": s.handler.Features()})
}

func httpStatus(o Outcome) int {
	switch o {
	case Success:
		return http.StatusOK
	case ValidationFailure:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
