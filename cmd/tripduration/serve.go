package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/tripduration/artifact"
	"github.com/signalsfoundry/tripduration/core"
	"github.com/signalsfoundry/tripduration/internal/api"
	"github.com/signalsfoundry/tripduration/internal/artifactstore"
	"github.com/signalsfoundry/tripduration/internal/config"
	"github.com/signalsfoundry/tripduration/internal/logging"
	"github.com/signalsfoundry/tripduration/internal/observability"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP and, optionally, gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Options{
				ConfigFile: root.configFile,
				EnvFile:    root.envFile,
				Flags:      cmd.Flags(),
			})
			if err != nil {
				return err
			}
			log := logging.New(logging.Config{
				Level:     cfg.Log.Level,
				Format:    cfg.Log.Format,
				AddSource: cfg.Log.AddSource,
			})
			return run(cmd.Context(), cfg, log, nil, nil)
		},
	}

	f := cmd.Flags()
	f.String("model", "", "model artifact: local path or s3://bucket/key")
	f.StringSlice("model-features", nil, "ordered feature names for artifacts that do not record them")
	f.String("s3-region", "", "AWS region for s3:// artifacts")
	f.String("http-addr", ":9696", "HTTP listen address; empty disables HTTP")
	f.String("grpc-addr", "", "gRPC listen address; empty disables gRPC")
	f.String("metrics-addr", ":9090", "Prometheus /metrics listen address; empty disables it")
	return cmd
}

// run loads the model and serves until ctx is cancelled. The model is loaded
// before any listener is opened, so a bad artifact never accepts traffic.
// Pre-opened listeners may be supplied; otherwise they are created from cfg.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, httpLis, grpcLis net.Listener) error {
	if log == nil {
		log = logging.Noop()
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	m, err := loadModel(ctx, cfg)
	if err != nil {
		log.Error(ctx, "model load failed", logging.String("path", cfg.Model.Path), logging.Err(err))
		return err
	}
	log.Info(ctx, "model loaded",
		logging.String("path", cfg.Model.Path),
		logging.Any("features", m.Features()),
		logging.Int("trees", m.NumTrees()),
		logging.String("objective", m.Objective()),
		logging.String("xgboost_version", m.Version()),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := observability.NewPredictionCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	collector.SetModelFeatures(len(m.Features()))

	svc, err := core.NewPredictionService(m, log,
		core.WithFieldNames(fieldNames(cfg.Features)),
		core.WithMetrics(collector),
	)
	if err != nil {
		return err
	}
	handler := api.NewRequestHandler(svc, log)

	if httpLis == nil && cfg.HTTP.Addr != "" {
		if httpLis, err = net.Listen("tcp", cfg.HTTP.Addr); err != nil {
			return fmt.Errorf("listen http %s: %w", cfg.HTTP.Addr, err)
		}
	}
	if grpcLis == nil && cfg.GRPC.Addr != "" {
		if grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
			closeListener(httpLis)
			return fmt.Errorf("listen grpc %s: %w", cfg.GRPC.Addr, err)
		}
	}

	errCh := make(chan error, 3)

	var httpSrv *http.Server
	if httpLis != nil {
		httpSrv = &http.Server{
			Handler: api.NewHTTPHandler(handler, log, api.HTTPConfig{
				MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
				Observer:     collector,
			}),
			ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			WriteTimeout:      cfg.HTTP.WriteTimeout,
		}
		log.Info(ctx, "serving HTTP", logging.String("addr", httpLis.Addr().String()))
		go func() {
			if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	var (
		grpcSrv   *grpc.Server
		healthSrv *health.Server
	)
	if grpcLis != nil {
		grpcSrv = grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(
				api.RequestIDUnaryServerInterceptor(log),
				api.TracingUnaryServerInterceptor(),
				collector.UnaryServerInterceptor(),
			),
		)
		api.RegisterPredictionServer(grpcSrv, api.NewPredictionServer(handler, collector))
		healthSrv = health.NewServer()
		healthSrv.SetServingStatus(api.PredictionServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcSrv, healthSrv)

		log.Info(ctx, "serving gRPC", logging.String("addr", grpcLis.Addr().String()))
		go func() {
			if err := grpcSrv.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	metricsSrv := serveMetrics(ctx, cfg.Metrics.Addr, collector, log, errCh)

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down")
	case serveErr = <-errCh:
		log.Error(ctx, "server failed; shutting down", logging.Err(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if healthSrv != nil {
		healthSrv.Shutdown()
	}
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn(ctx, "http shutdown", logging.Err(err))
		}
	}
	if grpcSrv != nil {
		stopGRPC(shutdownCtx, grpcSrv)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return serveErr
}

func loadModel(ctx context.Context, cfg *config.Config) (*artifact.Model, error) {
	var opts []artifact.Option
	if len(cfg.Model.Features) > 0 {
		opts = append(opts, artifact.WithFeatureNames(cfg.Model.Features))
	}
	return artifactstore.New(cfg.Model.S3Region).LoadModel(ctx, cfg.Model.Path, opts...)
}

func fieldNames(f config.FeaturesConfig) core.FieldNames {
	return core.FieldNames{
		PickupLatitude:   f.PickupLatitude,
		PickupLongitude:  f.PickupLongitude,
		DropoffLatitude:  f.DropoffLatitude,
		DropoffLongitude: f.DropoffLongitude,
		Distance:         f.Distance,
		Bearing:          f.Bearing,
	}
}

func serveMetrics(ctx context.Context, addr string, collector *observability.PredictionCollector, log logging.Logger, errCh chan<- error) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// stopGRPC drains in-flight calls, forcing a stop once ctx expires.
func stopGRPC(ctx context.Context, srv *grpc.Server) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
		<-done
	}
}

func closeListener(l net.Listener) {
	if l != nil {
		_ = l.Close()
	}
}
