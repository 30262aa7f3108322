package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/tripduration/artifact"
	"github.com/signalsfoundry/tripduration/internal/api"
	"github.com/signalsfoundry/tripduration/internal/batch"
	"github.com/signalsfoundry/tripduration/internal/config"
	"github.com/signalsfoundry/tripduration/internal/logging"
)

const fixtureModel = "../../artifact/testdata/xgb_taxi_trip.json"

func testConfig(modelPath string) *config.Config {
	return &config.Config{
		Model: config.ModelConfig{Path: modelPath},
		HTTP: config.HTTPConfig{
			MaxBodyBytes:    64 << 10,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Log:     config.LogConfig{Level: "warn", Format: "text"},
		Tracing: config.TracingConfig{Exporter: "stdout"},
		Features: config.FeaturesConfig{
			PickupLatitude:   "pickup_latitude",
			PickupLongitude:  "pickup_longitude",
			DropoffLatitude:  "dropoff_latitude",
			DropoffLongitude: "dropoff_longitude",
			Distance:         "distance",
			Bearing:          "bearing",
		},
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	return lis
}

func TestServeStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	httpLis, grpcLis := listen(t), listen(t)
	cfg := testConfig(fixtureModel)
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: &bytes.Buffer{}})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, httpLis, grpcLis)
	}()

	body := `{"passenger_count": 1, "pickup_latitude": 40.7128, "pickup_longitude": -74.0060,
		"dropoff_latitude": 40.7306, "dropoff_longitude": -73.9352}`
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+httpLis.Addr().String()+"/predict", strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /predict: %v", err)
	}
	defer resp.Body.Close()

	var env api.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || env.DurationHMS != "0:09:03" {
		t.Fatalf("POST /predict = %d %+v", resp.StatusCode, env)
	}

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.PredictionServiceName})
	if err != nil || hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v, %v", hc, err)
	}

	in, err := structpb.NewStruct(map[string]any{"passenger_count": 3, "distance": 1000, "bearing": 0})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	out, err := api.Predict(ctx, conn, in)
	if err != nil {
		t.Fatalf("gRPC Predict: %v", err)
	}
	if out.AsMap()["duration_hms"] != "0:03:40" {
		t.Fatalf("gRPC Predict = %v", out.AsMap())
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestServeRefusesBadModel(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing.json"))
	cfg.HTTP.Addr = "127.0.0.1:0"

	err := run(context.Background(), cfg, logging.Noop(), nil, nil)
	if !errors.Is(err, artifact.ErrModelLoad) {
		t.Fatalf("run err = %v, want ErrModelLoad", err)
	}
}

func TestServeCommandRequiresModel(t *testing.T) {
	t.Setenv("TRIPDURATION_MODEL_PATH", "")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--env-file", writeTemp(t, "empty.env", "")})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "model.path") {
		t.Fatalf("serve err = %v, want model.path error", err)
	}
}

func TestDeriveCommand(t *testing.T) {
	in := writeTemp(t, "trips.csv", `id,passenger_count,pickup_longitude,pickup_latitude,dropoff_longitude,dropoff_latitude,trip_duration
a,1,-73.982155,40.767937,-73.964630,40.765602,455
b,2,-73.980415,40.738564,-73.999481,40.731152,663
`)

	t.Run("parquet", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "features.parquet")
		cmd := newRootCmd()
		cmd.SetArgs([]string{"derive", "--in", in, "--out", out, "--no-progress"})
		cmd.SetErr(&bytes.Buffer{})
		if err := cmd.ExecuteContext(context.Background()); err != nil {
			t.Fatalf("derive: %v", err)
		}
		recs, err := batch.ReadParquet(out)
		if err != nil {
			t.Fatalf("ReadParquet: %v", err)
		}
		if len(recs) != 2 || recs[0].Distance <= 0 || recs[1].LogTripDuration == nil {
			t.Fatalf("records = %+v", recs)
		}
	})

	t.Run("csv to stdout", func(t *testing.T) {
		var stdout bytes.Buffer
		cmd := newRootCmd()
		cmd.SetArgs([]string{"derive", "--in", in})
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		if err := cmd.ExecuteContext(context.Background()); err != nil {
			t.Fatalf("derive: %v", err)
		}
		if lines := strings.Split(strings.TrimSpace(stdout.String()), "\n"); len(lines) != 3 {
			t.Fatalf("stdout = %q", stdout.String())
		}
	})

	t.Run("invalid coordinate", func(t *testing.T) {
		bad := writeTemp(t, "bad.csv", "id,pickup_longitude,pickup_latitude,dropoff_longitude,dropoff_latitude\nx,0,95,0,0\n")
		cmd := newRootCmd()
		cmd.SetArgs([]string{"derive", "--in", bad, "--no-progress"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		if err := cmd.ExecuteContext(context.Background()); err == nil {
			t.Fatalf("expected derive to fail")
		}
	})
}

func TestOutputFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		explicit, out, want string
		wantErr             bool
	}{
		{out: "-", want: "csv"},
		{out: "f.PARQUET", want: "parquet"},
		{explicit: "csv", out: "f.parquet", want: "csv"},
		{explicit: "parquet", out: "-", wantErr: true},
		{explicit: "xlsx", out: "f", wantErr: true},
	}
	for _, tc := range tests {
		got, err := outputFormat(tc.explicit, tc.out)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("outputFormat(%q, %q) = %q, %v", tc.explicit, tc.out, got, err)
		}
	}
}

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
