// Package config loads service settings from defaults, an optional config
// file, a .env file, TRIPDURATION_* environment variables and CLI flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. TRIPDURATION_MODEL_PATH.
const EnvPrefix = "TRIPDURATION"

type Config struct {
	Model    ModelConfig    `mapstructure:"model"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Features FeaturesConfig `mapstructure:"features"`
}

type ModelConfig struct {
	// Path is a local file or an s3://bucket/key URI.
	Path string `mapstructure:"path"`
	// Features is the ordered schema for artifacts that do not record one.
	Features []string `mapstructure:"features"`
	S3Region string   `mapstructure:"s3_region"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GRPCConfig leaves the gRPC listener off when Addr is empty.
type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

// MetricsConfig serves /metrics on its own listener; empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// FeaturesConfig renames the coordinate inputs and derived features.
type FeaturesConfig struct {
	PickupLatitude   string `mapstructure:"pickup_latitude"`
	PickupLongitude  string `mapstructure:"pickup_longitude"`
	DropoffLatitude  string `mapstructure:"dropoff_latitude"`
	DropoffLongitude string `mapstructure:"dropoff_longitude"`
	Distance         string `mapstructure:"distance"`
	Bearing          string `mapstructure:"bearing"`
}

var defaults = map[string]any{
	"model.path":                 "",
	"model.features":             []string{},
	"model.s3_region":            "",
	"http.addr":                  ":9696",
	"http.max_body_bytes":        int64(64 << 10),
	"http.read_timeout":          10 * time.Second,
	"http.write_timeout":         10 * time.Second,
	"http.shutdown_timeout":      15 * time.Second,
	"grpc.addr":                  "",
	"metrics.addr":               ":9090",
	"log.level":                  "info",
	"log.format":                 "text",
	"log.add_source":             false,
	"tracing.enabled":            false,
	"tracing.service_name":       "tripduration",
	"tracing.exporter":           "stdout",
	"tracing.endpoint":           "",
	"tracing.sample_ratio":       1.0,
	"features.pickup_latitude":   "pickup_latitude",
	"features.pickup_longitude":  "pickup_longitude",
	"features.dropoff_latitude":  "dropoff_latitude",
	"features.dropoff_longitude": "dropoff_longitude",
	"features.distance":          "distance",
	"features.bearing":           "bearing",
}

// FlagKeys maps CLI flag names to configuration keys. Only flags present in
// the supplied FlagSet are bound, and only when set explicitly.
var FlagKeys = map[string]string{
	"model":          "model.path",
	"model-features": "model.features",
	"s3-region":      "model.s3_region",
	"http-addr":      "http.addr",
	"grpc-addr":      "grpc.addr",
	"metrics-addr":   "metrics.addr",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// Options tells Load where to look.
type Options struct {
	// ConfigFile is a YAML, JSON or TOML file. Empty skips file loading.
	ConfigFile string
	// EnvFile is loaded into the process environment without overriding
	// variables that are already set. Empty tries ./.env and ignores its
	// absence.
	EnvFile string
	Flags   *pflag.FlagSet
}

// Load resolves the configuration and validates it.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Model.Features = trimAll(cfg.Model.Features)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Model.Path) == "":
		return errors.New("model.path is required")
	case c.HTTP.Addr == "" && c.GRPC.Addr == "":
		return errors.New("at least one of http.addr and grpc.addr must be set")
	case c.HTTP.MaxBodyBytes <= 0:
		return fmt.Errorf("http.max_body_bytes must be positive, got %d", c.HTTP.MaxBodyBytes)
	case c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1:
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "stdout", "otlp", "otlpgrpc":
	default:
		return fmt.Errorf("tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter)
	}

	seen := make(map[string]string)
	for _, f := range []struct{ key, name string }{
		{"pickup_latitude", c.Features.PickupLatitude},
		{"pickup_longitude", c.Features.PickupLongitude},
		{"dropoff_latitude", c.Features.DropoffLatitude},
		{"dropoff_longitude", c.Features.DropoffLongitude},
		{"distance", c.Features.Distance},
		{"bearing", c.Features.Bearing},
	} {
		key, name := f.key, f.name
		if name == "" {
			return fmt.Errorf("features.%s must not be empty", key)
		}
		if other, dup := seen[name]; dup {
			return fmt.Errorf("features.%s and features.%s both use %q", key, other, name)
		}
		seen[name] = key
	}
	return nil
}
