package observability

import (
	"strings"

	"github.com/smallbiznis/partnerflow/internal/config"
	"github.com/spf13/viper"
)

// Config is the logging and tracing setup shared by every binary.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig layers the OTEL_* and LOG_* environment over the app config.
// Blank variables count as unset.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "partnerflow"
	}

	protocol := lower(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL"))
	if traces := lower(v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:              strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:             lower(v.GetString("LOG_LEVEL")),
		LogFormat:            lower(v.GetString("LOG_FORMAT")),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    clampRatio(v.GetFloat64("OTEL_SAMPLING_RATIO")),
	}
}

// Debug turns on verbose request logging and stack traces.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	}
	return ratio
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
