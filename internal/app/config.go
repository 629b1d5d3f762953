package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/genflow-backend/internal/data/db"
	"github.com/yungbote/genflow-backend/internal/jobs/sweeper"
	"github.com/yungbote/genflow-backend/internal/observability"
	"github.com/yungbote/genflow-backend/internal/platform/envutil"
	"github.com/yungbote/genflow-backend/internal/platform/flowengine"
	"github.com/yungbote/genflow-backend/internal/services"
)

type Config struct {
	Port           string
	LogMode        string
	Environment    string
	DB             db.Config
	Engine         flowengine.Config
	Orchestration  services.OrchestrationConfig
	PlansPath      string
	CallbackSecret string
	JWTSecretKey   string
	AdminAPIKey    string
	RedisAddr      string
	RedisChannel   string
	Sweep          sweeper.Config
	SweepEnabled   bool
	MetricsEnabled bool
	Otel           observability.OtelConfig
	CORSOrigins    []string
	AutoMigrate    bool
}

func LoadConfig() Config {
	port := envutil.String("PORT", "8080")
	env := envutil.String("APP_ENV", "development")
	return Config{
		Port:        port,
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: env,
		DB: db.Config{
			Driver:     envutil.String("DB_DRIVER", "postgres"),
			Host:       envutil.String("POSTGRES_HOST", "localhost"),
			Port:       envutil.String("POSTGRES_PORT", "5432"),
			User:       envutil.String("POSTGRES_USER", "postgres"),
			Password:   envutil.String("POSTGRES_PASSWORD", ""),
			Name:       envutil.String("POSTGRES_NAME", "genflow"),
			SSLMode:    envutil.String("POSTGRES_SSLMODE", "disable"),
			SQLitePath: envutil.String("SQLITE_PATH", "genflow.db"),
		},
		Engine: flowengine.Config{
			BaseURL:           envutil.String("FLOW_ENGINE_BASE_URL", ""),
			APIKey:            envutil.String("FLOW_ENGINE_API_KEY", ""),
			APIKeyHeader:      envutil.String("FLOW_ENGINE_API_KEY_HEADER", "X-API-Key"),
			Timeout:           envutil.Duration("FLOW_ENGINE_TIMEOUT", 10*time.Second),
			RequestsPerSecond: envutil.Float("FLOW_ENGINE_RPS", 5),
			Burst:             envutil.Int("FLOW_ENGINE_BURST", 5),
		},
		Orchestration: services.OrchestrationConfig{
			GenerationTimeout: envutil.Duration("GENERATION_TIMEOUT", 15*time.Minute),
			EngineCallTimeout: envutil.Duration("FLOW_ENGINE_TIMEOUT", 10*time.Second),
			CallbackURL:       envutil.String("CALLBACK_URL", "http://localhost:"+port+"/api/webhooks/flow-engine"),
		},
		PlansPath:      envutil.String("PLANS_CONFIG", ""),
		CallbackSecret: envutil.String("CALLBACK_SECRET", ""),
		JWTSecretKey:   envutil.String("JWT_SECRET_KEY", ""),
		AdminAPIKey:    envutil.String("ADMIN_API_KEY", ""),
		RedisAddr:      envutil.String("REDIS_ADDR", ""),
		RedisChannel:   envutil.String("REDIS_CHANNEL", "generations"),
		Sweep: sweeper.Config{
			ReapSchedule:   envutil.String("SWEEP_SCHEDULE", "@every 1m"),
			PollSchedule:   envutil.String("POLL_SCHEDULE", "@every 30s"),
			PollStaleAfter: envutil.Duration("POLL_STALE_AFTER", 2*time.Minute),
			PollBatch:      envutil.Int("POLL_BATCH", 50),
			LockTTL:        envutil.Duration("SWEEP_LOCK_TTL", 50*time.Second),
		},
		SweepEnabled:   envutil.Bool("SWEEP_ENABLED", true),
		MetricsEnabled: envutil.Bool("METRICS_ENABLED", false),
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "genflow"),
			Environment: env,
			Version:     envutil.String("APP_VERSION", "dev"),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1),
		},
		CORSOrigins: envutil.List("CORS_ORIGINS", nil),
		AutoMigrate: envutil.Bool("DB_AUTO_MIGRATE", true),
	}
}

// Validate checks what serving needs; the reap and migrate commands only
// need the database.
func (c Config) Validate() error {
	var problems []string
	if err := flowengine.ValidateConfig(c.Engine); err != nil {
		problems = append(problems, err.Error())
	}
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		problems = append(problems, "JWT_SECRET_KEY is required")
	}
	if strings.TrimSpace(c.Orchestration.CallbackURL) == "" {
		problems = append(problems, "CALLBACK_URL is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
