package config

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev" validate:"oneof=dev staging prod"`
	Port        int    `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Instagram struct {
		VerifyToken      string `envconfig:"IG_VERIFY_TOKEN"`
		AppSecret        string `envconfig:"IG_APP_SECRET"`
		AccessToken      string `envconfig:"IG_ACCESS_TOKEN"`
		GraphURL         string `envconfig:"IG_GRAPH_URL" default:"https://graph.instagram.com/v21.0" validate:"url"`
		RequireSignature bool   `envconfig:"IG_REQUIRE_SIGNATURE" default:"false"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Dedup struct {
		Window int           `envconfig:"DEDUP_WINDOW" default:"1000" validate:"min=1"`
		TTL    time.Duration `envconfig:"DEDUP_TTL" default:"24h" validate:"min=1m"`
	} `envconfig:""`

	Features struct {
		Transcription bool `envconfig:"ENABLE_TRANSCRIPTION" default:"true"`
		OCR           bool `envconfig:"ENABLE_OCR" default:"true"`
		MediaDownload bool `envconfig:"ENABLE_MEDIA_DOWNLOAD" default:"false"`
	} `envconfig:""`

	Gemini struct {
		APIKey  string        `envconfig:"GEMINI_API_KEY"`
		Model   string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
		Timeout time.Duration `envconfig:"GEMINI_TIMEOUT" default:"30s" validate:"min=1s,max=5m"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_TRANSCRIBE_MODEL" default:"whisper-1"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s" validate:"min=1s,max=10m"`
	} `envconfig:""`

	Enrich struct {
		Concurrent int    `envconfig:"ENRICH_CONCURRENT" default:"1" validate:"min=1,max=16"`
		SweepCron  string `envconfig:"ENRICH_SWEEP_CRON" default:"*/10 * * * *"`
		SweepLimit int    `envconfig:"ENRICH_SWEEP_LIMIT" default:"50" validate:"min=1"`
	} `envconfig:""`

	Queues struct {
		Enrichment string `envconfig:"ENRICH_QUEUE_KEY" default:"enrichment_jobs" validate:"required"`
	} `envconfig:""`
}

// Parse читает конфиг из окружения и валидирует его.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("чтение окружения: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("валидация конфига: %w", err)
	}
	return cfg, nil
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
