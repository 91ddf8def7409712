package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"ig-digest-bot/internal/adapters/ocr"
	"ig-digest-bot/internal/adapters/repo"
	"ig-digest-bot/internal/adapters/transcriber"
	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/infra/cache"
	"ig-digest-bot/internal/infra/config"
	"ig-digest-bot/internal/infra/db"
	applog "ig-digest-bot/internal/infra/log"
	"ig-digest-bot/internal/infra/metrics"
	"ig-digest-bot/internal/infra/openai"
	"ig-digest-bot/internal/infra/queue"
	"ig-digest-bot/internal/usecase/enrich"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	if cfg.PGDSN == "" {
		logger.Fatal().Msg("enricher: не указан адрес БД (PG_DSN)")
	}
	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Fatal().Err(err).Msg("enricher: миграции не применены")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("enricher: нет подключения к БД")
	}
	defer pool.Close()
	posts := repo.NewPostgres(pool)

	var ocrProvider domain.OCRProvider
	if cfg.Features.OCR {
		gemini, err := ocr.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout, applog.Component(logger, "ocr"))
		switch {
		case errors.Is(err, ocr.ErrProviderDisabled):
			logger.Error().Msg("enricher: OCR включён, но GEMINI_API_KEY не задан")
		case err != nil:
			logger.Fatal().Err(err).Msg("enricher: не удалось создать OCR провайдер")
		default:
			ocrProvider = gemini
		}
	}

	var transcriptionProvider domain.TranscriptionProvider
	if cfg.Features.Transcription && cfg.OpenAI.APIKey != "" {
		client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		transcriptionProvider = transcriber.NewWhisper(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout, applog.Component(logger, "transcriber"))
	}

	service := enrich.NewService(posts, ocrProvider, transcriptionProvider, enrich.Features{
		Transcription: cfg.Features.Transcription,
		OCR:           cfg.Features.OCR,
		MediaDownload: cfg.Features.MediaDownload,
	}, applog.Component(logger, "enrich"))

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		logger.Fatal().Err(err).Msg("enricher: не удалось создать планировщик")
	}
	sweep := &sweeper{
		service:    service,
		limit:      cfg.Enrich.SweepLimit,
		concurrent: cfg.Enrich.Concurrent,
		log:        applog.Component(logger, "sweep"),
	}
	if _, err := scheduler.NewJob(
		gocron.CronJob(cfg.Enrich.SweepCron, false),
		gocron.NewTask(sweep.Run, ctx),
		gocron.WithName("enrich_pending_sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Enrich.SweepCron).Msg("enricher: некорректное расписание обхода")
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("enricher: планировщик остановлен с ошибкой")
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("enricher: нет подключения к Redis")
		}
		defer client.Close()
		jobs := queue.NewRedisEnrichmentQueue(client, cfg.Queues.Enrichment)
		for i := 0; i < cfg.Enrich.Concurrent; i++ {
			w := &jobWorker{
				queue:   jobs,
				service: service,
				log:     applog.Component(logger, "worker").With().Int("worker", i).Logger(),
			}
			g.Go(func() error {
				w.Run(gCtx)
				return nil
			})
		}
		logger.Info().Int("workers", cfg.Enrich.Concurrent).Msg("enricher: запуск обработки очереди")
	} else {
		logger.Warn().Msg("enricher: REDIS_ADDR не задан, посты обогащаются только обходом по расписанию")
	}

	<-ctx.Done()
	_ = g.Wait()
	logger.Info().Msg("enricher: остановлен")
}
