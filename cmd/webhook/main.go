package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ig-digest-bot/internal/adapters/instagram"
	"ig-digest-bot/internal/adapters/repo"
	"ig-digest-bot/internal/adapters/webhook"
	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/infra/cache"
	"ig-digest-bot/internal/infra/config"
	"ig-digest-bot/internal/infra/db"
	httpinfra "ig-digest-bot/internal/infra/http"
	applog "ig-digest-bot/internal/infra/log"
	"ig-digest-bot/internal/infra/metrics"
	"ig-digest-bot/internal/infra/queue"
	"ig-digest-bot/internal/usecase/onboarding"
)

type stores struct {
	users domain.UserRepo
	auth  domain.AuthRepo
	posts domain.PostRepo
}

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st stores
	if cfg.PGDSN != "" {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Fatal().Err(err).Msg("webhook: миграции не применены")
		}
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("webhook: нет подключения к БД")
		}
		defer pool.Close()
		pg := repo.NewPostgres(pool)
		st = stores{users: pg, auth: pg, posts: pg}
	} else {
		logger.Warn().Msg("webhook: PG_DSN не задан, данные хранятся в памяти")
		mem := repo.NewMemory()
		st = stores{users: mem, auth: mem, posts: mem}
	}

	var (
		dedup domain.MessageDeduplicator
		jobs  domain.EnrichmentQueue
	)
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("webhook: нет подключения к Redis")
		}
		defer client.Close()
		dedup = cache.NewRedisDeduplicator(client, cfg.Dedup.TTL)
		jobs = queue.NewRedisEnrichmentQueue(client, cfg.Queues.Enrichment)
	} else {
		logger.Warn().Int("window", cfg.Dedup.Window).Msg("webhook: REDIS_ADDR не задан, дедупликация только в памяти процесса")
		dedup = cache.NewMemoryDeduplicator(cfg.Dedup.Window)
	}

	if cfg.Instagram.AppSecret == "" {
		logger.Warn().Msg("webhook: IG_APP_SECRET не задан, подписанные запросы будут отклонены")
	}
	igClient := instagram.NewClient(cfg.Instagram.AccessToken, cfg.Instagram.GraphURL, 10*time.Second, applog.Component(logger, "instagram"))

	onboardingService := onboarding.NewService(st.users, st.auth, st.posts, igClient, igClient, jobs, applog.Component(logger, "onboarding"))
	handler := webhook.NewHandler(webhook.Config{
		VerifyToken:      cfg.Instagram.VerifyToken,
		AppSecret:        cfg.Instagram.AppSecret,
		RequireSignature: cfg.Instagram.RequireSignature,
	}, dedup, onboardingService, applog.Component(logger, "webhook"))

	server := httpinfra.NewServer(applog.Component(logger, "http"))
	server.Router.Mount("/webhook", handler.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("webhook: HTTP сервер остановлен")
		}
	}

	logger.Info().Msg("webhook: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("webhook: graceful shutdown failed")
	}
}
