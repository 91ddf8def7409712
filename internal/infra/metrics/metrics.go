package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "События вебхука Instagram по типу обработки",
	}, []string{"kind"})
	WebhookSignatureFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_signature_failures_total",
		Help: "Запросы вебхука с неверной подписью",
	})
	DedupHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_dedup_hits_total",
		Help: "Повторные доставки сообщений, отброшенные дедупликатором",
	})
	OnboardingTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onboarding_transitions_total",
		Help: "Переходы состояний онбординга",
	}, []string{"from", "to"})
	SendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "instagram_send_errors_total",
		Help: "Ошибки отправки сообщений в Direct",
	})
	PostsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posts_saved_total",
		Help: "Сохранённые посты из Direct",
	})
	EnrichmentOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichment_outcomes_total",
		Help: "Итоги обогащения постов",
	}, []string{"status"})
	EnrichmentSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrichment_seconds",
		Help:    "Время обогащения одного поста",
		Buckets: prometheus.DefBuckets,
	})
	OCRImages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_images_total",
		Help: "Изображения, прошедшие OCR",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		WebhookEvents,
		WebhookSignatureFailures,
		DedupHits,
		OnboardingTransitions,
		SendErrors,
		PostsSaved,
		EnrichmentOutcomes,
		EnrichmentSeconds,
		OCRImages,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveTransition учитывает переход состояния онбординга.
func ObserveTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	if to == "" {
		to = "none"
	}
	OnboardingTransitions.WithLabelValues(from, to).Inc()
}
