package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/usecase/enrich"
)

type postEnricher interface {
	EnrichByID(ctx context.Context, postID string) (enrich.Result, error)
	EnrichPending(ctx context.Context, limit, concurrent int) ([]enrich.Result, error)
}

// jobWorker читает задачи из очереди и обогащает посты по одному.
type jobWorker struct {
	queue   domain.EnrichmentQueue
	service postEnricher
	log     zerolog.Logger
	backoff time.Duration
}

func (w *jobWorker) Run(ctx context.Context) {
	backoff := w.backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		w.handle(ctx, job)
	}
}

func (w *jobWorker) handle(ctx context.Context, job domain.EnrichmentJob) {
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Str("post_id", job.PostID).
		Str("cause", string(job.Cause)).
		Logger()

	res, err := w.service.EnrichByID(ctx, job.PostID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		jobLog.Warn().Msg("пост не найден, задача пропущена")
	case err != nil:
		jobLog.Error().Err(err).Msg("обогащение не выполнено")
	default:
		jobLog.Info().
			Str("status", string(res.Status)).
			Str("confidence", string(res.Confidence)).
			Dur("queued_for", time.Since(job.RequestedAt)).
			Msg("задача обработана")
	}
}

// sweeper периодически добирает посты, оставшиеся в pending.
type sweeper struct {
	service    postEnricher
	limit      int
	concurrent int
	log        zerolog.Logger
}

func (s *sweeper) Run(ctx context.Context) {
	results, err := s.service.EnrichPending(ctx, s.limit, s.concurrent)
	if err != nil {
		s.log.Error().Err(err).Int("processed", len(results)).Msg("обход pending постов прерван")
		return
	}
	if len(results) == 0 {
		return
	}
	failed := 0
	for _, r := range results {
		if r.Status == domain.StatusFailed {
			failed++
		}
	}
	s.log.Info().Int("processed", len(results)).Int("failed", failed).Msg("обход pending постов завершён")
}
