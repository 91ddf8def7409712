package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/usecase/enrich"
)

type chanQueue struct {
	jobs chan domain.EnrichmentJob
	errs int
}

func (q *chanQueue) Enqueue(_ context.Context, job domain.EnrichmentJob) error {
	q.jobs <- job
	return nil
}

func (q *chanQueue) Pop(ctx context.Context) (domain.EnrichmentJob, error) {
	if q.errs > 0 {
		q.errs--
		return domain.EnrichmentJob{}, errors.New("redis unavailable")
	}
	select {
	case <-ctx.Done():
		return domain.EnrichmentJob{}, ctx.Err()
	case job := <-q.jobs:
		return job, nil
	}
}

type stubEnricher struct {
	enriched chan string
	pending  []enrich.Result
	limit    int
}

func (s *stubEnricher) EnrichByID(_ context.Context, postID string) (enrich.Result, error) {
	s.enriched <- postID
	if postID == "missing" {
		return enrich.Result{}, domain.ErrNotFound
	}
	return enrich.Result{PostID: postID, Status: domain.StatusCompleted}, nil
}

func (s *stubEnricher) EnrichPending(_ context.Context, limit, _ int) ([]enrich.Result, error) {
	s.limit = limit
	return s.pending, nil
}

func TestJobWorkerProcessesQueue(t *testing.T) {
	q := &chanQueue{jobs: make(chan domain.EnrichmentJob, 4), errs: 1}
	svc := &stubEnricher{enriched: make(chan string, 4)}
	w := &jobWorker{queue: q, service: svc, log: zerolog.Nop(), backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	_ = q.Enqueue(ctx, domain.EnrichmentJob{ID: "j1", PostID: "missing"})
	_ = q.Enqueue(ctx, domain.EnrichmentJob{ID: "j2", PostID: "p2"})
	for _, want := range []string{"missing", "p2"} {
		select {
		case got := <-svc.enriched:
			if got != want {
				t.Fatalf("ожидали пост %s, получили %s", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("воркер не обработал пост %s", want)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("воркер не остановился после отмены контекста")
	}
}

func TestSweeperUsesLimit(t *testing.T) {
	svc := &stubEnricher{pending: []enrich.Result{{Status: domain.StatusCompleted}, {Status: domain.StatusFailed}}}
	s := &sweeper{service: svc, limit: 25, concurrent: 2, log: zerolog.Nop()}
	s.Run(context.Background())
	if svc.limit != 25 {
		t.Fatalf("ожидали лимит 25, получили %d", svc.limit)
	}
}
