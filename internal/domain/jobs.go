package domain

import (
	"context"
	"time"
)

// EnrichmentJobCause описывает источник задачи обогащения.
type EnrichmentJobCause string

const (
	// EnrichmentCauseSaved: пост только что сохранён из Direct.
	EnrichmentCauseSaved EnrichmentJobCause = "saved"
)

// EnrichmentJob содержит информацию о задаче обогащения поста.
type EnrichmentJob struct {
	ID          string             `json:"job_id"`
	PostID      string             `json:"post_id"`
	UserID      string             `json:"user_id"`
	RequestedAt time.Time          `json:"requested_at"`
	Cause       EnrichmentJobCause `json:"cause"`
}

// EnrichmentQueue описывает очередь задач на обогащение постов.
type EnrichmentQueue interface {
	Enqueue(ctx context.Context, job EnrichmentJob) error
	Pop(ctx context.Context) (EnrichmentJob, error)
}
