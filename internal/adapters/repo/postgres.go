package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo = (*Postgres)(nil)
	_ domain.AuthRepo = (*Postgres)(nil)
	_ domain.PostRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const userColumns = `id, instagram_user_id, instagram_username, onboarding_state, email, digest_time, digest_enabled, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user     domain.User
		username sql.NullString
		state    sql.NullString
		digestAt sql.NullString
	)
	err := row.Scan(&user.ID, &user.InstagramUserID, &username, &state, &user.Email, &digestAt, &user.DigestEnabled, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	user.InstagramUsername = username.String
	user.OnboardingState = domain.ParseOnboardingState(state.String)
	user.DigestTime = digestAt.String
	return user, nil
}

// FindByInstagramID возвращает пользователя по Instagram ID.
func (p *Postgres) FindByInstagramID(ctx context.Context, instagramUserID string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	user, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE instagram_user_id=$1`, instagramUserID))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "users_find_by_ig", "users", start, nil)
		return domain.User{}, domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "users_find_by_ig", "users", start, err)
	if err != nil {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// Create сохраняет нового пользователя. При гонке двух первых сообщений
// возвращает уже созданную запись.
func (p *Postgres) Create(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	start := time.Now()
	created, err := scanUser(p.pool.QueryRow(ctx, `
INSERT INTO users (id, instagram_user_id, instagram_username, onboarding_state, email, digest_time, digest_enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+userColumns,
		user.ID, user.InstagramUserID, nullString(user.InstagramUsername), nullString(user.OnboardingState.String()),
		user.Email, nullString(user.DigestTime), user.DigestEnabled))
	metrics.ObserveNetworkRequest("postgres", "users_insert", "users", start, err)
	if isUniqueViolation(err) {
		return p.FindByInstagramID(ctx, user.InstagramUserID)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

// UpdateUser меняет только переданные поля пользователя.
func (p *Postgres) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) error {
	var set setBuilder
	if upd.InstagramUsername != nil {
		set.add("instagram_username", nullString(*upd.InstagramUsername))
	}
	if upd.OnboardingState != nil {
		set.add("onboarding_state", nullString(upd.OnboardingState.String()))
	}
	if upd.Email != nil {
		set.add("email", *upd.Email)
	}
	if upd.DigestTime != nil {
		set.add("digest_time", nullString(*upd.DigestTime))
	}
	if upd.DigestEnabled != nil {
		set.add("digest_enabled", *upd.DigestEnabled)
	}
	return p.update(ctx, "users", id, set)
}

// UpdateEmail синхронизирует email учётной записи.
func (p *Postgres) UpdateEmail(ctx context.Context, userID, email string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO auth_accounts (user_id, email, updated_at) VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email, updated_at = now()
`, userID, email)
	metrics.ObserveNetworkRequest("postgres", "auth_upsert_email", "auth_accounts", start, err)
	if err != nil {
		return fmt.Errorf("upsert auth email: %w", err)
	}
	return nil
}

const postColumns = `id, user_id, instagram_post_id, instagram_url, post_type, caption, author_username, media_urls, thumbnail_url,
transcript_text, ocr_text, sources_used, content_confidence, processing_status, processing_error, enrichment_completed_at, created_at, updated_at`

func scanPost(row pgx.Row) (domain.SavedPost, error) {
	var (
		post        domain.SavedPost
		postType    sql.NullString
		caption     sql.NullString
		author      sql.NullString
		thumbnail   sql.NullString
		transcript  sql.NullString
		ocrText     sql.NullString
		procError   sql.NullString
		sources     []byte
		completedAt sql.NullTime
		confidence  string
		status      string
	)
	err := row.Scan(&post.ID, &post.UserID, &post.InstagramPostID, &post.InstagramURL, &postType, &caption, &author,
		&post.MediaURLs, &thumbnail, &transcript, &ocrText, &sources, &confidence, &status, &procError,
		&completedAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return domain.SavedPost{}, err
	}
	post.PostType = domain.PostType(postType.String)
	post.Caption = caption.String
	post.AuthorUsername = author.String
	post.ThumbnailURL = thumbnail.String
	post.TranscriptText = transcript.String
	post.OCRText = ocrText.String
	post.ProcessingError = procError.String
	post.ContentConfidence = domain.Confidence(confidence)
	post.ProcessingStatus = domain.ProcessingStatus(status)
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &post.SourcesUsed); err != nil {
			return domain.SavedPost{}, fmt.Errorf("decode sources_used: %w", err)
		}
	}
	if completedAt.Valid {
		ts := completedAt.Time
		post.EnrichmentCompletedAt = &ts
	}
	return post, nil
}

// FindByUserAndInstagramPostID ищет пост пользователя по внешнему ID.
func (p *Postgres) FindByUserAndInstagramPostID(ctx context.Context, userID, instagramPostID string) (domain.SavedPost, error) {
	return p.findPost(ctx, "posts_find_by_ig", `SELECT `+postColumns+` FROM saved_posts WHERE user_id=$1 AND instagram_post_id=$2`, userID, instagramPostID)
}

// GetByID возвращает пост по ID.
func (p *Postgres) GetByID(ctx context.Context, id string) (domain.SavedPost, error) {
	return p.findPost(ctx, "posts_get", `SELECT `+postColumns+` FROM saved_posts WHERE id=$1`, id)
}

func (p *Postgres) findPost(ctx context.Context, op, query string, args ...any) (domain.SavedPost, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	post, err := scanPost(p.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", op, "saved_posts", start, nil)
		return domain.SavedPost{}, domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("postgres", op, "saved_posts", start, err)
	if err != nil {
		return domain.SavedPost{}, fmt.Errorf("select post: %w", err)
	}
	return post, nil
}

// Insert сохраняет новый пост.
func (p *Postgres) Insert(ctx context.Context, post domain.SavedPost) (domain.SavedPost, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.MediaURLs == nil {
		post.MediaURLs = []string{}
	}
	if post.ProcessingStatus == "" {
		post.ProcessingStatus = domain.StatusPending
	}
	if post.ContentConfidence == "" {
		post.ContentConfidence = domain.ConfidenceLow
	}
	sources, err := json.Marshal(post.SourcesUsed)
	if err != nil {
		return domain.SavedPost{}, fmt.Errorf("encode sources_used: %w", err)
	}

	start := time.Now()
	created, err := scanPost(p.pool.QueryRow(ctx, `
INSERT INTO saved_posts (id, user_id, instagram_post_id, instagram_url, post_type, caption, author_username, media_urls,
	thumbnail_url, sources_used, content_confidence, processing_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING `+postColumns,
		post.ID, post.UserID, post.InstagramPostID, post.InstagramURL, nullString(string(post.PostType)),
		nullString(post.Caption), nullString(post.AuthorUsername), post.MediaURLs, nullString(post.ThumbnailURL),
		sources, string(post.ContentConfidence), string(post.ProcessingStatus)))
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "saved_posts", start, err)
	if isUniqueViolation(err) {
		return domain.SavedPost{}, fmt.Errorf("insert post: %w", domain.ErrAlreadyExists)
	}
	if err != nil {
		return domain.SavedPost{}, fmt.Errorf("insert post: %w", err)
	}
	return created, nil
}

// UpdatePost меняет только переданные поля поста.
func (p *Postgres) UpdatePost(ctx context.Context, id string, upd domain.PostUpdate) error {
	var set setBuilder
	if upd.TranscriptText != nil {
		set.add("transcript_text", nullString(*upd.TranscriptText))
	}
	if upd.OCRText != nil {
		set.add("ocr_text", nullString(*upd.OCRText))
	}
	if upd.SourcesUsed != nil {
		raw, err := json.Marshal(upd.SourcesUsed)
		if err != nil {
			return fmt.Errorf("encode sources_used: %w", err)
		}
		set.add("sources_used", raw)
	}
	if upd.ContentConfidence != nil {
		set.add("content_confidence", string(*upd.ContentConfidence))
	}
	if upd.ProcessingStatus != nil {
		set.add("processing_status", string(*upd.ProcessingStatus))
	}
	if upd.ProcessingError != nil {
		set.add("processing_error", nullString(*upd.ProcessingError))
	}
	if upd.EnrichmentCompletedAt != nil {
		set.add("enrichment_completed_at", *upd.EnrichmentCompletedAt)
	}
	return p.update(ctx, "saved_posts", id, set)
}

// CountByUser возвращает количество сохранённых постов пользователя.
func (p *Postgres) CountByUser(ctx context.Context, userID string) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM saved_posts WHERE user_id=$1`, userID).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "posts_count", "saved_posts", start, err)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

// ListByStatus возвращает самые старые посты в указанном статусе.
func (p *Postgres) ListByStatus(ctx context.Context, status domain.ProcessingStatus, limit int) ([]domain.SavedPost, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+postColumns+` FROM saved_posts WHERE processing_status=$1 ORDER BY created_at LIMIT $2`, string(status), limit)
	metrics.ObserveNetworkRequest("postgres", "posts_list_by_status", "saved_posts", start, err)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.SavedPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (p *Postgres) update(ctx context.Context, table, id string, set setBuilder) error {
	if len(set.columns) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args := set.build(table, id)
	start := time.Now()
	tag, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", table+"_update", table, start, err)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// setBuilder собирает UPDATE только по изменённым колонкам.
type setBuilder struct {
	columns []string
	args    []any
}

func (b *setBuilder) add(column string, value any) {
	b.columns = append(b.columns, column)
	b.args = append(b.args, value)
}

func (b setBuilder) build(table, id string) (string, []any) {
	parts := make([]string, 0, len(b.columns)+1)
	for i, c := range b.columns {
		parts = append(parts, fmt.Sprintf("%s=$%d", c, i+1))
	}
	parts = append(parts, "updated_at=now()")
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id=$%d", table, strings.Join(parts, ", "), len(b.columns)+1)
	return query, append(append([]any{}, b.args...), id)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
