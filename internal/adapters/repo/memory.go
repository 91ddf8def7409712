package repo

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ig-digest-bot/internal/domain"
)

// Memory хранит пользователей и посты в памяти процесса. Используется без PG_DSN и в тестах.
type Memory struct {
	mu     sync.RWMutex
	users  map[string]domain.User
	byIG   map[string]string
	emails map[string]string
	posts  map[string]domain.SavedPost
	now    func() time.Time
}

var (
	_ domain.UserRepo = (*Memory)(nil)
	_ domain.AuthRepo = (*Memory)(nil)
	_ domain.PostRepo = (*Memory)(nil)
)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		users:  make(map[string]domain.User),
		byIG:   make(map[string]string),
		emails: make(map[string]string),
		posts:  make(map[string]domain.SavedPost),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) FindByInstagramID(_ context.Context, instagramUserID string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byIG[instagramUserID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return m.users[id], nil
}

func (m *Memory) Create(_ context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byIG[user.InstagramUserID]; ok {
		return m.users[id], nil
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := m.now()
	user.CreatedAt, user.UpdatedAt = now, now
	m.users[user.ID] = user
	m.byIG[user.InstagramUserID] = user.ID
	return user, nil
}

func (m *Memory) UpdateUser(_ context.Context, id string, upd domain.UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	if upd.InstagramUsername != nil {
		user.InstagramUsername = *upd.InstagramUsername
	}
	if upd.OnboardingState != nil {
		user.OnboardingState = *upd.OnboardingState
	}
	if upd.Email != nil {
		user.Email = *upd.Email
	}
	if upd.DigestTime != nil {
		user.DigestTime = *upd.DigestTime
	}
	if upd.DigestEnabled != nil {
		user.DigestEnabled = *upd.DigestEnabled
	}
	user.UpdatedAt = m.now()
	m.users[id] = user
	return nil
}

func (m *Memory) UpdateEmail(_ context.Context, userID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails[userID] = email
	return nil
}

// AuthEmail возвращает email учётной записи пользователя.
func (m *Memory) AuthEmail(userID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email, ok := m.emails[userID]
	return email, ok
}

func copyPost(post domain.SavedPost) domain.SavedPost {
	post.MediaURLs = slices.Clone(post.MediaURLs)
	if post.EnrichmentCompletedAt != nil {
		ts := *post.EnrichmentCompletedAt
		post.EnrichmentCompletedAt = &ts
	}
	return post
}

func (m *Memory) FindByUserAndInstagramPostID(_ context.Context, userID, instagramPostID string) (domain.SavedPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.posts {
		if p.UserID == userID && p.InstagramPostID == instagramPostID {
			return copyPost(p), nil
		}
	}
	return domain.SavedPost{}, domain.ErrNotFound
}

func (m *Memory) GetByID(_ context.Context, id string) (domain.SavedPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return domain.SavedPost{}, domain.ErrNotFound
	}
	return copyPost(p), nil
}

// Insert сохраняет пост. Пара (user_id, instagram_post_id) уникальна, как в Postgres.
func (m *Memory) Insert(_ context.Context, post domain.SavedPost) (domain.SavedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.UserID == post.UserID && p.InstagramPostID == post.InstagramPostID {
			return domain.SavedPost{}, domain.ErrAlreadyExists
		}
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.ProcessingStatus == "" {
		post.ProcessingStatus = domain.StatusPending
	}
	if post.ContentConfidence == "" {
		post.ContentConfidence = domain.ConfidenceLow
	}
	now := m.now()
	post.CreatedAt, post.UpdatedAt = now, now
	m.posts[post.ID] = copyPost(post)
	return copyPost(post), nil
}

func (m *Memory) UpdatePost(_ context.Context, id string, upd domain.PostUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return domain.ErrNotFound
	}
	if upd.TranscriptText != nil {
		post.TranscriptText = *upd.TranscriptText
	}
	if upd.OCRText != nil {
		post.OCRText = *upd.OCRText
	}
	if upd.SourcesUsed != nil {
		post.SourcesUsed = *upd.SourcesUsed
	}
	if upd.ContentConfidence != nil {
		post.ContentConfidence = *upd.ContentConfidence
	}
	if upd.ProcessingStatus != nil {
		post.ProcessingStatus = *upd.ProcessingStatus
	}
	if upd.ProcessingError != nil {
		post.ProcessingError = *upd.ProcessingError
	}
	if upd.EnrichmentCompletedAt != nil {
		ts := *upd.EnrichmentCompletedAt
		post.EnrichmentCompletedAt = &ts
	}
	post.UpdatedAt = m.now()
	m.posts[id] = post
	return nil
}

func (m *Memory) CountByUser(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.posts {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListByStatus(_ context.Context, status domain.ProcessingStatus, limit int) ([]domain.SavedPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.SavedPost
	for _, p := range m.posts {
		if p.ProcessingStatus == status {
			out = append(out, copyPost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
