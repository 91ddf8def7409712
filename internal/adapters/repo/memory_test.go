package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ig-digest-bot/internal/domain"
)

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.FindByInstagramID(ctx, "ig1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	created, err := m.Create(ctx, domain.User{InstagramUserID: "ig1", OnboardingState: domain.StateAwaitingEmail, Email: "x"})
	if err != nil || created.ID == "" {
		t.Fatalf("ожидали созданного пользователя: %+v, %v", created, err)
	}
	again, _ := m.Create(ctx, domain.User{InstagramUserID: "ig1"})
	if again.ID != created.ID {
		t.Fatalf("повторное создание должно вернуть существующую запись")
	}

	state := domain.StateOnboarded
	enabled := true
	if err := m.UpdateUser(ctx, created.ID, domain.UserUpdate{OnboardingState: &state, DigestEnabled: &enabled}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, _ := m.FindByInstagramID(ctx, "ig1")
	if got.OnboardingState != domain.StateOnboarded || !got.DigestEnabled || got.Email != "x" {
		t.Fatalf("неожиданный пользователь: %+v", got)
	}
	if err := m.UpdateUser(ctx, "missing", domain.UserUpdate{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound для неизвестного пользователя")
	}

	_ = m.UpdateEmail(ctx, created.ID, "a@b.co")
	if email, ok := m.AuthEmail(created.ID); !ok || email != "a@b.co" {
		t.Fatalf("ожидали email учётной записи")
	}
}

func TestMemoryPosts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, _ := m.Insert(ctx, domain.SavedPost{UserID: "u1", InstagramPostID: "a", MediaURLs: []string{"m1"}})
	second, _ := m.Insert(ctx, domain.SavedPost{UserID: "u1", InstagramPostID: "b"})
	_, _ = m.Insert(ctx, domain.SavedPost{UserID: "u2", InstagramPostID: "a"})

	if first.ProcessingStatus != domain.StatusPending || first.ContentConfidence != domain.ConfidenceLow {
		t.Fatalf("ожидали значения по умолчанию: %+v", first)
	}
	first.MediaURLs[0] = "mutated"
	stored, _ := m.GetByID(ctx, first.ID)
	if stored.MediaURLs[0] != "m1" {
		t.Fatalf("хранилище не должно разделять срезы с вызывающим")
	}

	found, err := m.FindByUserAndInstagramPostID(ctx, "u1", "b")
	if err != nil || found.ID != second.ID {
		t.Fatalf("ожидали найти пост b: %v", err)
	}
	if n, _ := m.CountByUser(ctx, "u1"); n != 2 {
		t.Fatalf("ожидали 2 поста, получили %d", n)
	}

	done := domain.StatusCompleted
	text := "ocr"
	if err := m.UpdatePost(ctx, first.ID, domain.PostUpdate{ProcessingStatus: &done, OCRText: &text}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	pending, _ := m.ListByStatus(ctx, domain.StatusPending, 10)
	if len(pending) != 2 || pending[0].ID != second.ID {
		t.Fatalf("ожидали два pending поста в порядке создания, получили %d", len(pending))
	}
	if limited, _ := m.ListByStatus(ctx, domain.StatusPending, 1); len(limited) != 1 {
		t.Fatalf("ожидали ограничение выборки")
	}
}

func TestSetBuilder(t *testing.T) {
	var b setBuilder
	b.add("email", "a@b.co")
	b.add("digest_enabled", true)
	query, args := b.build("users", "id-1")
	if query != "UPDATE users SET email=$1, digest_enabled=$2, updated_at=now() WHERE id=$3" {
		t.Fatalf("неожиданный запрос: %s", query)
	}
	if len(args) != 3 || args[2] != "id-1" {
		t.Fatalf("неожиданные аргументы: %v", args)
	}
	if strings.Count(query, "$") != len(args) {
		t.Fatalf("число плейсхолдеров не совпадает с аргументами")
	}
}

func TestMemoryInsertRejectsDuplicatePost(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Insert(ctx, domain.SavedPost{UserID: "u1", InstagramPostID: "a"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := m.Insert(ctx, domain.SavedPost{UserID: "u1", InstagramPostID: "a"}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("ожидали ErrAlreadyExists, получили %v", err)
	}
	if n, _ := m.CountByUser(ctx, "u1"); n != 1 {
		t.Fatalf("дубль не должен сохраняться, постов %d", n)
	}
}

func TestMemoryServesUserAndPostPorts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var (
		users domain.UserRepo = m
		posts domain.PostRepo = m
	)
	user, _ := users.Create(ctx, domain.User{InstagramUserID: "ig1"})
	enabled := true
	if err := users.UpdateUser(ctx, user.ID, domain.UserUpdate{DigestEnabled: &enabled}); err != nil {
		t.Fatalf("не ожидали ошибку обновления пользователя: %v", err)
	}
	post, _ := posts.Insert(ctx, domain.SavedPost{UserID: user.ID, InstagramPostID: "a"})
	failed := domain.StatusFailed
	if err := posts.UpdatePost(ctx, post.ID, domain.PostUpdate{ProcessingStatus: &failed}); err != nil {
		t.Fatalf("не ожидали ошибку обновления поста: %v", err)
	}
	got, _ := posts.GetByID(ctx, post.ID)
	if got.ProcessingStatus != domain.StatusFailed {
		t.Fatalf("ожидали failed, получили %s", got.ProcessingStatus)
	}
	if u, _ := users.FindByInstagramID(ctx, "ig1"); !u.DigestEnabled {
		t.Fatalf("ожидали включённую рассылку")
	}
}
