package onboarding

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/infra/metrics"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// PlaceholderEmail возвращает временный email пользователя до прохождения онбординга.
func PlaceholderEmail(instagramUserID string) string {
	return fmt.Sprintf("ig_%s@pending.instadigest.local", instagramUserID)
}

// Service ведёт диалог онбординга и сохраняет посты из Direct.
type Service struct {
	users    domain.UserRepo
	auth     domain.AuthRepo
	posts    domain.PostRepo
	sender   domain.MessageSender
	profiles domain.ProfileResolver
	jobs     domain.EnrichmentQueue
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт машину состояний. profiles и jobs могут быть nil.
func NewService(users domain.UserRepo, auth domain.AuthRepo, posts domain.PostRepo, sender domain.MessageSender, profiles domain.ProfileResolver, jobs domain.EnrichmentQueue, log zerolog.Logger) *Service {
	return &Service{
		users:    users,
		auth:     auth,
		posts:    posts,
		sender:   sender,
		profiles: profiles,
		jobs:     jobs,
		log:      log,
		now:      time.Now,
	}
}

// HandleMessage обрабатывает одно входящее сообщение. Ошибка возвращается только
// при сбое хранилища; ошибки отправки ответа логируются.
func (s *Service) HandleMessage(ctx context.Context, msg domain.InboundMessage) error {
	if msg.SenderID == "" {
		return nil
	}
	user, err := s.users.FindByInstagramID(ctx, msg.SenderID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.startOnboarding(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("поиск пользователя: %w", err)
	}

	s.backfillUsername(ctx, &user, msg)

	switch user.OnboardingState {
	case domain.StateNone:
		return s.restartOnboarding(ctx, user)
	case domain.StateAwaitingEmail:
		return s.handleEmail(ctx, user, msg)
	case domain.StateAwaitingTime:
		return s.handleTime(ctx, user, msg)
	case domain.StateOnboarded:
		return s.handleOnboarded(ctx, user, msg)
	default:
		return fmt.Errorf("неизвестное состояние онбординга %d", user.OnboardingState)
	}
}

func (s *Service) startOnboarding(ctx context.Context, msg domain.InboundMessage) error {
	username := strings.TrimPrefix(strings.TrimSpace(msg.SenderUsername), "@")
	if username == "" {
		username = s.resolveUsername(ctx, msg.SenderID)
	}
	_, err := s.users.Create(ctx, domain.User{
		ID:                uuid.NewString(),
		InstagramUserID:   msg.SenderID,
		InstagramUsername: username,
		OnboardingState:   domain.StateAwaitingEmail,
		Email:             PlaceholderEmail(msg.SenderID),
	})
	if err != nil {
		return fmt.Errorf("создание пользователя: %w", err)
	}
	metrics.ObserveTransition(domain.StateNone.String(), domain.StateAwaitingEmail.String())
	s.log.Info().Str("ig_user_id", msg.SenderID).Msg("новый пользователь")
	s.send(ctx, msg.SenderID, msgWelcome)
	return nil
}

func (s *Service) restartOnboarding(ctx context.Context, user domain.User) error {
	if err := s.transition(ctx, user, domain.StateAwaitingEmail, domain.UserUpdate{}); err != nil {
		return err
	}
	s.send(ctx, user.InstagramUserID, msgRestart)
	return nil
}

func (s *Service) handleEmail(ctx context.Context, user domain.User, msg domain.InboundMessage) error {
	email := strings.ToLower(strings.TrimSpace(msg.Text))
	if !emailRe.MatchString(email) {
		s.send(ctx, user.InstagramUserID, msgInvalidEmail)
		return nil
	}
	if err := s.transition(ctx, user, domain.StateAwaitingTime, domain.UserUpdate{Email: &email}); err != nil {
		return err
	}
	if s.auth != nil {
		if err := s.auth.UpdateEmail(ctx, user.ID, email); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("не удалось обновить email учётной записи")
		}
	}
	s.send(ctx, user.InstagramUserID, msgAskTime)
	return nil
}

func (s *Service) handleTime(ctx context.Context, user domain.User, msg domain.InboundMessage) error {
	digestTime, ok := ParseTime(msg.Text)
	if !ok {
		s.send(ctx, user.InstagramUserID, msgInvalidTime)
		return nil
	}
	enabled := true
	if err := s.transition(ctx, user, domain.StateOnboarded, domain.UserUpdate{DigestTime: &digestTime, DigestEnabled: &enabled}); err != nil {
		return err
	}
	s.send(ctx, user.InstagramUserID, onboardedMessage(FormatDisplayTime(digestTime)))
	return nil
}

func (s *Service) handleOnboarded(ctx context.Context, user domain.User, msg domain.InboundMessage) error {
	if len(msg.Attachments) > 0 {
		return s.savePosts(ctx, user, msg.Attachments)
	}
	switch strings.ToLower(strings.TrimSpace(msg.Text)) {
	case "help":
		s.send(ctx, user.InstagramUserID, helpMessage())
	case "status":
		saved, err := s.posts.CountByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("подсчёт постов: %w", err)
		}
		s.send(ctx, user.InstagramUserID, statusMessage(user.Email, FormatDisplayTime(user.DigestTime), user.DigestEnabled, saved))
	case "pause":
		return s.setDigestEnabled(ctx, user, false, msgPaused)
	case "resume":
		return s.setDigestEnabled(ctx, user, true, msgResumed)
	default:
		s.send(ctx, user.InstagramUserID, helpMessage())
	}
	return nil
}

func (s *Service) setDigestEnabled(ctx context.Context, user domain.User, enabled bool, reply string) error {
	if err := s.users.UpdateUser(ctx, user.ID, domain.UserUpdate{DigestEnabled: &enabled}); err != nil {
		return fmt.Errorf("обновление рассылки: %w", err)
	}
	s.log.Info().Str("user_id", user.ID).Bool("digest_enabled", enabled).Msg("рассылка переключена")
	s.send(ctx, user.InstagramUserID, reply)
	return nil
}

func (s *Service) savePosts(ctx context.Context, user domain.User, attachments []domain.Attachment) error {
	var saved, duplicates int
	for _, att := range attachments {
		post, ok := postFromAttachment(user.ID, att)
		if !ok {
			continue
		}
		_, err := s.posts.FindByUserAndInstagramPostID(ctx, user.ID, post.InstagramPostID)
		if err == nil {
			duplicates++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("поиск поста: %w", err)
		}

		post.ID = uuid.NewString()
		created, err := s.posts.Insert(ctx, post)
		if errors.Is(err, domain.ErrAlreadyExists) {
			duplicates++
			continue
		}
		if err != nil {
			return fmt.Errorf("сохранение поста: %w", err)
		}
		saved++
		metrics.PostsSaved.Inc()
		s.log.Info().Str("user_id", user.ID).Str("post_id", created.ID).Str("ig_post_id", created.InstagramPostID).Msg("пост сохранён")
		s.enqueueEnrichment(ctx, created)
	}

	switch {
	case saved > 0:
		total, err := s.posts.CountByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("подсчёт постов: %w", err)
		}
		s.send(ctx, user.InstagramUserID, savedMessage(saved, total))
	case duplicates > 0:
		s.send(ctx, user.InstagramUserID, msgAlreadySaved)
	default:
		s.send(ctx, user.InstagramUserID, msgNothingToSave)
	}
	return nil
}

func (s *Service) enqueueEnrichment(ctx context.Context, post domain.SavedPost) {
	if s.jobs == nil {
		return
	}
	job := domain.EnrichmentJob{
		ID:          uuid.NewString(),
		PostID:      post.ID,
		UserID:      post.UserID,
		RequestedAt: s.now().UTC(),
		Cause:       domain.EnrichmentCauseSaved,
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.log.Warn().Err(err).Str("post_id", post.ID).Msg("не удалось поставить задачу обогащения, пост дождётся обхода")
	}
}

// transition сохраняет новое состояние вместе с дополнительными полями.
func (s *Service) transition(ctx context.Context, user domain.User, to domain.OnboardingState, upd domain.UserUpdate) error {
	upd.OnboardingState = &to
	if err := s.users.UpdateUser(ctx, user.ID, upd); err != nil {
		return fmt.Errorf("переход %s -> %s: %w", user.OnboardingState, to, err)
	}
	metrics.ObserveTransition(user.OnboardingState.String(), to.String())
	s.log.Info().
		Str("user_id", user.ID).
		Str("from", user.OnboardingState.String()).
		Str("to", to.String()).
		Msg("переход онбординга")
	return nil
}

func (s *Service) backfillUsername(ctx context.Context, user *domain.User, msg domain.InboundMessage) {
	if user.InstagramUsername != "" {
		return
	}
	username := strings.TrimPrefix(strings.TrimSpace(msg.SenderUsername), "@")
	if username == "" {
		username = s.resolveUsername(ctx, user.InstagramUserID)
	}
	if username == "" {
		return
	}
	if err := s.users.UpdateUser(ctx, user.ID, domain.UserUpdate{InstagramUsername: &username}); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("не удалось сохранить username")
		return
	}
	user.InstagramUsername = username
}

func (s *Service) resolveUsername(ctx context.Context, instagramUserID string) string {
	if s.profiles == nil {
		return ""
	}
	username, err := s.profiles.Username(ctx, instagramUserID)
	if err != nil {
		s.log.Debug().Err(err).Str("ig_user_id", instagramUserID).Msg("профиль недоступен")
		return ""
	}
	return username
}

func (s *Service) send(ctx context.Context, instagramUserID, text string) {
	if s.sender.Send(ctx, instagramUserID, text) {
		return
	}
	metrics.SendErrors.Inc()
	s.log.Error().Str("ig_user_id", instagramUserID).Msg("не удалось отправить ответ")
}
