package domain

import (
	"errors"
	"time"
)

// ErrNotFound возвращается хранилищами, если запись отсутствует.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists возвращается при вставке записи, нарушающей уникальность.
var ErrAlreadyExists = errors.New("already exists")

// OnboardingState описывает шаг диалога онбординга.
type OnboardingState uint8

const (
	// StateNone: поле состояния пустое (запись есть, но диалог не начат).
	StateNone OnboardingState = iota
	// StateAwaitingEmail: ждём email пользователя.
	StateAwaitingEmail
	// StateAwaitingTime: ждём время доставки дайджеста.
	StateAwaitingTime
	// StateOnboarded: онбординг завершён.
	StateOnboarded
)

// String возвращает значение состояния для хранения.
func (s OnboardingState) String() string {
	switch s {
	case StateAwaitingEmail:
		return "awaiting_email"
	case StateAwaitingTime:
		return "awaiting_time"
	case StateOnboarded:
		return "onboarded"
	default:
		return ""
	}
}

// ParseOnboardingState разбирает сохранённое значение. Неизвестные значения считаются StateNone.
func ParseOnboardingState(raw string) OnboardingState {
	switch raw {
	case "awaiting_email":
		return StateAwaitingEmail
	case "awaiting_time":
		return StateAwaitingTime
	case "onboarded":
		return StateOnboarded
	default:
		return StateNone
	}
}

// User описывает пользователя Instagram в системе.
type User struct {
	ID                string
	InstagramUserID   string
	InstagramUsername string
	OnboardingState   OnboardingState
	Email             string
	DigestTime        string
	DigestEnabled     bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UserUpdate содержит изменяемые поля пользователя; nil означает «не менять».
type UserUpdate struct {
	InstagramUsername *string
	OnboardingState   *OnboardingState
	Email             *string
	DigestTime        *string
	DigestEnabled     *bool
}

// Attachment: вложение входящего сообщения (репост, рилс, фото).
type Attachment struct {
	Type    string
	URL     string
	Title   string
	MediaID string
}

// InboundMessage: нормализованное событие сообщения из вебхука.
type InboundMessage struct {
	SenderID       string
	SenderUsername string
	MessageID      string
	Text           string
	Attachments    []Attachment
}

// SourcesUsed отмечает, какие источники текста дали содержимое.
type SourcesUsed struct {
	Transcript bool `json:"transcript"`
	OCR        bool `json:"ocr"`
	Caption    bool `json:"caption"`
	Metadata   bool `json:"metadata"`
}

// SavedPost: пост, сохранённый пользователем для дайджеста.
type SavedPost struct {
	ID                    string
	UserID                string
	InstagramPostID       string
	InstagramURL          string
	PostType              PostType
	Caption               string
	AuthorUsername        string
	MediaURLs             []string
	ThumbnailURL          string
	TranscriptText        string
	OCRText               string
	SourcesUsed           SourcesUsed
	ContentConfidence     Confidence
	ProcessingStatus      ProcessingStatus
	ProcessingError       string
	EnrichmentCompletedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// PostUpdate содержит изменяемые поля поста; nil означает «не менять».
type PostUpdate struct {
	TranscriptText        *string
	OCRText               *string
	SourcesUsed           *SourcesUsed
	ContentConfidence     *Confidence
	ProcessingStatus      *ProcessingStatus
	ProcessingError       *string
	EnrichmentCompletedAt *time.Time
}
