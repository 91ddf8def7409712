package domain

import "context"

// UserRepo управляет пользователями.
type UserRepo interface {
	FindByInstagramID(ctx context.Context, instagramUserID string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) error
}

// AuthRepo синхронизирует email с учётной записью авторизации.
type AuthRepo interface {
	UpdateEmail(ctx context.Context, userID, email string) error
}

// PostRepo управляет сохранёнными постами.
type PostRepo interface {
	FindByUserAndInstagramPostID(ctx context.Context, userID, instagramPostID string) (SavedPost, error)
	GetByID(ctx context.Context, id string) (SavedPost, error)
	Insert(ctx context.Context, post SavedPost) (SavedPost, error)
	UpdatePost(ctx context.Context, id string, upd PostUpdate) error
	CountByUser(ctx context.Context, userID string) (int, error)
	ListByStatus(ctx context.Context, status ProcessingStatus, limit int) ([]SavedPost, error)
}

// MessageSender отправляет сообщения в Direct. Возвращает false при ошибке и никогда не паникует.
type MessageSender interface {
	Send(ctx context.Context, instagramUserID, text string) bool
}

// ProfileResolver дозапрашивает username отправителя.
type ProfileResolver interface {
	Username(ctx context.Context, instagramUserID string) (string, error)
}

// OCRProvider извлекает текст с изображения.
type OCRProvider interface {
	ExtractText(ctx context.Context, imageURL string) OCRResult
}

// TranscriptionProvider расшифровывает аудиодорожку медиа.
type TranscriptionProvider interface {
	Transcribe(ctx context.Context, mediaURL string) TranscriptionResult
}

// MessageDeduplicator хранит окно недавно обработанных идентификаторов сообщений.
// MarkSeen атомарно проверяет и запоминает идентификатор: true означает, что он новый.
type MessageDeduplicator interface {
	MarkSeen(ctx context.Context, messageID string) (bool, error)
}
