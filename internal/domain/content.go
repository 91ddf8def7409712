package domain

// PostType: тип поста, указанный источником (может быть пустым).
type PostType string

const (
	PostTypeNone     PostType = ""
	PostTypePhoto    PostType = "photo"
	PostTypeVideo    PostType = "video"
	PostTypeCarousel PostType = "carousel"
	PostTypeReel     PostType = "reel"
)

// ContentType: каноничный тип контента после нормализации.
type ContentType string

const (
	ContentReel     ContentType = "REEL"
	ContentVideo    ContentType = "VIDEO"
	ContentCarousel ContentType = "CAROUSEL"
	ContentImage    ContentType = "IMAGE"
	ContentUnknown  ContentType = "UNKNOWN"
)

// Label возвращает человекочитаемое название типа.
func (t ContentType) Label() string {
	switch t {
	case ContentReel:
		return "Reel"
	case ContentVideo:
		return "Video"
	case ContentCarousel:
		return "Carousel"
	case ContentImage:
		return "Image"
	default:
		return "Post"
	}
}

// Confidence: грубая оценка количества полезного текста у поста.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ProcessingStatus: статус обогащения поста.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusEnriching ProcessingStatus = "enriching"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// DigestItem: нормализованное представление поста для генератора дайджеста.
// Не сохраняется, пересчитывается при каждом вызове нормализации.
type DigestItem struct {
	Post                 SavedPost
	IGType               ContentType
	MediaCount           int
	Confidence           Confidence
	ExtractedTextSummary string
}

// OCRResult: результат распознавания текста на изображении.
type OCRResult struct {
	Success    bool
	Text       string
	Confidence float64
	Error      string
}

// TranscriptionResult: результат расшифровки аудио/видео.
type TranscriptionResult struct {
	Success bool
	Text    string
	Error   string
}
