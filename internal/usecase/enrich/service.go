package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/infra/metrics"
	"ig-digest-bot/internal/usecase/content"
)

// у поста нет прямой ссылки на видео для расшифровки
const errVideoURLUnavailable = "direct video url unavailable"

// Features: флаги включения источников текста.
type Features struct {
	Transcription bool
	OCR           bool
	MediaDownload bool
}

// Result описывает итог обогащения одного поста.
type Result struct {
	PostID        string
	ContentType   domain.ContentType
	Transcript    domain.TranscriptionResult
	OCR           domain.OCRResult
	Confidence    domain.Confidence
	SourcesUsed   domain.SourcesUsed
	Status        domain.ProcessingStatus
	Error         string
	transcriptRan bool
	ocrRan        bool
}

// Service извлекает текст из медиа поста и пересчитывает уверенность.
type Service struct {
	posts       domain.PostRepo
	ocr         domain.OCRProvider
	transcriber domain.TranscriptionProvider
	features    Features
	log         zerolog.Logger
	now         func() time.Time
}

// NewService создаёт сервис обогащения. Провайдеры могут быть nil, если источник выключен.
func NewService(posts domain.PostRepo, ocr domain.OCRProvider, transcriber domain.TranscriptionProvider, features Features, log zerolog.Logger) *Service {
	return &Service{
		posts:       posts,
		ocr:         ocr,
		transcriber: transcriber,
		features:    features,
		log:         log,
		now:         time.Now,
	}
}

// EnrichByID загружает пост и обогащает его.
func (s *Service) EnrichByID(ctx context.Context, postID string) (Result, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return Result{}, fmt.Errorf("получение поста: %w", err)
	}
	return s.Enrich(ctx, post)
}

// Enrich обогащает пост. Запись всегда остаётся в конечном статусе completed или failed;
// ошибка возвращается только если не удалось сохранить статус.
func (s *Service) Enrich(ctx context.Context, post domain.SavedPost) (res Result, err error) {
	start := time.Now()
	res = Result{PostID: post.ID}
	if err := s.setStatus(ctx, post.ID, domain.StatusEnriching, nil); err != nil {
		return res, fmt.Errorf("статус enriching: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			res.Status = domain.StatusFailed
			res.Error = fmt.Sprintf("panic: %v", r)
		}
		if res.Status == domain.StatusFailed {
			msg := res.Error
			if saveErr := s.setStatus(ctx, post.ID, domain.StatusFailed, &msg); saveErr != nil {
				err = fmt.Errorf("статус failed: %w", saveErr)
			}
			s.log.Error().Str("post_id", post.ID).Str("error", res.Error).Msg("обогащение поста не удалось")
		}
		metrics.EnrichmentOutcomes.WithLabelValues(string(res.Status)).Inc()
		metrics.EnrichmentSeconds.Observe(time.Since(start).Seconds())
	}()

	s.extract(ctx, post, &res)

	completedAt := s.now().UTC()
	annotation := res.OCR.Error
	upd := domain.PostUpdate{
		SourcesUsed:           &res.SourcesUsed,
		ContentConfidence:     &res.Confidence,
		ProcessingStatus:      ptr(domain.StatusCompleted),
		ProcessingError:       &annotation,
		EnrichmentCompletedAt: &completedAt,
	}
	if res.transcriptRan && res.Transcript.Success {
		upd.TranscriptText = &res.Transcript.Text
	}
	if res.ocrRan && res.OCR.Success {
		upd.OCRText = &res.OCR.Text
	}
	if saveErr := s.posts.UpdatePost(ctx, post.ID, upd); saveErr != nil {
		res.Status = domain.StatusFailed
		res.Error = fmt.Sprintf("сохранение результатов: %v", saveErr)
		return res, nil
	}
	res.Status = domain.StatusCompleted
	s.log.Info().
		Str("post_id", post.ID).
		Str("type", string(res.ContentType)).
		Str("confidence", string(res.Confidence)).
		Bool("ocr", res.SourcesUsed.OCR).
		Bool("transcript", res.SourcesUsed.Transcript).
		Msg("пост обогащён")
	return res, nil
}

func (s *Service) extract(ctx context.Context, post domain.SavedPost, res *Result) {
	igType := content.DetectContentType(post.InstagramURL, post.PostType, post.MediaURLs)
	res.ContentType = igType

	transcript := post.TranscriptText
	ocrText := post.OCRText

	switch igType {
	case domain.ContentReel, domain.ContentVideo:
		if s.features.Transcription {
			res.transcriptRan = true
			res.Transcript = s.transcribeVideo(ctx, post)
			if res.Transcript.Success {
				transcript = res.Transcript.Text
			} else {
				s.log.Warn().Str("post_id", post.ID).Str("error", res.Transcript.Error).Msg("транскрипция недоступна")
			}
		}
	case domain.ContentCarousel, domain.ContentImage:
		if s.features.OCR {
			res.ocrRan = true
			if s.ocr == nil {
				res.OCR = domain.OCRResult{Error: "ocr provider is not configured"}
			} else {
				res.OCR = s.ocrImages(ctx, post.ID, imageURLs(igType, post))
			}
			if res.OCR.Success {
				ocrText = res.OCR.Text
			} else {
				s.log.Warn().Str("post_id", post.ID).Str("error", res.OCR.Error).Msg("OCR не дал результата")
			}
		}
	}

	res.SourcesUsed = domain.SourcesUsed{
		Transcript: strings.TrimSpace(transcript) != "",
		OCR:        strings.TrimSpace(ocrText) != "",
		Caption:    strings.TrimSpace(post.Caption) != "",
		Metadata:   strings.TrimSpace(post.AuthorUsername) != "" || igType != domain.ContentUnknown,
	}
	res.Confidence = CalculateEnrichedConfidence(transcript, ocrText, post.Caption, post.AuthorUsername)
}

// transcribeVideo расшифровывает видео, если известна прямая ссылка на медиа.
// Без загрузки медиа прямой ссылки нет, и путь остаётся пустым.
func (s *Service) transcribeVideo(ctx context.Context, post domain.SavedPost) domain.TranscriptionResult {
	if !s.features.MediaDownload || len(post.MediaURLs) == 0 {
		return domain.TranscriptionResult{Error: errVideoURLUnavailable}
	}
	if s.transcriber == nil {
		return domain.TranscriptionResult{Error: "transcription provider is not configured"}
	}
	return s.transcriber.Transcribe(ctx, post.MediaURLs[0])
}

// ocrImages прогоняет изображения через OCR последовательно.
// Успех, если распознано хотя бы одно изображение.
func (s *Service) ocrImages(ctx context.Context, postID string, urls []string) domain.OCRResult {
	if len(urls) == 0 {
		return domain.OCRResult{Error: "no images to process"}
	}
	var (
		sections  []string
		succeeded int
		failed    int
		confSum   float64
	)
	for i, u := range urls {
		r := s.ocr.ExtractText(ctx, u)
		if !r.Success {
			failed++
			metrics.OCRImages.WithLabelValues("error").Inc()
			s.log.Debug().Str("post_id", postID).Int("image", i+1).Str("error", r.Error).Msg("OCR изображения не удался")
			continue
		}
		succeeded++
		confSum += r.Confidence
		metrics.OCRImages.WithLabelValues("success").Inc()
		if text := strings.TrimSpace(r.Text); text != "" {
			sections = append(sections, fmt.Sprintf("[Image %d]\n%s", i+1, text))
		}
	}
	if succeeded == 0 {
		return domain.OCRResult{Error: fmt.Sprintf("all %d images failed", failed)}
	}
	out := domain.OCRResult{
		Success:    true,
		Text:       strings.Join(sections, "\n\n"),
		Confidence: confSum / float64(succeeded),
	}
	if failed > 0 {
		out.Error = fmt.Sprintf("%d images failed", failed)
	}
	return out
}

func imageURLs(igType domain.ContentType, post domain.SavedPost) []string {
	if igType == domain.ContentCarousel {
		urls := make([]string, 0, len(post.MediaURLs))
		for _, u := range post.MediaURLs {
			if strings.TrimSpace(u) != "" {
				urls = append(urls, u)
			}
		}
		return urls
	}
	if post.ThumbnailURL != "" {
		return []string{post.ThumbnailURL}
	}
	if len(post.MediaURLs) > 0 {
		return post.MediaURLs[:1]
	}
	return nil
}

// CalculateEnrichedConfidence оценивает уверенность по извлечённому тексту после обогащения.
func CalculateEnrichedConfidence(transcript, ocrText, caption, author string) domain.Confidence {
	score := EnrichedScore(transcript, ocrText, caption, author)
	switch {
	case score >= 10:
		return domain.ConfidenceHigh
	case score >= 5:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// EnrichedScore считает взвешенные очки по тексту из всех источников.
func EnrichedScore(transcript, ocrText, caption, author string) int {
	score := 0
	score += lengthPoints(transcript, 100, 5, 3)
	score += lengthPoints(ocrText, 50, 4, 2)
	score += lengthPoints(caption, 50, 2, 1)
	if strings.TrimSpace(author) != "" {
		score += 2
	}
	return score
}

func lengthPoints(text string, threshold, long, short int) int {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	switch {
	case n > threshold:
		return long
	case n > 0:
		return short
	default:
		return 0
	}
}

// EnrichBatch обогащает посты пачками по concurrent штук; следующая пачка стартует
// после завершения предыдущей. concurrent <= 0 означает последовательную обработку.
func (s *Service) EnrichBatch(ctx context.Context, posts []domain.SavedPost, concurrent int) ([]Result, error) {
	if concurrent <= 0 {
		concurrent = 1
	}
	results := make([]Result, len(posts))
	for offset := 0; offset < len(posts); offset += concurrent {
		if err := ctx.Err(); err != nil {
			return results[:offset], err
		}
		end := min(offset+concurrent, len(posts))
		g, gCtx := errgroup.WithContext(ctx)
		for i := offset; i < end; i++ {
			g.Go(func() error {
				res, err := s.Enrich(gCtx, posts[i])
				results[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return results[:end], err
		}
	}
	return results, nil
}

// EnrichPending обогащает до limit постов в статусе pending.
func (s *Service) EnrichPending(ctx context.Context, limit, concurrent int) ([]Result, error) {
	posts, err := s.posts.ListByStatus(ctx, domain.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("выборка pending постов: %w", err)
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return s.EnrichBatch(ctx, posts, concurrent)
}

func (s *Service) setStatus(ctx context.Context, postID string, status domain.ProcessingStatus, errMsg *string) error {
	return s.posts.UpdatePost(ctx, postID, domain.PostUpdate{ProcessingStatus: &status, ProcessingError: errMsg})
}

func ptr[T any](v T) *T {
	return &v
}
