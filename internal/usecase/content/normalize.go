package content

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ig-digest-bot/internal/domain"
)

const captionPreviewLimit = 100

// DetectContentType определяет каноничный тип поста. Побеждает первое совпавшее правило.
func DetectContentType(url string, postType domain.PostType, mediaURLs []string) domain.ContentType {
	kind := strings.ToLower(strings.TrimSpace(string(postType)))
	switch {
	case strings.Contains(url, "/reel/") || kind == "reel":
		return domain.ContentReel
	case kind == "video" || kind == "clip" || kind == "animated_image_share":
		return domain.ContentVideo
	case kind == "carousel" || len(mediaURLs) > 1:
		return domain.ContentCarousel
	case strings.Contains(url, "/p/") || kind == "photo" || kind == "image":
		return domain.ContentImage
	default:
		return domain.ContentUnknown
	}
}

// MetadataScore считает очки по метаданным до обогащения.
func MetadataScore(caption, creatorHandle, thumbnailURL string, igType domain.ContentType) int {
	score := 0
	caption = strings.TrimSpace(caption)
	if n := utf8.RuneCountInString(caption); n > 20 {
		score += 3
	} else if n > 0 {
		score++
	}
	if strings.TrimSpace(creatorHandle) != "" {
		score += 2
	}
	if strings.TrimSpace(thumbnailURL) != "" {
		score++
	}
	if igType != "" && igType != domain.ContentUnknown {
		score++
	}
	return score
}

// CalculateConfidence оценивает уверенность по метаданным поста.
func CalculateConfidence(caption, creatorHandle, thumbnailURL string, igType domain.ContentType) domain.Confidence {
	score := MetadataScore(caption, creatorHandle, thumbnailURL, igType)
	switch {
	case score >= 7:
		return domain.ConfidenceHigh
	case score >= 3:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// ExtractTextSummary собирает однострочное описание поста: тип, автор и начало подписи.
func ExtractTextSummary(igType domain.ContentType, creatorHandle, caption string) string {
	var b strings.Builder
	b.WriteString(igType.Label())
	if handle := strings.TrimPrefix(strings.TrimSpace(creatorHandle), "@"); handle != "" {
		fmt.Fprintf(&b, " by @%s", handle)
	}
	if preview := captionPreview(caption); preview != "" {
		fmt.Fprintf(&b, " — \"%s\"", preview)
	}
	return b.String()
}

// Normalize строит представление поста для генератора дайджеста.
func Normalize(post domain.SavedPost) domain.DigestItem {
	igType := DetectContentType(post.InstagramURL, post.PostType, post.MediaURLs)
	return domain.DigestItem{
		Post:                 post,
		IGType:               igType,
		MediaCount:           mediaCount(post),
		Confidence:           CalculateConfidence(post.Caption, post.AuthorUsername, post.ThumbnailURL, igType),
		ExtractedTextSummary: ExtractTextSummary(igType, post.AuthorUsername, post.Caption),
	}
}

// NormalizeAll нормализует список постов, сохраняя порядок.
func NormalizeAll(posts []domain.SavedPost) []domain.DigestItem {
	items := make([]domain.DigestItem, 0, len(posts))
	for _, p := range posts {
		items = append(items, Normalize(p))
	}
	return items
}

func mediaCount(post domain.SavedPost) int {
	if n := len(post.MediaURLs); n > 0 {
		return n
	}
	if post.ThumbnailURL != "" {
		return 1
	}
	return 0
}

func captionPreview(caption string) string {
	text := strings.Join(strings.Fields(caption), " ")
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= captionPreviewLimit {
		return text
	}
	return strings.TrimSpace(string(runes[:captionPreviewLimit])) + "..."
}
