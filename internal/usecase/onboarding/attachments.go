package onboarding

import (
	"net/url"
	"regexp"
	"strings"

	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/usecase/content"
)

var shortcodeRe = regexp.MustCompile(`/(?:p|reel|reels|tv)/([A-Za-z0-9_-]+)`)

// postFromAttachment строит пост из вложения сообщения. false, если вложение не является постом.
func postFromAttachment(userID string, att domain.Attachment) (domain.SavedPost, bool) {
	rawURL := strings.TrimSpace(att.URL)
	postType, ok := attachmentPostType(att.Type, rawURL)
	if !ok {
		return domain.SavedPost{}, false
	}

	postID := strings.TrimSpace(att.MediaID)
	if postID == "" && isPermalink(rawURL) {
		postID = shortcode(rawURL)
	}
	if postID == "" {
		postID = rawURL
	}
	if postID == "" {
		return domain.SavedPost{}, false
	}

	post := domain.SavedPost{
		UserID:           userID,
		InstagramPostID:  postID,
		InstagramURL:     rawURL,
		PostType:         postType,
		Caption:          strings.TrimSpace(att.Title),
		ProcessingStatus: domain.StatusPending,
	}
	if rawURL != "" && !isPermalink(rawURL) {
		post.MediaURLs = []string{rawURL}
		if postType == domain.PostTypePhoto {
			post.ThumbnailURL = rawURL
		}
	}
	igType := content.DetectContentType(post.InstagramURL, post.PostType, post.MediaURLs)
	post.ContentConfidence = content.CalculateConfidence(post.Caption, post.AuthorUsername, post.ThumbnailURL, igType)
	return post, true
}

func attachmentPostType(kind, rawURL string) (domain.PostType, bool) {
	switch strings.ToLower(kind) {
	case "ig_reel", "reel":
		return domain.PostTypeReel, true
	case "video":
		return domain.PostTypeVideo, true
	case "image":
		return domain.PostTypePhoto, true
	case "share", "story_mention":
		if strings.Contains(rawURL, "/reel/") {
			return domain.PostTypeReel, true
		}
		return domain.PostTypeNone, true
	default:
		return "", false
	}
}

func isPermalink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host == "instagram.com" && shortcodeRe.MatchString(u.Path)
}

func shortcode(rawURL string) string {
	m := shortcodeRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}
