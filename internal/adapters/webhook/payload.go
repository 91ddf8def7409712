package webhook

import (
	"encoding/json"
	"strings"

	"ig-digest-bot/internal/domain"
)

type payload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []messagingEvent `json:"messaging"`
	Changes   []change         `json:"changes"`
}

type change struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type messagingEvent struct {
	Sender    *participant `json:"sender"`
	Recipient *participant `json:"recipient"`
	Timestamp int64        `json:"timestamp"`
	Message   *message     `json:"message"`
	Reaction  *struct{}    `json:"reaction"`
	Read      *struct{}    `json:"read"`
}

type participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text"`
	IsEcho      bool         `json:"is_echo"`
	IsDeleted   bool         `json:"is_deleted"`
	IsUnsupport bool         `json:"is_unsupported"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Type    string            `json:"type"`
	Payload attachmentPayload `json:"payload"`
}

type attachmentPayload struct {
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	ID          json.RawMessage `json:"id"`
	ReelVideoID json.RawMessage `json:"reel_video_id"`
}

// skipReason объясняет, почему событие не дошло до машины состояний.
type skipReason string

const (
	skipNone       skipReason = ""
	skipNoSender   skipReason = "no_sender"
	skipNoMessage  skipReason = "no_message"
	skipEcho       skipReason = "echo"
	skipUnhandled  skipReason = "unhandled"
	skipBadChange  skipReason = "bad_change"
	skipOtherField skipReason = "other_field"
)

type parsedEvent struct {
	msg  domain.InboundMessage
	skip skipReason
}

// extractEvents собирает события обоих форматов (messaging и changes) в единый вид.
func extractEvents(p payload) []parsedEvent {
	var out []parsedEvent
	for _, e := range p.Entry {
		for _, ev := range e.Messaging {
			out = append(out, normalizeEvent(ev))
		}
		for _, c := range e.Changes {
			if c.Field != "messages" {
				out = append(out, parsedEvent{skip: skipOtherField})
				continue
			}
			var ev messagingEvent
			if err := json.Unmarshal(c.Value, &ev); err != nil {
				out = append(out, parsedEvent{skip: skipBadChange})
				continue
			}
			out = append(out, normalizeEvent(ev))
		}
	}
	return out
}

func normalizeEvent(ev messagingEvent) parsedEvent {
	if ev.Sender == nil || ev.Sender.ID == "" {
		return parsedEvent{skip: skipNoSender}
	}
	if ev.Message == nil {
		if ev.Reaction != nil || ev.Read != nil {
			return parsedEvent{skip: skipUnhandled}
		}
		return parsedEvent{skip: skipNoMessage}
	}
	if ev.Message.IsEcho {
		return parsedEvent{skip: skipEcho}
	}
	if ev.Message.IsDeleted || ev.Message.IsUnsupport {
		return parsedEvent{skip: skipUnhandled}
	}

	msg := domain.InboundMessage{
		SenderID:       ev.Sender.ID,
		SenderUsername: ev.Sender.Username,
		MessageID:      ev.Message.MID,
		Text:           strings.TrimSpace(ev.Message.Text),
	}
	for _, a := range ev.Message.Attachments {
		mediaID := rawID(a.Payload.ReelVideoID)
		if mediaID == "" {
			mediaID = rawID(a.Payload.ID)
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			Type:    a.Type,
			URL:     a.Payload.URL,
			Title:   a.Payload.Title,
			MediaID: mediaID,
		})
	}
	return parsedEvent{msg: msg}
}

// rawID принимает идентификатор, пришедший строкой или числом.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
