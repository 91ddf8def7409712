package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"ig-digest-bot/internal/domain"
	apphttp "ig-digest-bot/internal/infra/http"
	"ig-digest-bot/internal/infra/metrics"
)

const maxBodyBytes = 1 << 20

// MessageHandler обрабатывает нормализованное входящее сообщение.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg domain.InboundMessage) error
}

// Config: секреты и политика проверки подписи вебхука.
type Config struct {
	VerifyToken      string
	AppSecret        string
	RequireSignature bool
}

// Handler принимает вебхуки Instagram.
type Handler struct {
	cfg      Config
	dedup    domain.MessageDeduplicator
	messages MessageHandler
	log      zerolog.Logger
}

// NewHandler создаёт обработчик вебхука. dedup может быть nil.
func NewHandler(cfg Config, dedup domain.MessageDeduplicator, messages MessageHandler, log zerolog.Logger) *Handler {
	return &Handler{cfg: cfg, dedup: dedup, messages: messages, log: log}
}

// Routes возвращает роутер для монтирования, например на /webhook.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleVerify)
	r.Post("/", h.handleEvent)
	return r
}

// handleVerify отвечает на рукопожатие подписки.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || h.cfg.VerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.VerifyToken)) != 1 {
		h.log.Warn().Str("mode", mode).Msg("отклонено рукопожатие вебхука")
		w.WriteHeader(http.StatusForbidden)
		return
	}
	h.log.Info().Msg("вебхук подтверждён")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	log := h.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	switch err := checkSignature(r.Header, body, h.cfg.AppSecret); {
	case errors.Is(err, errSignatureMissing):
		if h.cfg.RequireSignature {
			metrics.WebhookSignatureFailures.Inc()
			log.Warn().Msg("запрос без подписи отклонён")
			apphttp.WriteError(w, http.StatusForbidden, "signature required")
			return
		}
		log.Debug().Msg("запрос без подписи")
	case err != nil:
		metrics.WebhookSignatureFailures.Inc()
		log.Warn().Msg("неверная подпись вебхука")
		apphttp.WriteError(w, http.StatusForbidden, "invalid signature")
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		log.Error().Err(err).Msg("некорректный JSON вебхука")
		apphttp.WriteError(w, http.StatusInternalServerError, "invalid payload")
		return
	}

	if err := h.dispatch(r.Context(), log, p); err != nil {
		log.Error().Err(err).Msg("ошибка обработки вебхука")
		apphttp.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// dispatch передаёт события машине состояний. Ошибки отдельных сообщений не
// прерывают обработку остальных и возвращаются объединёнными.
func (h *Handler) dispatch(ctx context.Context, log zerolog.Logger, p payload) error {
	var errs []error
	for _, ev := range extractEvents(p) {
		if ev.skip != skipNone {
			metrics.WebhookEvents.WithLabelValues(string(ev.skip)).Inc()
			continue
		}
		if h.isDuplicate(ctx, log, ev.msg.MessageID) {
			metrics.DedupHits.Inc()
			metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
			log.Info().Str("mid", ev.msg.MessageID).Msg("повторная доставка сообщения")
			continue
		}
		metrics.WebhookEvents.WithLabelValues("message").Inc()
		if err := h.messages.HandleMessage(ctx, ev.msg); err != nil {
			log.Error().Err(err).Str("ig_user_id", ev.msg.SenderID).Str("mid", ev.msg.MessageID).Msg("сообщение не обработано")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// isDuplicate проверяет и запоминает идентификатор сообщения одной операцией.
// Сбой хранилища дедупликации не блокирует обработку.
func (h *Handler) isDuplicate(ctx context.Context, log zerolog.Logger, messageID string) bool {
	if h.dedup == nil || messageID == "" {
		return false
	}
	fresh, err := h.dedup.MarkSeen(ctx, messageID)
	if err != nil {
		log.Warn().Err(err).Msg("дедупликатор недоступен")
		return false
	}
	return !fresh
}
