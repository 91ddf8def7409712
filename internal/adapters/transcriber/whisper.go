package transcriber

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/infra/metrics"
	"ig-digest-bot/internal/infra/openai"
)

// Whisper API принимает файлы до 25 МБ.
const maxMediaBytes = 25 << 20

type transcriptionClient interface {
	CreateTranscription(ctx context.Context, req openai.TranscriptionRequest) (openai.TranscriptionResponse, error)
}

// Whisper скачивает медиа по прямой ссылке и расшифровывает его аудиодорожку.
type Whisper struct {
	client transcriptionClient
	http   *http.Client
	model  string
	log    zerolog.Logger
}

// NewWhisper создаёт провайдер транскрипции.
func NewWhisper(client *openai.Client, model string, timeout time.Duration, log zerolog.Logger) *Whisper {
	return newWhisper(client, model, timeout, log)
}

func newWhisper(client transcriptionClient, model string, timeout time.Duration, log zerolog.Logger) *Whisper {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Whisper{client: client, http: &http.Client{Timeout: timeout}, model: model, log: log}
}

// Transcribe расшифровывает медиа. Ошибки возвращаются в результате.
func (w *Whisper) Transcribe(ctx context.Context, mediaURL string) domain.TranscriptionResult {
	data, err := w.download(ctx, mediaURL)
	if err != nil {
		return domain.TranscriptionResult{Error: err.Error()}
	}
	resp, err := w.client.CreateTranscription(ctx, openai.TranscriptionRequest{
		Model:    w.model,
		FileName: fileName(mediaURL),
		Audio:    data,
	})
	if err != nil {
		w.log.Warn().Err(err).Str("url", mediaURL).Msg("транскрипция не удалась")
		return domain.TranscriptionResult{Error: err.Error()}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return domain.TranscriptionResult{Error: "empty transcript"}
	}
	return domain.TranscriptionResult{Success: true, Text: text}
}

func (w *Whisper) download(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	start := time.Now()
	resp, err := w.http.Do(req)
	if err == nil && resp.StatusCode >= 300 {
		resp.Body.Close()
		err = fmt.Errorf("status %d", resp.StatusCode)
	}
	metrics.ObserveNetworkRequest("transcriber", "download_media", "cdn", start, err)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, fmt.Errorf("download: media larger than %d bytes", maxMediaBytes)
	}
	return data, nil
}

func fileName(mediaURL string) string {
	base := path.Base(strings.SplitN(mediaURL, "?", 2)[0])
	if base == "" || base == "." || base == "/" || !strings.Contains(base, ".") {
		return "media.mp4"
	}
	return base
}
