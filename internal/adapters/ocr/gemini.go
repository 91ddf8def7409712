package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/infra/metrics"
)

const (
	defaultModel    = "gemini-2.0-flash"
	maxImageBytes   = 10 << 20
	defaultTimeout  = 30 * time.Second
	ocrInstructions = "Extract all readable text from this image exactly as written, preserving line breaks. " +
		"Return an empty string if there is no text. Estimate confidence between 0 and 1."
)

// ErrProviderDisabled: ключ API не задан, OCR недоступен.
var ErrProviderDisabled = errors.New("ocr: provider disabled")

var ocrSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"text":       {Type: genai.TypeString, Description: "All text found in the image."},
		"confidence": {Type: genai.TypeNumber, Description: "Recognition confidence from 0 to 1."},
	},
	Required: []string{"text", "confidence"},
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Gemini распознаёт текст на изображениях через Gemini vision.
type Gemini struct {
	generate generateFunc
	http     *http.Client
	model    string
	timeout  time.Duration
	log      zerolog.Logger
}

// NewGemini создаёт OCR провайдер. Без ключа возвращает ErrProviderDisabled.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration, log zerolog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrProviderDisabled
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("ocr: create gemini client: %w", err)
	}
	return newGemini(client.Models.GenerateContent, model, timeout, log), nil
}

func newGemini(generate generateFunc, model string, timeout time.Duration, log zerolog.Logger) *Gemini {
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gemini{
		generate: generate,
		http:     &http.Client{Timeout: timeout},
		model:    model,
		timeout:  timeout,
		log:      log,
	}
}

// ExtractText скачивает изображение и распознаёт текст. Ошибки возвращаются в результате.
func (g *Gemini) ExtractText(ctx context.Context, imageURL string) domain.OCRResult {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	data, mimeType, err := g.download(ctx, imageURL)
	if err != nil {
		return domain.OCRResult{Error: err.Error()}
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(ocrInstructions),
		}, genai.RoleUser),
	}
	temperature := float32(0)
	start := time.Now()
	resp, err := g.generate(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   ocrSchema,
	})
	metrics.ObserveNetworkRequest("gemini", "ocr", g.model, start, err)
	if err != nil {
		g.log.Warn().Err(err).Str("url", imageURL).Msg("gemini OCR не ответил")
		return domain.OCRResult{Error: fmt.Sprintf("gemini: %v", err)}
	}

	parsed, err := parseResponse(resp)
	if err != nil {
		return domain.OCRResult{Error: err.Error()}
	}
	return domain.OCRResult{
		Success:    true,
		Text:       strings.TrimSpace(parsed.Text),
		Confidence: clamp(parsed.Confidence),
	}
}

func (g *Gemini) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	start := time.Now()
	resp, err := g.http.Do(req)
	if err == nil && resp.StatusCode >= 300 {
		resp.Body.Close()
		err = fmt.Errorf("status %d", resp.StatusCode)
	}
	metrics.ObserveNetworkRequest("ocr", "download_image", "cdn", start, err)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("download: image larger than %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return nil, "", errors.New("download: empty image")
	}
	return data, imageMIME(resp.Header.Get("Content-Type"), data), nil
}

// imageMIME берёт тип из заголовка, иначе определяет по содержимому.
func imageMIME(header string, data []byte) string {
	if mt, _, _ := strings.Cut(header, ";"); strings.HasPrefix(strings.TrimSpace(mt), "image/") {
		return strings.TrimSpace(mt)
	}
	if detected := http.DetectContentType(data); strings.HasPrefix(detected, "image/") {
		return detected
	}
	return "image/jpeg"
}

type ocrResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func parseResponse(resp *genai.GenerateContentResponse) (ocrResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ocrResponse{}, errors.New("gemini: empty response")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	raw := strings.TrimSpace(b.String())
	raw = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(raw, "```json"), "```"), "```")

	var out ocrResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return ocrResponse{}, fmt.Errorf("gemini: parse response: %w", err)
	}
	return out, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
