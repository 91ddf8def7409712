package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ig-digest-bot/internal/infra/metrics"
)

const defaultGraphURL = "https://graph.instagram.com/v21.0"

// ErrNoAccessToken: токен доступа Graph API не настроен.
var ErrNoAccessToken = errors.New("instagram: access token is empty")

// Client отправляет сообщения в Direct и читает профили через Graph API.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	log     zerolog.Logger
}

// NewClient создаёт клиента Graph API.
func NewClient(accessToken, baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultGraphURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   accessToken,
		log:     log,
	}
}

type sendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send отправляет текст, при необходимости разбивая его на части.
// Возвращает false, если хотя бы одна часть не ушла.
func (c *Client) Send(ctx context.Context, recipientID, text string) bool {
	for _, part := range SplitMessage(text) {
		if err := c.sendText(ctx, recipientID, part); err != nil {
			c.log.Error().Err(err).Str("ig_user_id", recipientID).Msg("не удалось отправить сообщение")
			return false
		}
	}
	return true
}

func (c *Client) sendText(ctx context.Context, recipientID, text string) error {
	if c.token == "" {
		return ErrNoAccessToken
	}
	var body sendRequest
	body.Recipient.ID = recipientID
	body.Message.Text = text
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("instagram: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/me/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("instagram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err == nil {
		defer resp.Body.Close()
		err = checkResponse(resp)
	}
	metrics.ObserveNetworkRequest("instagram", "send_message", "graph_api", start, err)
	return err
}

// Username запрашивает username пользователя по его Instagram ID.
func (c *Client) Username(ctx context.Context, instagramUserID string) (string, error) {
	if c.token == "" {
		return "", ErrNoAccessToken
	}
	endpoint := fmt.Sprintf("%s/%s?fields=username", c.baseURL, url.PathEscape(instagramUserID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("instagram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	var profile struct {
		Username string `json:"username"`
	}
	if err == nil {
		defer resp.Body.Close()
		if err = checkResponse(resp); err == nil {
			err = json.NewDecoder(resp.Body).Decode(&profile)
		}
	}
	metrics.ObserveNetworkRequest("instagram", "get_profile", "graph_api", start, err)
	if err != nil {
		return "", fmt.Errorf("instagram: profile %s: %w", instagramUserID, err)
	}
	return profile.Username, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var gerr graphError
	if err := json.Unmarshal(raw, &gerr); err == nil && gerr.Error.Message != "" {
		return fmt.Errorf("graph api %d: %s (code %d)", resp.StatusCode, gerr.Error.Message, gerr.Error.Code)
	}
	return fmt.Errorf("graph api %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
