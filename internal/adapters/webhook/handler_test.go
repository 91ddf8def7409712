package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"ig-digest-bot/internal/domain"
	"ig-digest-bot/internal/infra/cache"
)

const testSecret = "app-secret"

type recordingHandler struct {
	mu   sync.Mutex
	msgs []domain.InboundMessage
	err  error
}

func (r *recordingHandler) HandleMessage(_ context.Context, msg domain.InboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func sign(body, secret string, sha string) string {
	if sha == "sha1" {
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write([]byte(body))
		return "sha1=" + hex.EncodeToString(mac.Sum(nil))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestHandler(cfg Config) (*Handler, *recordingHandler) {
	rec := &recordingHandler{}
	return NewHandler(cfg, cache.NewMemoryDeduplicator(cache.DefaultDedupWindow), rec, zerolog.Nop()), rec
}

func post(t *testing.T, h *Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)
	return w
}

const textEvent = `{"object":"instagram","entry":[{"id":"1","messaging":[{"sender":{"id":"ig1"},"recipient":{"id":"page"},"message":{"mid":"m1","text":"hello"}}]}]}`

func TestVerifyHandshake(t *testing.T) {
	h, _ := newTestHandler(Config{VerifyToken: "tok"})
	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{name: "ok", query: "hub.mode=subscribe&hub.verify_token=tok&hub.challenge=12345", status: http.StatusOK, body: "12345"},
		{name: "wrong token", query: "hub.mode=subscribe&hub.verify_token=bad&hub.challenge=1", status: http.StatusForbidden},
		{name: "wrong mode", query: "hub.mode=unsubscribe&hub.verify_token=tok&hub.challenge=1", status: http.StatusForbidden},
		{name: "empty", status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			w := httptest.NewRecorder()
			h.Routes().ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("ожидали %d, получили %d", tt.status, w.Code)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Fatalf("ожидали challenge %q, получили %q", tt.body, w.Body.String())
			}
		})
	}
}

func TestVerifyHandshakeWithoutToken(t *testing.T) {
	h, _ := newTestHandler(Config{})
	req := httptest.NewRequest(http.MethodGet, "/?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("без настроенного токена ожидали 403, получили %d", w.Code)
	}
}

func TestPostWrongSecretRejected(t *testing.T) {
	h, rec := newTestHandler(Config{AppSecret: testSecret})
	w := post(t, h, textEvent, map[string]string{headerSignatureSHA1: sign(textEvent, "other-secret", "sha1")})
	if w.Code != http.StatusForbidden {
		t.Fatalf("ожидали 403, получили %d", w.Code)
	}
	if len(rec.msgs) != 0 {
		t.Fatalf("при неверной подписи обработка не должна начинаться")
	}
}

func TestPostValidSignatures(t *testing.T) {
	for _, tt := range []struct {
		header string
		sha    string
	}{
		{header: headerSignatureSHA1, sha: "sha1"},
		{header: headerSignatureSHA256, sha: "sha256"},
	} {
		t.Run(tt.sha, func(t *testing.T) {
			h, rec := newTestHandler(Config{AppSecret: testSecret})
			w := post(t, h, textEvent, map[string]string{tt.header: sign(textEvent, testSecret, tt.sha)})
			if w.Code != http.StatusOK {
				t.Fatalf("ожидали 200, получили %d: %s", w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"success":true`) {
				t.Fatalf("неожиданный ответ: %s", w.Body.String())
			}
			if len(rec.msgs) != 1 || rec.msgs[0].SenderID != "ig1" || rec.msgs[0].Text != "hello" {
				t.Fatalf("ожидали одно сообщение, получили %+v", rec.msgs)
			}
		})
	}
}

func TestPostUnsignedPolicy(t *testing.T) {
	h, rec := newTestHandler(Config{AppSecret: testSecret})
	if w := post(t, h, textEvent, nil); w.Code != http.StatusOK || len(rec.msgs) != 1 {
		t.Fatalf("без подписи запрос пропускается, получили %d", w.Code)
	}

	strict, strictRec := newTestHandler(Config{AppSecret: testSecret, RequireSignature: true})
	if w := post(t, strict, textEvent, nil); w.Code != http.StatusForbidden || len(strictRec.msgs) != 0 {
		t.Fatalf("в строгом режиме ожидали 403, получили %d", w.Code)
	}
}

func TestPostSignatureWithoutSecretFailsClosed(t *testing.T) {
	h, rec := newTestHandler(Config{})
	w := post(t, h, textEvent, map[string]string{headerSignatureSHA1: sign(textEvent, "", "sha1")})
	if w.Code != http.StatusForbidden || len(rec.msgs) != 0 {
		t.Fatalf("без секрета ожидали 403, получили %d", w.Code)
	}
}

func TestPostMalformedJSON(t *testing.T) {
	h, _ := newTestHandler(Config{})
	if w := post(t, h, `{"entry":[`, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("ожидали 500, получили %d", w.Code)
	}
}

func TestPostSkipsNonMessages(t *testing.T) {
	body := `{"object":"instagram","entry":[{"id":"1","messaging":[
		{"sender":{"id":"ig1"},"message":{"mid":"m1","text":"echo","is_echo":true}},
		{"sender":{"id":"ig1"},"reaction":{"mid":"m0","action":"react"}},
		{"message":{"mid":"m2","text":"no sender"}},
		{"sender":{"id":"ig1"}}
	]}]}`
	h, rec := newTestHandler(Config{})
	w := post(t, h, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", w.Code)
	}
	if len(rec.msgs) != 0 {
		t.Fatalf("служебные события не должны доходить до обработчика: %+v", rec.msgs)
	}
}

func TestPostTolerantShapes(t *testing.T) {
	for _, body := range []string{`{}`, `{"entry":[]}`, `{"entry":[{"id":"1"}]}`} {
		h, rec := newTestHandler(Config{})
		if w := post(t, h, body, nil); w.Code != http.StatusOK || len(rec.msgs) != 0 {
			t.Fatalf("тело %s: ожидали 200 без сообщений, получили %d", body, w.Code)
		}
	}
}

func TestPostMixedShapes(t *testing.T) {
	body := `{"object":"instagram","entry":[
		{"id":"1","messaging":[{"sender":{"id":"ig1"},"message":{"mid":"m1","text":"one"}}]},
		{"id":"2","changes":[
			{"field":"messages","value":{"sender":{"id":"ig2","username":"bob"},"message":{"mid":"m2","attachments":[{"type":"ig_reel","payload":{"url":"https://cdn/v.mp4","title":"cap","reel_video_id":1790}}]}}},
			{"field":"comments","value":{"id":"c1"}}
		]}
	]}`
	h, rec := newTestHandler(Config{})
	w := post(t, h, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", w.Code)
	}
	if len(rec.msgs) != 2 {
		t.Fatalf("ожидали два сообщения, получили %d", len(rec.msgs))
	}
	second := rec.msgs[1]
	if second.SenderID != "ig2" || second.SenderUsername != "bob" || len(second.Attachments) != 1 {
		t.Fatalf("неожиданное сообщение из changes: %+v", second)
	}
	if a := second.Attachments[0]; a.Type != "ig_reel" || a.MediaID != "1790" || a.Title != "cap" {
		t.Fatalf("неожиданное вложение: %+v", a)
	}
}

func TestPostDeduplicates(t *testing.T) {
	h, rec := newTestHandler(Config{})
	for range 3 {
		if w := post(t, h, textEvent, nil); w.Code != http.StatusOK {
			t.Fatalf("ожидали 200, получили %d", w.Code)
		}
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("повторные доставки должны отбрасываться, обработано %d", len(rec.msgs))
	}
}

func TestPostConcurrentDuplicates(t *testing.T) {
	h, rec := newTestHandler(Config{})
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(textEvent))
			h.Routes().ServeHTTP(httptest.NewRecorder(), req)
		}()
	}
	close(start)
	wg.Wait()
	if len(rec.msgs) != 1 {
		t.Fatalf("одновременные доставки одного mid должны обрабатываться один раз, обработано %d", len(rec.msgs))
	}
}

type failingDedup struct{}

func (failingDedup) MarkSeen(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestPostDedupFailureDoesNotBlock(t *testing.T) {
	rec := &recordingHandler{}
	h := NewHandler(Config{}, failingDedup{}, rec, zerolog.Nop())
	if w := post(t, h, textEvent, nil); w.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", w.Code)
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("сбой дедупликатора не должен блокировать обработку, обработано %d", len(rec.msgs))
	}
}

func TestPostHandlerErrorReturns500(t *testing.T) {
	h, rec := newTestHandler(Config{})
	rec.err = errors.New("db down")
	if w := post(t, h, textEvent, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("ожидали 500, получили %d", w.Code)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	good := sign(string(body), testSecret, "sha1")
	if !VerifySignature(body, good, testSecret) {
		t.Fatal("ожидали валидную подпись")
	}
	if !VerifySignature(body, strings.ToUpper(good[:5])+good[5:], testSecret) {
		t.Fatal("префикс алгоритма не зависит от регистра")
	}
	for _, bad := range []string{"", "sha1=", "md5=abcd", good[5:], sign(string(body), testSecret+"x", "sha1")} {
		if VerifySignature(body, bad, testSecret) {
			t.Fatalf("подпись %q должна быть отклонена", bad)
		}
	}
	if VerifySignature(body, good, "") {
		t.Fatal("без секрета подпись всегда неверна")
	}
}
