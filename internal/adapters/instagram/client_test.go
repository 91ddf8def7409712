package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSendSplitsLongText(t *testing.T) {
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/messages" || r.Method != http.MethodPost {
			t.Errorf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("ожидали bearer token")
		}
		var body sendRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("некорректное тело: %v", err)
		}
		if body.Recipient.ID != "ig1" {
			t.Errorf("неожиданный получатель %q", body.Recipient.ID)
		}
		texts = append(texts, body.Message.Text)
		_, _ = w.Write([]byte(`{"recipient_id":"ig1","message_id":"m"}`))
	}))
	defer srv.Close()

	c := NewClient("tok", srv.URL, time.Second, zerolog.Nop())
	text := strings.Repeat("a", 900) + "\n" + strings.Repeat("b", 300)
	if !c.Send(context.Background(), "ig1", text) {
		t.Fatal("ожидали успешную отправку")
	}
	if len(texts) != 2 {
		t.Fatalf("ожидали 2 запроса, получили %d", len(texts))
	}
}

func TestSendReportsGraphError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"user not reachable","code":551}}`))
	}))
	defer srv.Close()

	c := NewClient("tok", srv.URL, time.Second, zerolog.Nop())
	if c.Send(context.Background(), "ig1", "hi") {
		t.Fatal("ожидали false при ошибке Graph API")
	}
	if err := c.sendText(context.Background(), "ig1", "hi"); err == nil || !strings.Contains(err.Error(), "user not reachable") {
		t.Fatalf("ожидали текст ошибки API, получили %v", err)
	}
}

func TestSendWithoutToken(t *testing.T) {
	c := NewClient("", "http://127.0.0.1:1", time.Second, zerolog.Nop())
	if c.Send(context.Background(), "ig1", "hi") {
		t.Fatal("без токена отправка невозможна")
	}
}

func TestUsername(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/123" || r.URL.Query().Get("fields") != "username" {
			t.Errorf("неожиданный запрос %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"username":"nasa","id":"123"}`))
	}))
	defer srv.Close()

	c := NewClient("tok", srv.URL, time.Second, zerolog.Nop())
	got, err := c.Username(context.Background(), "123")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != "nasa" {
		t.Fatalf("ожидали nasa, получили %q", got)
	}
}
