package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"net/http"
	"strings"
)

const (
	headerSignatureSHA256 = "X-Hub-Signature-256"
	headerSignatureSHA1   = "X-Hub-Signature"
)

// ErrInvalidSignature: подпись запроса не совпала.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// errSignatureMissing: заголовок подписи отсутствует.
var errSignatureMissing = errors.New("webhook signature missing")

// VerifySignature сверяет подпись вида "sha1=<hex>" или "sha256=<hex>" с HMAC тела.
// Без секрета подпись всегда считается неверной.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	algo, sum, ok := strings.Cut(strings.TrimSpace(signature), "=")
	if !ok || sum == "" {
		return false
	}
	var newHash func() hash.Hash
	switch strings.ToLower(algo) {
	case "sha1":
		newHash = sha1.New
	case "sha256":
		newHash = sha256.New
	default:
		return false
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(sum)), []byte(expected))
}

// checkSignature проверяет заголовки запроса. sha256 приоритетнее sha1.
// Если заголовков нет, возвращается errSignatureMissing.
func checkSignature(h http.Header, body []byte, secret string) error {
	signature := h.Get(headerSignatureSHA256)
	if signature == "" {
		signature = h.Get(headerSignatureSHA1)
	}
	if signature == "" {
		return errSignatureMissing
	}
	if !VerifySignature(body, signature, secret) {
		return ErrInvalidSignature
	}
	return nil
}
