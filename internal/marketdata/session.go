package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// SessionConfig holds broker credentials. The TOTP secret generates a
// fresh one-time code per login attempt.
type SessionConfig struct {
	BaseURL    string
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string
}

// Session manages the broker auth token. Login is lazy: the first
// authenticated request logs in, and a 401/403 response invalidates the
// token so the next request logs in again.
type Session struct {
	cfg    SessionConfig
	client *http.Client

	mu    sync.Mutex
	token string
}

// NewSession builds a session manager.
func NewSession(cfg SessionConfig, client *http.Client) *Session {
	if client == nil {
		client = &http.Client{Timeout: 7 * time.Second}
	}
	return &Session{cfg: cfg, client: client}
}

// Token returns the current auth token, logging in if there is none.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, nil
	}

	code, err := totp.GenerateCode(s.cfg.TOTPSecret, time.Now())
	if err != nil {
		return "", fmt.Errorf("totp generate: %w", err)
	}

	body, _ := json.Marshal(map[string]string{
		"clientcode": s.cfg.ClientCode,
		"password":   s.cfg.Password,
		"totp":       code,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-PrivateKey", s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			JWTToken string `json:"jwtToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("login decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !out.Status || out.Data.JWTToken == "" {
		return "", fmt.Errorf("login failed (status %d): %s", resp.StatusCode, out.Message)
	}

	s.token = out.Data.JWTToken
	return s.token, nil
}

// Invalidate drops the cached token after an auth failure.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}
