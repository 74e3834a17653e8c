package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/config"
)

type Sender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

// FromEnv picks a sender from SMS_PROVIDER (clicksend, webhook, noop).
func FromEnv(logger *slog.Logger) (Sender, error) {
	switch provider := strings.ToLower(config.String("SMS_PROVIDER", "noop")); provider {
	case "clicksend":
		username, err := config.RequiredString("CLICKSEND_USERNAME")
		if err != nil {
			return nil, err
		}
		apiKey, err := config.RequiredString("CLICKSEND_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewClickSendSender(ClickSendConfig{
			Username: username,
			APIKey:   apiKey,
			From:     config.String("CLICKSEND_FROM", ""),
			BaseURL:  config.String("CLICKSEND_BASE_URL", ""),
		}), nil
	case "webhook":
		url, err := config.RequiredString("SMS_WEBHOOK_URL")
		if err != nil {
			return nil, err
		}
		return NewWebhookSender(url, config.String("SMS_WEBHOOK_TOKEN", "")), nil
	case "noop", "":
		return NewNoopSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown SMS_PROVIDER %q", provider)
	}
}

type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url string, token string) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "sms-webhook"
}

func (s *WebhookSender) Send(ctx context.Context, to string, body string) error {
	raw, err := json.Marshal(map[string]string{"to": to, "body": body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

// NoopSender drops messages; used when no SMS provider is configured.
type NoopSender struct {
	logger *slog.Logger
}

func NewNoopSender(logger *slog.Logger) *NoopSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopSender{logger: logger}
}

func (s *NoopSender) ProviderID() string {
	return "sms-noop"
}

func (s *NoopSender) Send(_ context.Context, to string, _ string) error {
	s.logger.Debug("noop sms sender: dropping message", "to", to)
	return nil
}
