package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultClickSendURL = "https://rest.clicksend.com/v3"

type ClickSendConfig struct {
	Username string
	APIKey   string
	// From is an optional sender id or dedicated number.
	From    string
	BaseURL string
}

// ClickSendSender posts to the ClickSend v3 /sms/send endpoint with basic auth.
type ClickSendSender struct {
	cfg  ClickSendConfig
	http *http.Client
}

func NewClickSendSender(cfg ClickSendConfig) *ClickSendSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultClickSendURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ClickSendSender{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *ClickSendSender) ProviderID() string {
	return "sms-clicksend"
}

type clickSendMessage struct {
	Source string `json:"source"`
	From   string `json:"from,omitempty"`
	Body   string `json:"body"`
	To     string `json:"to"`
}

type clickSendResponse struct {
	HTTPCode     int    `json:"http_code"`
	ResponseCode string `json:"response_code"`
	ResponseMsg  string `json:"response_msg"`
	Data         struct {
		Messages []struct {
			Status string `json:"status"`
		} `json:"messages"`
	} `json:"data"`
}

func (s *ClickSendSender) Send(ctx context.Context, to string, body string) error {
	payload := map[string][]clickSendMessage{
		"messages": {{Source: "counselbook", From: s.cfg.From, Body: body, To: to}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/sms/send", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.cfg.Username, s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("clicksend request: %w", err)
	}
	defer resp.Body.Close()

	var out clickSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("clicksend returned %d with unreadable body: %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || out.ResponseCode != "SUCCESS" {
		return fmt.Errorf("clicksend returned %d %s: %s", resp.StatusCode, out.ResponseCode, out.ResponseMsg)
	}
	for _, m := range out.Data.Messages {
		if m.Status != "" && m.Status != "SUCCESS" {
			return fmt.Errorf("clicksend rejected message: %s", m.Status)
		}
	}
	return nil
}
