package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seatwise/seatwise/internal/config"
)

// APIProvider posts reminders to an external mail-relay endpoint.
type APIProvider struct {
	url    string
	apiKey string
	token  string
	http   *http.Client
}

func NewAPI(cfg config.ReminderConfig) *APIProvider {
	return &APIProvider{
		url:    cfg.APIURL,
		apiKey: cfg.APIKey,
		token:  cfg.APIToken,
		http:   &http.Client{Timeout: 20 * time.Second},
	}
}

func (p *APIProvider) Send(ctx context.Context, to, subject, body string) error {
	if p.url == "" {
		return fmt.Errorf("%w: notification api url is missing", ErrNotConfigured)
	}

	payload, err := json.Marshal(map[string]string{
		"email":   to,
		"to":      to,
		"subject": subject,
		"content": body,
		"text":    body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification api returned %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
