package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// Mailgun delivers mail through the Mailgun v3 messages API.
type Mailgun struct {
	baseURL    string
	domain     string
	apiKey     string
	from       string
	httpClient *http.Client
}

// NewMailgun creates a Mailgun provider. baseURL is the API root,
// normally https://api.mailgun.net/v3 (or the EU endpoint).
func NewMailgun(baseURL, domain, apiKey, from string) *Mailgun {
	return NewMailgunWithHTTPClient(baseURL, domain, apiKey, from, &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewMailgunWithHTTPClient creates a Mailgun provider with a custom HTTP client (for testing).
func NewMailgunWithHTTPClient(baseURL, domain, apiKey, from string, httpClient *http.Client) *Mailgun {
	return &Mailgun{
		baseURL:    baseURL,
		domain:     domain,
		apiKey:     apiKey,
		from:       from,
		httpClient: httpClient,
	}
}

func (m *Mailgun) Name() string { return "mailgun" }

// Send posts one message to /{domain}/messages as a multipart form and
// returns the message id Mailgun assigned.
func (m *Mailgun) Send(ctx context.Context, msg Message) (string, error) {
	if err := Validate(msg); err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := []struct{ name, value string }{
		{"from", m.from},
		{"subject", msg.Subject},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return "", fmt.Errorf("email: mailgun encode: %w", err)
		}
	}
	for _, to := range msg.To {
		_ = mw.WriteField("to", to)
	}
	for _, cc := range msg.Cc {
		_ = mw.WriteField("cc", cc)
	}
	for _, bcc := range msg.Bcc {
		_ = mw.WriteField("bcc", bcc)
	}
	if msg.TextBody != "" {
		_ = mw.WriteField("text", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		_ = mw.WriteField("html", msg.HTMLBody)
	}
	for _, att := range msg.Attachments {
		raw, err := att.decode()
		if err != nil {
			return "", err
		}
		part, err := mw.CreateFormFile("attachment", att.Name)
		if err != nil {
			return "", fmt.Errorf("email: mailgun encode: %w", err)
		}
		if _, err := part.Write(raw); err != nil {
			return "", fmt.Errorf("email: mailgun encode: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("email: mailgun encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/"+m.domain+"/messages", &body)
	if err != nil {
		return "", fmt.Errorf("email: mailgun: %w", err)
	}
	req.SetBasicAuth("api", m.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("email: mailgun request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("email: mailgun: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("email: mailgun decode response: %w", err)
	}
	return out.ID, nil
}

type mgCount struct {
	Total int64 `json:"total"`
}

type mgStatPoint struct {
	Accepted   mgCount `json:"accepted"`
	Delivered  mgCount `json:"delivered"`
	Complained mgCount `json:"complained"`
	Failed     struct {
		Permanent mgCount `json:"permanent"`
	} `json:"failed"`
}

// Stats sums the domain totals over the trailing window.
func (m *Mailgun) Stats(ctx context.Context, days int) (Stats, error) {
	if days <= 0 {
		days = 1
	}

	q := url.Values{}
	q.Set("duration", fmt.Sprintf("%dd", days))
	for _, event := range []string{"accepted", "delivered", "failed", "complained"} {
		q.Add("event", event)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/"+m.domain+"/stats/total?"+q.Encode(), nil)
	if err != nil {
		return Stats{}, fmt.Errorf("email: mailgun: %w", err)
	}
	req.SetBasicAuth("api", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("email: mailgun stats request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("email: mailgun stats: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Stats []mgStatPoint `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Stats{}, fmt.Errorf("email: mailgun stats decode: %w", err)
	}

	stats := Stats{Provider: m.Name(), WindowDays: days}
	for _, p := range out.Stats {
		stats.Sent += p.Accepted.Total
		stats.Delivered += p.Delivered.Total
		stats.Bounced += p.Failed.Permanent.Total
		stats.Complaints += p.Complained.Total
	}
	return stats, nil
}
