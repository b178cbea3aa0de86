package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultSendGridEndpoint = "https://api.sendgrid.com"

// SendGrid delivers mail through the SendGrid v3 REST API.
type SendGrid struct {
	endpoint   string
	apiKey     string
	from       string
	httpClient *http.Client
}

// NewSendGrid creates a SendGrid provider against the public API endpoint.
func NewSendGrid(apiKey, from string) *SendGrid {
	return NewSendGridWithHTTPClient(defaultSendGridEndpoint, apiKey, from, &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewSendGridWithHTTPClient creates a SendGrid provider with a custom endpoint
// and HTTP client (for testing).
func NewSendGridWithHTTPClient(endpoint, apiKey, from string, httpClient *http.Client) *SendGrid {
	return &SendGrid{
		endpoint:   endpoint,
		apiKey:     apiKey,
		from:       from,
		httpClient: httpClient,
	}
}

func (s *SendGrid) Name() string { return "sendgrid" }

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To  []sgAddress `json:"to"`
	Cc  []sgAddress `json:"cc,omitempty"`
	Bcc []sgAddress `json:"bcc,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgAttachment struct {
	Content  string `json:"content"`
	Type     string `json:"type,omitempty"`
	Filename string `json:"filename"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
	Attachments      []sgAttachment      `json:"attachments,omitempty"`
}

// Send posts one message to /v3/mail/send and returns the X-Message-Id
// assigned by SendGrid.
func (s *SendGrid) Send(ctx context.Context, msg Message) (string, error) {
	if err := Validate(msg); err != nil {
		return "", err
	}

	mail := sgMail{
		Personalizations: []sgPersonalization{{
			To:  sgAddresses(msg.To),
			Cc:  sgAddresses(msg.Cc),
			Bcc: sgAddresses(msg.Bcc),
		}},
		From:    sgAddress{Email: s.from},
		Subject: msg.Subject,
	}
	// SendGrid requires text/plain before text/html.
	if msg.TextBody != "" {
		mail.Content = append(mail.Content, sgContent{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		mail.Content = append(mail.Content, sgContent{Type: "text/html", Value: msg.HTMLBody})
	}
	for _, att := range msg.Attachments {
		mail.Attachments = append(mail.Attachments, sgAttachment{
			Content:  att.Data,
			Type:     att.ContentType,
			Filename: att.Name,
		})
	}

	payload, err := json.Marshal(mail)
	if err != nil {
		return "", fmt.Errorf("email: sendgrid encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("email: sendgrid: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("email: sendgrid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("email: sendgrid: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return resp.Header.Get("X-Message-Id"), nil
}

type sgStatsDay struct {
	Date  string `json:"date"`
	Stats []struct {
		Metrics struct {
			Requests    int64 `json:"requests"`
			Delivered   int64 `json:"delivered"`
			Bounces     int64 `json:"bounces"`
			SpamReports int64 `json:"spam_reports"`
		} `json:"metrics"`
	} `json:"stats"`
}

// Stats sums the daily global stats over the trailing window.
func (s *SendGrid) Stats(ctx context.Context, days int) (Stats, error) {
	if days <= 0 {
		days = 1
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	q := url.Values{}
	q.Set("start_date", start.Format("2006-01-02"))
	q.Set("end_date", end.Format("2006-01-02"))
	q.Set("aggregated_by", "day")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/v3/stats?"+q.Encode(), nil)
	if err != nil {
		return Stats{}, fmt.Errorf("email: sendgrid: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("email: sendgrid stats request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("email: sendgrid stats: unexpected status %d", resp.StatusCode)
	}

	var daysOut []sgStatsDay
	if err := json.NewDecoder(resp.Body).Decode(&daysOut); err != nil {
		return Stats{}, fmt.Errorf("email: sendgrid stats decode: %w", err)
	}

	stats := Stats{Provider: s.Name(), WindowDays: days}
	for _, day := range daysOut {
		for _, st := range day.Stats {
			stats.Sent += st.Metrics.Requests
			stats.Delivered += st.Metrics.Delivered
			stats.Bounced += st.Metrics.Bounces
			stats.Complaints += st.Metrics.SpamReports
		}
	}
	return stats, nil
}

func sgAddresses(addrs []string) []sgAddress {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]sgAddress, len(addrs))
	for i, a := range addrs {
		out[i] = sgAddress{Email: a}
	}
	return out
}
