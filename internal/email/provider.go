// Package email delivers outbound mail through a configured provider.
// Exactly one Provider implementation is constructed at process startup;
// callers hold the interface and never branch on the concrete type.
package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

const defaultBulkConcurrency = 8

// Message is one outbound email.
type Message struct {
	To          []string     `json:"to"`
	Cc          []string     `json:"cc,omitempty"`
	Bcc         []string     `json:"bcc,omitempty"`
	Subject     string       `json:"subject"`
	TextBody    string       `json:"text_body,omitempty"`
	HTMLBody    string       `json:"html_body,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment carries one file as base64-encoded content.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

func (a Attachment) decode() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("email: attachment %s: %w", a.Name, err)
	}
	return data, nil
}

// Stats aggregates delivery counters over a trailing window of days.
type Stats struct {
	Provider   string `json:"provider"`
	WindowDays int    `json:"window_days"`
	Sent       int64  `json:"sent"`
	Delivered  int64  `json:"delivered"`
	Bounced    int64  `json:"bounced"`
	Complaints int64  `json:"complaints"`
}

// Provider delivers mail and reports delivery stats.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (messageID string, err error)
	Stats(ctx context.Context, days int) (Stats, error)
}

// Validate rejects a message no provider could deliver.
func Validate(msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("email: no recipients")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return errors.New("email: empty subject")
	}
	if msg.TextBody == "" && msg.HTMLBody == "" {
		return errors.New("email: empty body")
	}
	return nil
}

// BulkResult reports the outcome for one message in a bulk send.
type BulkResult struct {
	Index     int    `json:"index"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendBulk delivers messages concurrently through p, at most limit in
// flight. A failed message is reported in its result rather than
// aborting the rest of the batch.
func SendBulk(ctx context.Context, p Provider, msgs []Message, limit int) []BulkResult {
	if limit <= 0 {
		limit = defaultBulkConcurrency
	}

	results := make([]BulkResult, len(msgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range msgs {
		g.Go(func() error {
			id, err := p.Send(gctx, msgs[i])
			if err != nil {
				results[i] = BulkResult{Index: i, Error: err.Error()}
				return nil // don't fail the whole batch
			}
			results[i] = BulkResult{Index: i, MessageID: id}
			return nil
		})
	}

	_ = g.Wait()
	return results
}
