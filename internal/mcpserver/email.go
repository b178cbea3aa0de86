package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datastack-mcp/datastack-go/internal/email"
	"github.com/datastack-mcp/datastack-go/internal/observability"
	"github.com/datastack-mcp/datastack-go/internal/ratelimit"
)

// EmailDeps bundles the configured email provider behind the tools.
type EmailDeps struct {
	Provider email.Provider
	Limiter  *ratelimit.ServiceLimiter
	Metrics  *observability.Metrics

	// BulkLimit caps concurrent sends in send_bulk_emails. Zero means
	// the email package default.
	BulkLimit int
}

// RegisterEmailTools registers the email sending and delivery stats tools.
func RegisterEmailTools(server *mcp.Server, deps EmailDeps) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "send_email",
			Description: "Send a single email through the configured provider",
		},
		instrumented(deps.Metrics, "send_email", sendEmailHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "send_bulk_emails",
			Description: "Send a batch of emails concurrently, reporting per-message outcomes",
		},
		instrumented(deps.Metrics, "send_bulk_emails", sendBulkEmailsHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_email_stats",
			Description: "Get delivery statistics from the provider over a trailing window",
		},
		instrumented(deps.Metrics, "get_email_stats", getEmailStatsHandler(deps)),
	)
}

// waitRemote throttles SES sends against the shared AWS limiter. Other
// providers enforce their own rate limits server side.
func (d EmailDeps) waitRemote(ctx context.Context) error {
	if d.Limiter == nil || d.Provider.Name() != "ses" {
		return nil
	}
	return d.Limiter.Wait(ctx, ratelimit.ServiceSES)
}

type sendEmailInput struct {
	To          []string           `json:"to"`
	Cc          []string           `json:"cc,omitempty"`
	Bcc         []string           `json:"bcc,omitempty"`
	Subject     string             `json:"subject"`
	TextBody    string             `json:"text_body,omitempty"`
	HTMLBody    string             `json:"html_body,omitempty"`
	Attachments []email.Attachment `json:"attachments,omitempty"`
}

func (in sendEmailInput) message() email.Message {
	return email.Message{
		To:          in.To,
		Cc:          in.Cc,
		Bcc:         in.Bcc,
		Subject:     in.Subject,
		TextBody:    in.TextBody,
		HTMLBody:    in.HTMLBody,
		Attachments: in.Attachments,
	}
}

func sendEmailHandler(deps EmailDeps) mcp.ToolHandlerFor[sendEmailInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input sendEmailInput) (*mcp.CallToolResult, any, error) {
		msg := input.message()
		if err := email.Validate(msg); err != nil {
			return errorResult(err.Error()), nil, nil
		}
		if err := deps.waitRemote(ctx); err != nil {
			return nil, nil, fmt.Errorf("send_email: %w", err)
		}

		id, err := deps.Provider.Send(ctx, msg)
		deps.Metrics.RecordEmailSent(ctx, deps.Provider.Name(), err != nil)
		if err != nil {
			return nil, nil, fmt.Errorf("send_email: %w", err)
		}
		return textResult(map[string]string{
			"message_id": id,
			"provider":   deps.Provider.Name(),
		})
	}
}

type sendBulkEmailsInput struct {
	Messages []sendEmailInput `json:"messages"`
}

func sendBulkEmailsHandler(deps EmailDeps) mcp.ToolHandlerFor[sendBulkEmailsInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input sendBulkEmailsInput) (*mcp.CallToolResult, any, error) {
		if len(input.Messages) == 0 {
			return errorResult("messages is empty"), nil, nil
		}

		msgs := make([]email.Message, len(input.Messages))
		for i, in := range input.Messages {
			msg := in.message()
			if err := email.Validate(msg); err != nil {
				return errorResult(fmt.Sprintf("message %d: %v", i, err)), nil, nil
			}
			msgs[i] = msg
		}
		if err := deps.waitRemote(ctx); err != nil {
			return nil, nil, fmt.Errorf("send_bulk_emails: %w", err)
		}

		results := email.SendBulk(ctx, deps.Provider, msgs, deps.BulkLimit)

		sent := 0
		out := make([]map[string]any, len(results))
		for i, r := range results {
			entry := map[string]any{"index": r.Index}
			if r.Error != "" {
				entry["error"] = r.Error
			} else {
				entry["message_id"] = r.MessageID
				sent++
			}
			deps.Metrics.RecordEmailSent(ctx, deps.Provider.Name(), r.Error != "")
			out[i] = entry
		}
		return textResult(map[string]any{
			"provider": deps.Provider.Name(),
			"sent":     sent,
			"failed":   len(results) - sent,
			"results":  out,
		})
	}
}

type emailStatsInput struct {
	Days int `json:"days,omitempty"`
}

func getEmailStatsHandler(deps EmailDeps) mcp.ToolHandlerFor[emailStatsInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input emailStatsInput) (*mcp.CallToolResult, any, error) {
		days := input.Days
		if days <= 0 {
			days = 7
		}
		if days > 90 {
			return errorResult(fmt.Sprintf("days must be 90 or fewer, got %d", days)), nil, nil
		}
		if err := deps.waitRemote(ctx); err != nil {
			return nil, nil, fmt.Errorf("get_email_stats: %w", err)
		}

		stats, err := deps.Provider.Stats(ctx, days)
		if err != nil {
			return nil, nil, fmt.Errorf("get_email_stats: %w", err)
		}
		return textResult(stats)
	}
}
