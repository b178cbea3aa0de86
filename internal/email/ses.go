package email

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cw "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SESv2 client used by this package.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// MetricsAPI is the subset of the CloudWatch client used for delivery stats.
type MetricsAPI interface {
	GetMetricStatistics(ctx context.Context, params *cw.GetMetricStatisticsInput, optFns ...func(*cw.Options)) (*cw.GetMetricStatisticsOutput, error)
}

// SES delivers mail through Amazon SES and reads delivery counters from
// the AWS/SES CloudWatch namespace.
type SES struct {
	api  SESAPI
	cw   MetricsAPI
	from string
}

// NewSES creates an SES provider from an AWS config.
func NewSES(cfg aws.Config, from string) *SES {
	return &SES{
		api:  sesv2.NewFromConfig(cfg),
		cw:   cw.NewFromConfig(cfg),
		from: from,
	}
}

// NewSESFromAPI creates an SES provider from explicit API implementations (for testing).
func NewSESFromAPI(api SESAPI, metrics MetricsAPI, from string) *SES {
	return &SES{api: api, cw: metrics, from: from}
}

func (s *SES) Name() string { return "ses" }

// Send delivers one message and returns the SES message id.
func (s *SES) Send(ctx context.Context, msg Message) (string, error) {
	if err := Validate(msg); err != nil {
		return "", err
	}

	body := &sestypes.Body{}
	if msg.TextBody != "" {
		body.Text = &sestypes.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}
	if msg.HTMLBody != "" {
		body.Html = &sestypes.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}

	simple := &sestypes.Message{
		Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
		Body:    body,
	}
	for _, att := range msg.Attachments {
		raw, err := att.decode()
		if err != nil {
			return "", err
		}
		simple.Attachments = append(simple.Attachments, sestypes.Attachment{
			FileName:    aws.String(att.Name),
			ContentType: aws.String(att.ContentType),
			RawContent:  raw,
		})
	}

	out, err := s.api.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &sestypes.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
		Content: &sestypes.EmailContent{Simple: simple},
	})
	if err != nil {
		return "", fmt.Errorf("email: ses send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Stats sums the account-wide AWS/SES counters over the trailing window.
func (s *SES) Stats(ctx context.Context, days int) (Stats, error) {
	if days <= 0 {
		days = 1
	}
	end := time.Now().UTC()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	stats := Stats{Provider: s.Name(), WindowDays: days}
	for _, m := range []struct {
		name string
		dst  *int64
	}{
		{"Send", &stats.Sent},
		{"Delivery", &stats.Delivered},
		{"Bounce", &stats.Bounced},
		{"Complaint", &stats.Complaints},
	} {
		sum, err := s.metricSum(ctx, m.name, start, end)
		if err != nil {
			return Stats{}, fmt.Errorf("email: ses stats %s: %w", m.name, err)
		}
		*m.dst = sum
	}
	return stats, nil
}

func (s *SES) metricSum(ctx context.Context, metricName string, start, end time.Time) (int64, error) {
	out, err := s.cw.GetMetricStatistics(ctx, &cw.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/SES"),
		MetricName: aws.String(metricName),
		StartTime:  aws.Time(start),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(86400), // 1-day period
		Statistics: []cwtypes.Statistic{cwtypes.StatisticSum},
	})
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, dp := range out.Datapoints {
		if dp.Sum != nil {
			sum += *dp.Sum
		}
	}
	return int64(sum), nil
}
