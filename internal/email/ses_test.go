package email

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cw "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSESAPI struct {
	mu        sync.Mutex
	sendErr   error
	sendCalls int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESAPI) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls++
	m.lastInput = params
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

type mockMetricsAPI struct {
	mu    sync.Mutex
	sums  map[string]float64
	calls int
}

func (m *mockMetricsAPI) GetMetricStatistics(_ context.Context, params *cw.GetMetricStatisticsInput, _ ...func(*cw.Options)) (*cw.GetMetricStatisticsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return &cw.GetMetricStatisticsOutput{
		Datapoints: []cwtypes.Datapoint{
			{Sum: aws.Float64(m.sums[aws.ToString(params.MetricName)])},
		},
	}, nil
}

func TestSESSend(t *testing.T) {
	mock := &mockSESAPI{}
	provider := NewSESFromAPI(mock, &mockMetricsAPI{}, "reports@example.com")

	id, err := provider.Send(context.Background(), Message{
		To:       []string{"ops@example.com", "eng@example.com"},
		Subject:  "weekly report",
		HTMLBody: "<p>done</p>",
		Attachments: []Attachment{
			{Name: "report.txt", ContentType: "text/plain", Data: "aGVsbG8="},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", id)
	assert.Equal(t, 1, mock.sendCalls)

	in := mock.lastInput
	require.NotNil(t, in)
	assert.Equal(t, "reports@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ops@example.com", "eng@example.com"}, in.Destination.ToAddresses)

	simple := in.Content.Simple
	require.NotNil(t, simple)
	assert.Equal(t, "weekly report", aws.ToString(simple.Subject.Data))
	assert.Equal(t, "<p>done</p>", aws.ToString(simple.Body.Html.Data))
	assert.Nil(t, simple.Body.Text)

	require.Len(t, simple.Attachments, 1)
	assert.Equal(t, "report.txt", aws.ToString(simple.Attachments[0].FileName))
	assert.Equal(t, []byte("hello"), simple.Attachments[0].RawContent)
}

func TestSESSend_RemoteError(t *testing.T) {
	mock := &mockSESAPI{sendErr: errors.New("Email address is not verified")}
	provider := NewSESFromAPI(mock, &mockMetricsAPI{}, "reports@example.com")

	_, err := provider.Send(context.Background(), Message{
		To: []string{"ops@example.com"}, Subject: "s", TextBody: "b",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ses send")
	assert.Contains(t, err.Error(), "not verified")
}

func TestSESSend_BadAttachment(t *testing.T) {
	mock := &mockSESAPI{}
	provider := NewSESFromAPI(mock, &mockMetricsAPI{}, "reports@example.com")

	_, err := provider.Send(context.Background(), Message{
		To: []string{"ops@example.com"}, Subject: "s", TextBody: "b",
		Attachments: []Attachment{{Name: "x.bin", Data: "not base64 %%"}},
	})
	require.Error(t, err)
	assert.Equal(t, 0, mock.sendCalls)
}

func TestSESStats(t *testing.T) {
	metrics := &mockMetricsAPI{sums: map[string]float64{
		"Send": 120, "Delivery": 110, "Bounce": 8, "Complaint": 2,
	}}
	provider := NewSESFromAPI(&mockSESAPI{}, metrics, "reports@example.com")

	stats, err := provider.Stats(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Provider:   "ses",
		WindowDays: 7,
		Sent:       120,
		Delivered:  110,
		Bounced:    8,
		Complaints: 2,
	}, stats)
	assert.Equal(t, 4, metrics.calls)
}
