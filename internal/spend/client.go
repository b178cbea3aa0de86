// Package spend reports actual Athena spend from Cost Explorer, the
// billing-accurate counterpart to the heuristic pre-submission estimate.
package spend

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
)

// athenaService is the Cost Explorer dimension value for Athena charges.
const athenaService = "Amazon Athena"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// API is the subset of the Cost Explorer client used by this package.
type API interface {
	GetCostAndUsage(ctx context.Context, params *ce.GetCostAndUsageInput, optFns ...func(*ce.Options)) (*ce.GetCostAndUsageOutput, error)
}

// Client reports query-service spend.
type Client struct {
	api API
}

// New creates a Client from an AWS config.
func New(cfg aws.Config) *Client {
	return &Client{api: ce.NewFromConfig(cfg)}
}

// NewFromAPI creates a Client from an explicit API implementation (for testing).
func NewFromAPI(api API) *Client {
	return &Client{api: api}
}

// DailySpend is one day of unblended cost.
type DailySpend struct {
	Date      string  `json:"date"`
	AmountUSD float64 `json:"amount_usd"`
}

// Summary aggregates a period of Athena spend.
type Summary struct {
	Service   string       `json:"service"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	TotalUSD  float64      `json:"total_usd"`
	Days      []DailySpend `json:"days"`
}

// Summarize returns daily unblended Athena costs for [startDate, endDate).
func (c *Client) Summarize(ctx context.Context, startDate, endDate string) (Summary, error) {
	if !datePattern.MatchString(startDate) {
		return Summary{}, fmt.Errorf("spend: invalid start date %q (must be YYYY-MM-DD)", startDate)
	}
	if !datePattern.MatchString(endDate) {
		return Summary{}, fmt.Errorf("spend: invalid end date %q (must be YYYY-MM-DD)", endDate)
	}

	out, err := c.api.GetCostAndUsage(ctx, &ce.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startDate),
			End:   aws.String(endDate),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
		Filter: &cetypes.Expression{
			Dimensions: &cetypes.DimensionValues{
				Key:    cetypes.DimensionService,
				Values: []string{athenaService},
			},
		},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("spend: get cost and usage: %w", err)
	}

	sum := Summary{
		Service:   athenaService,
		StartDate: startDate,
		EndDate:   endDate,
		Days:      make([]DailySpend, 0, len(out.ResultsByTime)),
	}
	for _, r := range out.ResultsByTime {
		day := DailySpend{}
		if r.TimePeriod != nil {
			day.Date = aws.ToString(r.TimePeriod.Start)
		}
		if m, ok := r.Total["UnblendedCost"]; ok && m.Amount != nil {
			day.AmountUSD, _ = strconv.ParseFloat(*m.Amount, 64)
		}
		sum.TotalUSD += day.AmountUSD
		sum.Days = append(sum.Days, day)
	}
	return sum, nil
}
