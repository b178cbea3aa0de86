// Package ratelimit provides token-bucket rate limiters for remote service
// calls and per-workgroup query submission budgets. The lifecycle manager
// itself never throttles; callers apply these at the tool layer.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Service names understood by the limiter.
const (
	ServiceAthena       = "Athena"
	ServiceCostExplorer = "CostExplorer"
	ServiceCloudWatch   = "CloudWatch"
	ServiceSES          = "SES"
	ServiceS3           = "S3"
)

// ServiceRates configures per-service request rates (requests per second).
type ServiceRates struct {
	Athena       float64
	CostExplorer float64
	CloudWatch   float64
	SES          float64
	S3           float64
}

// DefaultServiceRates returns conservative AWS rate limits.
func DefaultServiceRates() ServiceRates {
	return ServiceRates{
		Athena:       5,
		CostExplorer: 5,
		CloudWatch:   20,
		SES:          14,
		S3:           50,
	}
}

// ServiceLimiter rate-limits AWS API calls per service using token buckets.
type ServiceLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewServiceLimiter creates a limiter with the given per-service rates.
func NewServiceLimiter(rates ServiceRates) *ServiceLimiter {
	limiters := map[string]*rate.Limiter{
		ServiceAthena:       rate.NewLimiter(rate.Limit(rates.Athena), int(rates.Athena)),
		ServiceCostExplorer: rate.NewLimiter(rate.Limit(rates.CostExplorer), int(rates.CostExplorer)),
		ServiceCloudWatch:   rate.NewLimiter(rate.Limit(rates.CloudWatch), int(rates.CloudWatch)),
		ServiceSES:          rate.NewLimiter(rate.Limit(rates.SES), int(rates.SES)),
		ServiceS3:           rate.NewLimiter(rate.Limit(rates.S3), int(rates.S3)),
	}
	return &ServiceLimiter{limiters: limiters}
}

// Wait blocks until a token is available for the named service, or ctx is cancelled.
func (sl *ServiceLimiter) Wait(ctx context.Context, service string) error {
	sl.mu.RLock()
	limiter, ok := sl.limiters[service]
	sl.mu.RUnlock()
	if !ok {
		return nil // unknown service = no limit
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", service, err)
	}
	return nil
}
