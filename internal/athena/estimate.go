package athena

import (
	"regexp"
	"strings"
)

// Estimate is a rough cost hint derived from query shape alone. It is a
// deterministic heuristic with fixed multipliers, not a billing-accurate
// prediction; treat it as a hint, never as an authority.
type Estimate struct {
	EstimatedBytes   int64   `json:"estimated_bytes"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	EstimatedSeconds float64 `json:"estimated_seconds"`
}

// Heuristic constants. The base assumes a modest unknown table; the price
// matches Athena's on-demand rate per terabyte scanned; throughput is a
// round number for a single-workgroup engine.
const (
	estimateBaseBytes   = 100 << 20 // 100 MiB
	estimateDollarPerTB = 5.0
	estimateBytesPerSec = 250 << 20 // 250 MiB/s
)

var (
	wildcardExpr  = regexp.MustCompile(`select\s+\*`)
	joinExpr      = regexp.MustCompile(`\bjoin\b`)
	aggregateExpr = regexp.MustCompile(`\bgroup\s+by\b|\b(count|sum|avg|min|max)\s*\(`)
	limitExpr     = regexp.MustCompile(`\blimit\s+\d+`)
)

// EstimateCost scores a query without any remote call. Multipliers: x8 for
// an unqualified wildcard projection, x3 per join, x1.5 for aggregation,
// x2 when no LIMIT bounds the scan.
func EstimateCost(queryText string) Estimate {
	q := strings.ToLower(queryText)

	bytes := float64(estimateBaseBytes)
	if wildcardExpr.MatchString(q) {
		bytes *= 8
	}
	for range joinExpr.FindAllString(q, -1) {
		bytes *= 3
	}
	if aggregateExpr.MatchString(q) {
		bytes *= 1.5
	}
	if !limitExpr.MatchString(q) {
		bytes *= 2
	}

	return Estimate{
		EstimatedBytes:   int64(bytes),
		EstimatedCostUSD: bytes / (1 << 40) * estimateDollarPerTB,
		EstimatedSeconds: bytes / estimateBytesPerSec,
	}
}
