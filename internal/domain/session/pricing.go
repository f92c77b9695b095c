package session

import (
	"fmt"
	"math"
)

// Pricing is integer-only. Token prices and costs are int64 smallest units
// (6 decimals); running totals never touch floating point. Display conversion
// happens only at the edge via FormatUnits.

// Quote converts a token count and a per-token price into a cost in smallest
// units. Overflow is rejected rather than wrapped: a wrapped cost could pass
// the deposit check.
func Quote(tokens, pricePerToken int64) (int64, error) {
	if tokens < 0 {
		return 0, fmt.Errorf("token count must be non-negative, got %d", tokens)
	}
	if pricePerToken < 0 {
		return 0, fmt.Errorf("price per token must be non-negative, got %d", pricePerToken)
	}
	if tokens == 0 || pricePerToken == 0 {
		return 0, nil
	}
	if tokens > math.MaxInt64/pricePerToken {
		return 0, fmt.Errorf("cost overflow: %d tokens at %d units/token", tokens, pricePerToken)
	}
	return tokens * pricePerToken, nil
}

// SplitPolicy divides a settled total between host and treasury.
type SplitPolicy struct {
	// HostShareBps is the host's share in basis points (9000 = 90%).
	HostShareBps int64
}

// NewSplitPolicy validates the share and returns a policy.
func NewSplitPolicy(hostShareBps int64) (SplitPolicy, error) {
	if hostShareBps < 0 || hostShareBps > 10_000 {
		return SplitPolicy{}, fmt.Errorf("host share must be within [0, 10000] bps, got %d", hostShareBps)
	}
	return SplitPolicy{HostShareBps: hostShareBps}, nil
}

// Split applies the ratio. hostAmount + treasuryAmount == totalCost exactly;
// the integer-division remainder is assigned to the host.
func (p SplitPolicy) Split(totalCost int64) (hostAmount, treasuryAmount int64, err error) {
	if totalCost < 0 {
		return 0, 0, fmt.Errorf("total cost must be non-negative, got %d", totalCost)
	}
	treasuryShareBps := 10_000 - p.HostShareBps
	treasuryAmount = totalCost / 10_000 * treasuryShareBps
	treasuryAmount += totalCost % 10_000 * treasuryShareBps / 10_000
	hostAmount = totalCost - treasuryAmount
	return hostAmount, treasuryAmount, nil
}

// FormatUnits renders a smallest-unit amount as a decimal string for display.
// Never feed the result back into arithmetic.
func FormatUnits(units int64) string {
	sign := ""
	if units < 0 {
		sign = "-"
		units = -units
	}
	return fmt.Sprintf("%s%d.%06d", sign, units/1_000_000, units%1_000_000)
}
