// Package writer implements the CSV (L1) and JSONL (L2/L3) record writers,
// each plugging into internal/flush's segment/flush engine.
package writer

import "strconv"

// FormatNumber renders f with Go's shortest round-trip decimal
// representation: no trailing zeros are kept that aren't needed to
// recover the exact float64 bit pattern, and no digits are dropped. This
// single routine satisfies both the "adaptive precision" requirement for
// analytical outputs and the "full precision" requirement for raw
// records — strconv's -1 precision mode already computes the minimal
// digit count for exact round-trip, so there is no separate adaptive vs.
// full-precision algorithm to maintain.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
