package domain

import (
	"strconv"
	"strings"
)

// hashrateSuffixes maps single-letter SI suffixes to multipliers.
// Order matters only for documentation; lookup is by last character.
var hashrateSuffixes = map[byte]float64{
	'K': 1e3,
	'M': 1e6,
	'G': 1e9,
	'T': 1e12,
	'P': 1e15,
	'E': 1e18,
}

// ParseHashrate converts a pool-reported hashrate value to H/s.
// Numeric values pass through; strings may carry a single-letter SI
// suffix ("11.5T", "602M"). Empty, "0", and unparseable input all yield
// 0.0 — this function never fails the caller.
func ParseHashrate(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		return parseHashrateString(n)
	default:
		return 0
	}
}

func parseHashrateString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0
	}

	if mult, ok := hashrateSuffixes[s[len(s)-1]]; ok {
		f, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0
		}
		return f * mult
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
