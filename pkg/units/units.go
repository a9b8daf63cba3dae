// Package units turns ps memory columns into kilobytes.
package units

import (
	"math"
	"strconv"
	"strings"
)

// multipliers maps a lower-cased suffix (trailing "b" already removed) to kB.
// Binary and decimal prefixes share a multiplier.
var multipliers = map[string]float64{
	"":   1,
	"k":  1,
	"ki": 1,
	"m":  1024,
	"mi": 1024,
	"g":  1024 * 1024,
	"gi": 1024 * 1024,
}

// NormalizeKB parses tokens such as "12345", "2048kB", "10m" or "1.5GiB" and returns
// kilobytes. Unknown suffixes are read as kB; unparsable input yields 0.
func NormalizeKB(token string) uint64 {
	token = strings.TrimSpace(token)
	end := 0
	for end < len(token) && (token[end] == '.' || (token[end] >= '0' && token[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0
	}
	magnitude, err := strconv.ParseFloat(token[:end], 64)
	if err != nil || magnitude <= 0 || math.IsInf(magnitude, 0) {
		return 0
	}

	suffix := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(token[end:])), "b")
	mult, ok := multipliers[suffix]
	if !ok {
		mult = 1
	}
	return uint64(math.Round(magnitude * mult))
}
