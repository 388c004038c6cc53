package querybuilder

import (
	"math"
	"strconv"
	"strings"
)

// ParseFilterValue coerces raw editor input into the value stored on a condition:
//   - null checks carry nil
//   - $in / $notIn split on commas into trimmed strings
//   - numeric input becomes a float64
//   - "true" / "false" become booleans
//   - anything else stays a string
func ParseFilterValue(op Operator, raw string) any {
	if !op.NeedsValue() {
		return nil
	}

	if op.IsList() {
		parts := strings.Split(raw, ",")
		values := make([]any, len(parts))
		for i, p := range parts {
			values[i] = strings.TrimSpace(p)
		}
		return values
	}

	if n, ok := parseNumber(raw); ok {
		return n
	}

	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}

// parseNumber accepts decimal and exponent notation plus 0x/0o/0b integers.
// Blank input and non-finite values are not numbers.
func parseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			u, err := strconv.ParseUint(strings.ToLower(s[:2])+s[2:], 0, 64)
			if err != nil || strings.Contains(s, "_") {
				return 0, false
			}
			return float64(u), true
		}
	}

	// ParseFloat accepts spellings such as "inf", "nan" and "1_0" that are not numbers here
	if strings.ContainsAny(s, "_pPxX") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
