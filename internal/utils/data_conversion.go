package utils

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Helper functions
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// AsString renders loosely typed model output as text. nil becomes "".
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// AsFloat reads a number from loosely typed model output. Strings such as
// "$1,234.50" or "12,50 EUR" are accepted.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		cleaned, ok := normalizeAmount(t)
		if !ok {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsDecimal reads a money amount from loosely typed model output, accepting
// the same strings as AsFloat. Strings and json.Number keep their exact digits.
func AsDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		cleaned, ok := normalizeAmount(t)
		if !ok {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(cleaned)
		return d, err == nil
	default:
		f, ok := AsFloat(v)
		if !ok {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(f), true
	}
}

// normalizeAmount strips currency symbols and grouping, leaving a plain
// decimal string.
func normalizeAmount(s string) (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	if cleaned == "" {
		return "", false
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastComma > lastDot && len(cleaned)-lastComma-1 <= 2:
		// decimal comma: 1.234,50
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	return cleaned, true
}
