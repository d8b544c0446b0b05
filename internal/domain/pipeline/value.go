package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatValue renders a tag or caps value. Scalars are printed as-is,
// anything else is reported by its type name.
func FormatValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case float64:
		return FormatFloat(x), true
	case float32:
		return FormatFloat(float64(x)), true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		return x.Format(time.DateOnly), true
	default:
		return fmt.Sprintf("%T", v), false
	}
}

// FormatFloat renders a float the way the response protocol expects:
// shortest representation, always with a fractional part ("1.0").
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eENI") {
		s += ".0"
	}
	return s
}

func formatValue(v any) string {
	s, _ := FormatValue(v)
	return s
}
