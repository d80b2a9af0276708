package connector

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ToInt64 converts a scanned driver value to int64. Snowflake returns NUMBER
// columns as strings, MySQL as int64 or []byte.
func ToInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, fmt.Errorf("null value")
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return ToInt64(string(n))
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to integer", n)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

// ToFloat64 converts a scanned driver value to float64. ok is false for NULL.
func ToFloat64(v interface{}) (f float64, ok bool, err error) {
	switch n := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case uint64:
		return float64(n), true, nil
	case []byte:
		return ToFloat64(string(n))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false, fmt.Errorf("cannot convert %q to number", n)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("cannot convert %T to number", v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ToTime converts a scanned driver value to a time. ok is false for NULL.
func ToTime(v interface{}) (t time.Time, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return x, true, nil
	case []byte:
		return ToTime(string(x))
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true, nil
			}
		}
		return time.Time{}, false, fmt.Errorf("cannot parse %q as time", x)
	default:
		return time.Time{}, false, fmt.Errorf("cannot convert %T to time", v)
	}
}

// ToString converts a scanned driver value to a string; NULL becomes ""
func ToString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}
