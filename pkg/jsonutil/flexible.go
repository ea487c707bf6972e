// Package jsonutil decodes loosely-typed JSON fields. Query log producers
// disagree on shapes: durations arrive as numbers or strings, parameters
// as objects or positional arrays. These helpers absorb the variants.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a raw JSON value to a string, accepting
// strings, numbers and booleans. Null and empty input yield "".
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}

	return string(raw)
}

// FlexibleFloat converts a raw JSON value to a float64, accepting numbers
// and numeric strings with an optional trailing "ms" unit. The second
// return is false when the value is absent, null or unparseable.
func FlexibleFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "ms"))
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FlexibleInt is FlexibleFloat truncated to int.
func FlexibleInt(raw json.RawMessage) (int, bool) {
	f, ok := FlexibleFloat(raw)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// FlexibleParams converts a raw JSON value into a parameter map. Objects
// pass through; positional arrays become {"$1": v, "$2": v, ...} to match
// placeholder numbering. Null, absent and empty values yield nil.
func FlexibleParams(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if len(obj) == 0 {
			return nil, nil
		}
		return obj, nil
	}

	var arr []any
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 0 {
			return nil, nil
		}
		params := make(map[string]any, len(arr))
		for i, v := range arr {
			params[fmt.Sprintf("$%d", i+1)] = v
		}
		return params, nil
	}

	return nil, fmt.Errorf("params must be an object or array, got %s", snippet(raw))
}

func snippet(raw json.RawMessage) string {
	const max = 40
	s := string(raw)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
