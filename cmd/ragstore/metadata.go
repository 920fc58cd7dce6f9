package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parsePairs turns repeated key=value flags into metadata. Values that parse
// as bool, integer or float keep that type; everything else is a string.
// A key given more than once becomes a list, which the store flattens.
func parsePairs(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	out := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: want key=value", pair)
		}

		value := parseScalar(raw)
		switch existing := out[key].(type) {
		case nil:
			out[key] = value
		case []interface{}:
			out[key] = append(existing, value)
		default:
			out[key] = []interface{}{existing, value}
		}
	}
	return out, nil
}

func parseScalar(raw string) interface{} {
	if raw == "true" || raw == "false" {
		return raw == "true"
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
