package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

// parseKVs turns key=value pairs into a payload; numeric and boolean values
// are converted.
func parseKVs(kvs []string) (map[string]any, error) {
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", kv)
		}
		out[k] = scalar(strings.TrimSpace(v))
	}
	return out, nil
}

func scalar(v string) any {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
