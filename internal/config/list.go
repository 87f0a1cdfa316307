package config

import (
	"fmt"
	"strings"
)

// FromList converts a list of key/value pairs, [{keyLabel: k, valueLabel:
// v}, ...], into a mapping. Later pairs win.
func FromList(elements []any, keyLabel, valueLabel string) (map[string]any, error) {
	out := make(map[string]any, len(elements))
	for i, el := range elements {
		kvp, ok := el.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d is not a mapping", i)
		}
		key, ok := kvp[keyLabel].(string)
		if !ok || key == "" {
			return nil, fmt.Errorf("element %d has no %s", i, keyLabel)
		}
		out[key] = kvp[valueLabel]
	}
	return out, nil
}

// Nest turns dotted keys into nested mappings: {"server.port": 80} becomes
// {"server": {"port": 80}}.
func Nest(flat map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	for key, val := range flat {
		parts := strings.Split(key, ".")
		cur := out
		for i, p := range parts[:len(parts)-1] {
			next, exists := cur[p]
			if !exists {
				child := make(map[string]any)
				cur[p] = child
				cur = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("key %q conflicts with %q", key, strings.Join(parts[:i+1], "."))
			}
			cur = child
		}
		leaf := parts[len(parts)-1]
		if _, exists := cur[leaf]; exists {
			return nil, fmt.Errorf("key %q conflicts with a nested key", key)
		}
		cur[leaf] = val
	}
	return out, nil
}
