package repository

import "fmt"

// Descriptor is one listing entry. Schema holds the raw source handle
// descriptor; it is turned into a source.Handle when the entry is loaded
// so a malformed handle only affects its own entry.
type Descriptor struct {
	Identifier  string
	Name        string
	Description string
	Schema      any
	Parameters  any
}

// ParseListing reads listing entries from a decoded document: either a
// sequence of descriptors or a mapping holding one under "templates".
func ParseListing(v any) ([]Descriptor, error) {
	if m, ok := v.(map[string]any); ok {
		inner, ok := m["templates"]
		if !ok {
			return nil, fmt.Errorf("listing has no templates")
		}
		v = inner
	}
	items, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("listing must be a sequence, got %T", v)
	}

	out := make([]Descriptor, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("listing entry %d must be a mapping, got %T", i, item)
		}
		out[i] = Descriptor{
			Identifier:  stringField(m, "identifier"),
			Name:        stringField(m, "name"),
			Description: stringField(m, "description"),
			Schema:      m["schema"],
			Parameters:  m["parameters"],
		}
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
