package source

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestReadDocument(t *testing.T) {
	f := newMapFetcher(map[string]string{
		"https://h/config/listing.yml":  "templates:\n  - $ref: entries.yml#/first\n",
		"https://h/config/entries.yml":  "first:\n  identifier: ID1\n",
		"https://h/config/listing.json": `{"templates": []}`,
	})
	ctx := context.Background()
	want := map[string]any{"templates": []any{map[string]any{"identifier": "ID1"}}}

	got, err := ReadDocument(ctx, f, "https://h/config/listing.yml")
	if err != nil {
		t.Fatalf("ReadDocument(string): %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadDocument(string) = %#v, want %#v", got, want)
	}

	got, err = ReadDocument(ctx, f, map[string]any{
		"type":       "YAML",
		"properties": map[string]any{"resourceuri": "https://h/config/listing.yml"},
	})
	if err != nil {
		t.Fatalf("ReadDocument(handle): %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadDocument(handle) = %#v, want %#v", got, want)
	}

	got, err = ReadDocument(ctx, f, "https://h/config/listing.json")
	if err != nil {
		t.Fatalf("ReadDocument(json): %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"templates": []any{}}) {
		t.Errorf("ReadDocument(json) = %#v", got)
	}

	for _, bad := range []any{"", nil, 42} {
		if _, err := ReadDocument(ctx, f, bad); !errors.Is(err, ErrConfiguration) {
			t.Errorf("ReadDocument(%#v) error = %v, want ErrConfiguration", bad, err)
		}
	}
}
