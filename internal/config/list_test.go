package config

import (
	"reflect"
	"testing"
)

func TestFromList(t *testing.T) {
	got, err := FromList([]any{
		map[string]any{"key": "server.port", "value": 80},
		map[string]any{"key": "app.doc", "value": "http://docs"},
		map[string]any{"key": "server.port", "value": 81},
	}, "key", "value")
	if err != nil {
		t.Fatalf("FromList: %v", err)
	}
	want := map[string]any{"server.port": 81, "app.doc": "http://docs"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FromList = %v, want %v", got, want)
	}

	got, err = FromList([]any{map[string]any{"name": "a", "val": 1}}, "name", "val")
	if err != nil || got["a"] != 1 {
		t.Errorf("FromList with custom labels = %v, %v", got, err)
	}

	for _, bad := range [][]any{
		{"server.port=80"},
		{map[string]any{"value": 1}},
	} {
		if _, err := FromList(bad, "key", "value"); err == nil {
			t.Errorf("FromList(%v) succeeded", bad)
		}
	}
}

func TestNest(t *testing.T) {
	got, err := Nest(map[string]any{
		"server.url":  "http://h",
		"server.port": 80,
		"log.dir":     "/tmp",
		"flat":        true,
	})
	if err != nil {
		t.Fatalf("Nest: %v", err)
	}
	want := map[string]any{
		"server": map[string]any{"url": "http://h", "port": 80},
		"log":    map[string]any{"dir": "/tmp"},
		"flat":   true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Nest = %v, want %v", got, want)
	}

	if _, err := Nest(map[string]any{"db": "x", "db.uri": "y"}); err == nil {
		t.Error("Nest accepted conflicting keys")
	}
}
