package loader

import (
	"errors"
	"reflect"
	"testing"
)

func TestJSONDecoder(t *testing.T) {
	got, err := JSONDecoder{}.Decode([]byte(`{"a": [1, "two", true, null], "b": {"c": 1.5}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[string]any{
		"a": []any{float64(1), "two", true, nil},
		"b": map[string]any{"c": 1.5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode = %#v, want %#v", got, want)
	}
}

func TestJSONDecoder_CommentsAndTrailingCommas(t *testing.T) {
	data := []byte(`{
		// line comment
		"a": 1, /* block */
		"b": [1, 2,],
	}`)
	got, err := JSONDecoder{}.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[string]any{"a": float64(1), "b": []any{float64(1), float64(2)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode = %#v, want %#v", got, want)
	}
}

func TestJSONDecoder_DuplicateKeysLastWins(t *testing.T) {
	got, err := JSONDecoder{}.Decode([]byte(`{"a": 1, "a": 2}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"a": float64(2)}) {
		t.Errorf("Decode = %#v, want last value", got)
	}
}

func TestDecoders_IntegerPrecision(t *testing.T) {
	got, err := JSONDecoder{}.Decode([]byte(`{"n": 9007199254740993}`))
	if err != nil {
		t.Fatalf("JSON Decode: %v", err)
	}
	if n := got.(map[string]any)["n"]; n != float64(1<<53) {
		t.Errorf("JSON n = %#v, want float64 2^53", n)
	}

	got, err = YAMLDecoder{}.Decode([]byte("n: 9007199254740993\n"))
	if err != nil {
		t.Fatalf("YAML Decode: %v", err)
	}
	if n := got.(map[string]any)["n"]; n != 9007199254740993 {
		t.Errorf("YAML n = %#v, want int 9007199254740993", n)
	}
}

func TestJSONDecoder_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"truncated", `{"a": `},
		{"empty", ``},
		{"whitespace", "  \n"},
		{"trailing data", `{"a": 1} {"b": 2}`},
		{"yaml", "a: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := JSONDecoder{}.Decode([]byte(tt.data))
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("error = %v, want ErrDecode", err)
			}
			if v != nil {
				t.Errorf("partial value returned: %#v", v)
			}
			var de *DecodeError
			if errors.As(err, &de) && de.Format != FormatJSON {
				t.Errorf("Format = %q, want json", de.Format)
			}
		})
	}
}

func TestYAMLDecoder(t *testing.T) {
	data := []byte("stages:\n  - name: init\n    count: 3\n  - name: run\nflag: true\n")
	got, err := YAMLDecoder{}.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[string]any{
		"stages": []any{
			map[string]any{"name": "init", "count": 3},
			map[string]any{"name": "run"},
		},
		"flag": true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode = %#v, want %#v", got, want)
	}
}

func TestYAMLDecoder_NonStringKeys(t *testing.T) {
	got, err := YAMLDecoder{}.Decode([]byte("1: one\ntrue: yes\nnested:\n  2: two\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[string]any{
		"1":      "one",
		"true":   "yes",
		"nested": map[string]any{"2": "two"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode = %#v, want %#v", got, want)
	}
}

func TestYAMLDecoder_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"duplicate key", "a: 1\na: 2\n"},
		{"nested mapping value", "a: b: c\n"},
		{"unterminated flow", "a: [1, 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := YAMLDecoder{}.Decode([]byte(tt.data))
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("error = %v, want ErrDecode", err)
			}
			if v != nil {
				t.Errorf("partial value returned: %#v", v)
			}
		})
	}
}

func TestYAMLDecoder_EmptyIsNil(t *testing.T) {
	v, err := YAMLDecoder{}.Decode(nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v != nil {
		t.Errorf("Decode(empty) = %#v, want nil", v)
	}
}

func TestDecoderFor(t *testing.T) {
	for _, name := range []string{"json", "JSON", "yaml", "yml"} {
		if _, err := DecoderFor(name); err != nil {
			t.Errorf("DecoderFor(%q): %v", name, err)
		}
	}
	if _, err := DecoderFor("toml"); err == nil {
		t.Error("DecoderFor(toml) succeeded, want error")
	}
}

func TestDecoderForURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://h/schema.json", FormatJSON},
		{"https://h/schema.JSON#/defs", FormatJSON},
		{"https://h/schema.json?raw=true", FormatJSON},
		{"/srv/workflow.yml", FormatYAML},
		{"/srv/workflow", FormatYAML},
	}
	for _, tt := range tests {
		if got := DecoderForURI(tt.uri).Format(); got != tt.want {
			t.Errorf("DecoderForURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
