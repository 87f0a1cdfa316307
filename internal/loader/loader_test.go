package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeFetcher serves canned documents and counts fetches per URI.
type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	calls map[string]int
	delay time.Duration
}

func newFakeFetcher(docs map[string]string) *fakeFetcher {
	return &fakeFetcher{docs: docs, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(_ context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	f.calls[uri]++
	doc, ok := f.docs[uri]
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if !ok {
		return nil, &ResourceError{URI: uri, Status: 404, Detail: "not found"}
	}
	return []byte(doc), nil
}

func (f *fakeFetcher) count(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[uri]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func TestLoad_ReferenceSubstitution(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json":   `{"x": {"$ref": "other.json#/y"}}`,
		"http://h/other.json": `{"y": "value"}`,
	})
	l := New(f, JSONDecoder{})

	got, err := l.Load(context.Background(), "http://h/doc.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]any{"x": "value"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %#v, want %#v", got, want)
	}
}

func TestLoad_FragmentPurity(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json": `{"a": {"b": 42, "c": 1}}`,
	})
	l := New(f, JSONDecoder{})

	got, err := l.Load(context.Background(), "http://h/doc.json#/a/b")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != float64(42) {
		t.Errorf("Load(#/a/b) = %#v, want 42", got)
	}

	// Leading slash is optional.
	got, err = l.Load(context.Background(), "http://h/doc.json#a/c")
	if err != nil {
		t.Fatalf("Load(#a/c): %v", err)
	}
	if got != float64(1) {
		t.Errorf("Load(#a/c) = %#v, want 1", got)
	}

	_, err = l.Load(context.Background(), "http://h/doc.json#/a/z")
	if !errors.Is(err, ErrFragmentNotFound) {
		t.Fatalf("Load(#/a/z) error = %v, want ErrFragmentNotFound", err)
	}
	var fe *FragmentError
	if !errors.As(err, &fe) || fe.Fragment != "/a/z" || fe.Segment != "z" {
		t.Errorf("FragmentError = %+v, want fragment /a/z segment z", fe)
	}
}

func TestLoad_FragmentThroughScalar(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json": `{"a": [1, 2]}`,
	})
	l := New(f, JSONDecoder{})
	if _, err := l.Load(context.Background(), "http://h/doc.json#/a/0"); !errors.Is(err, ErrFragmentNotFound) {
		t.Errorf("array index fragment error = %v, want ErrFragmentNotFound", err)
	}
}

func TestLoad_EmptyFragmentReturnsDocument(t *testing.T) {
	f := newFakeFetcher(map[string]string{"http://h/doc.json": `{"a": 1}`})
	l := New(f, JSONDecoder{})
	got, err := l.Load(context.Background(), "http://h/doc.json#")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"a": float64(1)}) {
		t.Errorf("Load(#) = %#v", got)
	}
}

func TestLoad_AtMostOnceFetch(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/root.json": `{
			"a": {"$ref": "shared.json#/x"},
			"b": [{"$ref": "shared.json#/y"}],
			"c": {"$ref": "sub/other.json"}
		}`,
		"http://h/shared.json":    `{"x": 1, "y": 2}`,
		"http://h/sub/other.json": `{"z": {"$ref": "../shared.json#/x"}}`,
	})
	l := New(f, JSONDecoder{})

	got, err := l.Load(context.Background(), "http://h/root.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]any{
		"a": float64(1),
		"b": []any{float64(2)},
		"c": map[string]any{"z": float64(1)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %#v, want %#v", got, want)
	}
	if n := f.count("http://h/shared.json"); n != 1 {
		t.Errorf("shared.json fetched %d times, want 1", n)
	}

	// A later fragment load of the same resource is served from cache.
	if _, err := l.Load(context.Background(), "http://h/shared.json#/y"); err != nil {
		t.Fatalf("Load shared#/y: %v", err)
	}
	if n := f.count("http://h/shared.json"); n != 1 {
		t.Errorf("shared.json fetched %d times after fragment load, want 1", n)
	}
}

func TestLoad_RelativeBaseResolution(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://host/a/b/doc.yaml":         "common:\n  $ref: ../shared/common.yaml\n",
		"https://host/a/shared/common.yaml": "name: shared\n",
	})
	l := New(f, YAMLDecoder{})

	got, err := l.Load(context.Background(), "https://host/a/b/doc.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]any{"common": map[string]any{"name": "shared"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %#v, want %#v", got, want)
	}
	if n := f.count("https://host/a/shared/common.yaml"); n != 1 {
		t.Errorf("common.yaml fetched %d times, want 1", n)
	}
}

func TestLoad_ExplicitBaseURI(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/docs/doc.yaml":   "step:\n  $ref: steps.yaml#/build\n",
		"http://h/lib/steps.yaml":  "build:\n  image: busybox\n",
		"http://h/docs/steps.yaml": "build:\n  image: wrong\n",
	})
	l := New(f, YAMLDecoder{}, WithBaseURI("http://h/lib"))

	got, err := l.Load(context.Background(), "http://h/docs/doc.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]any{"step": map[string]any{"image": "busybox"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %#v, want %#v", got, want)
	}
	if n := f.count("http://h/docs/steps.yaml"); n != 0 {
		t.Errorf("docs/steps.yaml fetched %d times, want 0", n)
	}
}

func TestLoad_Idempotent(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json":   `{"list": [{"$ref": "other.json"}, 3, "s", null, true]}`,
		"http://h/other.json": `{"k": [1, {"n": "v"}]}`,
	})
	l := New(f, JSONDecoder{})

	first, err := l.Load(context.Background(), "http://h/doc.json")
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	fetches := f.total()

	second, err := l.Load(context.Background(), "http://h/doc.json")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second Load differs: %#v vs %#v", first, second)
	}
	if f.total() != fetches {
		t.Errorf("second Load fetched %d more resources", f.total()-fetches)
	}
}

func TestLoad_NonReferenceMappings(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json": `{
			"extra": {"$ref": "missing.json", "title": "kept"},
			"numeric": {"$ref": 5},
			"nested": [[{"plain": 1}]]
		}`,
	})
	l := New(f, JSONDecoder{})

	got, err := l.Load(context.Background(), "http://h/doc.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]any{
		"extra":   map[string]any{"$ref": "missing.json", "title": "kept"},
		"numeric": map[string]any{"$ref": float64(5)},
		"nested":  []any{[]any{map[string]any{"plain": float64(1)}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %#v, want %#v", got, want)
	}
	if n := f.count("http://h/missing.json"); n != 0 {
		t.Errorf("missing.json fetched %d times, want 0", n)
	}
}

func TestLoad_RootReference(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/alias.json":  `{"$ref": "target.json#/v"}`,
		"http://h/target.json": `{"v": ["a", "b"]}`,
	})
	l := New(f, JSONDecoder{})

	got, err := l.Load(context.Background(), "http://h/alias.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Errorf("Load = %#v", got)
	}
}

func TestLoad_CyclicReference(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/a.json": `{"next": {"$ref": "b.json"}}`,
		"http://h/b.json": `{"next": {"$ref": "a.json#/next"}}`,
	})
	l := New(f, JSONDecoder{})

	_, err := l.Load(context.Background(), "http://h/a.json")
	if !errors.Is(err, ErrCyclicReference) {
		t.Fatalf("error = %v, want ErrCyclicReference", err)
	}
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("error %T is not *CycleError", err)
	}
	want := []string{"http://h/a.json", "http://h/b.json", "http://h/a.json"}
	if !reflect.DeepEqual(ce.Chain, want) {
		t.Errorf("Chain = %v, want %v", ce.Chain, want)
	}
	if len(l.CachedResources()) != 0 {
		t.Errorf("failed resources were cached: %v", l.CachedResources())
	}
}

func TestLoad_SameDocumentReference(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json": `{
			"defs": {"stage": {"image": "busybox"}},
			"first": {"$ref": "#/defs/stage"},
			"second": {"$ref": "doc.json#/defs/stage"}
		}`,
	})
	l := New(f, JSONDecoder{})

	got, err := l.Load(context.Background(), "http://h/doc.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := got.(map[string]any)
	stage := map[string]any{"image": "busybox"}
	if !reflect.DeepEqual(m["first"], stage) || !reflect.DeepEqual(m["second"], stage) {
		t.Errorf("Load = %#v", got)
	}
	if n := f.count("http://h/doc.json"); n != 1 {
		t.Errorf("doc.json fetched %d times, want 1", n)
	}
}

func TestLoad_SameDocumentFragmentThroughReference(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/a.json": `{
			"x": {"$ref": "#/y/z"},
			"w": {"$ref": "a.json#/y/z"},
			"y": {"$ref": "b.json"}
		}`,
		"http://h/b.json": `{"z": 5}`,
	})
	l := New(f, JSONDecoder{})

	got, err := l.Load(context.Background(), "http://h/a.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := got.(map[string]any)
	if m["x"] != 5.0 || m["w"] != 5.0 {
		t.Errorf("Load = %#v, want x and w = 5", got)
	}
	if n := f.count("http://h/b.json"); n != 1 {
		t.Errorf("b.json fetched %d times, want 1", n)
	}
}

func TestLoad_SameDocumentCycleThroughFragment(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json": `{"x": {"$ref": "#/y/z"}, "y": {"$ref": "#/y/z"}}`,
	})
	l := New(f, JSONDecoder{})

	_, err := l.Load(context.Background(), "http://h/doc.json")
	if !errors.Is(err, ErrCyclicReference) {
		t.Fatalf("error = %v, want ErrCyclicReference", err)
	}
}

func TestLoad_NormalizesResourceURI(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/d/a.json": `{"v": 1}`,
		"http://h/d/b.json": `{"back": {"$ref": "a.json#/v"}}`,
	})
	l := New(f, JSONDecoder{})
	ctx := context.Background()

	if _, err := l.Load(ctx, "http://h/d/./a.json"); err != nil {
		t.Fatalf("Load a: %v", err)
	}
	got, err := l.Load(ctx, "http://h/d/x/../b.json")
	if err != nil {
		t.Fatalf("Load b: %v", err)
	}
	if got.(map[string]any)["back"] != 1.0 {
		t.Errorf("Load b = %#v", got)
	}
	if n := f.count("http://h/d/a.json"); n != 1 {
		t.Errorf("a.json fetched %d times, want 1", n)
	}
	if n := f.total(); n != 2 {
		t.Errorf("total fetches = %d, want 2", n)
	}
	want := []string{"http://h/d/a.json", "http://h/d/b.json"}
	if got := l.CachedResources(); !reflect.DeepEqual(got, want) {
		t.Errorf("CachedResources = %v, want %v", got, want)
	}
}

func TestLoad_SameDocumentCycle(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json": `{"tree": {"children": [{"$ref": "#/tree"}]}}`,
	})
	l := New(f, JSONDecoder{})

	_, err := l.Load(context.Background(), "http://h/doc.json")
	if !errors.Is(err, ErrCyclicReference) {
		t.Fatalf("error = %v, want ErrCyclicReference", err)
	}
}

func TestLoad_ErrorsPropagate(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json":    `{"a": {"$ref": "gone.json"}}`,
		"http://h/bad.json":    `{"a": {"$ref": "broken.json"}}`,
		"http://h/broken.json": `{"a": `,
		"http://h/frag.json":   `{"a": {"$ref": "ok.json#/nope"}}`,
		"http://h/ok.json":     `{"a": 1}`,
	})
	l := New(f, JSONDecoder{})
	ctx := context.Background()

	_, err := l.Load(ctx, "http://h/doc.json")
	if !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("missing ref error = %v, want ErrResourceUnavailable", err)
	}
	var re *ResourceError
	if errors.As(err, &re) && re.URI != "http://h/gone.json" {
		t.Errorf("ResourceError.URI = %q, want http://h/gone.json", re.URI)
	}

	_, err = l.Load(ctx, "http://h/bad.json")
	if !errors.Is(err, ErrDecode) {
		t.Errorf("malformed ref error = %v, want ErrDecode", err)
	}
	var de *DecodeError
	if errors.As(err, &de) && de.URI != "http://h/broken.json" {
		t.Errorf("DecodeError.URI = %q, want http://h/broken.json", de.URI)
	}

	_, err = l.Load(ctx, "http://h/frag.json")
	if !errors.Is(err, ErrFragmentNotFound) {
		t.Errorf("bad fragment ref error = %v, want ErrFragmentNotFound", err)
	}
}

func TestLoad_CachedValuesNotMutated(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json":    `{"a": {"$ref": "shared.json"}, "b": {"$ref": "shared.json"}}`,
		"http://h/shared.json": `{"k": "v"}`,
	})
	l := New(f, JSONDecoder{})
	ctx := context.Background()

	doc, err := l.Load(ctx, "http://h/doc.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	private := Clone(doc).(map[string]any)
	private["a"].(map[string]any)["k"] = "changed"

	again, err := l.Load(ctx, "http://h/shared.json")
	if err != nil {
		t.Fatalf("Load shared: %v", err)
	}
	if again.(map[string]any)["k"] != "v" {
		t.Errorf("cached value was mutated through a clone: %#v", again)
	}
}

func TestLoad_CacheHook(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json":    `{"a": {"$ref": "shared.json#/x"}, "b": {"$ref": "shared.json#/y"}}`,
		"http://h/shared.json": `{"x": 1, "y": 2}`,
	})
	var hits []string
	l := New(f, JSONDecoder{}, WithCacheHook(func(resource string) { hits = append(hits, resource) }))

	if _, err := l.Load(context.Background(), "http://h/doc.json"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(hits) != 1 || hits[0] != "http://h/shared.json" {
		t.Errorf("cache hits = %v, want [http://h/shared.json]", hits)
	}
	want := []string{"http://h/doc.json", "http://h/shared.json"}
	if got := l.CachedResources(); !reflect.DeepEqual(got, want) {
		t.Errorf("CachedResources = %v, want %v", got, want)
	}
}

func TestLoad_ConcurrentFirstAccess(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"http://h/doc.json": `{"a": 1}`,
	})
	f.delay = 10 * time.Millisecond
	l := New(f, JSONDecoder{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Load(context.Background(), "http://h/doc.json#/a"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Load: %v", err)
	}
	if n := f.count("http://h/doc.json"); n != 1 {
		t.Errorf("doc.json fetched %d times, want 1", n)
	}
}

func TestLoad_LocalFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("workflow.yml", "stages:\n  - $ref: steps/stages.yml#/generate\n  - $ref: steps/stages.yml#/analyze\n")
	write("steps/stages.yml", "generate:\n  name: generate\n  scheduler:\n    $ref: ../common.yml#/singlestep\nanalyze:\n  name: analyze\n")
	write("common.yml", "singlestep:\n  type: singlestep-stage\n")

	l := New(FileFetcher{}, YAMLDecoder{})
	got, err := l.Load(context.Background(), filepath.Join(dir, "workflow.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]any{
		"stages": []any{
			map[string]any{
				"name":      "generate",
				"scheduler": map[string]any{"type": "singlestep-stage"},
			},
			map[string]any{"name": "analyze"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %#v, want %#v", got, want)
	}
	if ContainsRef(got) {
		t.Error("result still contains a reference node")
	}

	// The same tree through a file:// URI.
	l2 := New(FileFetcher{}, YAMLDecoder{})
	got2, err := l2.Load(context.Background(), "file://"+filepath.ToSlash(filepath.Join(dir, "workflow.yml")))
	if err != nil {
		t.Fatalf("Load file://: %v", err)
	}
	if !reflect.DeepEqual(got2, want) {
		t.Errorf("Load file:// = %#v, want %#v", got2, want)
	}
}

func TestContainsRef(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"scalar", "x", false},
		{"plain map", map[string]any{"a": 1}, false},
		{"ref", map[string]any{"$ref": "x"}, true},
		{"nested ref", map[string]any{"a": []any{map[string]any{"$ref": "x"}}}, true},
		{"ref with sibling", map[string]any{"$ref": "x", "b": 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsRef(tt.v); got != tt.want {
				t.Errorf("ContainsRef = %v, want %v", got, tt.want)
			}
		})
	}
}
