package appconfig

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/starford/shiba/internal/apperr"
)

func TestLoadOrCreate_MissingFileWritesDefault(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, WithLogger(quietLogger()))

	doc, st := s.LoadOrCreate(dir)
	if !st.Created {
		t.Error("expected Created")
	}
	if doc.Dir() != dir {
		t.Errorf("dir = %q, want %q", doc.Dir(), dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if strings.Contains(string(data), DirKey) {
		t.Error("metadata key must not be persisted")
	}

	reread, err := parse(data)
	if err != nil {
		t.Fatalf("written file not re-readable: %v", err)
	}
	if !reflect.DeepEqual(reread.Keys(), DefaultDocument().Keys()) {
		t.Errorf("keys = %v, want %v", reread.Keys(), DefaultDocument().Keys())
	}
	if v, _ := reread.Get("width"); v != 920 {
		t.Errorf("width = %v", v)
	}
	if v, _ := reread.Get("voice"); v != nil {
		t.Errorf("voice = %v, want nil", v)
	}
}

func TestLoadOrCreate_MissingHeightBackfilled(t *testing.T) {
	dir := t.TempDir()
	full := DefaultDocument()
	full.Delete("height")
	full.Set("width", 1000)
	data, err := yaml.Marshal(full)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(dir, WithLogger(quietLogger()))
	doc, st := s.LoadOrCreate(dir)
	if st.Valid {
		t.Error("expected invalid status")
	}
	if st.Created {
		t.Error("existing file must not be recreated")
	}
	want, _ := DefaultDocument().Get("height")
	if got, _ := doc.Get("height"); got != want {
		t.Errorf("height = %v, want %v", got, want)
	}
	if got, _ := doc.Get("width"); got != 1000 {
		t.Errorf("width = %v, want 1000", got)
	}
}

func TestLoadOrCreate_NeverFails(t *testing.T) {
	cases := map[string]string{
		"missing":   "",
		"malformed": "width: [unterminated\n",
		"scalar":    "just a string\n",
		"empty":     " ",
		"valid":     "width: 640\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if content != "" {
				if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			doc, _ := NewStore(dir, WithLogger(quietLogger())).LoadOrCreate(dir)
			if doc == nil {
				t.Fatal("nil document")
			}
			for _, key := range DefaultDocument().Keys() {
				if !doc.Has(key) {
					t.Errorf("missing key %q", key)
				}
			}
		})
	}
}

func TestLoadOrCreate_MalformedReplacedWithDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("width: [oops\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, st := NewStore(dir, WithLogger(quietLogger())).LoadOrCreate(dir)
	if !st.Created {
		t.Fatal("malformed file should fall through to default creation")
	}
	data, _ := os.ReadFile(path)
	if _, err := parse(data); err != nil {
		t.Errorf("rewritten file unparsable: %v", err)
	}
}

func TestLoadOrCreate_JSONFallback(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"width": 700, "height": 500, "markdown": {"code_theme": "dark"}}`
	if err := os.WriteFile(filepath.Join(dir, LegacyFileName), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, st := NewStore(dir, WithLogger(quietLogger())).LoadOrCreate(dir)
	if st.Created {
		t.Fatal("json file should be read, not replaced")
	}
	if filepath.Base(st.Path) != LegacyFileName {
		t.Errorf("path = %q", st.Path)
	}
	if v, _ := doc.Get("width"); v != 700 {
		t.Errorf("width = %v", v)
	}
	preview, _ := doc.Get("preview_customize")
	if m, ok := preview.(map[string]any); !ok || m["markdown"] == nil {
		t.Errorf("markdown not migrated: %v", preview)
	}
}

func TestGet_ShortCircuitsAfterFirstLoad(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, WithLogger(quietLogger()))
	if _, ok := s.Current(); ok {
		t.Fatal("nothing loaded yet")
	}

	first := s.Get()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("width: 111\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	second := s.Get()
	if first != second {
		t.Error("Get should return the cached document without reading disk")
	}

	reloaded, _ := s.LoadOrCreate(dir)
	if reloaded == first {
		t.Error("LoadOrCreate should replace the cached document")
	}
	if cur, _ := s.Current(); cur != reloaded {
		t.Error("Current should return the reloaded document")
	}
	if v, _ := first.Get("width"); v != 920 {
		t.Errorf("old document mutated: width = %v", v)
	}
}

func TestDocument_JSONCarriesDir(t *testing.T) {
	dir := t.TempDir()
	doc := NewStore(dir, WithLogger(quietLogger())).Get()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m[DirKey] != dir {
		t.Errorf("%s = %v, want %q", DirKey, m[DirKey], dir)
	}
	if !strings.HasPrefix(string(data), `{"linter":`) {
		t.Errorf("key order not preserved: %s", data[:40])
	}
}

func TestReload_KeepsPreviousDocumentOnEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("width: 640\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(dir, WithLogger(quietLogger()))
	prev, _ := s.LoadOrCreate(dir)

	// An editor saving in place truncates before writing.
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	doc, _, err := s.Reload(dir)
	if !errors.Is(err, apperr.ErrConfigUnusable) {
		t.Fatalf("err = %v, want ErrConfigUnusable", err)
	}
	if doc != prev {
		t.Error("previous document should be kept")
	}
	if cur, _ := s.Current(); cur != prev {
		t.Error("cache should not change")
	}
	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("reload wrote the file: %q", data)
	}

	if err := os.WriteFile(path, []byte("width: 1024\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, st, err := s.Reload(dir)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if st.Created {
		t.Error("reload must not create")
	}
	if v, _ := doc.Get("width"); v != 1024 {
		t.Errorf("width = %v, want 1024", v)
	}
	if doc.Dir() != dir {
		t.Errorf("dir = %q", doc.Dir())
	}
}

func TestReload_MissingFileNotCreated(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, WithLogger(quietLogger()))

	doc, _, err := s.Reload(dir)
	if !errors.Is(err, apperr.ErrConfigUnusable) {
		t.Fatalf("err = %v, want ErrConfigUnusable", err)
	}
	if doc != nil {
		t.Error("nothing loaded yet, want nil document")
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("reload created %s: %v", FileName, err)
	}
}
