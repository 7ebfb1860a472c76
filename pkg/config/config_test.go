package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SHIBA_TEST_NAME", "from-env")
	path := writeFile(t, "name: ${SHIBA_TEST_NAME}\nport: 80\n")

	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" || cfg.Port != 80 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_ValidationFails(t *testing.T) {
	path := writeFile(t, "name: x\nport: 0\n")
	var cfg sample
	if err := Load(path, &cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadOptional_MissingKeepsDefaults(t *testing.T) {
	cfg := sample{Name: "default", Port: 7420}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if found {
		t.Error("found = true for missing file")
	}
	if cfg.Name != "default" || cfg.Port != 7420 {
		t.Errorf("defaults changed: %+v", cfg)
	}
}

func TestLoadOptional_OverridesDefaults(t *testing.T) {
	path := writeFile(t, "port: 9000\n")
	cfg := sample{Name: "default", Port: 7420}
	found, err := LoadOptional(path, &cfg)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if !found || cfg.Port != 9000 || cfg.Name != "default" {
		t.Errorf("found = %v, cfg = %+v", found, cfg)
	}
}

func TestLoadOptional_ValidatesDefaults(t *testing.T) {
	cfg := sample{}
	if _, err := LoadOptional("", &cfg); err == nil {
		t.Fatal("expected validation error for invalid defaults")
	}
}

func TestReadOptional_SkipsValidation(t *testing.T) {
	path := writeFile(t, "name: x\nport: 0\n")
	cfg := sample{Port: 7420}
	found, err := ReadOptional(path, &cfg)
	if err != nil {
		t.Fatalf("ReadOptional: %v", err)
	}
	if !found || cfg.Port != 0 {
		t.Errorf("found = %v, cfg = %+v", found, cfg)
	}
	if err := Load(path, &cfg); err == nil {
		t.Error("Load should still validate the same file")
	}
}

func TestReadOptional_Missing(t *testing.T) {
	cfg := sample{}
	found, err := ReadOptional("", &cfg)
	if err != nil || found {
		t.Errorf("found = %v, err = %v", found, err)
	}
}
