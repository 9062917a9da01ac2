package config

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("MEDIA_DIR", filepath.Join(dir, "media"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("STORAGE_BACKEND", "SQLite")
	t.Setenv("DOC_LOAD_MAX_TRIES", "7")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("DEBUG_MODE", "no")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageBackend != StorageSQLite {
		t.Fatalf("backend: got=%s", cfg.StorageBackend)
	}
	if cfg.DocLoadMaxTries != 7 || cfg.DebugMode {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if want := []string{"http://a.test", "http://b.test"}; !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("origins: got=%v want=%v", cfg.AllowedOrigins, want)
	}
	if got := cfg.ProjectPath(); got != filepath.Join(dir, "project-config.json") {
		t.Fatalf("project path: got=%s", got)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("MEDIA_DIR", filepath.Join(dir, "media"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("STORAGE_BACKEND", "mongo")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestGetCurrentConfigReturnsCopy(t *testing.T) {
	SetCurrentConfig(&AppConfig{
		Port: "9000", DataDir: "d", ProjectFile: "p.json",
		StorageBackend: StorageFile, DocLoadMaxTries: 1, AllowedOrigins: []string{"*"},
	})
	c := GetCurrentConfig()
	c.Port = "1"
	c.AllowedOrigins[0] = "x"

	again := GetCurrentConfig()
	if again.Port != "9000" || again.AllowedOrigins[0] != "*" {
		t.Fatalf("current config mutated through copy: %+v", again)
	}
}
