package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
play:
  path: game.exe
web:
  index_url: https://patch.example.com/
  patch_servers:
    - name: primary
      plist_url: https://patch.example.com/plist.txt
      patch_url: https://patch.example.com/patches/
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Window.Title != "Kafra Client" {
		t.Fatalf("expected default window title, got %q", c.Window.Title)
	}
	if c.Window.Width != 900 || c.Window.Height != 600 {
		t.Fatalf("expected default window size, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Client.DefaultContainerName != "data.grf" {
		t.Fatalf("expected default container name, got %q", c.Client.DefaultContainerName)
	}
	if c.Play.Path != "game.exe" {
		t.Fatalf("expected play path override, got %q", c.Play.Path)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestWebResolvePreferred(t *testing.T) {
	w := Web{
		PreferredPatchServer: "mirror",
		PatchServers: []PatchServer{
			{Name: "primary", PatchURL: "https://a/"},
			{Name: "mirror", PatchURL: "https://b/"},
		},
	}
	s, ok := w.Resolve()
	if !ok || s.Name != "mirror" {
		t.Fatalf("expected mirror server, got %+v ok=%v", s, ok)
	}
}

func TestWebResolveFallsBackToFirst(t *testing.T) {
	w := Web{
		PreferredPatchServer: "nonexistent",
		PatchServers: []PatchServer{
			{Name: "primary", PatchURL: "https://a/"},
		},
	}
	s, ok := w.Resolve()
	if !ok || s.Name != "primary" {
		t.Fatalf("expected fallback to primary, got %+v ok=%v", s, ok)
	}
}

func TestWebResolveNoServers(t *testing.T) {
	w := Web{}
	_, ok := w.Resolve()
	if ok {
		t.Fatalf("expected ok=false with no servers configured")
	}
}

func TestDefaultIsUsable(t *testing.T) {
	c := Default()
	if c.Window.Title == "" || c.Client.DefaultContainerName == "" {
		t.Fatalf("expected Default() to populate baseline fields, got %+v", c)
	}
}
