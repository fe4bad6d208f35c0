// Package config loads the patcher's YAML configuration file: window
// chrome, the play/setup launchers, patch-server selection, and the
// user-facing message overrides.
package config

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v2"
)

// Window controls the patcher UI's native window chrome.
type Window struct {
	Title     string `yaml:"title"`
	Width     uint32 `yaml:"width"`
	Height    uint32 `yaml:"height"`
	Resizable bool   `yaml:"resizable"`
}

// Play describes how the game client is launched after patching.
type Play struct {
	Path          string   `yaml:"path"`
	Arguments     []string `yaml:"arguments"`
	ExitOnSuccess bool     `yaml:"exit_on_success"`
	SkipError     bool     `yaml:"skip_error"`
}

// Setup describes an optional separate installer/setup executable.
type Setup struct {
	Path          string   `yaml:"path"`
	Arguments     []string `yaml:"arguments"`
	ExitOnSuccess bool     `yaml:"exit_on_success"`
}

// PatchServer is one named patch-server endpoint pair.
type PatchServer struct {
	Name     string `yaml:"name"`
	PListURL string `yaml:"plist_url"`
	PatchURL string `yaml:"patch_url"`
}

// Web holds the remote endpoints the client talks to.
type Web struct {
	IndexURL              string        `yaml:"index_url"`
	PreferredPatchServer  string        `yaml:"preferred_patch_server"`
	PatchServers          []PatchServer `yaml:"patch_servers"`
}

// Resolve returns the PatchServer named by PreferredPatchServer, falling
// back to the first configured server when the preference is unset or
// unresolvable. It reports ok=false only when no server is configured at
// all.
func (w Web) Resolve() (PatchServer, bool) {
	if len(w.PatchServers) == 0 {
		return PatchServer{}, false
	}
	if w.PreferredPatchServer != "" {
		for _, s := range w.PatchServers {
			if s.Name == w.PreferredPatchServer {
				return s, true
			}
		}
	}
	return w.PatchServers[0], true
}

// Client holds client-identity settings.
type Client struct {
	DefaultContainerName string `yaml:"default_grf_name"`
	SSOLogin             bool   `yaml:"sso_login"`
}

// Patching holds the patch-engine's behavioral toggles.
type Patching struct {
	InPlace        bool `yaml:"in_place"`
	CheckIntegrity bool `yaml:"check_integrity"`
	CreateContainer bool `yaml:"create_grf"`
}

// PatchingMessages overrides patch-engine user-facing text.
type PatchingMessages struct {
	ErrorDownload string `yaml:"error_download"`
	ErrorExtract  string `yaml:"error_extract"`
	ErrorGeneric  string `yaml:"error_generic"`
}

// GameMessages overrides game-launch user-facing text.
type GameMessages struct {
	LaunchError string `yaml:"launch_error"`
}

// UITitles overrides panel titles.
type UITitles struct {
	News         string `yaml:"news"`
	SSOLogin     string `yaml:"sso_login"`
	ServerStatus string `yaml:"server_status"`
	Actions      string `yaml:"actions"`
}

// UIButtons overrides button labels.
type UIButtons struct {
	Login        string `yaml:"login"`
	Setup        string `yaml:"setup"`
	ToggleGray   string `yaml:"toggle_gray"`
	ToggleNormal string `yaml:"toggle_normal"`
	ResetCache   string `yaml:"reset_cache"`
	Cancel       string `yaml:"cancel"`
	Play         string `yaml:"play"`
	Patching     string `yaml:"patching"`
	Wait         string `yaml:"wait"`
	Retry        string `yaml:"retry"`
}

// UIStatus overrides the state-machine's user-facing status strings.
type UIStatus struct {
	Idle        string `yaml:"idle"`
	Checking    string `yaml:"checking"`
	Downloading string `yaml:"downloading"`
	Patching    string `yaml:"patching"`
	Ready       string `yaml:"ready"`
	Error       string `yaml:"error"`
}

// UIMessages groups the three UI override blocks.
type UIMessages struct {
	Titles  UITitles  `yaml:"titles"`
	Buttons UIButtons `yaml:"buttons"`
	Status  UIStatus  `yaml:"status"`
}

// Messages is the root of all user-facing text overrides.
type Messages struct {
	Patching PatchingMessages `yaml:"patching"`
	Game     GameMessages     `yaml:"game"`
	UI       UIMessages       `yaml:"ui"`
}

// Config is the full patcher configuration file.
type Config struct {
	Window   Window    `yaml:"window"`
	Play     Play      `yaml:"play"`
	Setup    *Setup    `yaml:"setup"`
	Web      Web       `yaml:"web"`
	Client   Client    `yaml:"client"`
	Patching Patching  `yaml:"patching"`
	Messages *Messages `yaml:"messages"`
}

// applyDefaults fills in fields the Rust source marks
// #[serde(default = "...")], since go.yaml.in/yaml/v2 has no equivalent
// per-field default directive.
func applyDefaults(c *Config) {
	if c.Window.Title == "" {
		c.Window.Title = "Kafra Client"
	}
	if c.Window.Width == 0 {
		c.Window.Width = 900
	}
	if c.Window.Height == 0 {
		c.Window.Height = 600
	}
	if c.Client.DefaultContainerName == "" {
		c.Client.DefaultContainerName = "data.grf"
	}
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	// check_integrity defaults to on; seeding it before decoding keeps that
	// default when the file omits the key.
	c := Config{Patching: Patching{CheckIntegrity: true}}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&c)
	return c, nil
}

// Default returns the zero-config baseline: a usable client pointed at
// nothing, matching the reference implementation's Default impl.
func Default() Config {
	c := Config{
		Play: Play{Path: "ragnarok.exe", ExitOnSuccess: true},
		Patching: Patching{
			InPlace:        true,
			CheckIntegrity: true,
		},
	}
	applyDefaults(&c)
	return c
}
