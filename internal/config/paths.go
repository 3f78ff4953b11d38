package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for Warden data.
type Paths struct {
	Data   string // ~/.local/share/warden
	Config string // ~/.config/warden
	Cache  string // ~/.cache/warden
	State  string // ~/.local/state/warden
}

// GetPaths returns the standard paths for Warden data, honoring the XDG
// base directory variables when set.
func GetPaths() *Paths {
	return &Paths{
		Data:   xdgDir("XDG_DATA_HOME", ".local", "share"),
		Config: xdgDir("XDG_CONFIG_HOME", ".config"),
		Cache:  xdgDir("XDG_CACHE_HOME", ".cache"),
		State:  xdgDir("XDG_STATE_HOME", ".local", "state"),
	}
}

// xdgDir resolves one XDG base directory and appends the warden
// subdirectory. On Windows everything lands under APPDATA.
func xdgDir(envVar string, fallback ...string) string {
	base := os.Getenv(envVar)
	if base == "" {
		if runtime.GOOS == "windows" {
			base = os.Getenv("APPDATA")
		} else {
			parts := append([]string{os.Getenv("HOME")}, fallback...)
			base = filepath.Join(parts...)
		}
	}
	return filepath.Join(base, "warden")
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StorePath returns the default sqlite database file.
func (p *Paths) StorePath() string {
	return filepath.Join(p.Data, "warden.db")
}

// ArchiveDir returns the default directory for session archives.
func (p *Paths) ArchiveDir() string {
	return filepath.Join(p.Data, "archives")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "warden.json")
}
