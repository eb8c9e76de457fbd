package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	toolName = "xforge"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the root directory for published dependency cache layers.
//
//	Linux:   ~/.cache/xforge/layers
//	macOS:   ~/Library/Caches/xforge/layers
func CacheRoot() string {
	return filepath.Join(xdg.CacheHome, toolName, "layers")
}

// Path to the root directory for pinned toolchain installations.
//
// Components are installed under <install-root>/<component>/<version>.
//
//	Linux:   ~/.local/share/xforge/toolchains
//	macOS:   ~/Library/Application Support/xforge/toolchains
func InstallRoot() string {
	return filepath.Join(xdg.DataHome, toolName, "toolchains")
}

// Path to the directory for transient build state (staging directories,
// scratch space).
//
//	Linux:   $XDG_RUNTIME_DIR/xforge or /run/user/<uid>/xforge
//	macOS:   ~/Library/Caches/xforge/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, toolName)
	}
	return filepath.Join(xdg.CacheHome, toolName, "run")
}
