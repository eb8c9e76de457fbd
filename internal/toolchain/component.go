package toolchain

import "path/filepath"

// Well-known component names. The pipeline requires at least the compiler;
// the remaining components depend on what the workspace modules need.
const (
	ComponentCompiler = "compiler"
	ComponentLinker   = "linker"
	ComponentCodegen  = "codegen"
	ComponentProtoc   = "protoc"
)

// A required toolchain component with its pinned version.
type Component struct {
	Name    string // Component name (e.g., "compiler").
	Version string // Exact pinned version (e.g., "1.78.0"). Never a range.
	Source  string // Host path of the component distribution to install from.
	Binary  string // Path of the executable within the distribution. Defaults to bin/<name>.
}

// Returns the executable path within the component's distribution.
func (c Component) binaryPath() string {
	if c.Binary != "" {
		return c.Binary
	}
	return filepath.Join("bin", c.Name)
}

// Returns the standard component set for a cross build: compiler, linker,
// code-generation backend, and protocol-definition compiler, each rooted at
// distRoot/<name>-<version>.
func StandardComponents(distRoot string, versions map[string]string) []Component {
	names := []string{ComponentCompiler, ComponentLinker, ComponentCodegen, ComponentProtoc}

	components := make([]Component, 0, len(names))
	for _, name := range names {
		version := versions[name]
		components = append(components, Component{
			Name:    name,
			Version: version,
			Source:  filepath.Join(distRoot, name+"-"+version),
		})
	}
	return components
}
