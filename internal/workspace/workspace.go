package workspace

import (
	"log/slog"
	"path/filepath"
)

// Module kinds. Dependency modules are compiled by the cache-dependencies
// stage and published to the cache layer; application modules are compiled
// on every build.
const (
	KindDependency  = "dependency"
	KindApplication = "application"
)

// Default runtime settings applied when the workspace manifest omits them.
const (
	DefaultUID        = 1001
	DefaultUser       = "app"
	DefaultSupervisor = "/sbin/init-super"
)

// A declared dependency entry: name plus version constraint.
type Dependency struct {
	Name    string // Dependency name (e.g., "libA").
	Version string // Version constraint as written in the manifest (e.g., "1.0").
}

// One buildable unit of the workspace.
type Module struct {
	Name         string       // Module name, unique within the workspace.
	Kind         string       // KindDependency or KindApplication.
	SourceRoot   string       // Absolute path to the module's source tree.
	Build        string       // Optional explicit build command; the toolchain default is used when empty.
	Dependencies []Dependency // Declared dependency entries.
}

// Runtime settings for the packaged artifact.
type Runtime struct {
	UID        int    // Numeric id of the non-root execution identity.
	User       string // User name bound to the UID.
	Ports      []int  // Service ports declared as image metadata.
	ConfigDir  string // Path, relative to the workspace root, of static configuration to package. Empty means none.
	Supervisor string // In-image path of the init-supervisor entrypoint.
}

// The immutable description of a workspace, created once per build
// invocation from the on-disk manifest tree.
type Descriptor struct {
	Name    string   // Workspace name from the workspace block.
	Root    string   // Absolute path to the workspace root.
	Modules []Module // All modules, in manifest order.
	Runtime Runtime  // Packaging contract.
}

// Reads the manifest tree under root and builds a [Descriptor].
//
// Relative module source roots and the config directory are resolved against
// the workspace root. Load does not validate the result; call
// [Descriptor.Validate] before using the descriptor in a build.
func Load(root string) (*Descriptor, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	ws, hclModules, err := parseManifests(abs)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Name:    ws.Name,
		Root:    abs,
		Runtime: runtimeSettings(ws.Runtime),
	}

	for _, m := range hclModules {
		mod := Module{
			Name:       m.Name,
			Kind:       m.Kind,
			SourceRoot: resolve(abs, m.Source),
			Build:      m.Build,
		}
		for _, dep := range m.Dependencies {
			mod.Dependencies = append(mod.Dependencies, Dependency{
				Name:    dep.Name,
				Version: dep.Version,
			})
		}
		d.Modules = append(d.Modules, mod)
	}

	slog.Debug("workspace loaded",
		"name", d.Name,
		"root", d.Root,
		"modules", len(d.Modules),
	)

	return d, nil
}

// Returns the modules of the given kind, in manifest order.
func (d *Descriptor) ModulesOfKind(kind string) []Module {
	var out []Module
	for _, m := range d.Modules {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// Looks up a module by name.
func (d *Descriptor) Module(name string) (Module, bool) {
	for _, m := range d.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

// Applies defaults to the runtime block, which may be absent entirely.
func runtimeSettings(r *hclRuntime) Runtime {
	rt := Runtime{
		UID:        DefaultUID,
		User:       DefaultUser,
		Supervisor: DefaultSupervisor,
	}
	if r == nil {
		return rt
	}

	if r.UID != nil {
		rt.UID = *r.UID
	}
	if r.User != "" {
		rt.User = r.User
	}
	if r.Supervisor != "" {
		rt.Supervisor = r.Supervisor
	}
	rt.Ports = r.Ports
	rt.ConfigDir = r.ConfigDir

	return rt
}

// Resolves a manifest path against the workspace root unless it is already
// absolute.
func resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
