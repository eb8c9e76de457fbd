package workspace

import (
	"fmt"
	"os"
)

// Checks that the descriptor is well-formed.
//
// A workspace is valid when module names are unique, every module has a kind
// the pipeline understands, every source root exists on disk, and every
// dependency entry carries a version constraint. The first violation found is
// returned wrapped in [ErrValidation]; the prepare stage treats any
// validation failure as fatal before compilation starts.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: workspace has no name", ErrValidation)
	}
	if len(d.Modules) == 0 {
		return fmt.Errorf("%w: workspace %q declares no modules", ErrValidation, d.Name)
	}

	seen := make(map[string]bool, len(d.Modules))

	for _, m := range d.Modules {
		if m.Name == "" {
			return fmt.Errorf("%w: module with empty name", ErrValidation)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate module name %q", ErrValidation, m.Name)
		}
		seen[m.Name] = true

		if m.Kind != KindDependency && m.Kind != KindApplication {
			return fmt.Errorf("%w: module %q has unknown kind %q", ErrValidation, m.Name, m.Kind)
		}

		if m.SourceRoot == "" {
			return fmt.Errorf("%w: module %q has no source root", ErrValidation, m.Name)
		}
		info, err := os.Stat(m.SourceRoot)
		if err != nil {
			return fmt.Errorf("%w: module %q: missing source root %s", ErrValidation, m.Name, m.SourceRoot)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: module %q: source root %s is not a directory", ErrValidation, m.Name, m.SourceRoot)
		}

		for _, dep := range m.Dependencies {
			if dep.Name == "" {
				return fmt.Errorf("%w: module %q has a dependency with no name", ErrValidation, m.Name)
			}
			if dep.Version == "" {
				return fmt.Errorf("%w: module %q: dependency %q has no version constraint", ErrValidation, m.Name, dep.Name)
			}
		}
	}

	if rt := d.Runtime; rt.UID <= 0 {
		return fmt.Errorf("%w: runtime uid %d is not a positive non-root id", ErrValidation, rt.UID)
	}

	return nil
}
