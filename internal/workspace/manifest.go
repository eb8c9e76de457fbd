package workspace

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// File extension for workspace and module manifests.
const manifestExt = ".hcl"

// Top-level structure of a manifest file for decoding.
//
// A single file may declare the workspace block, module blocks, or both.
// Splitting modules across files is supported; the loader merges every
// manifest found under the workspace root.
type hclManifest struct {
	Workspace *hclWorkspace `hcl:"workspace,block"`
	Modules   []*hclModule  `hcl:"module,block"`
}

// A workspace block: global settings and the runtime contract for packaging.
type hclWorkspace struct {
	Name    string      `hcl:"name,label"`
	Runtime *hclRuntime `hcl:"runtime,block"`
}

// A runtime block inside the workspace block.
type hclRuntime struct {
	UID        *int   `hcl:"uid,optional"`
	User       string `hcl:"user,optional"`
	Ports      []int  `hcl:"ports,optional"`
	ConfigDir  string `hcl:"config,optional"`
	Supervisor string `hcl:"supervisor,optional"`
}

// A module block: one buildable unit of the workspace.
type hclModule struct {
	Name         string           `hcl:"name,label"`
	Kind         string           `hcl:"kind"`
	Source       string           `hcl:"source"`
	Build        string           `hcl:"build,optional"`
	Dependencies []*hclDependency `hcl:"dependency,block"`
}

// A dependency block inside a module block: a declared dependency entry,
// name plus version constraint. Resolved transitive closures are deliberately
// not part of the manifest.
type hclDependency struct {
	Name    string `hcl:"name,label"`
	Version string `hcl:"version"`
}

// Parses every manifest file under root and merges the results.
//
// Exactly one workspace block must be present across all files. Manifests
// may reference the workspace root as workspace.root in expressions.
func parseManifests(root string) (*hclWorkspace, []*hclModule, error) {
	files, err := findManifests(root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("%w: no %s manifests under %s", ErrManifest, manifestExt, root)
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"workspace": cty.ObjectVal(map[string]cty.Value{
				"root": cty.StringVal(root),
			}),
		},
	}

	parser := hclparse.NewParser()

	var ws *hclWorkspace
	var modules []*hclModule

	for _, path := range files {
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrManifest, path, diags)
		}

		var manifest hclManifest
		if diags := gohcl.DecodeBody(file.Body, evalCtx, &manifest); diags.HasErrors() {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrManifest, path, diags)
		}

		if manifest.Workspace != nil {
			if ws != nil {
				return nil, nil, fmt.Errorf("%w: duplicate workspace block in %s", ErrManifest, path)
			}
			ws = manifest.Workspace
		}

		modules = append(modules, manifest.Modules...)
	}

	if ws == nil {
		return nil, nil, fmt.Errorf("%w: no workspace block found under %s", ErrManifest, root)
	}

	return ws, modules, nil
}

// Collects all manifest files under root, sorted for deterministic merge
// order across platforms and filesystems.
func findManifests(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == manifestExt {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
