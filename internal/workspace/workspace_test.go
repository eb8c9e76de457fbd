package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// Writes a manifest file into dir and fails the test on error.
func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "crates", "core"), 0755); err != nil {
		t.Fatal(err)
	}

	writeManifest(t, root, "workspace.hcl", `
workspace "sequencer" {
  runtime {
    uid    = 2000
    user   = "sequencer"
    ports  = [8080, 9090]
    config = "config"
  }
}

module "core" {
  kind   = "application"
  source = "crates/core"

  dependency "libA" {
    version = "1.0"
  }
}
`)

	d, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if d.Name != "sequencer" {
		t.Fatalf("name = %q, want sequencer", d.Name)
	}
	if len(d.Modules) != 1 {
		t.Fatalf("modules = %d, want 1", len(d.Modules))
	}

	m := d.Modules[0]
	if m.Name != "core" || m.Kind != KindApplication {
		t.Fatalf("module = %+v", m)
	}
	if want := filepath.Join(root, "crates", "core"); m.SourceRoot != want {
		t.Fatalf("source root = %q, want %q", m.SourceRoot, want)
	}
	if len(m.Dependencies) != 1 || m.Dependencies[0] != (Dependency{Name: "libA", Version: "1.0"}) {
		t.Fatalf("dependencies = %+v", m.Dependencies)
	}

	rt := d.Runtime
	if rt.UID != 2000 || rt.User != "sequencer" {
		t.Fatalf("runtime identity = %+v", rt)
	}
	if len(rt.Ports) != 2 || rt.Ports[0] != 8080 || rt.Ports[1] != 9090 {
		t.Fatalf("ports = %v", rt.Ports)
	}
	if rt.Supervisor != DefaultSupervisor {
		t.Fatalf("supervisor = %q, want default %q", rt.Supervisor, DefaultSupervisor)
	}
}

func TestLoadMergesManifestFiles(t *testing.T) {
	root := t.TempDir()

	writeManifest(t, root, "workspace.hcl", `
workspace "ws" {}
`)
	writeManifest(t, root, "modules.hcl", `
module "libs" {
  kind   = "dependency"
  source = "."
}

module "core" {
  kind   = "application"
  source = "."
}
`)

	d, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(d.Modules) != 2 {
		t.Fatalf("modules = %d, want 2", len(d.Modules))
	}
	if got := d.ModulesOfKind(KindDependency); len(got) != 1 || got[0].Name != "libs" {
		t.Fatalf("dependency modules = %+v", got)
	}
}

func TestLoadAppliesRuntimeDefaults(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "workspace.hcl", `
workspace "ws" {}

module "core" {
  kind   = "application"
  source = "."
}
`)

	d, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	rt := d.Runtime
	if rt.UID != DefaultUID || rt.User != DefaultUser || rt.Supervisor != DefaultSupervisor {
		t.Fatalf("runtime defaults not applied: %+v", rt)
	}
}

func TestLoadWorkspaceRootVariable(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "workspace.hcl", `
workspace "ws" {}

module "core" {
  kind   = "application"
  source = "${workspace.root}/crates/core"
}
`)

	d, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if want := filepath.Join(root, "crates", "core"); d.Modules[0].SourceRoot != want {
		t.Fatalf("source root = %q, want %q", d.Modules[0].SourceRoot, want)
	}
}

func TestLoadRejectsDuplicateWorkspaceBlocks(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "a.hcl", `workspace "one" {}`)
	writeManifest(t, root, "b.hcl", `workspace "two" {}`)

	if _, err := Load(root); !errors.Is(err, ErrManifest) {
		t.Fatalf("err = %v, want ErrManifest", err)
	}
}

func TestLoadRequiresWorkspaceBlock(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "modules.hcl", `
module "core" {
  kind   = "application"
  source = "."
}
`)

	if _, err := Load(root); !errors.Is(err, ErrManifest) {
		t.Fatalf("err = %v, want ErrManifest", err)
	}
}

func TestLoadNoManifests(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, ErrManifest) {
		t.Fatalf("err = %v, want ErrManifest", err)
	}
}
