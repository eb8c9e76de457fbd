package toolchain

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Permission mode for install directories.
const dirMode os.FileMode = 0755

// Runs an installed binary's version probe and returns its output.
//
// The default implementation execs "<path> --version". Tests substitute a
// fake to avoid depending on real toolchain binaries.
type VersionProbe func(ctx context.Context, path string) (string, error)

// Installs pinned toolchain components into a version-addressed root.
type Provisioner struct {
	root  string
	probe VersionProbe
}

// Creates a provisioner rooted at the given install directory.
func NewProvisioner(root string) *Provisioner {
	return &Provisioner{root: root, probe: execVersionProbe}
}

// Replaces the version probe. Intended for tests.
func (p *Provisioner) SetVersionProbe(probe VersionProbe) {
	p.probe = probe
}

// Installs every component and returns the resulting environment.
//
// Components are independent at install time and are installed concurrently;
// Provision join-waits on all of them and fails if any single install or
// version check fails. Installation is idempotent: a component already
// present at <root>/<name>/<version> is verified but not reinstalled, so the
// environment's paths and versions are identical across runs on an unchanged
// host.
func (p *Provisioner) Provision(ctx context.Context, triple string, components []Component) (*Environment, error) {
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: no components requested", ErrProvisioning)
	}

	slog.Info("provisioning toolchain",
		"triple", triple,
		"components", len(components),
		"root", p.root,
	)

	var mu sync.Mutex
	tools := make(map[string]Tool, len(components))

	g, gctx := errgroup.WithContext(ctx)

	for _, component := range components {
		g.Go(func() error {
			tool, err := p.provisionComponent(gctx, component)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if _, dup := tools[component.Name]; dup {
				return fmt.Errorf("%w: duplicate component %q", ErrProvisioning, component.Name)
			}
			tools[component.Name] = tool
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	env := NewEnvironment(triple, tools)
	if err := env.Verify(); err != nil {
		return nil, err
	}

	return env, nil
}

// Installs a single component if absent and verifies its reported version.
func (p *Provisioner) provisionComponent(ctx context.Context, component Component) (Tool, error) {
	if component.Name == "" || component.Version == "" {
		return Tool{}, fmt.Errorf("%w: component %q must pin an exact version", ErrProvisioning, component.Name)
	}

	dir := filepath.Join(p.root, component.Name, component.Version)
	binary := filepath.Join(dir, component.binaryPath())

	if _, err := os.Stat(binary); err != nil {
		if err := p.install(component, dir); err != nil {
			return Tool{}, fmt.Errorf("%w: component %s@%s: %w", ErrProvisioning, component.Name, component.Version, err)
		}
	} else {
		slog.Debug("component already installed", "component", component.Name, "version", component.Version)
	}

	if err := p.verifyVersion(ctx, component, binary); err != nil {
		return Tool{}, err
	}

	return Tool{Component: component, Path: binary}, nil
}

// Copies the component distribution into the install root.
//
// The distribution is written to a temporary sibling directory and renamed
// into place, so a concurrent or interrupted install can never leave a
// half-populated version directory behind.
func (p *Provisioner) install(component Component, dir string) error {
	if component.Source == "" {
		return fmt.Errorf("component has no source")
	}
	if _, err := os.Stat(component.Source); err != nil {
		return err
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, dirMode); err != nil {
		return err
	}

	tmp, err := os.MkdirTemp(parent, ".install-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := copyTree(component.Source, tmp); err != nil {
		return err
	}

	if err := os.Rename(tmp, dir); err != nil {
		// Lost the race to a concurrent install of the same version.
		if _, statErr := os.Stat(dir); statErr == nil {
			return nil
		}
		return err
	}

	slog.Info("component installed",
		"component", component.Name,
		"version", component.Version,
		"dir", dir,
	)
	return nil
}

// Runs the version probe and checks the output against the pinned version.
func (p *Provisioner) verifyVersion(ctx context.Context, component Component, binary string) error {
	out, err := p.probe(ctx, binary)
	if err != nil {
		return fmt.Errorf("%w: component %s: version probe: %w", ErrProvisioning, component.Name, err)
	}

	if !strings.Contains(out, component.Version) {
		return fmt.Errorf("%w: component %s reports %q, pinned to %s",
			ErrVersionMismatch, component.Name, strings.TrimSpace(out), component.Version)
	}

	return nil
}

// Default version probe: execs the binary with --version.
func execVersionProbe(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Copies a directory tree, preserving file modes. Symlinks are not followed;
// toolchain distributions are expected to be plain trees.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

// Copies a single file with the given mode.
func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
