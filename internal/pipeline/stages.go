package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/thunggis/xforge/internal/cache"
	"github.com/thunggis/xforge/internal/image"
	"github.com/thunggis/xforge/internal/paths"
	"github.com/thunggis/xforge/internal/workspace"
)

// Validates the workspace, checks the module selection, verifies the
// toolchain, and computes the dependency fingerprint. Fails before any
// compilation when the module graph is malformed.
func runPrepare(ctx context.Context, b *Build) error {
	if err := b.Workspace.Validate(); err != nil {
		return err
	}

	for _, name := range b.Selector {
		m, ok := b.Workspace.Module(name)
		if !ok {
			return fmt.Errorf("%w: selected module %q does not exist", workspace.ErrValidation, name)
		}
		if m.Kind != workspace.KindApplication {
			return fmt.Errorf("%w: selected module %q is not an application module", workspace.ErrValidation, name)
		}
	}

	if err := b.Env.Verify(); err != nil {
		return err
	}

	b.Fingerprint = b.Workspace.Fingerprint()

	slog.Info("workspace prepared",
		"modules", len(b.Workspace.Modules),
		"fingerprint", b.Fingerprint.Encoded()[:12],
	)
	return nil
}

// Resolves the dependency layer for (fingerprint, triple).
//
// On a hit the published layer is reused as-is and no dependency module is
// compiled. On a miss every dependency module is compiled into a staging
// directory, which is published atomically once all of them succeed. A
// compile failure discards the staging so no partial layer is ever visible
// to a future lookup.
func runCacheDependencies(ctx context.Context, b *Build) error {
	key := cache.Key{Triple: b.Triple, Fingerprint: b.Fingerprint}

	layer, ok, err := b.Store.Lookup(key)
	if err != nil {
		return err
	}
	if ok {
		b.Layer = layer
		b.CacheReused = true
		slog.Info("dependency layer reused", "key", key.String())
		return nil
	}

	slog.Info("dependency layer miss, compiling dependencies", "key", key.String())

	staging, err := b.Store.Begin(key)
	if err != nil {
		return err
	}
	defer staging.Discard()

	for _, m := range b.Workspace.ModulesOfKind(workspace.KindDependency) {
		slog.Debug("compiling dependency module", "module", m.Name)

		if err := b.Compiler.Compile(ctx, m, b.Env, "", staging.Dir); err != nil {
			return fmt.Errorf("%w: dependency module %s: %w", ErrCompilation, m.Name, err)
		}
	}

	layer, err = staging.Commit()
	if err != nil {
		return err
	}

	b.Layer = layer
	return nil
}

// Compiles the selected application modules against the dependency layer.
//
// This stage always runs; application source changes on every iteration so
// its output is never cached.
func runBuildApplication(ctx context.Context, b *Build) error {
	outDir := filepath.Join(b.WorkDir, "app")
	if err := os.MkdirAll(outDir, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrCompilation, err)
	}

	for _, m := range b.applicationModules() {
		slog.Debug("compiling application module", "module", m.Name)

		if err := b.Compiler.Compile(ctx, m, b.Env, b.Layer.Path, outDir); err != nil {
			return fmt.Errorf("%w: application module %s: %w", ErrCompilation, m.Name, err)
		}

		b.Binaries = append(b.Binaries, filepath.Join(outDir, m.Name))
	}

	if len(b.Binaries) == 0 {
		return fmt.Errorf("%w: no application modules to build", ErrCompilation)
	}

	return nil
}

// Packages the compiled binaries and static configuration into the runtime
// bundle.
func runPackage(ctx context.Context, b *Build) error {
	ws := b.Workspace

	configDir := ""
	if ws.Runtime.ConfigDir != "" {
		configDir = filepath.Join(ws.Root, ws.Runtime.ConfigDir)
	}

	bundle, err := image.Package(image.Options{
		Name:             ws.Name,
		Triple:           b.Triple,
		Binaries:         b.Binaries,
		ConfigDir:        configDir,
		SupervisorBinary: b.SupervisorBinary,
		Runtime:          ws.Runtime,
		Output:           b.OutputDir,
	})
	if err != nil {
		return err
	}

	b.Bundle = bundle
	return nil
}

// Returns the application modules chosen by the selector, or all of them
// when the selector is empty.
func (b *Build) applicationModules() []workspace.Module {
	all := b.Workspace.ModulesOfKind(workspace.KindApplication)
	if len(b.Selector) == 0 {
		return all
	}

	selected := make(map[string]bool, len(b.Selector))
	for _, name := range b.Selector {
		selected[name] = true
	}

	var out []workspace.Module
	for _, m := range all {
		if selected[m.Name] {
			out = append(out, m)
		}
	}
	return out
}
