package pipeline

import (
	"context"
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/thunggis/xforge/internal/cache"
	"github.com/thunggis/xforge/internal/image"
	"github.com/thunggis/xforge/internal/toolchain"
	"github.com/thunggis/xforge/internal/workspace"
)

// Stage names, in execution order.
const (
	StagePrepare   = "prepare"
	StageCacheDeps = "cache-dependencies"
	StageBuildApp  = "build-application"
	StagePackage   = "package"
)

// Compiles one module of the workspace.
//
// depsDir is the directory holding compiled dependency artifacts to link
// against ("" while the dependency layer itself is being populated), and
// outDir is where the module's artifacts must be written. Application
// module binaries are expected at <outDir>/<module-name>.
type Compiler interface {
	Compile(ctx context.Context, module workspace.Module, env *toolchain.Environment, depsDir, outDir string) error
}

// The state threaded between stages. Inputs are set by the driver before
// Run; the remaining fields are populated as stages complete.
type Build struct {
	Workspace        *workspace.Descriptor  // Validated by the prepare stage.
	Triple           string                 // Normalized target platform triple.
	Selector         []string               // Application modules to build; empty selects all.
	Env              *toolchain.Environment // Provisioned toolchain, read-only.
	Store            *cache.Store           // Shared dependency layer store.
	Compiler         Compiler               // Backend performing module compilation.
	WorkDir          string                 // Scratch directory for application artifacts.
	OutputDir        string                 // Destination of the runtime bundle.
	SupervisorBinary string                 // Host path of the init-supervisor to embed, optional.

	// Populated by stages.
	Fingerprint digest.Digest // Computed by prepare.
	Layer       *cache.Layer  // Resolved or published by cache-dependencies.
	CacheReused bool          // True when cache-dependencies hit an existing layer.
	Binaries    []string      // Produced by build-application.
	Bundle      *image.Bundle // Produced by package.
}

// The outcome of a successful pipeline run.
type Result struct {
	Bundle      *image.Bundle // The packaged runtime artifact.
	Fingerprint digest.Digest // Dependency fingerprint of the build.
	CacheReused bool          // Whether the dependency layer was reused.
}

// An ordered build chain over a single [Build].
type Pipeline struct {
	build  *Build
	stages []*Stage
}

// Creates the standard four-stage pipeline for the build.
func New(b *Build) *Pipeline {
	return &Pipeline{
		build: b,
		stages: []*Stage{
			newStage(StagePrepare, runPrepare),
			newStage(StageCacheDeps, runCacheDependencies),
			newStage(StageBuildApp, runBuildApplication),
			newStage(StagePackage, runPackage),
		},
	}
}

// Returns the stages in execution order.
func (p *Pipeline) Stages() []*Stage {
	return p.stages
}

// Executes the stages strictly in order.
//
// A stage starts only after its predecessor succeeded. The first failure
// stops the pipeline; later stages stay Pending and the error is returned
// as a [StageError] carrying the failing stage's name.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	slog.Info("starting build",
		"workspace", p.build.Workspace.Name,
		"triple", p.build.Triple,
		"stages", len(p.stages),
	)

	for _, stage := range p.stages {
		slog.Info("running stage", "stage", stage.Name())

		if err := stage.execute(ctx, p.build); err != nil {
			return nil, &StageError{Stage: stage.Name(), Err: err}
		}
	}

	return &Result{
		Bundle:      p.build.Bundle,
		Fingerprint: p.build.Fingerprint,
		CacheReused: p.build.CacheReused,
	}, nil
}
