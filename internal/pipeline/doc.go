// Package pipeline executes the staged, cache-aware build.
//
// A build is a strict linear chain of stages: prepare, cache-dependencies,
// build-application, package. Each stage consumes the previous stage's
// outputs through an explicit [Build] structure threaded between them; no
// state passes through the process environment. Stages follow a
// Pending -> Running -> Succeeded/Failed state machine with no retries, and
// the pipeline is fail-fast: the first failure aborts the chain and is
// surfaced to the driver as a [StageError] naming the failing stage.
//
// The cache-dependencies stage is the only cached step. It looks up a layer
// by (dependency fingerprint, target triple); on a hit the layer directory
// is reused as-is, on a miss only the dependency modules are compiled and
// the result is published atomically. The build-application stage always
// runs and links against the layer. Packaging delegates to the image
// package.
//
// Example usage:
//
//	p := pipeline.New(&pipeline.Build{
//	    Workspace: ws,
//	    Triple:    "linux/arm64",
//	    Env:       env,
//	    Store:     store,
//	    Compiler:  compiler,
//	    WorkDir:   work,
//	    OutputDir: out,
//	})
//	result, err := p.Run(ctx)
package pipeline
