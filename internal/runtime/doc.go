// Package runtime runs the compile step inside containers backed by
// containerd.
//
// A [Runtime] connects to a containerd daemon and starts build containers
// from an imported toolchain image. Host resources that must survive across
// invocations (the dependency cache root, the package-manager home, the
// toolchain install root) are bind-mounted into the container at their host
// paths, so compile commands read and write them directly and nothing needs
// to be copied in or out.
//
// [Compiler] adapts a running build container to the pipeline's compile
// contract: for each module it execs the module's build command (or the
// toolchain compiler's default invocation) inside the container.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "xforge")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.StartBuildContainer(ctx, "toolchain.tar", "build-1", "linux/arm64", mounts)
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	compiler := runtime.NewCompiler(ctr)
package runtime
