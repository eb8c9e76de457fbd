package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/containerd/platforms"

	"github.com/thunggis/xforge/internal"
	"github.com/thunggis/xforge/internal/cache"
	"github.com/thunggis/xforge/internal/paths"
	"github.com/thunggis/xforge/internal/pipeline"
	"github.com/thunggis/xforge/internal/runtime"
	"github.com/thunggis/xforge/internal/toolchain"
	"github.com/thunggis/xforge/internal/workspace"
)

// Represents the 'xforge build' command.
type BuildCmd struct {
	Workspace string `arg:"" help:"Path to the workspace root." type:"existingdir"`

	Triple  string   `short:"t" required:"" help:"Target platform triple (e.g. linux/arm64)." placeholder:"TRIPLE"`
	Modules []string `short:"m" help:"Application modules to build. Defaults to all."`
	Output  string   `short:"o" default:"dist" help:"Directory for the runtime bundle." placeholder:"DIR"`

	ToolchainImage string            `required:"" help:"OCI archive of the provisioning toolchain image." placeholder:"PATH"`
	DistRoot       string            `help:"Directory holding pinned toolchain component distributions." placeholder:"DIR"`
	Pin            map[string]string `help:"Component version pins (e.g. compiler=1.78.0)." placeholder:"NAME=VERSION"`

	CacheDir    string `help:"Dependency cache root shared across builds. Defaults to the user cache directory." placeholder:"DIR"`
	InstallRoot string `help:"Toolchain install root. Defaults to the user data directory." placeholder:"DIR"`
	PackageHome string `help:"Package-manager home to mount into the build container." placeholder:"DIR"`

	Supervisor string `help:"Host path of the init-supervisor binary to embed in the bundle." placeholder:"PATH"`
	Socket     string `default:"/run/containerd/containerd.sock" help:"Containerd socket address." placeholder:"PATH"`
	DryRun     bool   `help:"Print the stage plan without executing."`
}

// Executes the build command: provisions the toolchain, starts the build
// container with the host caches mounted, and runs the pipeline.
func (c *BuildCmd) Run(ctx context.Context) error {
	p, err := platforms.Parse(c.Triple)
	if err != nil {
		return fmt.Errorf("target triple %q: %w", c.Triple, err)
	}
	triple := platforms.Format(p)

	ws, err := workspace.Load(c.Workspace)
	if err != nil {
		return err
	}

	env, err := c.provision(ctx, triple)
	if err != nil {
		return err
	}

	store, err := cache.NewStore(c.cacheDir())
	if err != nil {
		return err
	}

	workDir, err := c.workDir()
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	build := &pipeline.Build{
		Workspace:        ws,
		Triple:           triple,
		Selector:         c.Modules,
		Env:              env,
		Store:            store,
		WorkDir:          workDir,
		OutputDir:        c.Output,
		SupervisorBinary: c.Supervisor,
	}
	pipe := pipeline.New(build)

	if c.DryRun {
		return c.printPlan(pipe, ws, triple)
	}

	ctr, cleanup, err := c.startContainer(ctx, ws, store, triple, workDir)
	if err != nil {
		return err
	}
	defer cleanup()

	build.Compiler = runtime.NewCompiler(ctr)

	result, err := pipe.Run(ctx)
	if err != nil {
		return err
	}

	slog.Info("build complete",
		"bundle", result.Bundle.Output,
		"digest", result.Bundle.Digest,
		"cache", cacheOutcome(result.CacheReused),
	)
	return nil
}

// Provisions the pinned toolchain components for the target triple.
func (c *BuildCmd) provision(ctx context.Context, triple string) (*toolchain.Environment, error) {
	root := c.InstallRoot
	if root == "" {
		root = paths.InstallRoot()
	}

	provisioner := toolchain.NewProvisioner(root)
	return provisioner.Provision(ctx, triple, toolchain.StandardComponents(c.DistRoot, c.Pin))
}

// Starts the build container with the host resources bind-mounted.
func (c *BuildCmd) startContainer(ctx context.Context, ws *workspace.Descriptor, store *cache.Store, triple, workDir string) (*runtime.Container, func(), error) {
	rt, err := runtime.New(c.Socket, internal.Name)
	if err != nil {
		return nil, nil, err
	}

	mounts := []runtime.Mount{
		{HostPath: ws.Root},
		{HostPath: c.cacheDir()},
		{HostPath: workDir},
		{HostPath: c.installRoot(), ReadOnly: true},
	}
	if c.PackageHome != "" {
		mounts = append(mounts, runtime.Mount{HostPath: c.PackageHome})
	}

	id := internal.Name + "-build-" + ws.Name
	ctr, err := rt.StartBuildContainer(ctx, c.ToolchainImage, id, triple, mounts)
	if err != nil {
		rt.Close()
		return nil, nil, err
	}

	cleanup := func() {
		ctr.Destroy(context.Background())
		rt.Close()
	}
	return ctr, cleanup, nil
}

// Prints the stage plan for a dry run.
func (c *BuildCmd) printPlan(pipe *pipeline.Pipeline, ws *workspace.Descriptor, triple string) error {
	fmt.Printf("workspace %s -> %s (%s)\n", ws.Name, c.Output, triple)
	fmt.Printf("fingerprint %s\n", ws.Fingerprint().Encoded())
	for i, stage := range pipe.Stages() {
		fmt.Printf("  %d. %s\n", i+1, stage.Name())
	}
	return nil
}

// Returns the effective cache root.
func (c *BuildCmd) cacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return paths.CacheRoot()
}

// Returns the effective toolchain install root.
func (c *BuildCmd) installRoot() string {
	if c.InstallRoot != "" {
		return c.InstallRoot
	}
	return paths.InstallRoot()
}

// Creates a scratch directory for this build's intermediate artifacts.
func (c *BuildCmd) workDir() (string, error) {
	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
		return "", err
	}
	return os.MkdirTemp(paths.Runtime(), "build-")
}

// Describes the cache outcome for the final log line.
func cacheOutcome(reused bool) string {
	if reused {
		return "reused"
	}
	return "rebuilt"
}
