package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/thunggis/xforge/internal/toolchain"
	"github.com/thunggis/xforge/internal/workspace"
)

// Environment variables handed to build commands, alongside the toolchain
// bindings from [toolchain.Environment.Environ].
const (
	envTarget = "XFORGE_TARGET"
	envOutput = "XFORGE_OUTPUT"
	envDeps   = "XFORGE_DEPS"
)

// Compiles workspace modules by running their build commands inside a build
// container.
type Compiler struct {
	ctr *Container
}

// Creates a compiler backed by the given container.
//
// The container must have the workspace root, the cache staging directory,
// the output directory, and the toolchain install root bind-mounted, since
// build commands address them by host path.
func NewCompiler(ctr *Container) *Compiler {
	return &Compiler{ctr: ctr}
}

// Runs the module's build command in its source root.
//
// The module's explicit build command is used when declared; otherwise the
// pinned compiler is invoked with the standard target/output arguments. The
// toolchain bindings and the target, output, and dependency-layer paths are
// passed through the command environment.
func (c *Compiler) Compile(ctx context.Context, module workspace.Module, env *toolchain.Environment, depsDir, outDir string) error {
	command, err := buildCommand(module, env, depsDir, outDir)
	if err != nil {
		return err
	}

	environ := append(env.Environ(),
		envTarget+"="+env.Triple(),
		envOutput+"="+outDir,
	)
	if depsDir != "" {
		environ = append(environ, envDeps+"="+depsDir)
	}

	slog.Debug("exec build command", "module", module.Name, "command", command)

	result, err := c.ctr.Exec(ctx, command, environ, module.SourceRoot)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("exit code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	return nil
}

// Returns the shell command that compiles the module.
func buildCommand(module workspace.Module, env *toolchain.Environment, depsDir, outDir string) (string, error) {
	if module.Build != "" {
		return module.Build, nil
	}

	tool, ok := env.Tool(toolchain.ComponentCompiler)
	if !ok {
		return "", fmt.Errorf("no compiler component provisioned for module %s", module.Name)
	}

	command := fmt.Sprintf("%s build --target %s --out %s", tool.Path, env.Triple(), outDir)
	if depsDir != "" {
		command += " --deps " + depsDir
	}
	return command, nil
}
