package toolchain

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Prefix of the environment bindings exposed to the compile step.
const envPrefix = "XFORGE_TOOL_"

// An installed toolchain component: the pinned component plus its absolute
// install path.
type Tool struct {
	Component
	Path string // Absolute path of the installed executable.
}

// The immutable result of provisioning: a mapping from component name to
// installed tool for one target triple.
//
// An Environment is owned by the provisioner that produced it and read-only
// to every later stage.
type Environment struct {
	triple string
	tools  map[string]Tool
}

// Assembles an environment from installed tools.
//
// The tools map is copied; mutating the original afterwards does not affect
// the environment.
func NewEnvironment(triple string, tools map[string]Tool) *Environment {
	copied := make(map[string]Tool, len(tools))
	for name, tool := range tools {
		copied[name] = tool
	}
	return &Environment{triple: triple, tools: copied}
}

// Returns the target triple the environment was provisioned for.
func (e *Environment) Triple() string {
	return e.triple
}

// Looks up an installed tool by component name.
func (e *Environment) Tool(name string) (Tool, bool) {
	t, ok := e.tools[name]
	return t, ok
}

// Returns the component names in sorted order.
func (e *Environment) Components() []string {
	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Returns the environment bindings consumed by the compile step, one
// XFORGE_TOOL_<COMPONENT>=<install-path> entry per component, sorted.
func (e *Environment) Environ() []string {
	env := make([]string, 0, len(e.tools))
	for name, tool := range e.tools {
		env = append(env, envVarName(name)+"="+tool.Path)
	}
	sort.Strings(env)
	return env
}

// Checks that every tool path exists and is executable.
//
// Called after provisioning completes and again by the pipeline before the
// first compile stage runs.
func (e *Environment) Verify() error {
	for _, name := range e.Components() {
		tool := e.tools[name]

		info, err := os.Stat(tool.Path)
		if err != nil {
			return fmt.Errorf("%w: component %s: %w", ErrProvisioning, name, err)
		}
		if info.IsDir() || info.Mode()&0111 == 0 {
			return fmt.Errorf("%w: component %s: %s is not executable", ErrProvisioning, name, tool.Path)
		}
	}
	return nil
}

// Converts a component name to its environment variable name.
func envVarName(component string) string {
	name := strings.ToUpper(component)
	name = strings.ReplaceAll(name, "-", "_")
	return envPrefix + name
}
