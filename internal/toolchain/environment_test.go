package toolchain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testEnvironment(t *testing.T, mode os.FileMode) *Environment {
	t.Helper()
	dir := t.TempDir()

	bin := filepath.Join(dir, "compiler")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), mode); err != nil {
		t.Fatal(err)
	}

	return &Environment{
		triple: "linux/arm64",
		tools: map[string]Tool{
			ComponentCompiler: {
				Component: Component{Name: ComponentCompiler, Version: "1.78.0"},
				Path:      bin,
			},
		},
	}
}

func TestEnviron(t *testing.T) {
	env := testEnvironment(t, 0755)

	bindings := env.Environ()
	if len(bindings) != 1 {
		t.Fatalf("bindings = %v, want 1 entry", bindings)
	}

	tool, _ := env.Tool(ComponentCompiler)
	if want := "XFORGE_TOOL_COMPILER=" + tool.Path; bindings[0] != want {
		t.Fatalf("binding = %q, want %q", bindings[0], want)
	}
}

func TestEnvVarName(t *testing.T) {
	if got := envVarName("codegen-backend"); got != "XFORGE_TOOL_CODEGEN_BACKEND" {
		t.Fatalf("envVarName = %q", got)
	}
}

func TestVerify(t *testing.T) {
	if err := testEnvironment(t, 0755).Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyNotExecutable(t *testing.T) {
	env := testEnvironment(t, 0644)

	if err := env.Verify(); !errors.Is(err, ErrProvisioning) {
		t.Fatalf("err = %v, want ErrProvisioning", err)
	}
}

func TestVerifyMissingBinary(t *testing.T) {
	env := testEnvironment(t, 0755)
	tool := env.tools[ComponentCompiler]
	os.Remove(tool.Path)

	if err := env.Verify(); !errors.Is(err, ErrProvisioning) {
		t.Fatalf("err = %v, want ErrProvisioning", err)
	}
}
