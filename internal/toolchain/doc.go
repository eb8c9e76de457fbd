// Package toolchain provisions the pinned cross-compilation toolchain.
//
// A [Provisioner] installs each required component (compiler, linker,
// code-generation backend, protocol compiler) into a version-addressed
// install root, so provisioning an unchanged host is a no-op. Components are
// installed concurrently and the provisioner join-waits on all of them
// before producing an [Environment].
//
// Every installed binary is verified to report its pinned version string
// before the environment is returned. A drifting toolchain would silently
// invalidate the semantic correctness of cached dependency layers even when
// the declared fingerprint matches, so a mismatch is a hard failure rather
// than a warning.
//
// The resulting [Environment] is immutable and read-only to later build
// stages. Its entries are exposed to the compile step as environment
// bindings (XFORGE_TOOL_<COMPONENT>=<install-path>).
package toolchain
