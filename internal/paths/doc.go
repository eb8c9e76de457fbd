// Package paths resolves the on-disk locations used by xforge.
//
// All defaults follow the XDG base directory specification. The cache root
// holds published dependency layers, the install root holds pinned toolchain
// components, and the run directory holds transient build state such as cache
// staging directories.
package paths
