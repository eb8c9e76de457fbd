// Package image assembles the final runtime artifact bundle.
//
// The bundle is an OCI image layout built from scratch: a single layer
// holding the compiled binaries, static configuration, a passwd/group pair
// defining the fixed-uid non-root execution identity, and the
// init-supervisor the image uses as process 1. No build-time tooling enters
// the layer.
//
// The image config records the non-root user, the init-supervisor
// entrypoint with the application binary as its argument vector, and the
// declared service ports. Ports are metadata only; enforcement is a
// deployment-time concern.
//
// Packaging is atomic: the layout is assembled in a temporary directory and
// renamed to the output path only after every blob has been written, so a
// failed packaging run leaves no bundle directory behind.
package image
