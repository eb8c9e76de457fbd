package toolchain

import "errors"

var (
	ErrProvisioning    = errors.New("toolchain provisioning failed")
	ErrVersionMismatch = errors.New("toolchain version mismatch")
)
