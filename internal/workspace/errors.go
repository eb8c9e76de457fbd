package workspace

import "errors"

var (
	ErrManifest   = errors.New("manifest error")
	ErrValidation = errors.New("workspace validation failed")
)
