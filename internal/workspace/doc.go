// Package workspace loads and validates the build workspace.
//
// A workspace is a directory tree containing one workspace manifest and any
// number of module manifests, all written in HCL. Loading produces an
// immutable [Descriptor]: the set of modules with their declared dependencies
// and source roots, plus the runtime settings used when packaging the final
// image.
//
// The descriptor is also the input to dependency fingerprinting. The
// fingerprint covers declared dependency entries only, never module source
// contents, so dependency compilation can be cached independently of
// application-code edits.
//
// Example usage:
//
//	ws, err := workspace.Load("path/to/workspace")
//	if err != nil {
//	    return err
//	}
//
//	if err := ws.Validate(); err != nil {
//	    return err
//	}
//
//	fp := ws.Fingerprint()
package workspace
