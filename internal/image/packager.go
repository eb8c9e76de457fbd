package image

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/containerd/platforms"
	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/thunggis/xforge/internal/paths"
	"github.com/thunggis/xforge/internal/workspace"
)

// Controls bundle assembly.
type Options struct {
	Name             string            // Workspace name, used for the config directory and image ref.
	Triple           string            // Target platform triple (e.g., "linux/arm64").
	Binaries         []string          // Host paths of the compiled application binaries.
	ConfigDir        string            // Host path of the static configuration tree. Empty means none.
	SupervisorBinary string            // Host path of the init-supervisor binary to embed. Empty means the base path is assumed present.
	Runtime          workspace.Runtime // Execution identity, ports, and supervisor path.
	Output           string            // Directory to create the OCI layout at.
}

// The packaged runtime artifact.
type Bundle struct {
	Output     string        // Directory containing the OCI image layout.
	Digest     digest.Digest // Digest of the image manifest.
	Entrypoint []string      // Full process-1 argument vector recorded in the image config.
}

// Shared state for one packaging run.
type packaging struct {
	opts     Options
	platform ocispec.Platform
	dir      string // Temporary layout directory, renamed to Output on success.
}

// Produces the runtime artifact bundle from the compiled binaries and static
// configuration.
//
// Missing inputs are a fatal [ErrPackaging]; a failed run never leaves a
// bundle directory at the output path.
func Package(opts Options) (*Bundle, error) {
	if err := validate(opts); err != nil {
		return nil, err
	}

	p, err := platforms.Parse(opts.Triple)
	if err != nil {
		return nil, fmt.Errorf("%w: target triple %q: %w", ErrPackaging, opts.Triple, err)
	}

	parent := filepath.Dir(opts.Output)
	if err := os.MkdirAll(parent, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	dir, err := os.MkdirTemp(parent, ".bundle-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	pk := &packaging{
		opts: opts,
		platform: ocispec.Platform{
			OS:           p.OS,
			Architecture: p.Architecture,
			Variant:      p.Variant,
		},
		dir: dir,
	}

	bundle, err := pk.assemble()
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	return bundle, nil
}

// Checks that every referenced input exists before any output is written.
func validate(opts Options) error {
	if len(opts.Binaries) == 0 {
		return fmt.Errorf("%w: no binaries to package", ErrPackaging)
	}
	for _, binary := range opts.Binaries {
		info, err := os.Stat(binary)
		if err != nil {
			return fmt.Errorf("%w: missing binary %s", ErrPackaging, binary)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: binary path %s is a directory", ErrPackaging, binary)
		}
	}
	if opts.ConfigDir != "" {
		if info, err := os.Stat(opts.ConfigDir); err != nil || !info.IsDir() {
			return fmt.Errorf("%w: missing configuration directory %s", ErrPackaging, opts.ConfigDir)
		}
	}
	if opts.SupervisorBinary != "" {
		if _, err := os.Stat(opts.SupervisorBinary); err != nil {
			return fmt.Errorf("%w: missing init-supervisor binary %s", ErrPackaging, opts.SupervisorBinary)
		}
	}
	if opts.Runtime.Supervisor == "" {
		return fmt.Errorf("%w: no init-supervisor path configured", ErrPackaging)
	}
	return nil
}

// Builds the OCI layout in the temporary directory and publishes it to the
// output path with a final rename.
func (p *packaging) assemble() (*Bundle, error) {
	if err := os.MkdirAll(p.blobDir(), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	layer, err := p.writeLayerBlob()
	if err != nil {
		return nil, fmt.Errorf("%w: assembling rootfs layer: %w", ErrPackaging, err)
	}

	entrypoint := p.entrypoint()

	configDesc, err := p.writeConfigBlob(layer, entrypoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	manifestDesc, err := p.writeManifestBlob(configDesc, layer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	if err := p.writeLayoutFiles(manifestDesc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	os.RemoveAll(p.opts.Output)
	if err := os.Rename(p.dir, p.opts.Output); err != nil {
		return nil, fmt.Errorf("%w: publishing bundle: %w", ErrPackaging, err)
	}

	slog.Info("bundle packaged",
		"output", p.opts.Output,
		"digest", manifestDesc.Digest,
		"user", fmt.Sprintf("%d", p.opts.Runtime.UID),
	)

	return &Bundle{
		Output:     p.opts.Output,
		Digest:     manifestDesc.Digest,
		Entrypoint: entrypoint,
	}, nil
}

// Returns the process-1 argument vector: the init-supervisor execs the
// first application binary as its child so orphans and signals are reaped
// correctly.
func (p *packaging) entrypoint() []string {
	appPath := "/" + path.Join(binDir, filepath.Base(p.opts.Binaries[0]))
	return []string{p.opts.Runtime.Supervisor, "--", appPath}
}

// Streams the rootfs tar into the blob store, returning its descriptor.
//
// The layer is stored uncompressed, so the blob digest doubles as the
// config's rootfs diff ID.
func (p *packaging) writeLayerBlob() (ocispec.Descriptor, error) {
	tmp, err := os.CreateTemp(p.blobDir(), ".layer-")
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	defer os.Remove(tmp.Name())

	digester := digest.Canonical.Digester()
	tw := tar.NewWriter(io.MultiWriter(tmp, digester.Hash()))

	if err := p.writeRootfs(tw); err != nil {
		tmp.Close()
		return ocispec.Descriptor{}, err
	}
	if err := tw.Close(); err != nil {
		tmp.Close()
		return ocispec.Descriptor{}, err
	}

	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return ocispec.Descriptor{}, err
	}
	if err := tmp.Close(); err != nil {
		return ocispec.Descriptor{}, err
	}

	desc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageLayer,
		Digest:    digester.Digest(),
		Size:      info.Size(),
	}

	if err := os.Rename(tmp.Name(), p.blobPath(desc.Digest)); err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// Writes the image config blob: platform, non-root user, entrypoint, ports.
func (p *packaging) writeConfigBlob(layer ocispec.Descriptor, entrypoint []string) (ocispec.Descriptor, error) {
	rt := p.opts.Runtime

	exposed := make(map[string]struct{}, len(rt.Ports))
	for _, port := range rt.Ports {
		exposed[fmt.Sprintf("%d/tcp", port)] = struct{}{}
	}

	config := ocispec.Image{
		Platform: p.platform,
		Config: ocispec.ImageConfig{
			User:         fmt.Sprintf("%d:%d", rt.UID, rt.UID),
			Entrypoint:   entrypoint,
			ExposedPorts: exposed,
			WorkingDir:   "/home/" + rt.User,
		},
		RootFS: ocispec.RootFS{
			Type:    "layers",
			DiffIDs: []digest.Digest{layer.Digest},
		},
	}

	return p.writeJSONBlob(ocispec.MediaTypeImageConfig, config)
}

// Writes the image manifest blob referencing the config and the layer.
func (p *packaging) writeManifestBlob(config, layer ocispec.Descriptor) (ocispec.Descriptor, error) {
	manifest := ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    config,
		Layers:    []ocispec.Descriptor{layer},
	}
	return p.writeJSONBlob(ocispec.MediaTypeImageManifest, manifest)
}

// Writes the oci-layout marker and the index referencing the manifest.
func (p *packaging) writeLayoutFiles(manifest ocispec.Descriptor) error {
	layout := ocispec.ImageLayout{Version: ocispec.ImageLayoutVersion}
	b, err := json.Marshal(layout)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(p.dir, ocispec.ImageLayoutFile), b, paths.DefaultFileMode); err != nil {
		return err
	}

	manifest.Platform = &p.platform
	manifest.Annotations = map[string]string{
		ocispec.AnnotationRefName: p.opts.Name + ":latest",
	}

	index := ocispec.Index{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageIndex,
		Manifests: []ocispec.Descriptor{manifest},
	}
	b, err = json.Marshal(index)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.dir, "index.json"), b, paths.DefaultFileMode)
}

// Serializes a value and stores it as a digested blob.
func (p *packaging) writeJSONBlob(mediaType string, v any) (ocispec.Descriptor, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	desc := ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(b),
		Size:      int64(len(b)),
	}

	if err := os.WriteFile(p.blobPath(desc.Digest), b, paths.DefaultFileMode); err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// Returns the blob directory for the canonical algorithm.
func (p *packaging) blobDir() string {
	return filepath.Join(p.dir, "blobs", digest.Canonical.String())
}

// Returns the path a blob with the given digest is stored at.
func (p *packaging) blobPath(d digest.Digest) string {
	return filepath.Join(p.blobDir(), d.Encoded())
}
