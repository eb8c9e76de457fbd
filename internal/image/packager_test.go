package image

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/thunggis/xforge/internal/workspace"
)

func testRuntime() workspace.Runtime {
	return workspace.Runtime{
		UID:        2000,
		User:       "sequencer",
		Ports:      []int{8080},
		Supervisor: "/sbin/init-super",
	}
}

// Writes a fake compiled binary and returns its path.
func fakeBinary(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("\x7fELF fake"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOptions(t *testing.T) Options {
	t.Helper()

	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, "node.toml"), []byte("port = 8080\n"), 0644); err != nil {
		t.Fatal(err)
	}

	return Options{
		Name:             "sequencer",
		Triple:           "linux/arm64",
		Binaries:         []string{fakeBinary(t, "sequencer-node")},
		ConfigDir:        configDir,
		SupervisorBinary: fakeBinary(t, "init-super"),
		Runtime:          testRuntime(),
		Output:           filepath.Join(t.TempDir(), "bundle"),
	}
}

// Reads a JSON blob from the bundle's blob store.
func readBlob(t *testing.T, bundle string, desc ocispec.Descriptor, v any) {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(bundle, "blobs", "sha256", desc.Digest.Encoded()))
	if err != nil {
		t.Fatalf("reading blob %s: %v", desc.Digest, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decoding blob %s: %v", desc.Digest, err)
	}
}

// Loads the single manifest referenced by the bundle's index.
func readManifest(t *testing.T, bundle string) ocispec.Manifest {
	t.Helper()

	b, err := os.ReadFile(filepath.Join(bundle, "index.json"))
	if err != nil {
		t.Fatalf("reading index: %v", err)
	}
	var index ocispec.Index
	if err := json.Unmarshal(b, &index); err != nil {
		t.Fatalf("decoding index: %v", err)
	}
	if len(index.Manifests) != 1 {
		t.Fatalf("index has %d manifests, want 1", len(index.Manifests))
	}

	var manifest ocispec.Manifest
	readBlob(t, bundle, index.Manifests[0], &manifest)
	return manifest
}

func TestPackage(t *testing.T) {
	opts := testOptions(t)

	bundle, err := Package(opts)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	if _, err := os.Stat(filepath.Join(bundle.Output, ocispec.ImageLayoutFile)); err != nil {
		t.Fatalf("missing oci-layout: %v", err)
	}

	manifest := readManifest(t, bundle.Output)
	if len(manifest.Layers) != 1 {
		t.Fatalf("manifest has %d layers, want 1", len(manifest.Layers))
	}

	var config ocispec.Image
	readBlob(t, bundle.Output, manifest.Config, &config)

	if config.Config.User != "2000:2000" {
		t.Fatalf("user = %q, want 2000:2000", config.Config.User)
	}
	wantEntry := []string{"/sbin/init-super", "--", "/usr/local/bin/sequencer-node"}
	if len(config.Config.Entrypoint) != 3 {
		t.Fatalf("entrypoint = %v", config.Config.Entrypoint)
	}
	for i, arg := range wantEntry {
		if config.Config.Entrypoint[i] != arg {
			t.Fatalf("entrypoint = %v, want %v", config.Config.Entrypoint, wantEntry)
		}
	}
	if _, ok := config.Config.ExposedPorts["8080/tcp"]; !ok {
		t.Fatalf("exposed ports = %v, want 8080/tcp", config.Config.ExposedPorts)
	}
	if config.Architecture != "arm64" || config.OS != "linux" {
		t.Fatalf("platform = %s/%s, want linux/arm64", config.OS, config.Architecture)
	}
	if len(config.RootFS.DiffIDs) != 1 || config.RootFS.DiffIDs[0] != manifest.Layers[0].Digest {
		t.Fatalf("diff IDs %v do not match uncompressed layer %s", config.RootFS.DiffIDs, manifest.Layers[0].Digest)
	}
}

func TestPackageRootfsContents(t *testing.T) {
	opts := testOptions(t)

	bundle, err := Package(opts)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	manifest := readManifest(t, bundle.Output)
	layer := filepath.Join(bundle.Output, "blobs", "sha256", manifest.Layers[0].Digest.Encoded())

	f, err := os.Open(layer)
	if err != nil {
		t.Fatalf("opening layer: %v", err)
	}
	defer f.Close()

	entries := make(map[string]*tar.Header)
	var passwd string

	tr := tar.NewReader(f)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading layer: %v", err)
		}
		entries[header.Name] = header

		if header.Name == "etc/passwd" {
			b, err := io.ReadAll(tr)
			if err != nil {
				t.Fatal(err)
			}
			passwd = string(b)
		}
	}

	for _, name := range []string{
		"usr/local/bin/sequencer-node",
		"sbin/init-super",
		"etc/passwd",
		"etc/group",
		"etc/sequencer/node.toml",
	} {
		if entries[name] == nil {
			t.Fatalf("layer missing %s", name)
		}
	}

	if !strings.Contains(passwd, "sequencer:x:2000:2000:") {
		t.Fatalf("passwd = %q, missing fixed-uid identity", passwd)
	}
	if home := entries["home/sequencer/"]; home == nil || home.Uid != 2000 {
		t.Fatalf("home dir entry = %+v, want owned by uid 2000", home)
	}
	if bin := entries["usr/local/bin/sequencer-node"]; bin.Mode&0111 == 0 {
		t.Fatalf("binary mode = %o, want executable", bin.Mode)
	}
}

func TestPackageDeterministic(t *testing.T) {
	opts := testOptions(t)

	first, err := Package(opts)
	if err != nil {
		t.Fatalf("first Package: %v", err)
	}

	opts.Output = filepath.Join(t.TempDir(), "bundle2")
	second, err := Package(opts)
	if err != nil {
		t.Fatalf("second Package: %v", err)
	}

	if first.Digest != second.Digest {
		t.Fatalf("digest drifted across identical runs: %s vs %s", first.Digest, second.Digest)
	}
}

func TestPackageMissingBinary(t *testing.T) {
	opts := testOptions(t)
	opts.Binaries = []string{filepath.Join(t.TempDir(), "never-built")}

	_, err := Package(opts)
	if !errors.Is(err, ErrPackaging) {
		t.Fatalf("err = %v, want ErrPackaging", err)
	}

	// No partial bundle directory may exist.
	if _, err := os.Stat(opts.Output); !os.IsNotExist(err) {
		t.Fatalf("bundle directory exists after failed packaging: %v", err)
	}
}

func TestPackageMissingConfigDir(t *testing.T) {
	opts := testOptions(t)
	opts.ConfigDir = filepath.Join(t.TempDir(), "gone")

	if _, err := Package(opts); !errors.Is(err, ErrPackaging) {
		t.Fatalf("err = %v, want ErrPackaging", err)
	}
}

func TestPackageNoBinaries(t *testing.T) {
	opts := testOptions(t)
	opts.Binaries = nil

	if _, err := Package(opts); !errors.Is(err, ErrPackaging) {
		t.Fatalf("err = %v, want ErrPackaging", err)
	}
}
