package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
)

const (

	// Prefix of staging directories awaiting publication. Directories with
	// this prefix are never visible to Lookup.
	stagingPrefix = ".staging-"

	// Permission mode for store directories.
	dirMode os.FileMode = 0755
)

// Addresses one cache layer: the normalized target triple plus the
// dependency fingerprint of the workspace.
type Key struct {
	Triple      string        // Target platform triple (e.g., "linux/amd64").
	Fingerprint digest.Digest // Dependency fingerprint from the workspace.
}

// Returns the key as a human-readable identifier.
func (k Key) String() string {
	return k.tripleSlug() + "/" + k.Fingerprint.Encoded()
}

// Converts the triple to a filesystem-safe path segment.
func (k Key) tripleSlug() string {
	return strings.ReplaceAll(k.Triple, "/", "-")
}

// A published, reusable set of compiled dependency artifacts.
type Layer struct {
	Key  Key    // Key the layer was published under.
	Path string // Directory holding the artifacts. Read-only to consumers.
}

// A key-addressed layer store rooted at a shared on-disk directory.
type Store struct {
	root string
}

// Opens (creating if necessary) a store rooted at the given directory.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, dirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return &Store{root: root}, nil
}

// Returns the directory a layer for key lives at once published.
//
// The layout is <root>/<triple>/<fingerprint>, with the triple slugged for
// filesystem safety.
func (s *Store) layerPath(key Key) string {
	return filepath.Join(s.root, key.tripleSlug(), key.Fingerprint.Encoded())
}

// Looks up a published layer by key.
//
// Returns the layer and true on an exact match. A missing directory is a
// miss, not an error; staging directories are never observed because they
// live under staging names until Commit renames them into place.
func (s *Store) Lookup(key Key) (*Layer, bool, error) {
	if err := key.Fingerprint.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: invalid fingerprint: %w", ErrStore, err)
	}

	path := s.layerPath(key)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if !info.IsDir() {
		return nil, false, fmt.Errorf("%w: %s exists but is not a directory", ErrStore, path)
	}

	return &Layer{Key: key, Path: path}, true, nil
}

// Begins populating a new layer for key.
//
// The returned staging directory lives on the same filesystem as the final
// layer path so that Commit can publish it with a single rename. Callers
// must either Commit or Discard the staging.
func (s *Store) Begin(key Key) (*Staging, error) {
	if err := key.Fingerprint.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid fingerprint: %w", ErrStore, err)
	}

	parent := filepath.Join(s.root, key.tripleSlug())
	if err := os.MkdirAll(parent, dirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	dir, err := os.MkdirTemp(parent, stagingPrefix+key.Fingerprint.Encoded()+"-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	return &Staging{store: s, key: key, Dir: dir}, nil
}

// Removes a published layer, if present.
func (s *Store) Remove(key Key) error {
	if err := os.RemoveAll(s.layerPath(key)); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return nil
}

// An in-progress layer population, invisible to Lookup until committed.
type Staging struct {
	Dir string // Directory to write artifacts into.

	store     *Store
	key       Key
	committed bool
}

// Publishes the staged artifacts under the staging's key.
//
// Publication is a single rename, so a layer is either fully present or
// absent. If another build published the same key first, the staged copy is
// discarded and the winner's layer is returned; the artifacts are equivalent
// by construction since the key covers every compilation input.
func (st *Staging) Commit() (*Layer, error) {
	target := st.store.layerPath(st.key)

	err := os.Rename(st.Dir, target)
	if err == nil {
		st.committed = true
		slog.Debug("cache layer published", "key", st.key.String())
		return &Layer{Key: st.key, Path: target}, nil
	}

	// Rename onto an existing directory fails; if the layer now exists,
	// another build won the race.
	if layer, ok, lookupErr := st.store.Lookup(st.key); lookupErr == nil && ok {
		st.Discard()
		slog.Debug("cache layer already published, reusing", "key", st.key.String())
		return layer, nil
	}

	return nil, fmt.Errorf("%w: publishing %s: %w", ErrStore, st.key.String(), err)
}

// Removes the staging directory without publishing.
//
// Safe to call after Commit, where it is a no-op.
func (st *Staging) Discard() {
	if st.committed {
		return
	}
	if err := os.RemoveAll(st.Dir); err != nil {
		slog.Warn("failed to remove staging directory", "dir", st.Dir, "error", err)
	}
}
