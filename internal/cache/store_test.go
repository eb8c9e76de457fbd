package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
)

func testKey(s string) Key {
	return Key{
		Triple:      "linux/arm64",
		Fingerprint: digest.FromString(s),
	}
}

func TestLookupMiss(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	_, ok, err := store.Lookup(testKey("deps"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatal("lookup hit in an empty store")
	}
}

func TestPublishAndLookup(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	key := testKey("deps")

	staging, err := store.Begin(key)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(staging.Dir, "libA.a"), []byte("artifact"), 0644); err != nil {
		t.Fatal(err)
	}

	layer, err := staging.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	found, ok, err := store.Lookup(key)
	if err != nil || !ok {
		t.Fatalf("Lookup after commit: ok=%v err=%v", ok, err)
	}
	if found.Path != layer.Path {
		t.Fatalf("path = %q, want %q", found.Path, layer.Path)
	}

	b, err := os.ReadFile(filepath.Join(found.Path, "libA.a"))
	if err != nil || string(b) != "artifact" {
		t.Fatalf("artifact content = %q, err = %v", b, err)
	}
}

func TestStagingInvisibleUntilCommit(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	key := testKey("deps")

	staging, err := store.Begin(key)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer staging.Discard()

	if err := os.WriteFile(filepath.Join(staging.Dir, "partial"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	// A build interrupted mid-population leaves only the staging directory.
	// The key must still read as a miss.
	if _, ok, err := store.Lookup(key); err != nil || ok {
		t.Fatalf("partial staging visible as layer: ok=%v err=%v", ok, err)
	}
}

func TestDiscardRemovesStaging(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	staging, err := store.Begin(testKey("deps"))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	staging.Discard()

	if _, err := os.Stat(staging.Dir); !os.IsNotExist(err) {
		t.Fatalf("staging dir still present after discard: %v", err)
	}
}

func TestCommitFirstWriterWins(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	key := testKey("deps")

	first, err := store.Begin(key)
	if err != nil {
		t.Fatalf("Begin first: %v", err)
	}
	second, err := store.Begin(key)
	if err != nil {
		t.Fatalf("Begin second: %v", err)
	}

	if err := os.WriteFile(filepath.Join(first.Dir, "marker"), []byte("first"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(second.Dir, "marker"), []byte("second"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := first.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	layer, err := second.Commit()
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(layer.Path, "marker"))
	if err != nil || string(b) != "first" {
		t.Fatalf("marker = %q, err = %v; first writer should win", b, err)
	}

	// The loser's staging directory must not linger.
	if _, err := os.Stat(second.Dir); !os.IsNotExist(err) {
		t.Fatalf("losing staging dir still present: %v", err)
	}
}

func TestDistinctKeysCoexist(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	k1 := testKey("v1.0")
	k2 := testKey("v1.1")

	for _, key := range []Key{k1, k2} {
		staging, err := store.Begin(key)
		if err != nil {
			t.Fatalf("Begin %s: %v", key, err)
		}
		if _, err := staging.Commit(); err != nil {
			t.Fatalf("Commit %s: %v", key, err)
		}
	}

	// Publishing under a new fingerprint leaves the old layer retrievable.
	for _, key := range []Key{k1, k2} {
		if _, ok, err := store.Lookup(key); err != nil || !ok {
			t.Fatalf("Lookup %s: ok=%v err=%v", key, ok, err)
		}
	}
}

func TestRemove(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	key := testKey("deps")

	staging, err := store.Begin(key)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := staging.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := store.Remove(key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := store.Lookup(key); ok {
		t.Fatal("layer still present after Remove")
	}
}

func TestLookupRejectsInvalidFingerprint(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	_, _, err = store.Lookup(Key{Triple: "linux/amd64", Fingerprint: "not-a-digest"})
	if !errors.Is(err, ErrStore) {
		t.Fatalf("err = %v, want ErrStore", err)
	}
}
