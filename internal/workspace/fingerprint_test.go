package workspace

import "testing"

func deps(pairs ...[2]string) []Dependency {
	var out []Dependency
	for _, p := range pairs {
		out = append(out, Dependency{Name: p[0], Version: p[1]})
	}
	return out
}

func TestFingerprintIgnoresApplicationSource(t *testing.T) {
	w1 := &Descriptor{
		Name: "ws",
		Modules: []Module{
			{Name: "core", Kind: KindApplication, SourceRoot: "/src/core", Dependencies: deps([2]string{"libA", "1.0"})},
		},
	}
	w2 := &Descriptor{
		Name: "ws",
		Modules: []Module{
			{Name: "core", Kind: KindApplication, SourceRoot: "/elsewhere/core-edited", Dependencies: deps([2]string{"libA", "1.0"})},
		},
	}

	if w1.Fingerprint() != w2.Fingerprint() {
		t.Fatalf("fingerprint differs for identical dependency manifests: %s vs %s", w1.Fingerprint(), w2.Fingerprint())
	}
}

func TestFingerprintChangesOnVersionBump(t *testing.T) {
	base := &Descriptor{
		Modules: []Module{
			{Name: "core", Dependencies: deps([2]string{"libA", "1.0"})},
		},
	}
	bumped := &Descriptor{
		Modules: []Module{
			{Name: "core", Dependencies: deps([2]string{"libA", "1.1"})},
		},
	}

	if base.Fingerprint() == bumped.Fingerprint() {
		t.Fatalf("fingerprint unchanged after version bump: %s", base.Fingerprint())
	}
}

func TestFingerprintChangesOnAddedDependency(t *testing.T) {
	base := &Descriptor{
		Modules: []Module{
			{Name: "core", Dependencies: deps([2]string{"libA", "1.0"})},
		},
	}
	extended := &Descriptor{
		Modules: []Module{
			{Name: "core", Dependencies: deps([2]string{"libA", "1.0"}, [2]string{"libB", "2.3"})},
		},
	}

	if base.Fingerprint() == extended.Fingerprint() {
		t.Fatal("fingerprint unchanged after adding a dependency")
	}
}

func TestFingerprintOrderIndependence(t *testing.T) {
	w1 := &Descriptor{
		Modules: []Module{
			{Name: "alpha", Dependencies: deps([2]string{"libA", "1.0"}, [2]string{"libB", "2.0"})},
			{Name: "beta", Dependencies: deps([2]string{"libC", "3.0"})},
		},
	}
	w2 := &Descriptor{
		Modules: []Module{
			{Name: "beta", Dependencies: deps([2]string{"libC", "3.0"})},
			{Name: "alpha", Dependencies: deps([2]string{"libB", "2.0"}, [2]string{"libA", "1.0"})},
		},
	}

	if w1.Fingerprint() != w2.Fingerprint() {
		t.Fatalf("fingerprint depends on declaration order: %s vs %s", w1.Fingerprint(), w2.Fingerprint())
	}
}

func TestFingerprintSeparatorsPreventCollisions(t *testing.T) {
	w1 := &Descriptor{
		Modules: []Module{{Name: "ab", Dependencies: deps([2]string{"c", "1"})}},
	}
	w2 := &Descriptor{
		Modules: []Module{{Name: "a", Dependencies: deps([2]string{"bc", "1"})}},
	}

	if w1.Fingerprint() == w2.Fingerprint() {
		t.Fatal("fingerprint collides across entry boundaries")
	}
}

func TestFingerprintEmptyWorkspace(t *testing.T) {
	empty := &Descriptor{Name: "empty"}

	fp := empty.Fingerprint()
	if fp == "" {
		t.Fatal("empty workspace produced empty fingerprint")
	}
	if err := fp.Validate(); err != nil {
		t.Fatalf("empty workspace fingerprint is not a valid digest: %v", err)
	}
	if fp != empty.Fingerprint() {
		t.Fatal("empty workspace fingerprint is not stable")
	}
}
