package workspace

import (
	"bytes"
	"sort"

	"github.com/opencontainers/go-digest"
)

// Version prefix of the canonical fingerprint encoding. Bumping it
// invalidates every published cache layer, which is the intended effect of
// changing the encoding.
const fingerprintFormat = "xforge/fingerprint/v1\n"

// Computes the dependency fingerprint of the workspace.
//
// The fingerprint hashes declared dependency entries only: for every module,
// each (dependency name, version constraint) pair, tagged with the module
// name. Entries are sorted by (module name, dependency name) so the result
// is independent of manifest file layout and block order. Module source
// contents never enter the hash; editing application code leaves the
// fingerprint unchanged, which is what allows the dependency cache layer to
// be reused across application iterations.
//
// A workspace with no dependency entries produces the fixed digest of the
// bare format prefix.
func (d *Descriptor) Fingerprint() digest.Digest {
	type entry struct {
		module, dep, version string
	}

	var entries []entry
	for _, m := range d.Modules {
		for _, dep := range m.Dependencies {
			entries = append(entries, entry{m.Name, dep.Name, dep.Version})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].module != entries[j].module {
			return entries[i].module < entries[j].module
		}
		return entries[i].dep < entries[j].dep
	})

	var buf bytes.Buffer
	buf.WriteString(fingerprintFormat)
	for _, e := range entries {
		// NUL separators keep "ab"+"c" and "a"+"bc" from colliding.
		buf.WriteString(e.module)
		buf.WriteByte(0)
		buf.WriteString(e.dep)
		buf.WriteByte(0)
		buf.WriteString(e.version)
		buf.WriteByte('\n')
	}

	return digest.FromBytes(buf.Bytes())
}
