package image

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// In-image directory holding the application binaries.
const binDir = "usr/local/bin"

// Fixed modification time for every layer entry. Rebuilding an unchanged
// workspace must produce byte-identical layers, so wall-clock time never
// enters the archive.
var epoch = time.Unix(0, 0)

// Writes the complete runtime root filesystem into the tar writer.
func (p *packaging) writeRootfs(tw *tar.Writer) error {
	rt := p.opts.Runtime

	home := path.Join("home", rt.User)
	for _, dir := range []string{"etc", "sbin", "usr", "usr/local", binDir} {
		if err := writeDir(tw, dir, 0, 0); err != nil {
			return err
		}
	}
	if err := writeDir(tw, home, rt.UID, rt.UID); err != nil {
		return err
	}

	if err := p.writeIdentity(tw); err != nil {
		return err
	}

	for _, binary := range p.opts.Binaries {
		dest := path.Join(binDir, filepath.Base(binary))
		if err := writeHostFile(tw, binary, dest, 0755); err != nil {
			return err
		}
	}

	if p.opts.SupervisorBinary != "" {
		dest := strings.TrimPrefix(rt.Supervisor, "/")
		if err := writeHostFile(tw, p.opts.SupervisorBinary, dest, 0755); err != nil {
			return err
		}
	}

	if p.opts.ConfigDir != "" {
		if err := p.writeConfigTree(tw); err != nil {
			return err
		}
	}

	return nil
}

// Writes /etc/passwd and /etc/group defining the fixed-uid execution
// identity. The uid is stable across rebuilds so ownership of mounted
// volumes stays consistent.
func (p *packaging) writeIdentity(tw *tar.Writer) error {
	rt := p.opts.Runtime

	passwd := fmt.Sprintf(
		"root:x:0:0:root:/root:/sbin/nologin\n%s:x:%d:%d:%s:/home/%s:/sbin/nologin\n",
		rt.User, rt.UID, rt.UID, rt.User, rt.User,
	)
	group := fmt.Sprintf("root:x:0:\n%s:x:%d:\n", rt.User, rt.UID)

	if err := writeContent(tw, "etc/passwd", []byte(passwd), 0644); err != nil {
		return err
	}
	return writeContent(tw, "etc/group", []byte(group), 0644)
}

// Copies the static configuration tree into /etc/<workspace-name>.
func (p *packaging) writeConfigTree(tw *tar.Writer) error {
	prefix := path.Join("etc", p.opts.Name)

	return filepath.WalkDir(p.opts.ConfigDir, func(hostPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(p.opts.ConfigDir, hostPath)
		if err != nil {
			return err
		}
		dest := path.Join(prefix, filepath.ToSlash(rel))

		if d.IsDir() {
			return writeDir(tw, dest, 0, 0)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return writeHostFile(tw, hostPath, dest, info.Mode().Perm())
	})
}

// Writes a directory entry owned by the given uid/gid.
func writeDir(tw *tar.Writer, name string, uid, gid int) error {
	return tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name + "/",
		Mode:     0755,
		Uid:      uid,
		Gid:      gid,
		ModTime:  epoch,
	})
}

// Writes a file entry with the given literal content.
func writeContent(tw *tar.Writer, name string, content []byte, mode int64) error {
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     mode,
		Size:     int64(len(content)),
		ModTime:  epoch,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

// Streams a host file into the archive at the given in-image path.
func writeHostFile(tw *tar.Writer, hostPath, name string, mode os.FileMode) error {
	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(mode),
		Size:     info.Size(),
		ModTime:  epoch,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tw, f)
	return err
}
