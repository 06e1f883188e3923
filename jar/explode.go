package jar

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bibin-skaria/jarbuild/internal/errors"
)

// Explode extracts the archive into destDir. Extracted files keep the
// archive entry's recorded modification time, so an unchanged artifact
// produces identically-timestamped files on every build and the content
// cache stays warm.
func Explode(artifactPath, destDir string) error {
	reader, err := zip.OpenReader(artifactPath)
	if err != nil {
		return errors.Wrap(errors.CategoryArchive, "explode",
			"cannot open archive "+artifactPath, err).WithCode(errors.CodeArchiveRead)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrap(errors.CategoryFilesystem, "explode",
			"cannot create "+destDir, err)
	}

	for _, f := range reader.File {
		name := sanitizeEntryName(f.Name)
		if name == "" {
			continue
		}
		target := filepath.Join(destDir, filepath.FromSlash(name))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrap(errors.CategoryFilesystem, "explode",
					"cannot create directory "+target, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(errors.CategoryFilesystem, "explode",
			"cannot create directory for "+target, err)
	}
	rc, err := f.Open()
	if err != nil {
		return errors.Wrap(errors.CategoryArchive, "explode",
			"cannot read entry "+f.Name, err).WithCode(errors.CodeArchiveRead)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(errors.CategoryFilesystem, "explode",
			"cannot create "+target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return errors.Wrap(errors.CategoryArchive, "explode",
			"cannot extract entry "+f.Name, err).WithCode(errors.CodeArchiveRead)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(errors.CategoryFilesystem, "explode",
			"cannot write "+target, err)
	}
	mod := f.Modified
	if !mod.IsZero() {
		if err := os.Chtimes(target, mod, mod); err != nil {
			return errors.Wrap(errors.CategoryFilesystem, "explode",
				"cannot set timestamp on "+target, err)
		}
	}
	return nil
}

// sanitizeEntryName normalizes an archive entry path: forward slashes, no
// leading separator, no escape from the extraction root.
func sanitizeEntryName(name string) string {
	name = strings.TrimLeft(filepath.ToSlash(name), "/")
	parts := strings.Split(name, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	return strings.Join(stack, "/")
}
