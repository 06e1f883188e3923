package jar

import (
	"archive/zip"
	"bufio"
	"strings"

	"github.com/bibin-skaria/jarbuild/internal/errors"
)

// Manifest holds the main-section attributes this build cares about.
type Manifest struct {
	MainClass string
	ClassPath []string
}

// readManifest parses META-INF/MANIFEST.MF if the archive carries one.
// A missing manifest is not an error; absence of attributes is decided by
// the pipeline, not here.
func readManifest(reader *zip.Reader) (*Manifest, error) {
	for _, f := range reader.File {
		if f.Name != manifestPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(errors.CategoryArchive, "manifest",
				"cannot read "+manifestPath, err).WithCode(errors.CodeArchiveRead)
		}
		defer rc.Close()

		attrs := parseMainSection(bufio.NewScanner(rc))
		m := &Manifest{MainClass: attrs["Main-Class"]}
		if cp := attrs["Class-Path"]; cp != "" {
			m.ClassPath = strings.Fields(cp)
		}
		return m, nil
	}
	return nil, nil
}

// parseMainSection reads attributes up to the first blank line. Manifest
// values wrap at 72 bytes: a line starting with a single space continues the
// previous value.
func parseMainSection(scanner *bufio.Scanner) map[string]string {
	attrs := make(map[string]string)
	var lastKey string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, " ") {
			if lastKey != "" {
				attrs[lastKey] += strings.TrimPrefix(line, " ")
			}
			continue
		}
		idx := strings.Index(line, ": ")
		if idx < 0 {
			continue
		}
		lastKey = line[:idx]
		attrs[lastKey] = line[idx+2:]
	}
	return attrs
}
