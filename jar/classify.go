// Package jar inspects Java build artifacts (JAR and WAR archives): archive
// layout, bytecode level, and manifest-declared entrypoint and classpath.
package jar

import (
	"archive/zip"
	"encoding/binary"
	"io"
	"path"
	"strings"

	"github.com/bibin-skaria/jarbuild/internal/errors"
)

const (
	// frameworkMarker is the entry whose presence identifies a
	// framework-packaged (Spring Boot style) archive.
	frameworkMarker = "BOOT-INF/"

	manifestPath = "META-INF/MANIFEST.MF"

	classFileMagic = 0xCAFEBABE
)

// ArchiveKind distinguishes a flat classes+manifest JAR from one following a
// framework packaging convention (nested dependency JARs under a marker
// directory).
type ArchiveKind string

const (
	ArchiveKindStandard  ArchiveKind = "standard"
	ArchiveKindFramework ArchiveKind = "framework-packaged"
)

// Classification is the result of inspecting an artifact.
type Classification struct {
	ArchiveKind          ArchiveKind
	BytecodeMajorVersion int
	JavaVersion          int // 0 when the archive contains no class files
	MainClass            string
	ClassPath            []string
}

// Classify opens the archive at artifactPath and determines its kind,
// bytecode level, and declared manifest attributes.
func Classify(artifactPath string) (*Classification, error) {
	reader, err := zip.OpenReader(artifactPath)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryArchive, "classify",
			"cannot open archive "+artifactPath, err).WithCode(errors.CodeArchiveRead)
	}
	defer reader.Close()

	c := &Classification{ArchiveKind: ArchiveKindStandard}

	for _, f := range reader.File {
		if f.Name == frameworkMarker || strings.HasPrefix(f.Name, frameworkMarker) {
			c.ArchiveKind = ArchiveKindFramework
			break
		}
	}

	major, err := scanBytecodeVersion(&reader.Reader)
	if err != nil {
		return nil, err
	}
	c.BytecodeMajorVersion = major
	if major > 0 {
		// Published class-file version table: major 52 is Java 8,
		// major 61 is Java 17.
		c.JavaVersion = major - 45 + 1
	}

	manifest, err := readManifest(&reader.Reader)
	if err != nil {
		return nil, err
	}
	if manifest != nil {
		c.MainClass = manifest.MainClass
		c.ClassPath = manifest.ClassPath
	}

	return c, nil
}

// scanBytecodeVersion reads the class-file major version from the first
// ordinary .class entry. Returns 0 when the archive has no class entries;
// callers treat that as "unconstrained".
func scanBytecodeVersion(reader *zip.Reader) (int, error) {
	for _, f := range reader.File {
		if !strings.HasSuffix(f.Name, ".class") || path.Base(f.Name) == "module-info.class" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return 0, errors.Wrap(errors.CategoryArchive, "classify",
				"cannot read class entry "+f.Name, err).WithCode(errors.CodeArchiveRead)
		}
		header := make([]byte, 8)
		_, err = io.ReadFull(rc, header)
		rc.Close()
		if err != nil {
			return 0, errors.Wrap(errors.CategoryArchive, "classify",
				"class entry "+f.Name+" is truncated before its version fields", err).
				WithCode(errors.CodeMalformedClassFile)
		}
		if binary.BigEndian.Uint32(header[0:4]) != classFileMagic {
			return 0, errors.Newf(errors.CategoryArchive, "classify",
				"class entry %s does not start with the class-file magic number", f.Name).
				WithCode(errors.CodeMalformedClassFile)
		}
		return int(binary.BigEndian.Uint16(header[6:8])), nil
	}
	return 0, nil
}
