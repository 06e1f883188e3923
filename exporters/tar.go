// Package exporters turns resolved layers into tar blobs and assembles them
// into a loadable container image. The layer resolver decides what a layer
// contains; this package decides the bytes.
package exporters

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"

	"github.com/bibin-skaria/jarbuild/internal/errors"
	"github.com/bibin-skaria/jarbuild/layers"
)

// Compression selects the layer blob encoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// OCI media types for layer blobs.
const (
	MediaTypeImageLayer     = "application/vnd.oci.image.layer.v1.tar"
	MediaTypeImageLayerGzip = "application/vnd.oci.image.layer.v1.tar+gzip"
	MediaTypeImageLayerZstd = "application/vnd.oci.image.layer.v1.tar+zstd"
)

// MediaType returns the OCI media type for the compression.
func (c Compression) MediaType() string {
	switch c {
	case CompressionGzip:
		return MediaTypeImageLayerGzip
	case CompressionZstd:
		return MediaTypeImageLayerZstd
	default:
		return MediaTypeImageLayer
	}
}

func (c Compression) extension() string {
	switch c {
	case CompressionGzip:
		return ".tar.gz"
	case CompressionZstd:
		return ".tar.zst"
	default:
		return ".tar"
	}
}

// LayerBlob is one written layer: where its bytes landed and the two
// digests that identify it. DiffID hashes the uncompressed tar stream, so
// it stays stable across compression settings.
type LayerBlob struct {
	Name      string        `json:"name"`
	Path      string        `json:"path"`
	MediaType string        `json:"mediaType"`
	Digest    digest.Digest `json:"digest"`
	DiffID    digest.Digest `json:"diffId"`
	Size      int64         `json:"size"`
}

// WriteLayerTar writes the layer as a tar blob under dir and returns its
// digests. Every header field comes from the layer entry, never from a host
// stat (except the regular-file size, which is content): identical entries
// always produce identical bytes.
func WriteLayerTar(layer layers.Layer, dir string, comp Compression) (*LayerBlob, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.CategoryFilesystem, "export", "cannot create "+dir, err)
	}
	outPath := filepath.Join(dir, layer.Name+comp.extension())
	out, err := os.Create(outPath)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryFilesystem, "export", "cannot create "+outPath, err)
	}
	defer out.Close()

	compDigester := digest.Canonical.Digester()
	diffDigester := digest.Canonical.Digester()
	counter := &countingWriter{}

	compressed := io.MultiWriter(out, compDigester.Hash(), counter)
	compressor, err := newCompressor(compressed, comp)
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(io.MultiWriter(compressor, diffDigester.Hash()))

	for _, entry := range layer.Entries {
		if err := writeEntry(tw, entry); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(errors.CategoryFilesystem, "export", "cannot finish layer tar", err)
	}
	if err := compressor.Close(); err != nil {
		return nil, errors.Wrap(errors.CategoryFilesystem, "export", "cannot finish layer compression", err)
	}
	if err := out.Close(); err != nil {
		return nil, errors.Wrap(errors.CategoryFilesystem, "export", "cannot write "+outPath, err)
	}

	return &LayerBlob{
		Name:      layer.Name,
		Path:      outPath,
		MediaType: comp.MediaType(),
		Digest:    compDigester.Digest(),
		DiffID:    diffDigester.Digest(),
		Size:      counter.n,
	}, nil
}

func writeEntry(tw *tar.Writer, entry layers.LayerEntry) error {
	header := &tar.Header{
		Name:    strings.TrimPrefix(entry.ContainerPath, "/"),
		Mode:    int64(entry.Permissions & 0o777),
		ModTime: entry.ModTime,
	}
	applyOwner(header, entry.Owner)

	if entry.Kind == layers.EntryKindDirectory {
		header.Typeflag = tar.TypeDir
		header.Name += "/"
		if err := tw.WriteHeader(header); err != nil {
			return errors.Wrap(errors.CategoryFilesystem, "export",
				"cannot write header for "+entry.ContainerPath, err)
		}
		return nil
	}

	info, err := os.Stat(entry.SourcePath)
	if err != nil {
		return errors.Wrap(errors.CategoryInput, "export",
			"layer source "+entry.SourcePath+" disappeared during the build", err)
	}
	header.Typeflag = tar.TypeReg
	header.Size = info.Size()
	if err := tw.WriteHeader(header); err != nil {
		return errors.Wrap(errors.CategoryFilesystem, "export",
			"cannot write header for "+entry.ContainerPath, err)
	}

	f, err := os.Open(entry.SourcePath)
	if err != nil {
		return errors.Wrap(errors.CategoryInput, "export",
			"cannot open layer source "+entry.SourcePath, err)
	}
	defer f.Close()
	written, err := io.Copy(tw, f)
	if err != nil {
		return errors.Wrap(errors.CategoryFilesystem, "export",
			"cannot copy "+entry.SourcePath, err)
	}
	if written != header.Size {
		return errors.Newf(errors.CategoryFilesystem, "export",
			"size of %s changed during the build: expected %d bytes, copied %d",
			entry.SourcePath, header.Size, written)
	}
	return nil
}

// applyOwner fills the tar ownership fields. Numeric values become ids,
// anything else a name; unset ownership stays uid/gid 0.
func applyOwner(header *tar.Header, owner layers.Owner) {
	if owner.User != "" {
		if uid, err := strconv.Atoi(owner.User); err == nil {
			header.Uid = uid
		} else {
			header.Uname = owner.User
		}
	}
	if owner.Group != "" {
		if gid, err := strconv.Atoi(owner.Group); err == nil {
			header.Gid = gid
		} else {
			header.Gname = owner.Group
		}
	}
}

func newCompressor(w io.Writer, comp Compression) (io.WriteCloser, error) {
	switch comp {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, errors.Wrap(errors.CategoryConfiguration, "export",
				"cannot initialize zstd", err)
		}
		return enc, nil
	default:
		return nil, errors.Newf(errors.CategoryConfiguration, "export",
			"unsupported compression type: %s", comp)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
