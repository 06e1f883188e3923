// Package cache persists per-layer content fingerprints between builds so
// the pipeline can skip recomputing and recompressing layers whose inputs
// have not changed.
//
// The metadata file is read once at build start and entirely rewritten at
// successful build end; there are no partial or merge updates. A build
// process owns exclusive access to one cache file for its duration; two
// concurrent builds must use distinct cache paths.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/jarbuild/internal/errors"
)

// LayerType enumerates the roles a cached layer can play.
type LayerType string

const (
	LayerTypeBase                 LayerType = "base"
	LayerTypeDependencies         LayerType = "dependencies"
	LayerTypeSnapshotDependencies LayerType = "snapshot-dependencies"
	LayerTypeResources            LayerType = "resources"
	LayerTypeClasses              LayerType = "classes"
	LayerTypeExtra                LayerType = "extra"
)

// LayerProperties records the inputs a source-derived layer was built from.
// Base-image-derived layers never carry these; their cache key is the base
// image digest, managed outside this model.
type LayerProperties struct {
	SourceFiles             []string `json:"sourceFilePaths"`
	LastModifiedEpochMillis int64    `json:"lastModifiedTimeEpochMillis"`
}

// Entry is one row per previously built layer, keyed by layer name. The
// layer type records the entry's role; several layers may share a type
// (multiple copy-directive layers, freely named framework index layers), so
// the type alone can never identify a row. MediaType pins the compression
// the blob was written with: a digest describes specific bytes, so reusing
// it under a different compression setting would mislabel the blob.
type Entry struct {
	LayerName        string           `json:"layerName"`
	LayerType        LayerType        `json:"layerType"`
	MediaType        string           `json:"mediaType"`
	CompressedDigest digest.Digest    `json:"compressedDigest"`
	DiffID           digest.Digest    `json:"diffId"`
	SizeBytes        int64            `json:"sizeBytes"`
	Properties       *LayerProperties `json:"layerProperties,omitempty"`
}

// Metadata maps a prior build's layers to their content fingerprints.
// It never recomputes digests; it only stores and serves them.
type Metadata struct {
	Layers []Entry `json:"layers"`
}

// Load reads the metadata file at path. A missing file yields an empty
// cache; an existing but unreadable or malformed file yields a fatal
// corrupt-cache error so callers can distinguish "no cache" from "wrong
// format" (see LoadOrEmpty for the degrading variant).
func Load(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Metadata{}, nil
		}
		return nil, errors.Wrap(errors.CategoryCache, "load",
			"cannot read cache file "+path, err).WithCode(errors.CodeCorruptCache)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.CategoryCache, "load",
			"cache file "+path+" is not in the expected format", err).
			WithCode(errors.CodeCorruptCache)
	}
	return &m, nil
}

// LoadOrEmpty loads the cache, degrading a corrupt file to an empty cache
// with a warning. A bad cache never blocks a build; it only forces
// recomputation.
func LoadOrEmpty(path string) *Metadata {
	m, err := Load(path)
	if err != nil {
		logrus.WithError(err).WithField("path", path).
			Warn("ignoring unreadable cache file; all layers will be rebuilt")
		return &Metadata{}
	}
	return m
}

// Save atomically rewrites the metadata file: the encoded bytes land in a
// temporary file in the same directory, then rename over the target, so a
// reader never observes a partial write.
func Save(path string, m *Metadata) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.CategoryCache, "save", "cannot create "+dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(errors.CategoryCache, "save", "cannot create temporary cache file", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(errors.CategoryCache, "save", "cannot encode cache metadata", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(errors.CategoryCache, "save", "cannot flush cache metadata", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.CategoryCache, "save", "cannot close cache metadata", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.CategoryCache, "save", "cannot replace cache file "+path, err)
	}
	return nil
}

// Lookup returns the cached digests for a named layer, if the recorded
// entry still covers the current build: the blob must have been written
// under the same media type, the source file sets must be equal (as sets;
// the list is stored ordered for diagnostics), and no current file may be
// newer than the recorded modification time. Any mismatch is a miss and
// the caller must rebuild that layer.
func (m *Metadata) Lookup(layerName string, sourceFiles []string, mediaType string, currentMaxMtime time.Time) (*Entry, bool) {
	for i := range m.Layers {
		e := &m.Layers[i]
		if e.LayerName != layerName || e.Properties == nil {
			continue
		}
		if e.MediaType != mediaType {
			continue
		}
		if !sameFileSet(e.Properties.SourceFiles, sourceFiles) {
			continue
		}
		if currentMaxMtime.UnixMilli() > e.Properties.LastModifiedEpochMillis {
			continue
		}
		return e, true
	}
	return nil, false
}

// Put records an entry, replacing any previous entry of the same layer name.
func (m *Metadata) Put(entry Entry) {
	for i := range m.Layers {
		if m.Layers[i].LayerName == entry.LayerName {
			m.Layers[i] = entry
			return
		}
	}
	m.Layers = append(m.Layers, entry)
}

// NewLayerProperties stats each source file and records the ordered file
// list together with the newest modification time observed.
func NewLayerProperties(sourceFiles []string) (*LayerProperties, error) {
	props := &LayerProperties{
		SourceFiles: append([]string(nil), sourceFiles...),
	}
	sort.Strings(props.SourceFiles)
	for _, f := range props.SourceFiles {
		info, err := os.Stat(f)
		if err != nil {
			return nil, errors.Wrap(errors.CategoryFilesystem, "cache",
				"cannot stat layer source "+f, err)
		}
		if ms := info.ModTime().UnixMilli(); ms > props.LastModifiedEpochMillis {
			props.LastModifiedEpochMillis = ms
		}
	}
	return props, nil
}

// MaxModTime returns the newest modification time across the given files.
func MaxModTime(sourceFiles []string) (time.Time, error) {
	var max time.Time
	for _, f := range sourceFiles {
		info, err := os.Stat(f)
		if err != nil {
			return time.Time{}, errors.Wrap(errors.CategoryFilesystem, "cache",
				"cannot stat layer source "+f, err)
		}
		if info.ModTime().After(max) {
			max = info.ModTime()
		}
	}
	return max, nil
}

func sameFileSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, f := range a {
		set[f]++
	}
	for _, f := range b {
		if set[f] == 0 {
			return false
		}
		set[f]--
	}
	return true
}
