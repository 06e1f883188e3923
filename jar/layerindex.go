package jar

import (
	"archive/zip"
	"fmt"
	"io"

	"gopkg.in/yaml.v2"

	"github.com/bibin-skaria/jarbuild/internal/errors"
)

// layerIndexPath is the framework's own layer index inside a
// framework-packaged archive. When present it dictates how the exploded
// archive splits into layers.
const layerIndexPath = "BOOT-INF/layers.idx"

// IndexedLayer is one named layer from the framework layer index, listing
// archive-relative paths (directories carry a trailing slash).
type IndexedLayer struct {
	Name    string
	Entries []string
}

// ReadLayerIndex returns the framework layer index, or ok=false when the
// archive does not carry one.
func ReadLayerIndex(artifactPath string) ([]IndexedLayer, bool, error) {
	reader, err := zip.OpenReader(artifactPath)
	if err != nil {
		return nil, false, errors.Wrap(errors.CategoryArchive, "layer-index",
			"cannot open archive "+artifactPath, err).WithCode(errors.CodeArchiveRead)
	}
	defer reader.Close()

	for _, f := range reader.File {
		if f.Name != layerIndexPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, false, errors.Wrap(errors.CategoryArchive, "layer-index",
				"cannot read "+layerIndexPath, err).WithCode(errors.CodeArchiveRead)
		}
		defer rc.Close()

		index, err := parseLayerIndex(rc)
		if err != nil {
			return nil, false, err
		}
		return index, true, nil
	}
	return nil, false, nil
}

// parseLayerIndex decodes the index, which is a YAML sequence of
// single-entry maps so that layer order is preserved:
//
//	- "dependencies":
//	  - "BOOT-INF/lib/spring-core.jar"
//	- "application":
//	  - "BOOT-INF/classes/"
func parseLayerIndex(r io.Reader) ([]IndexedLayer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryArchive, "layer-index",
			"cannot read layer index", err).WithCode(errors.CodeArchiveRead)
	}

	var doc []yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.CategoryArchive, "layer-index",
			"malformed layer index", err).WithCode(errors.CodeArchiveRead)
	}

	var index []IndexedLayer
	for _, entry := range doc {
		for _, item := range entry {
			name, ok := item.Key.(string)
			if !ok {
				return nil, errors.Newf(errors.CategoryArchive, "layer-index",
					"layer index contains a non-string layer name: %v", item.Key).
					WithCode(errors.CodeArchiveRead)
			}
			layer := IndexedLayer{Name: name}
			if items, ok := item.Value.([]interface{}); ok {
				for _, v := range items {
					layer.Entries = append(layer.Entries, fmt.Sprintf("%v", v))
				}
			}
			index = append(index, layer)
		}
	}
	return index, nil
}
