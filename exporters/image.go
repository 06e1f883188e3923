package exporters

import (
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/bibin-skaria/jarbuild/internal/errors"
)

// BuildImage stacks the layer blobs onto an empty image, sets the
// entrypoint, and stamps the given creation time on the config and every
// history entry so the image digest stays reproducible.
func BuildImage(blobs []*LayerBlob, entrypoint []string, created time.Time) (v1.Image, error) {
	img := mutate.MediaType(empty.Image, "application/vnd.oci.image.manifest.v1+json")

	var adds []mutate.Addendum
	for _, blob := range blobs {
		if blob.MediaType == MediaTypeImageLayerZstd {
			return nil, errors.Newf(errors.CategoryConfiguration, "export",
				"layer %s is zstd-compressed, which docker-loadable tarballs do not accept; use gzip", blob.Name)
		}
		layer, err := tarball.LayerFromFile(blob.Path)
		if err != nil {
			return nil, errors.Wrap(errors.CategoryFilesystem, "export",
				"cannot load layer blob "+blob.Path, err)
		}
		adds = append(adds, mutate.Addendum{
			Layer: layer,
			History: v1.History{
				Created:   v1.Time{Time: created},
				CreatedBy: "jarbuild layer " + blob.Name,
			},
		})
	}

	img, err := mutate.Append(img, adds...)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryFilesystem, "export", "cannot append layers", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, errors.Wrap(errors.CategoryFilesystem, "export", "cannot read image config", err)
	}
	cfg = cfg.DeepCopy()
	cfg.Created = v1.Time{Time: created}
	cfg.Config.Entrypoint = entrypoint
	cfg.Config.WorkingDir = "/"

	img, err = mutate.ConfigFile(img, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryFilesystem, "export", "cannot set image config", err)
	}
	return img, nil
}

// WriteImageTarball writes the image as a docker-loadable tarball tagged
// with ref.
func WriteImageTarball(img v1.Image, ref, outPath string) error {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return errors.Wrap(errors.CategoryConfiguration, "export",
			"invalid image reference "+ref, err)
	}
	if err := tarball.WriteToFile(outPath, parsed, img); err != nil {
		return errors.Wrap(errors.CategoryFilesystem, "export",
			"cannot write image tarball "+outPath, err)
	}
	return nil
}
