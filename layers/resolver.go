package layers

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bibin-skaria/jarbuild/internal/errors"
)

// CopySpec is one copy directive: place src (a file or directory) at dest
// inside the container. Consecutive specs sharing a LayerName are merged
// into a single layer.
type CopySpec struct {
	LayerName         string
	Src               string // file or directory; relative paths resolve against the build root
	Dest              string // absolute POSIX container path
	Includes          []string
	Excludes          []string
	DestEndsWithSlash bool
	Properties        PropertyScope
}

// NewCopySpec builds a spec, deriving DestEndsWithSlash from a trailing
// separator on dest. The root "/" counts as slash-terminated: a file copied
// to "/" keeps its name under the root rather than becoming the root.
func NewCopySpec(layerName, src, dest string) CopySpec {
	endsWithSlash := len(dest) > 0 && dest[len(dest)-1] == '/'
	return CopySpec{
		LayerName:         layerName,
		Src:               src,
		Dest:              dest,
		DestEndsWithSlash: endsWithSlash,
	}
}

// Resolver converts copy specifications into ordered, deterministic layers.
type Resolver struct {
	BuildRoot string
}

// NewResolver creates a resolver whose relative sources resolve against
// buildRoot.
func NewResolver(buildRoot string) *Resolver {
	return &Resolver{BuildRoot: buildRoot}
}

// Resolve processes the specs in order and returns one layer per group of
// consecutive specs sharing a layer name. Entries within a layer are sorted
// by container path and every non-root ancestor directory of every entry is
// present, synthesized where the walk did not produce it.
func (r *Resolver) Resolve(specs []CopySpec, base PropertyScope) ([]Layer, error) {
	groups := groupSpecs(specs)
	result := make([]Layer, 0, len(groups))
	for _, g := range groups {
		layer, err := r.resolveGroup(g, NewPropertyStack(base))
		if err != nil {
			return nil, err
		}
		result = append(result, layer)
	}
	return result, nil
}

// ResolveAll resolves independent layers on parallel goroutines, bounded by
// limit (GOMAXPROCS when limit <= 0). Each goroutine owns its own property
// stack; the shared resolver state is read-only.
func (r *Resolver) ResolveAll(ctx context.Context, specs []CopySpec, base PropertyScope, limit int) ([]Layer, error) {
	groups := groupSpecs(specs)
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	result := make([]Layer, len(groups))
	for i, grp := range groups {
		i, grp := i, grp
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			layer, err := r.resolveGroup(grp, NewPropertyStack(base))
			if err != nil {
				return err
			}
			result[i] = layer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

type specGroup struct {
	name  string
	specs []CopySpec
}

func groupSpecs(specs []CopySpec) []specGroup {
	var groups []specGroup
	for _, s := range specs {
		if n := len(groups); n > 0 && groups[n-1].name == s.LayerName {
			groups[n-1].specs = append(groups[n-1].specs, s)
			continue
		}
		groups = append(groups, specGroup{name: s.LayerName, specs: []CopySpec{s}})
	}
	return groups
}

func (r *Resolver) resolveGroup(g specGroup, stack *PropertyStack) (Layer, error) {
	layer := Layer{Name: g.name}
	dirs := make(map[string]bool)
	for _, spec := range g.specs {
		if err := r.appendSpec(&layer, dirs, spec, stack); err != nil {
			return Layer{}, err
		}
	}
	layer.Sort()
	if err := layer.validateUnique(); err != nil {
		return Layer{}, errors.Wrap(errors.CategoryInput, "resolve", err.Error(), err).WithCode(errors.CodeDuplicatePath)
	}
	if len(layer.Entries) == 0 {
		// Kept rather than dropped: removing the layer would shift layer
		// indices between builds and destabilize the cache.
		logrus.WithField("layer", layer.Name).Warn("layer resolved to no entries")
	}
	return layer, nil
}

func (r *Resolver) appendSpec(layer *Layer, dirs map[string]bool, spec CopySpec, stack *PropertyStack) error {
	src := spec.Src
	if !filepath.IsAbs(src) {
		src = filepath.Join(r.BuildRoot, src)
	}
	dest := normalizeContainerPath(spec.Dest)

	stack.Push(spec.Properties)
	defer stack.Pop()

	info, err := os.Lstat(src)
	if err != nil {
		return errors.Wrap(errors.CategoryInput, "resolve",
			"source path "+src+" does not exist or is not readable", err)
	}

	switch {
	case info.Mode().IsRegular():
		if len(spec.Includes) > 0 || len(spec.Excludes) > 0 {
			return errors.New(errors.CategoryInput, "resolve",
				"includes and excludes apply only to directory copies, not to the single file "+src).
				WithCode(errors.CodeFilterOnFile)
		}
		target := dest
		if spec.DestEndsWithSlash {
			target = path.Join(dest, filepath.Base(src))
		}
		r.addAncestors(layer, dirs, target, stack)
		layer.Entries = append(layer.Entries, LayerEntry{
			SourcePath:    src,
			ContainerPath: target,
			Kind:          EntryKindFile,
			Permissions:   stack.FilePermissions(),
			ModTime:       stack.ModTime(),
			Owner:         stack.Owner(),
		})
		return nil

	case info.IsDir():
		return r.walkDirectory(layer, dirs, spec, src, dest, stack)

	default:
		return errors.Newf(errors.CategoryInput, "resolve",
			"cannot layer non-file, non-directory path: %s", src).
			WithCode(errors.CodeUnsupportedEntry)
	}
}

func (r *Resolver) walkDirectory(layer *Layer, dirs map[string]bool, spec CopySpec, src, dest string, stack *PropertyStack) error {
	filter, err := CompileFilter(spec.Includes, spec.Excludes)
	if err != nil {
		return err
	}

	// WalkDir visits entries in lexical order, but the final Sort is still
	// what guarantees the hashed entry order.
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return errors.Wrap(errors.CategoryFilesystem, "resolve", "cannot walk "+p, walkErr)
		}
		if p == src {
			r.addDirectory(layer, dirs, dest, stack)
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return errors.Wrap(errors.CategoryFilesystem, "resolve", "cannot relativize "+p, err)
		}
		rel = filepath.ToSlash(rel)

		if filter.Excluded(rel) {
			return nil
		}

		target := path.Join(dest, rel)
		switch {
		case d.Type().IsRegular():
			if !filter.Included(rel) {
				return nil
			}
			r.addAncestors(layer, dirs, target, stack)
			layer.Entries = append(layer.Entries, LayerEntry{
				SourcePath:    p,
				ContainerPath: target,
				Kind:          EntryKindFile,
				Permissions:   stack.FilePermissions(),
				ModTime:       stack.ModTime(),
				Owner:         stack.Owner(),
			})
			return nil
		case d.IsDir():
			if filter.Included(rel) {
				r.addDirectory(layer, dirs, target, stack)
			}
			return nil
		default:
			return errors.Newf(errors.CategoryInput, "resolve",
				"cannot layer non-file, non-directory path: %s", p).
				WithCode(errors.CodeUnsupportedEntry)
		}
	})
}

// addDirectory appends a directory entry unless one already exists at that
// container path.
func (r *Resolver) addDirectory(layer *Layer, dirs map[string]bool, containerPath string, stack *PropertyStack) {
	if containerPath == "/" || dirs[containerPath] {
		return
	}
	dirs[containerPath] = true
	layer.Entries = append(layer.Entries, LayerEntry{
		ContainerPath: containerPath,
		Kind:          EntryKindDirectory,
		Permissions:   stack.DirectoryPermissions(),
		ModTime:       stack.ModTime(),
		Owner:         stack.Owner(),
	})
}

// addAncestors synthesizes any missing directory entries between the root
// and the given path's parent, so a layer stays structurally valid even when
// a filter only matched leaf files.
func (r *Resolver) addAncestors(layer *Layer, dirs map[string]bool, containerPath string, stack *PropertyStack) {
	var chain []string
	for dir := path.Dir(containerPath); dir != "/" && dir != "."; dir = path.Dir(dir) {
		chain = append(chain, dir)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		r.addDirectory(layer, dirs, chain[i], stack)
	}
}

func normalizeContainerPath(p string) string {
	p = filepath.ToSlash(p)
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
