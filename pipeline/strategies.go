package pipeline

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/jarbuild/jar"
	"github.com/bibin-skaria/jarbuild/layers"
)

func buildSpecs(strategy StrategyKind, c *jar.Classification, opts Options) ([]layers.CopySpec, error) {
	switch strategy {
	case StrategyExplodedStandard:
		return explodedStandardSpecs(c, opts)
	case StrategyPackagedStandard:
		return packagedSpecs(c, opts, true)
	case StrategyExplodedFramework:
		return explodedFrameworkSpecs(opts)
	case StrategyPackagedFramework:
		return packagedSpecs(c, opts, false)
	case StrategyExplodedWAR:
		return explodedWARSpecs(opts)
	}
	// SelectStrategy covers every kind; reaching here is a bug.
	panic("pipeline: unknown strategy " + string(strategy))
}

// explodedStandardSpecs splits a plain JAR into dependencies, snapshot
// dependencies, resources, and classes layers. Dependencies come from the
// manifest Class-Path; the archive contents are exploded and split by entry
// type for maximal incremental cache reuse.
func explodedStandardSpecs(c *jar.Classification, opts Options) ([]layers.CopySpec, error) {
	exploded, err := explodeArtifact(opts)
	if err != nil {
		return nil, err
	}

	specs := dependencySpecs(c.ClassPath, filepath.Dir(opts.ArtifactPath))
	specs = append(specs,
		layers.CopySpec{
			LayerName: "resources",
			Src:       exploded,
			Dest:      resourcesPath,
			Excludes:  []string{"**.class", "META-INF/MANIFEST.MF"},
		},
		layers.CopySpec{
			LayerName: "classes",
			Src:       exploded,
			Dest:      classesPath,
			Includes:  []string{"**.class"},
		},
	)
	return specs, nil
}

// packagedSpecs keeps the whole archive as one layer. Standard JARs still
// get their manifest Class-Path dependencies split into cacheable layers;
// framework-packaged JARs nest their dependencies inside the archive.
func packagedSpecs(c *jar.Classification, opts Options, withClasspath bool) ([]layers.CopySpec, error) {
	var specs []layers.CopySpec
	if withClasspath {
		specs = dependencySpecs(c.ClassPath, filepath.Dir(opts.ArtifactPath))
	}
	specs = append(specs, layers.CopySpec{
		LayerName: "jar",
		Src:       opts.ArtifactPath,
		Dest:      path.Join(appRoot, filepath.Base(opts.ArtifactPath)),
	})
	return specs, nil
}

// dependencySpecs lays each referenced classpath JAR into /app/libs,
// splitting snapshot versions into their own layer: snapshots change often,
// releases almost never, and separating them keeps the release layer cached.
func dependencySpecs(classpath []string, artifactDir string) []layers.CopySpec {
	var releases, snapshots []layers.CopySpec
	for _, cp := range classpath {
		if !strings.HasSuffix(cp, ".jar") {
			continue
		}
		p := filepath.FromSlash(cp)
		if !filepath.IsAbs(p) {
			p = filepath.Join(artifactDir, p)
		}
		if _, err := os.Stat(p); err != nil {
			logrus.WithField("dependency", cp).
				Warn("manifest Class-Path entry not found next to the artifact, skipping")
			continue
		}
		spec := layers.NewCopySpec("dependencies", p, dependenciesPath+"/")
		if isSnapshot(cp) {
			spec.LayerName = "snapshot-dependencies"
			snapshots = append(snapshots, spec)
		} else {
			releases = append(releases, spec)
		}
	}
	return append(releases, snapshots...)
}

func isSnapshot(name string) bool {
	return strings.Contains(strings.ToUpper(name), "SNAPSHOT")
}

// explodedFrameworkSpecs unpacks a framework-packaged JAR keeping its
// internal layout (the framework launcher depends on it). The framework's
// own layer index drives the split when present; otherwise the default
// four-way split is applied over the framework directory layout.
func explodedFrameworkSpecs(opts Options) ([]layers.CopySpec, error) {
	exploded, err := explodeArtifact(opts)
	if err != nil {
		return nil, err
	}

	index, ok, err := jar.ReadLayerIndex(opts.ArtifactPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []layers.CopySpec{
			{
				LayerName: "dependencies",
				Src:       exploded,
				Dest:      appRoot,
				Includes:  []string{"BOOT-INF/lib/"},
				Excludes:  []string{"BOOT-INF/lib/*SNAPSHOT*"},
			},
			{
				LayerName: "snapshot-dependencies",
				Src:       exploded,
				Dest:      appRoot,
				Includes:  []string{"BOOT-INF/lib/*SNAPSHOT*"},
			},
			{
				LayerName: "resources",
				Src:       exploded,
				Dest:      appRoot,
				Excludes:  []string{"BOOT-INF/lib/", "BOOT-INF/classes/"},
			},
			{
				LayerName: "classes",
				Src:       exploded,
				Dest:      appRoot,
				Includes:  []string{"BOOT-INF/classes/"},
			},
		}, nil
	}

	var specs []layers.CopySpec
	for _, indexed := range index {
		for _, entry := range indexed.Entries {
			src := filepath.Join(exploded, filepath.FromSlash(strings.TrimSuffix(entry, "/")))
			if _, err := os.Stat(src); err != nil {
				logrus.WithFields(logrus.Fields{
					"layer": indexed.Name,
					"entry": entry,
				}).Warn("layer index entry missing from archive, skipping")
				continue
			}
			specs = append(specs, layers.CopySpec{
				LayerName: indexed.Name,
				Src:       src,
				Dest:      path.Join(appRoot, entry),
			})
		}
	}
	return specs, nil
}

// explodedWARSpecs unpacks a WAR under the servlet container's application
// root, split the same four ways as a standard JAR.
func explodedWARSpecs(opts Options) ([]layers.CopySpec, error) {
	warRoot, err := warAppRoot(opts)
	if err != nil {
		return nil, err
	}
	exploded, err := explodeArtifact(opts)
	if err != nil {
		return nil, err
	}

	return []layers.CopySpec{
		{
			LayerName: "dependencies",
			Src:       exploded,
			Dest:      warRoot,
			Includes:  []string{"WEB-INF/lib/"},
			Excludes:  []string{"WEB-INF/lib/*SNAPSHOT*"},
		},
		{
			LayerName: "snapshot-dependencies",
			Src:       exploded,
			Dest:      warRoot,
			Includes:  []string{"WEB-INF/lib/*SNAPSHOT*"},
		},
		{
			LayerName: "resources",
			Src:       exploded,
			Dest:      warRoot,
			Excludes:  []string{"WEB-INF/lib/", "WEB-INF/classes/"},
		},
		{
			LayerName: "classes",
			Src:       exploded,
			Dest:      warRoot,
			Includes:  []string{"WEB-INF/classes/"},
		},
	}, nil
}

func explodeArtifact(opts Options) (string, error) {
	dir := filepath.Join(opts.WorkDir, "exploded")
	if err := jar.Explode(opts.ArtifactPath, dir); err != nil {
		return "", err
	}
	return dir, nil
}
