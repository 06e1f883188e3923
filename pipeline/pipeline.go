// Package pipeline classifies a Java build artifact and turns it into a set
// of container image layers plus a computed entrypoint. Strategy selection
// follows the archive kind (standard vs framework-packaged) and the
// requested mode (exploded vs packaged); all layer contents are produced
// through the layers resolver so every strategy inherits its determinism
// guarantees.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bibin-skaria/jarbuild/cache"
	"github.com/bibin-skaria/jarbuild/internal/errors"
	"github.com/bibin-skaria/jarbuild/jar"
	"github.com/bibin-skaria/jarbuild/layers"
)

// Mode selects the layering granularity. Exploded splits the archive into
// fine-grained cacheable layers; packaged keeps it as one opaque layer.
type Mode string

const (
	ModeExploded Mode = "exploded"
	ModePackaged Mode = "packaged"
)

// StrategyKind enumerates the processing strategies.
type StrategyKind string

const (
	StrategyExplodedStandard  StrategyKind = "exploded-standard"
	StrategyExplodedFramework StrategyKind = "exploded-framework"
	StrategyPackagedStandard  StrategyKind = "packaged-standard"
	StrategyPackagedFramework StrategyKind = "packaged-framework"
	StrategyExplodedWAR       StrategyKind = "war-exploded"
)

// Container paths used by the JAR strategies.
const (
	appRoot          = "/app"
	dependenciesPath = "/app/libs"
	resourcesPath    = "/app/resources"
	classesPath      = "/app/classes"
)

// Default base images and the newest Java release the default JAR base
// supports. A detected bytecode level above this without a custom base image
// is a fatal policy error: silently producing a non-bootable image is worse
// than refusing.
const (
	DefaultBaseImage          = "eclipse-temurin:21-jre"
	DefaultWARBaseImage       = "jetty:12-jre21"
	maxDefaultBaseJavaVersion = 21

	defaultWARAppRoot = "/var/lib/jetty/webapps/ROOT"
	servletFamily     = "jetty"
)

// Options configures one processing run. All state is passed explicitly;
// the pipeline keeps no globals.
type Options struct {
	ArtifactPath string
	Mode         Mode
	BaseImage    string   // empty selects the default base image
	AppRoot      string   // WAR only; empty selects the servlet default
	Entrypoint   []string // overrides entrypoint computation entirely
	JVMFlags     []string
	WorkDir      string // scratch space for exploding archives
	Concurrency  int    // parallel layer resolutions; <= 0 means GOMAXPROCS
	ExtraSpecs   []layers.CopySpec
}

// Result is what the pipeline hands to the image writer.
type Result struct {
	Strategy    StrategyKind
	Layers      []layers.Layer
	Entrypoint  []string
	JavaVersion int
}

// Process classifies the artifact, selects a strategy, resolves its layers,
// and computes the entrypoint.
func Process(ctx context.Context, opts Options) (*Result, error) {
	info, err := os.Stat(opts.ArtifactPath)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryInput, "process",
			"artifact "+opts.ArtifactPath+" does not exist", err)
	}
	if info.IsDir() {
		return nil, errors.Newf(errors.CategoryInput, "process",
			"artifact %s is a directory, expected a JAR or WAR file", opts.ArtifactPath)
	}
	if opts.Mode == "" {
		opts.Mode = ModeExploded
	}
	if opts.Mode != ModeExploded && opts.Mode != ModePackaged {
		return nil, errors.Newf(errors.CategoryConfiguration, "process",
			"unknown mode %q, expected %q or %q", opts.Mode, ModeExploded, ModePackaged)
	}
	if opts.WorkDir == "" {
		dir, err := os.MkdirTemp("", "jarbuild-*")
		if err != nil {
			return nil, errors.Wrap(errors.CategoryFilesystem, "process",
				"cannot create work directory", err)
		}
		opts.WorkDir = dir
	}

	classification, err := jar.Classify(opts.ArtifactPath)
	if err != nil {
		return nil, err
	}
	if err := checkJavaVersion(classification, opts.BaseImage); err != nil {
		return nil, err
	}

	isWAR := strings.EqualFold(filepath.Ext(opts.ArtifactPath), ".war")
	strategy := SelectStrategy(classification, opts.Mode, isWAR)

	specs, err := buildSpecs(strategy, classification, opts)
	if err != nil {
		return nil, err
	}
	specs = append(specs, opts.ExtraSpecs...)

	resolver := layers.NewResolver(filepath.Dir(opts.ArtifactPath))
	resolved, err := resolver.ResolveAll(ctx, specs, layers.PropertyScope{}, opts.Concurrency)
	if err != nil {
		return nil, err
	}

	entrypoint, err := computeEntrypoint(strategy, classification, opts)
	if err != nil {
		return nil, err
	}

	return &Result{
		Strategy:    strategy,
		Layers:      resolved,
		Entrypoint:  entrypoint,
		JavaVersion: classification.JavaVersion,
	}, nil
}

// SelectStrategy maps archive kind and requested mode to a strategy. WAR
// archives are always exploded into a servlet container layout.
func SelectStrategy(c *jar.Classification, mode Mode, isWAR bool) StrategyKind {
	if isWAR {
		return StrategyExplodedWAR
	}
	if c.ArchiveKind == jar.ArchiveKindFramework {
		if mode == ModePackaged {
			return StrategyPackagedFramework
		}
		return StrategyExplodedFramework
	}
	if mode == ModePackaged {
		return StrategyPackagedStandard
	}
	return StrategyExplodedStandard
}

func checkJavaVersion(c *jar.Classification, baseImage string) error {
	if baseImage != "" {
		// A custom base image is the user asserting compatibility.
		return nil
	}
	if c.JavaVersion > maxDefaultBaseJavaVersion {
		return errors.Newf(errors.CategoryPolicy, "process",
			"the artifact contains Java %d bytecode (class-file major version %d), but the default base image %s supports at most Java %d",
			c.JavaVersion, c.BytecodeMajorVersion, DefaultBaseImage, maxDefaultBaseJavaVersion).
			WithCode(errors.CodeJavaVersion).
			WithSuggestion("supply a custom base image that includes a Java " +
				"runtime new enough for the detected bytecode level")
	}
	return nil
}

// CacheLayerType maps a resolved layer name to its cache metadata role.
func CacheLayerType(layerName string) cache.LayerType {
	switch layerName {
	case "dependencies":
		return cache.LayerTypeDependencies
	case "snapshot-dependencies":
		return cache.LayerTypeSnapshotDependencies
	case "resources":
		return cache.LayerTypeResources
	case "classes", "jar", "application":
		return cache.LayerTypeClasses
	}
	// Framework layer indexes name layers freely.
	lower := strings.ToLower(layerName)
	switch {
	case strings.Contains(lower, "snapshot"):
		return cache.LayerTypeSnapshotDependencies
	case strings.Contains(lower, "dependenc"):
		return cache.LayerTypeDependencies
	default:
		return cache.LayerTypeExtra
	}
}
