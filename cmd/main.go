package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bibin-skaria/jarbuild/cache"
	"github.com/bibin-skaria/jarbuild/config"
	"github.com/bibin-skaria/jarbuild/exporters"
	"github.com/bibin-skaria/jarbuild/internal/errors"
	"github.com/bibin-skaria/jarbuild/jar"
	"github.com/bibin-skaria/jarbuild/layers"
	"github.com/bibin-skaria/jarbuild/pipeline"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var be *errors.BuildError
		if stderrors.As(err, &be) {
			fmt.Fprintln(os.Stderr, "Error: "+be.UserMessage())
		} else {
			fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "jarbuild",
		Short: "Build container image layers from Java artifacts without a daemon",
		Long: `jarbuild turns a JAR or WAR into a deterministic, cacheable set of
container image layers and a computed entrypoint, without invoking a
container daemon. Identical inputs always produce identical layer bytes,
and a persisted content-fingerprint cache skips layers whose inputs have
not changed.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		// main renders errors itself, once.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newBuildCommand())
	cmd.AddCommand(newInspectCommand())
	return cmd
}

type buildFlags struct {
	configPath   string
	artifact     string
	mode         string
	baseImage    string
	appRoot      string
	image        string
	output       string
	cacheDir     string
	entrypoint   []string
	jvmFlags     []string
	creationTime string
	compression  string
	concurrency  int
}

func newBuildCommand() *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build image layers from a JAR or WAR",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "YAML build configuration file")
	cmd.Flags().StringVar(&flags.artifact, "artifact", "", "JAR or WAR to build from")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "layering mode: exploded or packaged (default exploded)")
	cmd.Flags().StringVar(&flags.baseImage, "base-image", "", "custom base image reference")
	cmd.Flags().StringVar(&flags.appRoot, "app-root", "", "explicit app root for WAR builds")
	cmd.Flags().StringVarP(&flags.image, "tag", "t", "", "image reference for the output tarball")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write a docker-loadable image tarball here")
	cmd.Flags().StringVar(&flags.cacheDir, "cache", "", "cache directory (default: user cache dir)")
	cmd.Flags().StringArrayVar(&flags.entrypoint, "entrypoint", nil, "custom entrypoint, overrides computation")
	cmd.Flags().StringArrayVar(&flags.jvmFlags, "jvm-flag", nil, "extra JVM flag, repeatable")
	cmd.Flags().StringVar(&flags.creationTime, "creation-time", "", "epoch-plus-second, now, or RFC 3339")
	cmd.Flags().StringVar(&flags.compression, "compression", "gzip", "layer compression: none, gzip, or zstd")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "parallel layer resolutions (0 = CPU count)")
	return cmd
}

func runBuild(ctx context.Context, flags buildFlags) error {
	cfg := &config.BuildConfig{}
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyFlagOverrides(cfg, flags)

	if cfg.Artifact == "" {
		return errors.New(errors.CategoryConfiguration, "build",
			"no artifact given: set --artifact or the artifact field in the configuration file")
	}

	created, err := cfg.ParseCreationTime()
	if err != nil {
		return err
	}
	extraSpecs, err := copySpecs(cfg.Copies)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "jarbuild-*")
	if err != nil {
		return errors.Wrap(errors.CategoryFilesystem, "build", "cannot create work directory", err)
	}
	defer os.RemoveAll(workDir)

	start := time.Now()
	result, err := pipeline.Process(ctx, pipeline.Options{
		ArtifactPath: cfg.Artifact,
		Mode:         pipeline.Mode(cfg.Mode),
		BaseImage:    cfg.BaseImage,
		AppRoot:      cfg.AppRoot,
		Entrypoint:   cfg.Entrypoint,
		JVMFlags:     cfg.JVMFlags,
		WorkDir:      workDir,
		Concurrency:  flags.concurrency,
		ExtraSpecs:   extraSpecs,
	})
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"strategy": result.Strategy,
		"layers":   len(result.Layers),
		"java":     result.JavaVersion,
	}).Info("artifact processed")

	cacheDir, err := resolveCacheDir(cfg.CachePath)
	if err != nil {
		return err
	}
	blobs, meta, err := writeLayers(result.Layers, cacheDir, exporters.Compression(flags.compression))
	if err != nil {
		return err
	}
	if err := cache.Save(filepath.Join(cacheDir, "metadata.json"), meta); err != nil {
		return err
	}

	if cfg.Output != "" {
		ref := cfg.Image
		if ref == "" {
			ref = "jarbuild.local/" + trimExt(filepath.Base(cfg.Artifact)) + ":latest"
		}
		img, err := exporters.BuildImage(blobs, result.Entrypoint, created)
		if err != nil {
			return err
		}
		if err := exporters.WriteImageTarball(img, ref, cfg.Output); err != nil {
			return err
		}
		logrus.WithField("path", cfg.Output).Info("image tarball written")
	}

	logrus.WithFields(logrus.Fields{
		"elapsed":    time.Since(start).Round(time.Millisecond),
		"entrypoint": result.Entrypoint,
	}).Info("build finished")
	return nil
}

// writeLayers turns resolved layers into blobs, reusing cache-recorded
// digests whenever the layer's source file set, modification times, and
// compression setting still match and the blob bytes are present in the
// cache.
func writeLayers(resolved []layers.Layer, cacheDir string, comp exporters.Compression) ([]*exporters.LayerBlob, *cache.Metadata, error) {
	meta := cache.LoadOrEmpty(filepath.Join(cacheDir, "metadata.json"))
	blobsDir := filepath.Join(cacheDir, "blobs")

	var blobs []*exporters.LayerBlob
	for _, layer := range resolved {
		files := layer.FilePaths()
		maxMtime, err := cache.MaxModTime(files)
		if err != nil {
			return nil, nil, err
		}

		// A hit requires the recorded blob to match the requested media type;
		// a compression change invalidates it even with unchanged sources.
		if entry, ok := meta.Lookup(layer.Name, files, comp.MediaType(), maxMtime); ok {
			p := filepath.Join(blobsDir, entry.CompressedDigest.Encoded())
			if _, statErr := os.Stat(p); statErr == nil {
				logrus.WithFields(logrus.Fields{
					"layer":  layer.Name,
					"digest": entry.CompressedDigest,
				}).Info("layer unchanged, reusing cached blob")
				blobs = append(blobs, &exporters.LayerBlob{
					Name:      layer.Name,
					Path:      p,
					MediaType: entry.MediaType,
					Digest:    entry.CompressedDigest,
					DiffID:    entry.DiffID,
					Size:      entry.SizeBytes,
				})
				continue
			}
		}

		blob, err := exporters.WriteLayerTar(layer, blobsDir, comp)
		if err != nil {
			return nil, nil, err
		}
		// Content-addressed rename so future builds find the blob by digest.
		addressed := filepath.Join(blobsDir, blob.Digest.Encoded())
		if err := os.Rename(blob.Path, addressed); err != nil {
			return nil, nil, errors.Wrap(errors.CategoryCache, "build",
				"cannot store layer blob", err)
		}
		blob.Path = addressed
		props, err := cache.NewLayerProperties(files)
		if err != nil {
			return nil, nil, err
		}
		meta.Put(cache.Entry{
			LayerName:        layer.Name,
			LayerType:        pipeline.CacheLayerType(layer.Name),
			MediaType:        blob.MediaType,
			CompressedDigest: blob.Digest,
			DiffID:           blob.DiffID,
			SizeBytes:        blob.Size,
			Properties:       props,
		})
		blobs = append(blobs, blob)
	}
	return blobs, meta, nil
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Classify a JAR or WAR and print what was detected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := jar.Classify(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("archive kind:     %s\n", c.ArchiveKind)
			if c.JavaVersion > 0 {
				fmt.Printf("bytecode:         Java %d (class-file major %d)\n", c.JavaVersion, c.BytecodeMajorVersion)
			} else {
				fmt.Printf("bytecode:         no class files found\n")
			}
			if c.MainClass != "" {
				fmt.Printf("main class:       %s\n", c.MainClass)
			}
			if len(c.ClassPath) > 0 {
				fmt.Printf("classpath:        %v\n", c.ClassPath)
			}
			return nil
		},
	}
}

func applyFlagOverrides(cfg *config.BuildConfig, flags buildFlags) {
	if flags.artifact != "" {
		cfg.Artifact = flags.artifact
	}
	if flags.mode != "" {
		cfg.Mode = flags.mode
	}
	if flags.baseImage != "" {
		cfg.BaseImage = flags.baseImage
	}
	if flags.appRoot != "" {
		cfg.AppRoot = flags.appRoot
	}
	if flags.image != "" {
		cfg.Image = flags.image
	}
	if flags.output != "" {
		cfg.Output = flags.output
	}
	if flags.cacheDir != "" {
		cfg.CachePath = flags.cacheDir
	}
	if len(flags.entrypoint) > 0 {
		cfg.Entrypoint = flags.entrypoint
	}
	if len(flags.jvmFlags) > 0 {
		cfg.JVMFlags = flags.jvmFlags
	}
	if flags.creationTime != "" {
		cfg.CreationTime = flags.creationTime
	}
}

func copySpecs(directives []config.CopyDirective) ([]layers.CopySpec, error) {
	var specs []layers.CopySpec
	for _, d := range directives {
		spec, err := d.ToCopySpec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func resolveCacheDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(errors.CategoryConfiguration, "build",
			"cannot determine the user cache directory; set --cache explicitly", err)
	}
	return filepath.Join(base, "jarbuild"), nil
}

func trimExt(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		return name[:len(name)-len(ext)]
	}
	return name
}
