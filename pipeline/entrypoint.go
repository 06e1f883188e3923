package pipeline

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/jarbuild/internal/errors"
	"github.com/bibin-skaria/jarbuild/jar"
)

// frameworkLauncherClass boots an exploded framework-packaged application.
const frameworkLauncherClass = "org.springframework.boot.loader.JarLauncher"

// servletStartCommand boots the default servlet container base image.
var servletStartCommand = []string{"java", "-jar", "/usr/local/jetty/start.jar"}

// computeEntrypoint produces the container entrypoint for the selected
// strategy. A user-supplied entrypoint overrides computation entirely; any
// jvmFlags supplied alongside it would silently have no effect, so that
// combination is surfaced as a warning.
func computeEntrypoint(strategy StrategyKind, c *jar.Classification, opts Options) ([]string, error) {
	if len(opts.Entrypoint) > 0 {
		if len(opts.JVMFlags) > 0 {
			logrus.Warn("jvmFlags are ignored because a custom entrypoint was supplied")
		}
		return append([]string(nil), opts.Entrypoint...), nil
	}

	jarName := filepath.Base(opts.ArtifactPath)

	switch strategy {
	case StrategyExplodedStandard:
		if c.MainClass == "" {
			return nil, missingMainClass()
		}
		classpath := strings.Join([]string{resourcesPath, classesPath, dependenciesPath + "/*"}, ":")
		return javaCommand(opts.JVMFlags, "-cp", classpath, c.MainClass), nil

	case StrategyPackagedStandard:
		if c.MainClass == "" {
			return nil, missingMainClass()
		}
		return javaCommand(opts.JVMFlags, "-jar", path.Join(appRoot, jarName)), nil

	case StrategyExplodedFramework:
		return javaCommand(opts.JVMFlags, "-cp", appRoot, frameworkLauncherClass), nil

	case StrategyPackagedFramework:
		return javaCommand(opts.JVMFlags, "-jar", path.Join(appRoot, jarName)), nil

	case StrategyExplodedWAR:
		if opts.BaseImage == "" || isServletFamily(opts.BaseImage) {
			cmd := append([]string(nil), servletStartCommand...)
			if len(opts.JVMFlags) > 0 {
				cmd = append([]string{"java"}, append(append([]string(nil), opts.JVMFlags...), servletStartCommand[1:]...)...)
			}
			return cmd, nil
		}
		// Foreign servlet container: its own entrypoint starts the app.
		return nil, nil
	}
	panic("pipeline: unknown strategy " + string(strategy))
}

func javaCommand(jvmFlags []string, args ...string) []string {
	cmd := make([]string, 0, 1+len(jvmFlags)+len(args))
	cmd = append(cmd, "java")
	cmd = append(cmd, jvmFlags...)
	cmd = append(cmd, args...)
	return cmd
}

func missingMainClass() error {
	return errors.New(errors.CategoryInput, "entrypoint",
		"the archive manifest has no Main-Class attribute; a plain JAR has no other way to declare its entry class").
		WithCode(errors.CodeMissingMainClass).
		WithSuggestion("add a Main-Class attribute to the manifest, or supply an explicit entrypoint")
}

// warAppRoot decides where the WAR contents land. The default assumes the
// default servlet container base image; for a base image that is not
// recognizably the same servlet family, the caller must supply an explicit
// app root because the pipeline cannot safely guess a foreign container
// layout.
func warAppRoot(opts Options) (string, error) {
	if opts.AppRoot != "" {
		return opts.AppRoot, nil
	}
	if opts.BaseImage == "" || isServletFamily(opts.BaseImage) {
		return defaultWARAppRoot, nil
	}
	return "", errors.Newf(errors.CategoryPolicy, "process",
		"base image %s is not recognizably a %s image and no app root was supplied",
		opts.BaseImage, servletFamily).
		WithCode(errors.CodeUnknownAppRoot).
		WithSuggestion("set an explicit app root matching the servlet container layout of the base image")
}

func isServletFamily(baseImage string) bool {
	return strings.Contains(baseImage, servletFamily)
}
