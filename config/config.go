// Package config loads the declarative build configuration file. Everything
// here produces plain values handed explicitly through the call chain; the
// loaded configuration is never stored globally.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/bibin-skaria/jarbuild/internal/errors"
	"github.com/bibin-skaria/jarbuild/layers"
)

// BuildConfig mirrors the YAML build file.
type BuildConfig struct {
	Artifact     string          `yaml:"artifact"`
	Mode         string          `yaml:"mode"`
	BaseImage    string          `yaml:"baseImage"`
	AppRoot      string          `yaml:"appRoot"`
	Image        string          `yaml:"image"`
	Output       string          `yaml:"output"`
	CachePath    string          `yaml:"cache"`
	Entrypoint   []string        `yaml:"entrypoint"`
	JVMFlags     []string        `yaml:"jvmFlags"`
	CreationTime string          `yaml:"creationTime"`
	Copies       []CopyDirective `yaml:"copy"`
}

// CopyDirective is one extra file-copy directive with optional per-directive
// property overrides.
type CopyDirective struct {
	Layer                string   `yaml:"layer"`
	Src                  string   `yaml:"src"`
	Dest                 string   `yaml:"dest"`
	Includes             []string `yaml:"includes"`
	Excludes             []string `yaml:"excludes"`
	FilePermissions      string   `yaml:"filePermissions"`      // octal, e.g. "0755"
	DirectoryPermissions string   `yaml:"directoryPermissions"` // octal
	Timestamp            string   `yaml:"timestamp"`            // RFC 3339
	Owner                string   `yaml:"owner"`                // "user:group"
}

// Load reads and validates a YAML build configuration.
func Load(path string) (*BuildConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryConfiguration, "config",
			"cannot read configuration file "+path, err)
	}
	var c BuildConfig
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, errors.Wrap(errors.CategoryConfiguration, "config",
			"malformed configuration file "+path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the fields that have a constrained value set.
func (c *BuildConfig) Validate() error {
	switch c.Mode {
	case "", "exploded", "packaged":
	default:
		return errors.Newf(errors.CategoryConfiguration, "config",
			"unknown mode %q, expected \"exploded\" or \"packaged\"", c.Mode)
	}
	if _, err := c.ParseCreationTime(); err != nil {
		return err
	}
	for i := range c.Copies {
		d := &c.Copies[i]
		if d.Src == "" || d.Dest == "" {
			return errors.Newf(errors.CategoryConfiguration, "config",
				"copy directive %d needs both src and dest", i)
		}
		if _, err := d.ToCopySpec(); err != nil {
			return err
		}
	}
	return nil
}

// ParseCreationTime interprets the creationTime setting: empty or
// "epoch-plus-second" keeps the reproducible default, "now" opts into the
// wall clock, anything else must be RFC 3339.
func (c *BuildConfig) ParseCreationTime() (time.Time, error) {
	switch c.CreationTime {
	case "", "epoch-plus-second":
		return layers.DefaultModTime, nil
	case "now":
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, c.CreationTime)
	if err != nil {
		return time.Time{}, errors.Wrap(errors.CategoryConfiguration, "config",
			"creationTime must be \"epoch-plus-second\", \"now\", or an RFC 3339 timestamp", err)
	}
	return t, nil
}

// ToCopySpec converts the directive into a resolver copy spec.
func (d CopyDirective) ToCopySpec() (layers.CopySpec, error) {
	layerName := d.Layer
	if layerName == "" {
		layerName = "extra"
	}
	spec := layers.NewCopySpec(layerName, d.Src, d.Dest)
	spec.Includes = d.Includes
	spec.Excludes = d.Excludes

	var scope layers.PropertyScope
	if d.FilePermissions != "" {
		mode, err := parseOctalMode(d.FilePermissions)
		if err != nil {
			return layers.CopySpec{}, err
		}
		scope.FilePermissions = &mode
	}
	if d.DirectoryPermissions != "" {
		mode, err := parseOctalMode(d.DirectoryPermissions)
		if err != nil {
			return layers.CopySpec{}, err
		}
		scope.DirectoryPermissions = &mode
	}
	if d.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, d.Timestamp)
		if err != nil {
			return layers.CopySpec{}, errors.Wrap(errors.CategoryConfiguration, "config",
				"copy directive timestamp must be RFC 3339", err)
		}
		scope.ModTime = &t
	}
	if d.Owner != "" {
		owner, err := parseOwner(d.Owner)
		if err != nil {
			return layers.CopySpec{}, err
		}
		scope.Owner = &owner
	}
	spec.Properties = scope
	return spec, nil
}

func parseOctalMode(s string) (mode os.FileMode, err error) {
	v, parseErr := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if parseErr != nil || v > 0o777 {
		return 0, errors.Newf(errors.CategoryConfiguration, "config",
			"permissions must be octal between 000 and 777, got %q", s)
	}
	return os.FileMode(v), nil
}

func parseOwner(s string) (layers.Owner, error) {
	parts := strings.SplitN(s, ":", 2)
	owner := layers.Owner{User: parts[0]}
	if len(parts) == 2 {
		owner.Group = parts[1]
	}
	if owner.User == "" && owner.Group == "" {
		return layers.Owner{}, errors.Newf(errors.CategoryConfiguration, "config",
			"owner must be \"user\", \"user:group\", or numeric ids, got %q", s)
	}
	return owner, nil
}
