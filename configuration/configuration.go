package configuration

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
)

// Configuration is a versioned pkgrepo configuration, intended to be
// provided by a yaml file, and optionally overridden by environment
// variables.
//
// Note that yaml field names should never include _ characters, since
// this is the separator used in environment variable names.
type Configuration struct {
	// Version is the version which defines the format of the rest of the
	// configuration.
	Version Version `yaml:"version"`

	// Log supports setting various parameters related to the logging
	// subsystem.
	Log Log `yaml:"log"`

	// Repository describes the on-disk repository this process operates
	// against.
	Repository Repository `yaml:"repository"`

	// Index configures the embedded search index backing the repository.
	Index Index `yaml:"index,omitempty"`
}

// Repository defines the on-disk repository a pkgrepo process operates
// against.
type Repository struct {
	// Root is the filesystem path to the repository root, the directory
	// containing pkg6.image.json, the publisher directories, and the
	// staging area.
	Root string `yaml:"root"`

	// DefaultPublisher names the publisher assumed when a CLI invocation
	// does not specify one explicitly.
	DefaultPublisher string `yaml:"defaultpublisher,omitempty"`
}

// Index configures the embedded key-value store backing the repository's
// search index.
type Index struct {
	// Path is the directory holding the index's key-value database. Parse
	// fills in no default for an empty value, and the repository package
	// opens its index at <root>/search without reading this setting.
	Path string `yaml:"path,omitempty"`

	// MaxFastIndexed is the combined fast_add/fast_remove entry count past
	// which a full rebuild is due; Parse defaults it to 100. The repository
	// package uses search.DefaultMaxFastIndexed without reading this
	// setting.
	MaxFastIndexed int `yaml:"maxfastindexed,omitempty"`
}

// Log represents the configuration for logging within the application.
type Log struct {
	// AccessLog configures access logging of repository operations.
	AccessLog AccessLog `yaml:"accesslog,omitempty"`

	// Level is the granularity at which operations are logged.
	Level Loglevel `yaml:"level,omitempty"`

	// Formatter overrides the default formatter with another. Options
	// include "text" and "json".
	Formatter string `yaml:"formatter,omitempty"`

	// Fields allows users to specify static string fields to include in
	// the logger context.
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	// Hooks allows users to configure the log hooks, enabling additional
	// handling behavior when messages at a given level are emitted.
	Hooks []LogHook `yaml:"hooks,omitempty"`

	// ReportCaller allows users to configure the log to report the caller.
	ReportCaller bool `yaml:"reportcaller,omitempty"`
}

// AccessLog configures options for access logging.
type AccessLog struct {
	// Disabled disables access logging.
	Disabled bool `yaml:"disabled,omitempty"`
}

// LogHook configures a single logrus hook.
type LogHook struct {
	// Disabled lets the user select to enable the hook or not.
	Disabled bool `yaml:"disabled,omitempty"`

	// Type selects which hook handler is wanted, e.g. "file" or "syslog".
	Type string `yaml:"type,omitempty"`

	// Levels sets which levels of log message will trigger the hook.
	Levels []string `yaml:"levels,omitempty"`

	// Path is the hook-specific destination, such as a file path, when
	// Type requires one.
	Path string `yaml:"path,omitempty"`
}

// v0_1Configuration is a Version 0.1 Configuration struct.
// This is currently aliased to Configuration, as it is the current version.
type v0_1Configuration Configuration

// Version is a major/minor version pair of the form Major.Minor.
// Major version upgrades indicate structure or type changes; minor
// version upgrades should be strictly additive.
type Version string

// MajorMinorVersion constructs a Version from its Major and Minor
// components.
func MajorMinorVersion(major, minor uint) Version {
	return Version(fmt.Sprintf("%d.%d", major, minor))
}

func (version Version) major() (uint, error) {
	return parseVersionPart(string(version), 0)
}

// Major returns the major version portion of a Version.
func (version Version) Major() uint {
	major, _ := version.major()
	return major
}

func (version Version) minor() (uint, error) {
	return parseVersionPart(string(version), 1)
}

// Minor returns the minor version portion of a Version.
func (version Version) Minor() uint {
	minor, _ := version.minor()
	return minor
}

func parseVersionPart(version string, index int) (uint, error) {
	parts := strings.Split(version, ".")
	if index >= len(parts) {
		return 0, fmt.Errorf("invalid version %q", version)
	}
	var n uint
	_, err := fmt.Sscanf(parts[index], "%d", &n)
	return n, err
}

// UnmarshalYAML implements the yaml.Unmarshaler interface. Unmarshals a
// string of the form X.Y into a Version, validating that X and Y can
// represent unsigned integers.
func (version *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var versionString string
	if err := unmarshal(&versionString); err != nil {
		return err
	}

	newVersion := Version(versionString)
	if _, err := newVersion.major(); err != nil {
		return err
	}
	if _, err := newVersion.minor(); err != nil {
		return err
	}

	*version = newVersion
	return nil
}

// CurrentVersion is the most recent Version that can be parsed.
var CurrentVersion = MajorMinorVersion(0, 1)

// Loglevel is the level at which operations are logged.
// This can be error, warn, info, or debug.
type Loglevel string

// UnmarshalYAML implements the yaml.Unmarshaler interface. Unmarshals a
// string into a Loglevel, lowercasing the string and validating that it
// represents a valid loglevel.
func (loglevel *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var loglevelString string
	if err := unmarshal(&loglevelString); err != nil {
		return err
	}

	loglevelString = strings.ToLower(loglevelString)
	switch loglevelString {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid loglevel %s must be one of [error, warn, info, debug]", loglevelString)
	}

	*loglevel = Loglevel(loglevelString)
	return nil
}

// Parse parses an input configuration yaml document into a Configuration
// struct.
//
// Environment variables may be used to override configuration parameters
// other than version, following the scheme below:
// Configuration.Abc may be replaced by the value of PKG6REPO_ABC,
// Configuration.Abc.Xyz may be replaced by the value of PKG6REPO_ABC_XYZ,
// and so forth.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("pkg6repo", []VersionedParseInfo{
		{
			Version: MajorMinorVersion(0, 1),
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				v0_1, ok := c.(*v0_1Configuration)
				if !ok {
					return nil, fmt.Errorf("expected *v0_1Configuration, received %#v", c)
				}

				if v0_1.Log.Level == Loglevel("") {
					v0_1.Log.Level = Loglevel("info")
				}

				if v0_1.Index.MaxFastIndexed <= 0 {
					v0_1.Index.MaxFastIndexed = 100
				}

				if v0_1.Repository.Root == "" {
					return nil, errors.New("no repository root configured")
				}

				return (*Configuration)(v0_1), nil
			},
		},
	})

	config := new(Configuration)
	if err := p.Parse(in, config); err != nil {
		return nil, err
	}

	return config, nil
}
