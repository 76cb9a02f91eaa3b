package configuration

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type localConfiguration struct {
	Version Version           `yaml:"version"`
	Log     *localLog         `yaml:"log"`
	Mirrors map[string]string `yaml:"mirrors,omitempty"`
}

type localLog struct {
	Formatter string `yaml:"formatter,omitempty"`
}

var expectedLocalConfig = localConfiguration{
	Version: "0.1",
	Log: &localLog{
		Formatter: "json",
	},
	Mirrors: map[string]string{
		"primary":   "https://pkg.example.com/primary",
		"secondary": "https://pkg.example.com/secondary",
	},
}

const testLocalConfig = `version: "0.1"
log:
  formatter: "text"
mirrors:
  primary: "https://pkg.example.com/primary"`

func newLocalParser(config localConfiguration) *Parser {
	return NewParser("pkg6repo", []VersionedParseInfo{
		{
			Version: "0.1",
			ParseAs: reflect.TypeOf(config),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				return c, nil
			},
		},
	})
}

func TestParserOverwriteUninitializedPointer(t *testing.T) {
	config := localConfiguration{}
	t.Setenv("PKG6REPO_LOG_FORMATTER", "json")
	t.Setenv("PKG6REPO_MIRRORS_SECONDARY", `"https://pkg.example.com/secondary"`)

	err := newLocalParser(config).Parse([]byte(testLocalConfig), &config)
	require.NoError(t, err)
	require.Equal(t, expectedLocalConfig, config)
}

func TestParserRejectsUnsupportedVersion(t *testing.T) {
	config := localConfiguration{}

	err := newLocalParser(config).Parse([]byte(`version: "9.9"`), &config)
	require.Error(t, err)
}
