package configuration

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfigYAML = `
version: 0.1
log:
  level: debug
  formatter: text
  fields:
    environment: test
repository:
  root: /srv/pkg6/repo
  defaultpublisher: example.com
index:
  maxfastindexed: 250
`

func TestParseReadsConfiguredValues(t *testing.T) {
	cfg, err := Parse(bytes.NewBufferString(sampleConfigYAML))
	require.NoError(t, err)

	require.Equal(t, CurrentVersion, cfg.Version)
	require.Equal(t, Loglevel("debug"), cfg.Log.Level)
	require.Equal(t, "/srv/pkg6/repo", cfg.Repository.Root)
	require.Equal(t, "example.com", cfg.Repository.DefaultPublisher)
	require.Equal(t, 250, cfg.Index.MaxFastIndexed)
}

func TestParseDefaultsLogLevelAndMaxFastIndexed(t *testing.T) {
	const minimal = `
version: 0.1
repository:
  root: /srv/pkg6/repo
`
	cfg, err := Parse(bytes.NewBufferString(minimal))
	require.NoError(t, err)

	require.Equal(t, Loglevel("info"), cfg.Log.Level)
	require.Equal(t, 100, cfg.Index.MaxFastIndexed)
}

func TestParseRequiresRepositoryRoot(t *testing.T) {
	const missingRoot = `
version: 0.1
repository: {}
`
	_, err := Parse(bytes.NewBufferString(missingRoot))
	require.Error(t, err)
}

func TestParseEnvironmentOverride(t *testing.T) {
	t.Setenv("PKG6REPO_REPOSITORY_ROOT", "/override/repo")

	cfg, err := Parse(bytes.NewBufferString(sampleConfigYAML))
	require.NoError(t, err)
	require.Equal(t, "/override/repo", cfg.Repository.Root)
}

func TestLoglevelRejectsUnknownValue(t *testing.T) {
	var level Loglevel
	err := level.UnmarshalYAML(func(v interface{}) error {
		*(v.(*string)) = "verbose"
		return nil
	})
	require.Error(t, err)
}

func TestVersionMajorMinor(t *testing.T) {
	v := MajorMinorVersion(0, 1)
	require.EqualValues(t, 0, v.Major())
	require.EqualValues(t, 1, v.Minor())
}
