package configuration

import (
	"bytes"
	"testing"
)

// FuzzConfigurationParse exercises Parse against arbitrary byte input; it
// should never panic, regardless of how malformed the yaml is.
func FuzzConfigurationParse(f *testing.F) {
	f.Add([]byte(sampleConfigYAML))
	f.Fuzz(func(t *testing.T, data []byte) {
		rd := bytes.NewReader(data)
		_, _ = Parse(rd)
	})
}
