package conf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault_MatchesShippedFrontend(t *testing.T) {
	t.Parallel()

	s := Default()
	assert.Equal(t, "ac-transporte-v2", s.Cache.Version)
	assert.Contains(t, s.Cache.Manifest, "/offline.html")
	assert.Contains(t, s.Cache.Manifest, "/manifest.json")
	assert.Equal(t, "/offline.html", s.Cache.OfflinePage)
	assert.True(t, s.Geo.HighAccuracy)
	assert.Equal(t, 5*time.Second, s.Geo.MaxSampleAge.Std())
	assert.Equal(t, 10*time.Second, s.Geo.PerSampleTimeout.Std())
	require.NoError(t, s.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
webserver:
  port: 9090
geo:
  maxsampleage: 2s
cache:
  version: ac-transporte-v3
`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, s.WebServer.Port)
	assert.Equal(t, 2*time.Second, s.Geo.MaxSampleAge.Std())
	assert.Equal(t, "ac-transporte-v3", s.Cache.Version)

	// Untouched settings keep their defaults.
	assert.Equal(t, 10*time.Second, s.Geo.PerSampleTimeout.Std())
	assert.Same(t, s, GetSettings())
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid defaults", func(*Settings) {}, ""},
		{"empty version", func(s *Settings) { s.Cache.Version = "" }, "cache.version"},
		{"empty manifest", func(s *Settings) { s.Cache.Manifest = nil }, "cache.manifest"},
		{"empty asset root", func(s *Settings) { s.Cache.AssetRoot = "" }, "cache.assetroot"},
		{"zero sample timeout", func(s *Settings) { s.Geo.PerSampleTimeout = 0 }, "persampletimeout"},
		{"bad driver", func(s *Settings) { s.Docstore.Driver = "postgres" }, "docstore.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := Default()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDuration_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"string", `"10s"`, 10 * time.Second},
		{"compound string", `"1m30s"`, 90 * time.Second},
		{"nanosecond number", `5000000000`, 5 * time.Second},
		{"null resets", `null`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var d Duration
			require.NoError(t, json.Unmarshal([]byte(tt.input), &d))
			assert.Equal(t, tt.want, d.Std())
		})
	}

	out, err := json.Marshal(Duration(10 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"10s"`, string(out))
}

func TestDuration_JSONInvalid(t *testing.T) {
	t.Parallel()

	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`"not-a-duration"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte(`5s`), &d))
	assert.Equal(t, 5*time.Second, d.Std())

	// Bare integers are nanoseconds, for configs written by older tooling.
	require.NoError(t, yaml.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, d.Std())

	out, err := yaml.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "1m30s\n", string(out))

	assert.Error(t, yaml.Unmarshal([]byte(`nonsense`), &d))
}
