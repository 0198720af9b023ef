package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/maf/types"
)

func TestConfig_ValidateRequiresPlatform(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform.org")
}

func TestConfig_ValidateNormalizesOrgCase(t *testing.T) {
	cfg := &Config{Platform: PlatformConfig{Org: "C360", ID: "router-1"}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "c360", cfg.Platform.Org)
}

func TestConfig_ValidateRejectsBadOrgForNATSSubject(t *testing.T) {
	cfg := &Config{Platform: PlatformConfig{Org: "c360 inc", ID: "router-1"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid for NATS subjects")
}

func TestConfig_ValidateDuplicateServiceID(t *testing.T) {
	cfg := &Config{
		Platform: PlatformConfig{Org: "c360", ID: "router-1"},
		Providers: types.ProviderConfigs{
			"echo-a": {Name: "echo-a", ServiceID: 1, Enabled: true},
			"echo-b": {Name: "echo-b", ServiceID: 1, Enabled: true},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service_id 1")
}

func TestConfig_Clone(t *testing.T) {
	cfg := &Config{
		Platform: PlatformConfig{Org: "c360", ID: "router-1"},
		Providers: types.ProviderConfigs{
			"echo": {Name: "echo", ServiceID: 1, Enabled: true},
		},
	}
	clone := cfg.Clone()
	clone.Providers["echo"] = types.ProviderConfig{Name: "echo", ServiceID: 2, Enabled: false}

	if cfg.Providers["echo"].ServiceID != 1 {
		t.Fatal("mutating the clone mutated the original")
	}
}

func TestLoader_Defaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.True(t, cfg.NATS.JetStream.Enabled)
}

func TestLoader_LoadFileMergesOverLayerDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")

	body := `{
		"platform": {"org": "c360", "id": "router-1"},
		"nats": {"urls": ["nats://nats-1:4222"]},
		"providers": {"echo": {"name": "echo", "service_id": 1, "enabled": true}}
	}`
	require.NoError(t, os.WriteFile(configFile, []byte(body), 0o644))

	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(configFile)
	require.NoError(t, err)

	assert.Equal(t, "c360", cfg.Platform.Org)
	assert.Equal(t, []string{"nats://nats-1:4222"}, cfg.NATS.URLs)
	assert.Equal(t, uint64(1), cfg.Providers["echo"].ServiceID)
	// default JetStream setting survives the merge since the override omits it
	assert.True(t, cfg.NATS.JetStream.Enabled)
}

func TestLoader_ValidationRejectsMissingPlatform(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(configFile, []byte(`{"nats":{}}`), 0o644))

	loader := NewLoader()
	loader.EnableValidation(true)
	_, err := loader.LoadFile(configFile)
	require.Error(t, err)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("MAF_PLATFORM_ID", "router-from-env")
	t.Setenv("MAF_NATS_URLS", "nats://a:4222,nats://b:4222")

	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "router-from-env", cfg.Platform.ID)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
}

func TestLoader_ReconnectWaitParsedFromDurationString(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")
	body := `{"platform":{"org":"c360","id":"r1"},"nats":{"reconnect_wait":"5s"}}`
	require.NoError(t, os.WriteFile(configFile, []byte(body), 0o644))

	loader := NewLoader()
	cfg, err := loader.LoadFile(configFile)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
}

func TestConfig_SaveAndLoadRoundTrip(t *testing.T) {
	cfg := &Config{
		Version:  "1.0.0",
		Platform: PlatformConfig{Org: "c360", ID: "router-1"},
		Providers: types.ProviderConfigs{
			"echo": {Name: "echo", ServiceID: 1, Enabled: true, Config: json.RawMessage(`{}`)},
		},
	}
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.json")
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Platform.ID, loaded.Platform.ID)
	assert.Equal(t, cfg.Providers["echo"].ServiceID, loaded.Providers["echo"].ServiceID)
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.2.0", "1.1.9", 1},
		{"1.0.0", "1.0.1", -1},
		{"v2.0.0", "1.9.9", 1},
	}
	for _, tc := range cases {
		got, err := CompareVersions(tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s vs %s", tc.a, tc.b)
	}
}
