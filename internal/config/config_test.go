package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	s := cfg.Snapshot()
	assert.Equal(t, "UPS gateway", s.DeviceName)
	assert.Equal(t, ":8080", s.HTTPAddr)
	assert.Equal(t, "public", s.SNMPCommunity)
	assert.Equal(t, time.Second, cfg.PollInterval())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"device_name": "rack UPS",
		"trap_destination": "192.0.2.7:1162",
		"poll_interval_ms": 250
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	s := cfg.Snapshot()
	assert.Equal(t, "rack UPS", s.DeviceName)
	assert.Equal(t, "192.0.2.7:1162", s.TrapDestination)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	// Untouched fields keep their defaults.
	assert.Equal(t, ":8080", s.HTTPAddr)
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"device_name":"from file"}`), 0o600))

	t.Setenv("UPSBRIDGE_DEVICE_NAME", "from env")
	t.Setenv("UPSBRIDGE_USB_VID", "0x0463")

	cfg, err := Load(path)
	require.NoError(t, err)

	s := cfg.Snapshot()
	assert.Equal(t, "from env", s.DeviceName)
	assert.Equal(t, uint16(0x0463), s.USBVendorID)
}

func TestUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.Update(Settings{DeviceName: "updated", PollIntervalMS: 500}))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "updated", reloaded.Snapshot().DeviceName)
	assert.Equal(t, 500*time.Millisecond, reloaded.PollInterval())
	// Zero fields in the update must not clobber existing values.
	assert.Equal(t, ":8080", reloaded.Snapshot().HTTPAddr)
}

func TestOverrideDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Override(Settings{HTTPAddr: ":9090"})
	assert.Equal(t, ":9090", cfg.Snapshot().HTTPAddr)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "Override must not write the file")
}

func TestCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	require.NoError(t, err)

	// Without a password everything is accepted.
	assert.False(t, cfg.AuthRequired())
	assert.True(t, cfg.CheckCredentials("anyone", "anything"))

	require.NoError(t, cfg.SetPassword("admin", "hunter2"))
	assert.True(t, cfg.AuthRequired())
	assert.True(t, cfg.CheckCredentials("admin", "hunter2"))
	assert.False(t, cfg.CheckCredentials("admin", "wrong"))
	assert.False(t, cfg.CheckCredentials("intruder", "hunter2"))

	// The hash survives a reload.
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, reloaded.CheckCredentials("admin", "hunter2"))
}
