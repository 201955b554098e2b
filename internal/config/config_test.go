package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "xbacnet.yaml", `
device_ini: /etc/xbacnet/device.ini
db:
  host: 192.168.1.10
  port: 3306
  user: xbacnet
  password: secret
  database: xbacnet
persistence_interval: 60
refreshing_interval: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/xbacnet/device.ini", cfg.DeviceINI)
	assert.Equal(t, "192.168.1.10", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "xbacnet", cfg.Database.User)
	assert.Equal(t, 60, cfg.Tasks.PersistenceInterval)
	assert.Equal(t, 30, cfg.Tasks.RefreshingInterval)
	// Defaults fill the expansion knobs.
	assert.Equal(t, 47808, cfg.BACnet.Port)
	assert.Equal(t, 8000, cfg.API.Port)
}

func TestLoadConfigLegacyIntervalEnv(t *testing.T) {
	path := writeFile(t, "xbacnet.yaml", `
device_ini: /etc/xbacnet/device.ini
db:
  host: localhost
  user: xbacnet
  database: xbacnet
`)
	t.Setenv("PERSISTENCE_INTERVAL", "15")
	t.Setenv("REFRESHING_INTERVAL", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Tasks.PersistenceInterval)
	assert.Equal(t, 5, cfg.Tasks.RefreshingInterval)
}

func TestValidateRejectsMissingOptions(t *testing.T) {
	base := func() *Config {
		return &Config{
			DeviceINI: "/etc/xbacnet/device.ini",
			Database:  DatabaseConfig{Host: "localhost", User: "u", Database: "d"},
			Tasks:     TaskConfig{PersistenceInterval: 60, RefreshingInterval: 60},
		}
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.DeviceINI = ""
	assert.Error(t, c.Validate())

	c = base()
	c.Database.Host = ""
	assert.Error(t, c.Validate())

	c = base()
	c.Tasks.RefreshingInterval = 0
	assert.Error(t, c.Validate())

	c = base()
	c.Tasks.PersistenceInterval = -1
	assert.Error(t, c.Validate())
}

func TestLoadDevice(t *testing.T) {
	path := writeFile(t, "device.ini", `[BACpypes]
objectName: Betelgeuse
address: 192.168.1.2/24
objectIdentifier: 599
maxApduLengthAccepted: 1024
segmentationSupported: segmentedBoth
vendorIdentifier: 15
`)

	dev, err := LoadDevice(path)
	require.NoError(t, err)
	assert.Equal(t, "Betelgeuse", dev.ObjectName)
	assert.Equal(t, uint32(599), dev.ObjectIdentifier)
	assert.Equal(t, uint16(15), dev.VendorIdentifier)

	addr, err := dev.UDPAddr(47808)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.2", addr.IP.String())
	assert.Equal(t, 47808, addr.Port)

	bcast, err := dev.BroadcastAddr(47808)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.255", bcast.IP.String())
}

func TestLoadDeviceWithPort(t *testing.T) {
	path := writeFile(t, "device.ini", `[BACpypes]
objectName: Rigel
address: 10.0.0.5:47809
objectIdentifier: 600
vendorIdentifier: 15
`)

	dev, err := LoadDevice(path)
	require.NoError(t, err)

	addr, err := dev.UDPAddr(47808)
	require.NoError(t, err)
	assert.Equal(t, 47809, addr.Port)
}

func TestLoadDeviceMissingFile(t *testing.T) {
	_, err := LoadDevice("/nonexistent/device.ini")
	assert.Error(t, err)
}

func TestLoadDeviceRejectsBadIdentity(t *testing.T) {
	path := writeFile(t, "device.ini", `[BACpypes]
objectName: Bad
address: 10.0.0.5
objectIdentifier: 4194304
vendorIdentifier: 15
`)
	_, err := LoadDevice(path)
	assert.Error(t, err)

	path = writeFile(t, "device2.ini", `[BACpypes]
address: 10.0.0.5
objectIdentifier: 1
vendorIdentifier: 15
`)
	_, err = LoadDevice(path)
	assert.Error(t, err)
}
