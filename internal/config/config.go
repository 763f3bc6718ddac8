// Package config loads and persists the bridge settings: a JSON file on
// disk, overridden by environment variables, updated through the HTTP
// config endpoint.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const DefaultPath = "/etc/upsbridge/config.json"

// Settings is the serialized form of the configuration.
type Settings struct {
	DeviceName      string `json:"device_name"`
	HTTPAddr        string `json:"http_addr"`
	SNMPCommunity   string `json:"snmp_community"`
	TrapDestination string `json:"trap_destination"` // host or host:port, empty disables traps
	PollIntervalMS  int    `json:"poll_interval_ms"`
	USBVendorID     uint16 `json:"usb_vendor_id"`  // 0 = any HID power device
	USBProductID    uint16 `json:"usb_product_id"` // 0 = any
	Username        string `json:"username"`
	PasswordHash    string `json:"password_hash"` // bcrypt, empty disables auth
}

// Config is the live configuration. Reads and updates are safe from any
// goroutine; updates are written back to the file they were loaded from.
type Config struct {
	mu       sync.RWMutex
	path     string
	settings Settings
}

func defaults() Settings {
	return Settings{
		DeviceName:     "UPS gateway",
		HTTPAddr:       ":8080",
		SNMPCommunity:  "public",
		PollIntervalMS: 1000,
	}
}

// Load reads the configuration file at path, falling back to defaults when
// the file does not exist, then applies environment overrides. The file path
// is remembered for Save.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	c := &Config{path: path, settings: defaults()}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &c.settings); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	c.applyEnv()
	return c, nil
}

// applyEnv overrides file values with UPSBRIDGE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("UPSBRIDGE_DEVICE_NAME"); v != "" {
		c.settings.DeviceName = v
	}
	if v := os.Getenv("UPSBRIDGE_HTTP_ADDR"); v != "" {
		c.settings.HTTPAddr = v
	}
	if v := os.Getenv("UPSBRIDGE_SNMP_COMMUNITY"); v != "" {
		c.settings.SNMPCommunity = v
	}
	if v := os.Getenv("UPSBRIDGE_TRAP_DESTINATION"); v != "" {
		c.settings.TrapDestination = v
	}
	if v := os.Getenv("UPSBRIDGE_POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.settings.PollIntervalMS = ms
		}
	}
	if v := os.Getenv("UPSBRIDGE_USB_VID"); v != "" {
		if id, err := strconv.ParseUint(v, 0, 16); err == nil {
			c.settings.USBVendorID = uint16(id)
		}
	}
	if v := os.Getenv("UPSBRIDGE_USB_PID"); v != "" {
		if id, err := strconv.ParseUint(v, 0, 16); err == nil {
			c.settings.USBProductID = uint16(id)
		}
	}
}

// Snapshot returns a copy of the current settings.
func (c *Config) Snapshot() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Override merges the non-zero fields of s into the configuration without
// persisting, for command-line flags.
func (c *Config) Override(s Settings) {
	c.mu.Lock()
	c.merge(s)
	c.mu.Unlock()
}

// Update merges the non-zero fields of s into the configuration and persists
// the result. Credentials are updated through SetPassword, not here.
func (c *Config) Update(s Settings) error {
	c.mu.Lock()
	c.merge(s)
	c.mu.Unlock()
	return c.Save()
}

func (c *Config) merge(s Settings) {
	if s.DeviceName != "" {
		c.settings.DeviceName = s.DeviceName
	}
	if s.HTTPAddr != "" {
		c.settings.HTTPAddr = s.HTTPAddr
	}
	if s.SNMPCommunity != "" {
		c.settings.SNMPCommunity = s.SNMPCommunity
	}
	if s.TrapDestination != "" {
		c.settings.TrapDestination = s.TrapDestination
	}
	if s.PollIntervalMS > 0 {
		c.settings.PollIntervalMS = s.PollIntervalMS
	}
	if s.USBVendorID != 0 {
		c.settings.USBVendorID = s.USBVendorID
	}
	if s.USBProductID != 0 {
		c.settings.USBProductID = s.USBProductID
	}
}

// Save writes the settings back to the configuration file.
func (c *Config) Save() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.settings, "", "  ")
	path := c.path
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// PollInterval returns the SNMP poll cadence.
func (c *Config) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.settings.PollIntervalMS) * time.Millisecond
}

// SetPassword stores a bcrypt hash of plain and persists it.
func (c *Config) SetPassword(username, plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.settings.Username = username
	c.settings.PasswordHash = string(hash)
	c.mu.Unlock()
	return c.Save()
}

// CheckCredentials verifies a basic-auth pair. With no password configured
// every request is accepted.
func (c *Config) CheckCredentials(username, plain string) bool {
	c.mu.RLock()
	user, hash := c.settings.Username, c.settings.PasswordHash
	c.mu.RUnlock()
	if hash == "" {
		return true
	}
	if username != user {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// AuthRequired reports whether credentials are configured.
func (c *Config) AuthRequired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.PasswordHash != ""
}
