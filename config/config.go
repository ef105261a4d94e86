// Package config handles application configuration.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	appName        = "voicecoding"
	legacyDirName  = ".voicecode"
	configFileName = "config.json"
)

// Default values applied when the config file is absent or a field is empty.
const (
	DefaultHotkey  = "ctrl+alt+space"
	DefaultSendKey = "enter"

	DefaultDialTimeout     = 10 * time.Second
	DefaultFinalizeTimeout = 4 * time.Second
	DefaultMaxRecording    = 60 * time.Second
)

// Credentials is the xfyun credential triple read at session start.
// The zero value means "not configured".
type Credentials struct {
	AppID     string
	APIKey    string
	APISecret string
}

// Config represents the application configuration.
// Credential fields are stored base64-encoded on disk, matching the file
// format written by earlier releases, so an existing config keeps working.
type Config struct {
	AppID     string `json:"xfyun_appid"`
	APIKey    string `json:"xfyun_api_key"`
	APISecret string `json:"xfyun_api_secret"`

	Hotkey      string `json:"hotkey"`
	WindowTitle string `json:"window_title_keyword"`
	SendKey     string `json:"send_key"`

	// DumpAudioDir, when set, writes each session's captured audio to a
	// WAV file in that directory. Debug aid, off by default.
	DumpAudioDir string `json:"dump_audio_dir,omitempty"`

	// Timeout overrides in milliseconds; zero means use the default.
	DialTimeoutMS     int `json:"dial_timeout_ms,omitempty"`
	FinalizeTimeoutMS int `json:"finalize_timeout_ms,omitempty"`
}

// Load loads configuration from the config file.
// Returns default config if the file doesn't exist.
func Load() (*Config, error) {
	if err := migrateLegacyConfig(); err != nil {
		return nil, fmt.Errorf("migrate legacy config: %w", err)
	}

	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.AppID = decodeSecret(cfg.AppID)
	cfg.APIKey = decodeSecret(cfg.APIKey)
	cfg.APISecret = decodeSecret(cfg.APISecret)
	cfg.applyDefaults()

	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}
	return c.SaveFile(path)
}

// SaveFile persists the configuration to an explicit path.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	onDisk := *c
	onDisk.applyDefaults()
	onDisk.AppID = encodeSecret(c.AppID)
	onDisk.APIKey = encodeSecret(c.APIKey)
	onDisk.APISecret = encodeSecret(c.APISecret)

	data, err := json.MarshalIndent(&onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Credentials returns the decoded credential triple.
func (c *Config) Credentials() Credentials {
	return Credentials{AppID: c.AppID, APIKey: c.APIKey, APISecret: c.APISecret}
}

// Configured reports whether all credential fields are present.
func (c *Config) Configured() bool {
	return c.AppID != "" && c.APIKey != "" && c.APISecret != ""
}

// DialTimeout returns the ASR connection timeout.
func (c *Config) DialTimeout() time.Duration {
	if c.DialTimeoutMS > 0 {
		return time.Duration(c.DialTimeoutMS) * time.Millisecond
	}
	return DefaultDialTimeout
}

// FinalizeTimeout returns how long to wait for the final recognition
// result after end-of-stream has been sent.
func (c *Config) FinalizeTimeout() time.Duration {
	if c.FinalizeTimeoutMS > 0 {
		return time.Duration(c.FinalizeTimeoutMS) * time.Millisecond
	}
	return DefaultFinalizeTimeout
}

// Path returns the location of the config file.
func Path() (string, error) {
	return configPath()
}

func (c *Config) applyDefaults() {
	if c.Hotkey == "" {
		c.Hotkey = DefaultHotkey
	}
	c.SendKey = normalizeSendKey(c.SendKey)
}

// normalizeSendKey coerces the send key to a supported value.
func normalizeSendKey(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v != "enter" && v != "ctrl+enter" {
		return DefaultSendKey
	}
	return v
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

func legacyConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home dir: %w", err)
	}
	return filepath.Join(home, legacyDirName, configFileName), nil
}

func defaultConfig() *Config {
	return &Config{
		Hotkey:  DefaultHotkey,
		SendKey: DefaultSendKey,
	}
}

// migrateLegacyConfig copies the config file written by earlier releases
// (~/.voicecode/config.json) into the current location if the current
// file does not exist yet. The legacy file is left in place.
func migrateLegacyConfig() error {
	newPath, err := configPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(newPath); err == nil {
		return nil
	}

	oldPath, err := legacyConfigPath()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(oldPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read legacy config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(newPath, data, 0644); err != nil {
		return fmt.Errorf("write migrated config: %w", err)
	}
	return nil
}

// encodeSecret obfuscates a credential field for storage.
// Not encryption; it only keeps keys out of casual view and matches the
// on-disk format of earlier releases.
func encodeSecret(v string) string {
	if v == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(v))
}

func decodeSecret(v string) string {
	if v == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
