package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

var (
	ErrNoBaseURL       = errors.New("server.base_url is required")
	ErrInvalidBaseURL  = errors.New("server.base_url must be an http or https url")
	ErrInvalidLogLevel = errors.New("log.level must be one of debug, info, warn, error")
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Identity IdentityConfig `json:"identity"`
	Auth     AuthConfig     `json:"auth"`
	Session  SessionConfig  `json:"session"`
	Room     RoomConfig     `json:"room"`
	Notify   NotifyConfig   `json:"notify,omitzero"`
	Storage  StorageConfig  `json:"storage"`
	Log      LogConfig      `json:"log"`
}

// MarshalJSON omits the notify section when no webhook is configured.
func (c Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	aux := &struct {
		*Alias

		Notify *NotifyConfig `json:"notify,omitempty"`
	}{
		Alias: (*Alias)(&c),
	}

	if !c.Notify.IsEmpty() {
		aux.Notify = &c.Notify
	}

	return json.Marshal(aux)
}

type ServerConfig struct {
	BaseURL string `env:"CHATLINE_SERVER_BASE_URL" json:"base_url"`
	Timeout int    `env:"CHATLINE_SERVER_TIMEOUT"  json:"timeout"` // seconds
}

// IdentityConfig is the signed-in account. Without a username the
// notification channel is not opened.
type IdentityConfig struct {
	UserID   string `env:"CHATLINE_IDENTITY_USER_ID"   json:"user_id"`
	Username string `env:"CHATLINE_IDENTITY_USERNAME"  json:"username"`
	FullName string `env:"CHATLINE_IDENTITY_FULL_NAME" json:"full_name"`
}

type AuthConfig struct {
	SessionID string `env:"CHATLINE_AUTH_SESSION_ID" json:"session_id"`
	CSRFToken string `env:"CHATLINE_AUTH_CSRF_TOKEN" json:"csrf_token"`
}

type SessionConfig struct {
	ReconnectDelayMS int `env:"CHATLINE_SESSION_RECONNECT_DELAY_MS" json:"reconnect_delay_ms"`
	HandshakeTimeout int `env:"CHATLINE_SESSION_HANDSHAKE_TIMEOUT"  json:"handshake_timeout"` // seconds
}

type RoomConfig struct {
	PageSize          int `env:"CHATLINE_ROOM_PAGE_SIZE"           json:"page_size"`
	TypingIdleMS      int `env:"CHATLINE_ROOM_TYPING_IDLE_MS"      json:"typing_idle_ms"`
	TypingHideMS      int `env:"CHATLINE_ROOM_TYPING_HIDE_MS"      json:"typing_hide_ms"`
	TypingExpiryMS    int `env:"CHATLINE_ROOM_TYPING_EXPIRY_MS"    json:"typing_expiry_ms"`
	ReceiptDebounceMS int `env:"CHATLINE_ROOM_RECEIPT_DEBOUNCE_MS" json:"receipt_debounce_ms"`
	BottomThreshold   int `env:"CHATLINE_ROOM_BOTTOM_THRESHOLD"    json:"bottom_threshold"`
	LeaveWindowMS     int `env:"CHATLINE_ROOM_LEAVE_WINDOW_MS"     json:"leave_window_ms"`
}

// NotifyConfig forwards toasts to chat webhooks in addition to the terminal.
type NotifyConfig struct {
	SlackWebhookURL   string `env:"CHATLINE_NOTIFY_SLACK_WEBHOOK_URL"   json:"slack_webhook_url"`
	DiscordWebhookURL string `env:"CHATLINE_NOTIFY_DISCORD_WEBHOOK_URL" json:"discord_webhook_url"`
}

func (n NotifyConfig) IsEmpty() bool {
	return n.SlackWebhookURL == "" && n.DiscordWebhookURL == ""
}

type StorageConfig struct {
	TranscriptDir string `env:"CHATLINE_STORAGE_TRANSCRIPT_DIR" json:"transcript_dir"`
	Record        bool   `env:"CHATLINE_STORAGE_RECORD"         json:"record"`
}

type LogConfig struct {
	Level string `env:"CHATLINE_LOG_LEVEL" json:"level"`
	JSON  bool   `env:"CHATLINE_LOG_JSON"  json:"json"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 15,
		},
		Session: SessionConfig{
			ReconnectDelayMS: 3000,
			HandshakeTimeout: 10,
		},
		Room: RoomConfig{
			PageSize:          20,
			TypingIdleMS:      1000,
			TypingHideMS:      300,
			TypingExpiryMS:    5000,
			ReceiptDebounceMS: 100,
			BottomThreshold:   50,
			LeaveWindowMS:     2000,
		},
		Storage: StorageConfig{
			TranscriptDir: "~/.chatline/transcript",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return ErrNoBaseURL
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.Server.BaseURL)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	return nil
}

// HasIdentity reports whether enough of the account is known to open the
// notification channel.
func (c *Config) HasIdentity() bool {
	return c.Identity.Username != ""
}

func (c *Config) TranscriptPath() string {
	return expandHome(c.Storage.TranscriptDir)
}

func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

func (s SessionConfig) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectDelayMS) * time.Millisecond
}

func (s SessionConfig) Handshake() time.Duration {
	return time.Duration(s.HandshakeTimeout) * time.Second
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (r RoomConfig) TypingIdle() time.Duration      { return ms(r.TypingIdleMS) }
func (r RoomConfig) TypingHide() time.Duration      { return ms(r.TypingHideMS) }
func (r RoomConfig) TypingExpiry() time.Duration    { return ms(r.TypingExpiryMS) }
func (r RoomConfig) ReceiptDebounce() time.Duration { return ms(r.ReceiptDebounceMS) }
func (r RoomConfig) LeaveWindow() time.Duration     { return ms(r.LeaveWindowMS) }

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
