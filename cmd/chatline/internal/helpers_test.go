package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatline/pkg/config"
	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/timeline"
	"github.com/tinyland-inc/chatline/pkg/toast"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("HOME", "/tmp/home")
	assert.Equal(t, filepath.Join("/tmp/home", ".chatline", "config.json"), GetConfigPath())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".chatline"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".chatline", ".env"),
		[]byte("CHATLINE_IDENTITY_USERNAME=dotenv-user\n"), 0o600))

	// Restored on cleanup; unset so godotenv is allowed to fill it.
	t.Setenv("CHATLINE_IDENTITY_USERNAME", "")
	os.Unsetenv("CHATLINE_IDENTITY_USERNAME")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "dotenv-user", cfg.Identity.Username)
	assert.Equal(t, "http://localhost:8000", cfg.Server.BaseURL)
}

func TestSetupLogging(t *testing.T) {
	defer logger.SetLevel(logger.GetLevel())

	cfg := config.DefaultConfig()
	cfg.Log.Level = "warn"
	var buf bytes.Buffer
	SetupLogging(cfg, &buf, false)
	assert.Equal(t, logger.WARN, logger.GetLevel())

	SetupLogging(cfg, &buf, true)
	assert.Equal(t, logger.DEBUG, logger.GetLevel())

	cfg.Log.Level = "loud"
	SetupLogging(cfg, &buf, false)
	assert.Equal(t, logger.INFO, logger.GetLevel())

	logger.SetOutput(os.Stderr, false)
}

func TestIdentityAndTimings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Identity.UserID = "7"
	cfg.Identity.Username = "me"

	id := Identity(cfg)
	assert.Equal(t, protocol.ID("7"), id.UserID)
	assert.Equal(t, "me", id.Username)

	tm := RoomTimings(cfg)
	assert.Equal(t, 20, tm.PageSize)
	assert.Equal(t, time.Second, tm.TypingIdle)
	assert.Equal(t, 100*time.Millisecond, tm.ReceiptDebounce)
	assert.Len(t, SessionOptions(cfg), 2)
}

func TestToasts_SkipsBadWebhook(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Notify.DiscordWebhookURL = "https://example.com/not-a-webhook"

	var buf bytes.Buffer
	sink := Toasts(cfg, &buf)
	require.Len(t, sink, 1)

	require.NoError(t, sink.Notify(t.Context(), toast.Warning("careful")))
	if got, want := buf.String(), "⚠ careful\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "dev", FormatVersion())
	_, goVer := FormatBuildInfo()
	assert.NotEmpty(t, goVer)
}

func TestFormatMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 5, 0, 0, time.Local)
	bob := timeline.Sender{ID: "2", Username: "bob", FullName: "Bob Builder"}

	tests := []struct {
		name string
		msg  timeline.Message
		want string
	}{
		{"text", timeline.Message{Sender: bob, Content: "hi", Timestamp: at}, "[09:05] Bob Builder: hi"},
		{"own", timeline.Message{Sender: bob, Content: "hi", Timestamp: at, IsMe: true}, "[09:05] You: hi"},
		{"edited", timeline.Message{Sender: bob, Content: "hi", Timestamp: at, Edited: true}, "[09:05] Bob Builder: hi (edited)"},
		{"deleted", timeline.Message{Sender: bob, Content: "", Timestamp: at, Deleted: true}, "[09:05] Bob Builder: This message was deleted"},
		{"image", timeline.Message{Sender: bob, Content: "/media/uploads/cat.png", Kind: timeline.KindImage, Timestamp: at}, "[09:05] Bob Builder: [image] cat.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMessage(tt.msg); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
