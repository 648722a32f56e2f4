package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tinyland-inc/chatline/pkg/api"
	"github.com/tinyland-inc/chatline/pkg/client"
	"github.com/tinyland-inc/chatline/pkg/config"
	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/session"
	"github.com/tinyland-inc/chatline/pkg/timeline"
	"github.com/tinyland-inc/chatline/pkg/toast"
)

const Logo = "💬"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

func GetHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatline")
}

func GetConfigPath() string {
	return filepath.Join(GetHomeDir(), "config.json")
}

// LoadConfig reads .env files into the environment, then the JSON config
// with CHATLINE_* overrides. Variables already set win over .env values.
func LoadConfig() (*config.Config, error) {
	for _, path := range []string{".env", filepath.Join(GetHomeDir(), ".env")} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", path, err)
		}
	}
	return config.LoadConfig(GetConfigPath())
}

// SetupLogging applies the configured level and format. debug forces the
// debug level.
func SetupLogging(cfg *config.Config, w io.Writer, debug bool) {
	logger.SetOutput(w, cfg.Log.JSON)
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logger.INFO
	}
	if debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)
}

func NewAPIClient(cfg *config.Config) (*api.Client, error) {
	return api.NewClient(api.Config{
		BaseURL:   cfg.Server.BaseURL,
		SessionID: cfg.Auth.SessionID,
		CSRFToken: cfg.Auth.CSRFToken,
		Timeout:   cfg.Server.RequestTimeout(),
	})
}

func Identity(cfg *config.Config) client.Identity {
	return client.Identity{
		UserID:   protocol.ID(cfg.Identity.UserID),
		Username: cfg.Identity.Username,
		FullName: cfg.Identity.FullName,
	}
}

func SessionOptions(cfg *config.Config) []session.Option {
	return []session.Option{
		session.WithReconnectDelay(cfg.Session.ReconnectDelay()),
		session.WithHandshakeTimeout(cfg.Session.Handshake()),
	}
}

func RoomTimings(cfg *config.Config) client.RoomTimings {
	r := cfg.Room
	return client.RoomTimings{
		PageSize:        r.PageSize,
		TypingIdle:      r.TypingIdle(),
		TypingHide:      r.TypingHide(),
		TypingExpiry:    r.TypingExpiry(),
		ReceiptDebounce: r.ReceiptDebounce(),
		BottomThreshold: r.BottomThreshold,
		LeaveWindow:     r.LeaveWindow(),
	}
}

// Toasts prints to out and forwards to every configured webhook. A webhook
// that fails to parse is logged and skipped.
func Toasts(cfg *config.Config, out io.Writer) toast.MultiSink {
	sinks := toast.MultiSink{
		toast.FuncSink(func(t toast.Toast) { PrintToast(out, t) }),
	}
	if u := cfg.Notify.SlackWebhookURL; u != "" {
		s, err := toast.NewSlackSink(u, &http.Client{Timeout: cfg.Server.RequestTimeout()})
		if err != nil {
			logger.WarnCF("cli", "Ignoring Slack webhook", map[string]any{"error": err.Error()})
		} else {
			sinks = append(sinks, s)
		}
	}
	if u := cfg.Notify.DiscordWebhookURL; u != "" {
		s, err := toast.NewDiscordSink(u)
		if err != nil {
			logger.WarnCF("cli", "Ignoring Discord webhook", map[string]any{"error": err.Error()})
		} else {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

var toastIcons = map[toast.Level]string{
	toast.LevelInfo:    "ℹ",
	toast.LevelSuccess: "✔",
	toast.LevelWarning: "⚠",
	toast.LevelError:   "✖",
}

func PrintToast(out io.Writer, t toast.Toast) {
	fmt.Fprintf(out, "%s %s\n", toastIcons[t.Level], t.Text)
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}

// FormatMessage renders one timeline message as a terminal line.
func FormatMessage(m timeline.Message) string {
	name := m.Sender.DisplayName()
	if m.IsMe {
		name = "You"
	}
	body := m.Content
	switch {
	case m.Deleted:
		body = timeline.Tombstone
	case m.Kind != timeline.KindText:
		body = fmt.Sprintf("[%s] %s", m.Kind, m.FileName())
	case m.Edited:
		body += " (edited)"
	}
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format("15:04"), name, body)
}
