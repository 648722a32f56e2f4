package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
)

const (
	CSRFCookie    = "csrftoken"
	CSRFHeader    = "X-CSRFToken"
	SessionCookie = "sessionid"

	defaultTimeout = 15 * time.Second
)

var ErrNoBaseURL = errors.New("base url is required")

// ServerError is a failure reported by the backend, either through an
// {"error": ...} body or a non-2xx status.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Config struct {
	BaseURL   string
	SessionID string
	CSRFToken string
	Timeout   time.Duration
}

// Client talks to the HTTP side of the chat backend. Every state-changing
// request carries the CSRF token read from the cookie jar.
type Client struct {
	http *resty.Client
	base *url.URL
	csrf string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{base: base, csrf: cfg.CSRFToken}
	c.http = resty.New().
		SetBaseURL(base.String()).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	var cookies []*http.Cookie
	if cfg.SessionID != "" {
		cookies = append(cookies, &http.Cookie{Name: SessionCookie, Value: cfg.SessionID, Path: "/"})
	}
	if cfg.CSRFToken != "" {
		cookies = append(cookies, &http.Cookie{Name: CSRFCookie, Value: cfg.CSRFToken, Path: "/"})
	}
	if jar := c.http.GetClient().Jar; jar != nil && len(cookies) > 0 {
		jar.SetCookies(base, cookies)
	}

	c.http.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			return nil
		}
		if token := c.CSRFToken(); token != "" {
			r.SetHeader(CSRFHeader, token)
		}
		r.SetHeader("Referer", c.base.String()+"/")
		return nil
	})

	return c, nil
}

// CSRFToken returns the current csrftoken cookie, falling back to the
// configured token when the jar has none.
func (c *Client) CSRFToken() string {
	if jar := c.http.GetClient().Jar; jar != nil {
		for _, ck := range jar.Cookies(c.base) {
			if ck.Name == CSRFCookie && ck.Value != "" {
				return ck.Value
			}
		}
	}
	return c.csrf
}

// Cookies returns the Cookie header value for websocket handshakes.
func (c *Client) Cookies() string {
	jar := c.http.GetClient().Jar
	if jar == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	for _, ck := range jar.Cookies(c.base) {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

func (c *Client) BaseURL() string { return c.base.String() }

type errorBody struct {
	Error string `json:"error"`
}

func check(resp *resty.Response, bodyErr string) error {
	if resp.IsError() {
		return &ServerError{Status: resp.StatusCode(), Message: bodyErr}
	}
	if bodyErr != "" {
		return &ServerError{Status: resp.StatusCode(), Message: bodyErr}
	}
	return nil
}

type messagesResponse struct {
	Messages []protocol.HistoryMessage `json:"messages"`
	Error    string                    `json:"error"`
}

// FetchMessages returns one history page, newest first. An empty page means
// there is nothing older.
func (c *Client) FetchMessages(ctx context.Context, room string, offset int) ([]protocol.HistoryMessage, error) {
	var out messagesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("room", room).
		SetQueryParam("offset", strconv.Itoa(offset)).
		SetResult(&out).
		SetError(&out).
		Get("/chat/messages/{room}/")
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	if err := check(resp, out.Error); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	logger.DebugCF("api", "Fetched history page", map[string]any{
		"room":   room,
		"offset": offset,
		"rows":   len(out.Messages),
	})
	return out.Messages, nil
}

type uploadResponse struct {
	FileURL string `json:"file_url"`
	Error   string `json:"error"`
}

// Upload validates and sends a file. A *ValidationError is returned without
// any request being made.
func (c *Client) Upload(ctx context.Context, name, contentType string, size int64, r io.Reader) (string, error) {
	if err := ValidateUpload(size, contentType); err != nil {
		return "", err
	}
	if name == "" {
		name = uuid.New().String()
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			name += exts[0]
		}
	}

	var out uploadResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", name, contentType, r).
		SetResult(&out).
		SetError(&out).
		Post("/chat/upload/")
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if err := check(resp, out.Error); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	logger.InfoCF("api", "Uploaded file", map[string]any{"name": name, "bytes": size, "url": out.FileURL})
	return out.FileURL, nil
}

// UploadFile uploads a file from disk, deriving its type from the extension.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Upload(ctx, filepath.Base(path), contentType, info.Size(), f)
}

type editResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

// EditMessage asks the server to replace the content of message id and
// returns the content it stored.
func (c *Client) EditMessage(ctx context.Context, id protocol.ID, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", &ValidationError{Err: ErrEmptyContent}
	}

	var out editResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", string(id)).
		SetFormData(map[string]string{"content": content}).
		SetResult(&out).
		SetError(&out).
		Post("/chat/message/{id}/edit/")
	if err != nil {
		return "", fmt.Errorf("edit message %s: %w", id, err)
	}
	if err := check(resp, out.Error); err != nil {
		return "", fmt.Errorf("edit message %s: %w", id, err)
	}
	return out.Content, nil
}

type successResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) DeleteMessage(ctx context.Context, id protocol.ID) error {
	var out successResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", string(id)).
		SetResult(&out).
		SetError(&out).
		Post("/chat/message/{id}/delete/")
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	if err := check(resp, out.Error); err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	return nil
}
