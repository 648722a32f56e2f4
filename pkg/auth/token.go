// Package auth reads the browser session that the chat backend
// authenticates with.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tinyland-inc/chatline/pkg/api"
)

var (
	ErrNoInput     = errors.New("no input received")
	ErrNoSessionID = errors.New("session id cannot be empty")
	ErrNoCSRFToken = errors.New("csrf token cannot be empty")
)

// Credentials are the two cookies of a signed-in browser session.
type Credentials struct {
	SessionID string
	CSRFToken string
}

// LoginPasteCookies prompts on w for a Cookie header copied from a signed-in
// browser tab. A bare value is taken as the session id, and the CSRF token
// is then asked for separately.
func LoginPasteCookies(r io.Reader, w io.Writer) (*Credentials, error) {
	scanner := bufio.NewScanner(r)
	read := func(prompt string) (string, error) {
		fmt.Fprintln(w, prompt)
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("reading input: %w", err)
			}
			return "", ErrNoInput
		}
		return strings.TrimSpace(scanner.Text()), nil
	}

	line, err := read("Paste the Cookie header (or the sessionid value) from a signed-in browser tab:")
	if err != nil {
		return nil, err
	}

	creds := &Credentials{}
	if strings.Contains(line, "=") {
		creds = ParseCookieHeader(line)
	} else {
		creds.SessionID = line
	}
	if creds.SessionID == "" {
		return nil, ErrNoSessionID
	}

	if creds.CSRFToken == "" {
		token, err := read("Paste the csrftoken cookie value:")
		if err != nil {
			return nil, err
		}
		creds.CSRFToken = token
	}
	if creds.CSRFToken == "" {
		return nil, ErrNoCSRFToken
	}
	return creds, nil
}

// ParseCookieHeader picks the session and CSRF cookies out of a Cookie
// header value. An optional "Cookie:" prefix is ignored.
func ParseCookieHeader(header string) *Credentials {
	header = strings.TrimSpace(header)
	if name, rest, ok := strings.Cut(header, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "cookie") {
		header = strings.TrimSpace(rest)
	}

	creds := &Credentials{}
	for _, c := range (&http.Request{Header: http.Header{"Cookie": {header}}}).Cookies() {
		switch c.Name {
		case api.SessionCookie:
			creds.SessionID = c.Value
		case api.CSRFCookie:
			creds.CSRFToken = c.Value
		}
	}
	return creds
}
