// Package chattest runs an in-process imitation of the chat backend: the two
// websocket endpoints plus the HTTP endpoints the client calls.
package chattest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/chatline/pkg/protocol"
)

const (
	DefaultSessionID = "test-session"
	DefaultCSRFToken = "test-csrf-token"
	pageSize         = 20
)

type User struct {
	ID       protocol.ID
	Username string
	FullName string
}

// Request is one recorded HTTP call.
type Request struct {
	Method string
	Path   string
	CSRF   string
}

type stored struct {
	id        int
	sender    User
	content   string
	isFile    bool
	deleted   bool
	timestamp time.Time
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
	path string
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

type Server struct {
	URL       string
	SessionID string
	CSRFToken string
	User      User

	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu               sync.Mutex
	messages         map[string][]*stored
	nextID           int
	requests         []Request
	reads            map[string]int
	dials            map[string]int
	conns            map[*wsConn]struct{}
	uploads          map[string][]byte
	failGroupActions bool
}

func New() *Server {
	s := &Server{
		SessionID: DefaultSessionID,
		CSRFToken: DefaultCSRFToken,
		User:      User{ID: "1", Username: "me", FullName: "Me Myself"},
		messages:  make(map[string][]*stored),
		reads:     make(map[string]int),
		dials:     make(map[string]int),
		conns:     make(map[*wsConn]struct{}),
		uploads:   make(map[string][]byte),
	}

	r := chi.NewRouter()
	r.Use(s.record, s.authenticate)
	r.Get("/ws/notifications/", s.handleWS)
	r.Get("/ws/chat/{room}/", s.handleWS)
	r.Get("/chat/messages/{room}/", s.handleMessages)
	r.Group(func(r chi.Router) {
		r.Use(s.requireCSRF)
		r.Post("/chat/upload/", s.handleUpload)
		r.Post("/chat/message/{id}/edit/", s.handleEdit)
		r.Post("/chat/message/{id}/delete/", s.handleDelete)
		r.Post("/chat/group/{room}/{action}/", s.handleGroup)
		r.Post("/chat/group/{room}/{action}/{user}/", s.handleGroup)
	})

	s.srv = httptest.NewServer(r)
	s.URL = s.srv.URL
	return s
}

func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			CSRF:   r.Header.Get("X-CSRFToken"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("sessionid")
		if err != nil || ck.Value != s.SessionID {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("csrftoken")
		header := r.Header.Get("X-CSRFToken")
		if err != nil || header == "" || header != ck.Value {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "CSRF verification failed"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Seed appends n messages from "bob" to room.
func (s *Server) Seed(room string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bob := User{ID: "2", Username: "bob", FullName: "Bob Builder"}
	for i := 0; i < n; i++ {
		s.storeLocked(room, bob, "seed message "+strconv.Itoa(s.nextID+1), false)
	}
}

func (s *Server) storeLocked(room string, sender User, content string, isFile bool) *stored {
	s.nextID++
	m := &stored{
		id:        s.nextID,
		sender:    sender,
		content:   content,
		isFile:    isFile,
		timestamp: time.Now().UTC(),
	}
	s.messages[room] = append(s.messages[room], m)
	return m
}

func (s *Server) findLocked(id int) (string, *stored) {
	for room, msgs := range s.messages {
		for _, m := range msgs {
			if m.id == id {
				return room, m
			}
		}
	}
	return "", nil
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	s.mu.Lock()
	msgs := s.messages[room]
	rows := make([]protocol.HistoryMessage, 0, pageSize)
	for i := len(msgs) - 1 - offset; i >= 0 && len(rows) < pageSize; i-- {
		m := msgs[i]
		rows = append(rows, protocol.HistoryMessage{
			ID:        protocol.ID(strconv.Itoa(m.id)),
			Sender:    m.sender.Username,
			Content:   m.content,
			Timestamp: m.timestamp.Format(time.RFC3339Nano),
			IsFile:    m.isFile,
			IsImage:   m.isFile && strings.HasSuffix(strings.ToLower(m.content), ".png"),
			IsMe:      m.sender.ID == s.User.ID,
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"messages": rows})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file provided"})
		return
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file provided"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Read failed"})
		return
	}

	url := "/media/uploads/" + header.Filename
	s.mu.Lock()
	s.uploads[url] = data
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"file_url": url})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	content := strings.TrimSpace(r.PostFormValue("content"))

	s.mu.Lock()
	room, m := s.findLocked(id)
	switch {
	case m == nil:
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Message not found"})
		return
	case m.sender.ID != s.User.ID:
		s.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "You can only edit your own messages"})
		return
	case m.deleted || m.isFile:
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "This message cannot be edited"})
		return
	case time.Since(m.timestamp) > 15*time.Minute:
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Edit window has expired"})
		return
	case content == "":
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Content cannot be empty"})
		return
	}
	m.content = content
	s.mu.Unlock()

	s.PushRoom(room, map[string]any{
		"event":      protocol.KindMessageEdited,
		"message_id": id,
		"content":    content,
		"sender_id":  s.User.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": content})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	s.mu.Lock()
	room, m := s.findLocked(id)
	if m == nil || m.sender.ID != s.User.ID {
		s.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "You can only delete your own messages"})
		return
	}
	m.deleted = true
	s.mu.Unlock()

	s.PushRoom(room, map[string]any{"event": protocol.KindMessageDeleted, "message_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleGroup(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	fail := s.failGroupActions
	s.mu.Unlock()
	if fail {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Only the admin can do that"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// FailGroupActions makes every group endpoint reject the call.
func (s *Server) FailGroupActions(fail bool) {
	s.mu.Lock()
	s.failGroupActions = fail
	s.mu.Unlock()
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestCount counts recorded calls with the given method whose path starts
// with prefix.
func (s *Server) RequestCount(method, prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) Upload(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.uploads[url]
	return data, ok
}

// Messages returns room's history oldest first, including deleted rows.
func (s *Server) Messages(room string) []protocol.HistoryMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.HistoryMessage
	for _, m := range s.messages[room] {
		out = append(out, protocol.HistoryMessage{
			ID:      protocol.ID(strconv.Itoa(m.id)),
			Sender:  m.sender.Username,
			Content: m.content,
			IsFile:  m.isFile,
			IsMe:    m.sender.ID == s.User.ID,
		})
	}
	return out
}

// Reads counts message_read frames received for room.
func (s *Server) Reads(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[room]
}

// Dials counts websocket handshakes accepted on path.
func (s *Server) Dials(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials[path]
}

// Connections counts websocket connections currently open on path.
func (s *Server) Connections(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for c := range s.conns {
		if c.path == path {
			n++
		}
	}
	return n
}
