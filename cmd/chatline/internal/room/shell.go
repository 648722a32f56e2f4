package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tinyland-inc/chatline/cmd/chatline/internal"
	"github.com/tinyland-inc/chatline/pkg/api"
	"github.com/tinyland-inc/chatline/pkg/client"
	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/timeline"
	"github.com/tinyland-inc/chatline/pkg/transcript"
	"github.com/tinyland-inc/chatline/pkg/typing"
)

var errLeave = errors.New("leave room")

// shownError wraps an error the room already put on the flash line or in a
// toast.
type shownError struct{ error }

func (e shownError) Unwrap() error { return e.error }

func shown(err error) error {
	if err == nil {
		return nil
	}
	return shownError{err}
}

const helpText = `Commands:
  /edit <id> <text>   edit one of your messages
  /delete <id>        delete one of your messages
  /upload <path>      upload a file to the room
  /older              load older messages
  /add <user id>      add a member to this group
  /kick <user id>     remove a member from this group
  /admin <user id>    hand the admin role to a member
  /leavegroup         leave this group
  /deletegroup        delete this group
  /leave              close the room
  /help               show this help`

// shell turns composer lines into room actions and prints room output.
type shell struct {
	name  string
	room  *client.Room
	api   *api.Client
	store *transcript.Store

	mu      sync.Mutex
	out     io.Writer
	notices int
	leave   context.CancelFunc
}

func newShell(name string, c *api.Client, store *transcript.Store, out io.Writer) *shell {
	return &shell{name: name, api: c, store: store, out: out}
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *shell) setOutput(w io.Writer) {
	s.mu.Lock()
	s.out = w
	s.mu.Unlock()
}

// attach hooks the shell to a room built with s.onMessage.
func (s *shell) attach(r *client.Room) {
	s.room = r
	r.Timeline().OnChange(s.printNotices)
	r.Indicator().OnChange(func(text string) {
		if text != "" {
			s.printf("  %s\n", text)
		}
	})
	r.Flash().OnChange(func(text string) {
		if text != "" {
			s.printf("! %s\n", text)
		}
	})
}

func (s *shell) onMessage(m timeline.Message) {
	s.printf("%s\n", formatLine(m))
	if s.store == nil {
		return
	}
	if err := s.store.Put(s.name, m); err != nil {
		logger.WarnCF("room", "Failed to record message", map[string]any{"id": string(m.ID), "error": err.Error()})
	}
}

func formatLine(m timeline.Message) string {
	return fmt.Sprintf("#%-5s %s", m.ID, internal.FormatMessage(m))
}

// printNotices prints notices added at the tail since the last call.
func (s *shell) printNotices() {
	if s.room == nil {
		return
	}
	var notices []string
	for _, it := range s.room.Timeline().Items() {
		if it.Kind == timeline.ItemNotice {
			notices = append(notices, it.Notice)
		}
	}
	s.mu.Lock()
	fresh := notices[min(s.notices, len(notices)):]
	s.notices = len(notices)
	for _, n := range fresh {
		fmt.Fprintf(s.out, "-- %s --\n", n)
	}
	s.mu.Unlock()
}

func (s *shell) keystroke(k typing.Key) {
	if s.room != nil {
		s.room.Keystroke(k)
	}
}

// Navigator, for group notices about this room.

func (s *shell) Current() protocol.ID { return protocol.ID(s.name) }

func (s *shell) Leave() {
	s.printf("You are no longer in this room.\n")
	if s.leave != nil {
		s.leave()
	}
}

func (s *shell) Reload() {
	s.printf("Room details changed.\n")
}

// handle runs one composer line. It returns errLeave when the user closes
// the room.
func (s *shell) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := s.room.Send(line)
		return err
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	roomID := protocol.ID(s.name)

	switch cmd {
	case "help":
		s.printf("%s\n", helpText)
		return nil
	case "leave", "quit", "exit":
		return errLeave
	case "older":
		n, err := s.room.LoadOlder(ctx)
		if err == nil && n == 0 {
			s.printf("No older messages.\n")
		}
		return shown(err)
	case "edit":
		id, text, ok := strings.Cut(arg, " ")
		if !ok || strings.TrimSpace(text) == "" {
			return usage("/edit <id> <text>")
		}
		return shown(s.room.Edit(ctx, protocol.ID(strings.TrimPrefix(id, "#")), text))
	case "delete":
		if arg == "" {
			return usage("/delete <id>")
		}
		return shown(s.room.Delete(ctx, protocol.ID(strings.TrimPrefix(arg, "#"))))
	case "upload":
		if arg == "" {
			return usage("/upload <path>")
		}
		_, err := s.room.Upload(ctx, arg)
		return shown(err)
	case "add", "kick", "admin":
		if arg == "" {
			return usage("/" + cmd + " <user id>")
		}
		user := protocol.ID(arg)
		switch cmd {
		case "add":
			return s.groupAction(s.api.AddMember(ctx, roomID, user), "Member added.")
		case "kick":
			return s.groupAction(s.api.KickMember(ctx, roomID, user), "Member removed.")
		default:
			return s.groupAction(s.api.TransferAdmin(ctx, roomID, user), "Admin role transferred.")
		}
	case "leavegroup":
		if err := s.groupAction(s.api.LeaveGroup(ctx, roomID), "You left the group."); err != nil {
			return err
		}
		return errLeave
	case "deletegroup":
		if err := s.groupAction(s.api.DeleteGroup(ctx, roomID), "Group deleted."); err != nil {
			return err
		}
		return errLeave
	default:
		return fmt.Errorf("unknown command /%s, try /help", cmd)
	}
}

func (s *shell) groupAction(err error, done string) error {
	if err != nil {
		var serr *api.ServerError
		if errors.As(err, &serr) && serr.Message != "" {
			return errors.New(serr.Message)
		}
		return err
	}
	s.printf("%s\n", done)
	return nil
}

func usage(u string) error {
	return fmt.Errorf("usage: %s", u)
}
