package watch

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/chatline/cmd/chatline/internal"
	"github.com/tinyland-inc/chatline/pkg/client"
	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/sidebar"
	"github.com/tinyland-inc/chatline/pkg/unread"
)

// parseRooms reads id=name[=unread] room arguments into the sidebar rooms
// and the unread snapshot the badges start from.
func parseRooms(direct, groups []string, friendRequests int) ([]sidebar.Room, unread.State, error) {
	var rooms []sidebar.Room
	snapshot := unread.State{Rooms: make(map[string]int), FriendRequests: friendRequests}
	parse := func(arg string, group bool) error {
		parts := strings.SplitN(arg, "=", 3)
		if len(parts) < 2 {
			return fmt.Errorf("invalid room %q, want id=name[=unread]", arg)
		}
		id, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if id == "" || name == "" {
			return fmt.Errorf("invalid room %q, want id=name[=unread]", arg)
		}
		if len(parts) == 3 {
			n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
			if err != nil {
				return fmt.Errorf("invalid unread count in %q: %w", arg, err)
			}
			snapshot.Rooms[id] = n
		}
		rooms = append(rooms, sidebar.Room{ID: protocol.ID(id), Name: name, IsGroup: group})
		return nil
	}
	for _, s := range direct {
		if err := parse(s, false); err != nil {
			return nil, unread.State{}, err
		}
	}
	for _, s := range groups {
		if err := parse(s, true); err != nil {
			return nil, unread.State{}, err
		}
	}
	snapshot = unread.Normalize(snapshot)
	for _, n := range snapshot.Rooms {
		snapshot.Global += n
	}
	return rooms, snapshot, nil
}

func watchCmd(cmd *cobra.Command, rooms []sidebar.Room, snapshot unread.State, debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	internal.SetupLogging(cfg, cmd.ErrOrStderr(), debug)

	c, err := internal.NewAPIClient(cfg)
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}

	out := cmd.OutOrStdout()
	id := internal.Identity(cfg)
	bar := sidebar.New(sidebar.Self{ID: id.UserID, Username: id.Username}, rooms...)
	badges := unread.NewStore(snapshot)

	d := client.NewDispatcher(nil)
	n, err := client.NewNotifications(client.NotificationConfig{
		API:        c,
		Identity:   id,
		Dispatcher: d,
		Unread:     badges,
		Sidebar:    bar,
		Toasts:     internal.Toasts(cfg, out),
		Session:    internal.SessionOptions(cfg),
	})
	if err != nil {
		return err
	}

	badges.Subscribe(func(s unread.State) { printBadges(out, s) })
	bar.OnChange(func() { printSidebar(out, bar, badges.State()) })

	ctx, stop := internal.SignalContext()
	defer stop()
	go d.Run(ctx)
	defer d.Close()

	if err := n.Start(ctx); err != nil {
		if errors.Is(err, client.ErrNoIdentity) {
			return fmt.Errorf("set identity.username in %s to watch notifications", internal.GetConfigPath())
		}
		// The session keeps retrying in the background.
		logger.WarnCF("watch", "Notification channel not connected yet", map[string]any{"error": err.Error()})
	}
	defer n.Stop()

	fmt.Fprintf(out, "%s Watching notifications for %s (Ctrl+C to exit)\n", internal.Logo, id.Username)
	printBadges(out, badges.State())
	printSidebar(out, bar, badges.State())
	<-ctx.Done()
	fmt.Fprintln(out, "\nGoodbye!")
	return nil
}

func printBadges(w io.Writer, s unread.State) {
	fmt.Fprintln(w, formatBadges(unread.Badge{Value: s.Global}, unread.Badge{Value: s.FriendRequests}))
}

// formatBadges leaves out counters that are zero.
func formatBadges(messages, friends unread.Badge) string {
	var parts []string
	if messages.Visible() {
		parts = append(parts, "Unread: "+messages.Text())
	}
	if friends.Visible() {
		parts = append(parts, "Friend requests: "+friends.Text())
	}
	if len(parts) == 0 {
		return "No unread messages"
	}
	return strings.Join(parts, "  ")
}

func printSidebar(w io.Writer, bar *sidebar.Sidebar, s unread.State) {
	rooms := bar.Rooms()
	sort.SliceStable(rooms, func(i, j int) bool { return s.Rooms[string(rooms[i].ID)] > s.Rooms[string(rooms[j].ID)] })
	for _, r := range rooms {
		fmt.Fprintln(w, formatRoom(r, s.Rooms[string(r.ID)], bar.Online(r.PeerID)))
	}
}

func formatRoom(r sidebar.Room, count int, online bool) string {
	var b strings.Builder
	if !r.IsGroup && online {
		b.WriteString("● ")
	} else {
		b.WriteString("  ")
	}
	b.WriteString(r.Name)
	if badge := (unread.Badge{Value: count}); badge.Visible() {
		b.WriteString(" (" + badge.Text() + ")")
	}
	if r.Preview != "" {
		b.WriteString("  ")
		b.WriteString(r.Preview)
	}
	return b.String()
}
