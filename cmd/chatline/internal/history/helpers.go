package history

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/chatline/cmd/chatline/internal"
	"github.com/tinyland-inc/chatline/pkg/api"
	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/timeline"
	"github.com/tinyland-inc/chatline/pkg/transcript"
)

func historyCmd(cmd *cobra.Command, room string, opts options) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	internal.SetupLogging(cfg, cmd.ErrOrStderr(), opts.debug)

	var store *transcript.Store
	if opts.record || opts.offline {
		store, err = transcript.Open(cfg.TranscriptPath())
		if err != nil {
			return err
		}
		defer store.Close()
	}

	out := cmd.OutOrStdout()
	if opts.offline {
		msgs, err := store.List(room, opts.limit)
		if err != nil {
			return err
		}
		printMessages(out, msgs)
		return nil
	}

	c, err := internal.NewAPIClient(cfg)
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}

	msgs, err := fetchPages(cmd.Context(), c, room, opts.pages)
	if err != nil {
		return err
	}
	if store != nil {
		if err := store.PutAll(room, msgs); err != nil {
			return fmt.Errorf("record transcript: %w", err)
		}
		logger.InfoCF("history", "Transcript updated", map[string]any{"room": room, "messages": len(msgs)})
	}
	printMessages(out, msgs)
	return nil
}

// fetchPages walks history back from the newest message and returns the
// messages oldest first. It stops early once the server runs out.
func fetchPages(ctx context.Context, c *api.Client, room string, pages int) ([]timeline.Message, error) {
	now := time.Now()
	var newestFirst []timeline.Message
	offset := 0
	for range max(pages, 1) {
		page, err := c.FetchMessages(ctx, room, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch history at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}
		for _, h := range page {
			newestFirst = append(newestFirst, timeline.FromHistory(h, now))
		}
		offset += len(page)
	}
	slices.Reverse(newestFirst)
	return newestFirst, nil
}

func printMessages(w io.Writer, msgs []timeline.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages.")
		return
	}
	for _, m := range msgs {
		fmt.Fprintln(w, internal.FormatMessage(m))
	}
}
