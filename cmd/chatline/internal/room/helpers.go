package room

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/chatline/cmd/chatline/internal"
	"github.com/tinyland-inc/chatline/pkg/client"
	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/transcript"
)

func roomCmd(cmd *cobra.Command, name string, opts options) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	internal.SetupLogging(cfg, cmd.ErrOrStderr(), opts.debug)

	c, err := internal.NewAPIClient(cfg)
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}

	var store *transcript.Store
	if opts.record || cfg.Storage.Record {
		store, err = transcript.Open(cfg.TranscriptPath())
		if err != nil {
			return err
		}
		defer store.Close()
	}

	ctx, stop := internal.SignalContext()
	defer stop()
	ctx, leave := context.WithCancel(ctx)
	defer leave()

	sh := newShell(name, c, store, cmd.OutOrStdout())
	sh.leave = leave

	var rl *readline.Instance
	rl, err = readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s %s> ", internal.Logo, name),
		HistoryFile:     filepath.Join(os.TempDir(), ".chatline_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "/leave",
		Listener:        keystrokeListener(sh.keystroke),
	})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error initializing readline: %v\n", err)
		fmt.Fprintln(cmd.ErrOrStderr(), "Falling back to simple input mode...")
		rl = nil
	} else {
		defer rl.Close()
		sh.setOutput(rl.Stdout())
	}

	id := internal.Identity(cfg)
	toasts := internal.Toasts(cfg, sh.out)
	d := client.NewDispatcher(nil)
	go d.Run(ctx)
	defer d.Close()

	r, err := client.NewRoom(client.RoomConfig{
		Room:       name,
		Identity:   id,
		API:        c,
		Dispatcher: d,
		Toasts:     toasts,
		Timings:    internal.RoomTimings(cfg),
		Session:    internal.SessionOptions(cfg),
		OnMessage:  sh.onMessage,
	})
	if err != nil {
		return err
	}
	sh.attach(r)
	if err := r.Start(ctx); err != nil {
		logger.WarnCF("room", "Room not fully loaded", map[string]any{"room": name, "error": err.Error()})
	}
	defer r.Stop()
	// the printed history page is what the user has on screen
	r.SetViewportHeight(cfg.Room.PageSize)
	r.ScrollToBottom()

	// Group notices about this room arrive on the account channel.
	n, err := client.NewNotifications(client.NotificationConfig{
		API:        c,
		Identity:   id,
		Dispatcher: d,
		Toasts:     toasts,
		Navigator:  sh,
		Session:    internal.SessionOptions(cfg),
	})
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil && !errors.Is(err, client.ErrNoIdentity) {
		logger.WarnCF("room", "Notification channel not connected yet", map[string]any{"error": err.Error()})
	}
	defer n.Stop()

	sh.printf("%s Joined %s. Type /help for commands.\n", internal.Logo, name)
	if rl != nil {
		interactiveMode(ctx, sh, rl)
	} else {
		simpleInteractiveMode(ctx, sh, os.Stdin)
	}
	return nil
}

func interactiveMode(ctx context.Context, sh *shell, rl *readline.Instance) {
	go func() {
		<-ctx.Done()
		rl.Close()
	}()
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				sh.printf("\nGoodbye!\n")
				return
			}
			sh.printf("Error reading input: %v\n", err)
			continue
		}
		if done := runLine(ctx, sh, line); done {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, sh *shell, in io.Reader) {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			sh.printf("\nGoodbye!\n")
			return
		case line, ok := <-lines:
			if !ok {
				sh.printf("\nGoodbye!\n")
				return
			}
			if done := runLine(ctx, sh, line); done {
				return
			}
		}
	}
}

// runLine reports true when the room should close.
func runLine(ctx context.Context, sh *shell, line string) bool {
	err := sh.handle(ctx, line)
	switch {
	case err == nil:
		return false
	case errors.Is(err, errLeave):
		sh.printf("Goodbye!\n")
		return true
	case errors.As(err, new(shownError)):
		return false
	default:
		sh.printf("Error: %v\n", err)
		return false
	}
}
