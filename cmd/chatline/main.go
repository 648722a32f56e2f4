// Chatline - terminal client for the chat real-time protocol
// License: MIT
//
// Copyright (c) 2026 Chatline contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/chatline/cmd/chatline/internal"
	"github.com/tinyland-inc/chatline/cmd/chatline/internal/history"
	"github.com/tinyland-inc/chatline/cmd/chatline/internal/login"
	"github.com/tinyland-inc/chatline/cmd/chatline/internal/room"
	"github.com/tinyland-inc/chatline/cmd/chatline/internal/version"
	"github.com/tinyland-inc/chatline/cmd/chatline/internal/watch"
)

func NewChatlineCommand() *cobra.Command {
	short := fmt.Sprintf("%s chatline - terminal chat client v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "chatline",
		Short:   short,
		Example: "chatline room lobby",
	}

	cmd.AddCommand(
		login.NewLoginCommand(),
		watch.NewWatchCommand(),
		room.NewRoomCommand(),
		history.NewHistoryCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewChatlineCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
