package room

import (
	"github.com/spf13/cobra"
)

type options struct {
	debug  bool
	record bool
}

func NewRoomCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "room <name>",
		Aliases: []string{"r"},
		Short:   "Open an interactive chat room",
		Args:    cobra.ExactArgs(1),
		Example: `  chatline room lobby
  chatline room 42 --record`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return roomCmd(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.record, "record", false, "Store room messages in the local transcript")

	return cmd
}
