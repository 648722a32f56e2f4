package history

import (
	"github.com/spf13/cobra"
)

type options struct {
	pages   int
	record  bool
	offline bool
	limit   int
	debug   bool
}

func NewHistoryCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "history <room>",
		Short: "Print room history",
		Args:  cobra.ExactArgs(1),
		Example: `  chatline history lobby
  chatline history lobby --pages 5 --record
  chatline history lobby --offline --limit 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return historyCmd(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.pages, "pages", "p", 1, "Number of history pages to fetch")
	cmd.Flags().BoolVar(&opts.record, "record", false, "Store fetched messages in the local transcript")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Read from the local transcript instead of the server")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "Messages to show with --offline")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
