package watch

import (
	"github.com/spf13/cobra"
)

func NewWatchCommand() *cobra.Command {
	var (
		debug   bool
		direct  []string
		groups  []string
		friends int
	)

	cmd := &cobra.Command{
		Use:     "watch",
		Aliases: []string{"w"},
		Short:   "Follow unread badges, room previews and group notices",
		Args:    cobra.NoArgs,
		Example: `  chatline watch
  chatline watch --room 10=bob --group 20=team
  chatline watch --room 10=bob=3 --friend-requests 1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rooms, snapshot, err := parseRooms(direct, groups, friends)
			if err != nil {
				return err
			}
			return watchCmd(cmd, rooms, snapshot, debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringArrayVar(&direct, "room", nil, "Direct room to show in the sidebar, as id=name[=unread]")
	cmd.Flags().StringArrayVar(&groups, "group", nil, "Group room to show in the sidebar, as id=name[=unread]")
	cmd.Flags().IntVar(&friends, "friend-requests", 0, "Pending friend requests to start the badge from")

	return cmd
}
