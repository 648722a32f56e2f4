package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
)

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (c *Client) groupAction(ctx context.Context, action string, roomID protocol.ID, path string) error {
	var out statusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Post(path)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if err := check(resp, out.Error); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if out.Status != "ok" {
		return fmt.Errorf("%s: %w", action, &ServerError{Status: resp.StatusCode(), Message: "unexpected status " + out.Status})
	}
	logger.InfoCF("api", "Group action done", map[string]any{"action": action, "room_id": string(roomID)})
	return nil
}

func groupPath(roomID protocol.ID, parts ...string) string {
	p := "/chat/group/" + url.PathEscape(string(roomID)) + "/"
	for _, part := range parts {
		p += url.PathEscape(part) + "/"
	}
	return p
}

func (c *Client) LeaveGroup(ctx context.Context, roomID protocol.ID) error {
	return c.groupAction(ctx, "leave group", roomID, groupPath(roomID, "leave"))
}

func (c *Client) KickMember(ctx context.Context, roomID, userID protocol.ID) error {
	return c.groupAction(ctx, "kick member", roomID, groupPath(roomID, "kick", string(userID)))
}

func (c *Client) TransferAdmin(ctx context.Context, roomID, userID protocol.ID) error {
	return c.groupAction(ctx, "transfer admin", roomID, groupPath(roomID, "transfer", string(userID)))
}

func (c *Client) DeleteGroup(ctx context.Context, roomID protocol.ID) error {
	return c.groupAction(ctx, "delete group", roomID, groupPath(roomID, "delete"))
}

func (c *Client) AddMember(ctx context.Context, roomID, userID protocol.ID) error {
	return c.groupAction(ctx, "add member", roomID, groupPath(roomID, "add", string(userID)))
}
