package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/tinyland-inc/chatline/pkg/api"
	"github.com/tinyland-inc/chatline/pkg/chattest"
	"github.com/tinyland-inc/chatline/pkg/client"
	"github.com/tinyland-inc/chatline/pkg/config"
)

const waitFor = 3 * time.Second

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type env struct {
	ctx  context.Context
	srv  *chattest.Server
	api  *api.Client
	disp *client.Dispatcher
	me   client.Identity
	bob  chattest.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := chattest.New()
	t.Cleanup(srv.Close)

	c, err := api.NewClient(api.Config{BaseURL: srv.URL, SessionID: srv.SessionID, CSRFToken: srv.CSRFToken})
	if err != nil {
		t.Fatalf("creating api client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d := client.NewDispatcher(nil)
	go d.Run(ctx)
	t.Cleanup(d.Close)

	return &env{
		ctx:  ctx,
		srv:  srv,
		api:  c,
		disp: d,
		me:   client.Identity{UserID: srv.User.ID, Username: srv.User.Username, FullName: srv.User.FullName},
		bob:  chattest.User{ID: "2", Username: "bob", FullName: "Bob Builder"},
	}
}

func newAPIClient(cfg *config.Config) (*api.Client, error) {
	return api.NewClient(api.Config{
		BaseURL:   cfg.Server.BaseURL,
		SessionID: cfg.Auth.SessionID,
		CSRFToken: cfg.Auth.CSRFToken,
		Timeout:   cfg.Server.RequestTimeout(),
	})
}
