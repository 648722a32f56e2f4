package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatline/pkg/api"
	"github.com/tinyland-inc/chatline/pkg/chattest"
	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/toast"
)

const waitFor = 2 * time.Second

type harness struct {
	ctx  context.Context
	srv  *chattest.Server
	api  *api.Client
	disp *Dispatcher
	mock *clock.Mock
	me   Identity
	bob  chattest.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := chattest.New()
	t.Cleanup(srv.Close)

	c, err := api.NewClient(api.Config{BaseURL: srv.URL, SessionID: srv.SessionID, CSRFToken: srv.CSRFToken})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d := NewDispatcher(nil)
	go d.Run(ctx)
	t.Cleanup(d.Close)

	mock := clock.NewMock()
	mock.Set(time.Now())

	return &harness{
		ctx:  ctx,
		srv:  srv,
		api:  c,
		disp: d,
		mock: mock,
		me:   Identity{UserID: srv.User.ID, Username: srv.User.Username, FullName: srv.User.FullName},
		bob:  chattest.User{ID: "2", Username: "bob", FullName: "Bob Builder"},
	}
}

type toastRecorder struct {
	mu  sync.Mutex
	got []toast.Toast
}

func (r *toastRecorder) Notify(_ context.Context, t toast.Toast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, t)
	return nil
}

func (r *toastRecorder) all() []toast.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toast.Toast(nil), r.got...)
}

type fakeNav struct {
	mu      sync.Mutex
	current protocol.ID
	leaves  int
	reloads int
}

func (n *fakeNav) Current() protocol.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *fakeNav) Leave() {
	n.mu.Lock()
	n.leaves++
	n.mu.Unlock()
}

func (n *fakeNav) Reload() {
	n.mu.Lock()
	n.reloads++
	n.mu.Unlock()
}

func (n *fakeNav) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaves, n.reloads
}

func notifEvent(t *testing.T, raw string) protocol.InboundEvent {
	t.Helper()
	ev, err := protocol.ParseEvent(protocol.Notifications(), []byte(raw))
	require.NoError(t, err)
	return ev
}
