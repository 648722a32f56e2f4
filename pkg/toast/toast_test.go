package toast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := map[string]string{
		"Team":                     "Team",
		"<script>x()</script>Team": "Team",
		"R&amp;D":                  "R&D",
		"  <i>pad</i>  ":           "pad",
	}
	for in, want := range tests {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q): got %q, want %q", in, got, want)
		}
	}
}

type recordSink struct {
	mu   sync.Mutex
	got  []Toast
	fail error
}

func (r *recordSink) Notify(_ context.Context, t Toast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, t)
	return r.fail
}

func TestMultiSink_DeliversToAll(t *testing.T) {
	boom := errors.New("boom")
	a := &recordSink{fail: boom}
	b := &recordSink{}

	err := MultiSink{a, LogSink{}, b}.Notify(context.Background(), Warning("careful"))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
	assert.Equal(t, Toast{Level: LevelWarning, Text: "careful"}, b.got[0])
}

func TestFuncSink(t *testing.T) {
	var got Toast
	require.NoError(t, FuncSink(func(t Toast) { got = t }).Notify(context.Background(), Success("ok")))
	assert.Equal(t, LevelSuccess, got.Level)
}

func TestSlackSink(t *testing.T) {
	var body struct {
		Text string `json:"text"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewSlackSink(srv.URL+"/services/T/B/X", srv.Client())
	require.NoError(t, err)
	require.NoError(t, sink.Notify(context.Background(), Error("upload failed")))
	assert.Equal(t, ":x: upload failed", body.Text)
}

func TestSlackSink_BadURL(t *testing.T) {
	_, err := NewSlackSink("not a url", nil)
	assert.ErrorIs(t, err, ErrInvalidWebhook)
}

type fakeDiscord struct {
	id, token string
	params    *discordgo.WebhookParams
	err       error
}

func (f *fakeDiscord) WebhookExecute(id, token string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.id, f.token, f.params = id, token, data
	return nil, f.err
}

func TestDiscordSink(t *testing.T) {
	sink, err := NewDiscordSink("https://discord.com/api/webhooks/123/abc")
	require.NoError(t, err)
	fake := &fakeDiscord{}
	sink.session = fake

	require.NoError(t, sink.Notify(context.Background(), Info(`Group "ops" was deleted`)))
	assert.Equal(t, "123", fake.id)
	assert.Equal(t, "abc", fake.token)
	assert.Equal(t, `**info** Group "ops" was deleted`, fake.params.Content)

	fake.err = errors.New("rate limited")
	assert.Error(t, sink.Notify(context.Background(), Info("x")))
}

func TestParseDiscordWebhook(t *testing.T) {
	_, _, err := parseDiscordWebhook("https://discord.com/api/webhooks/123")
	assert.ErrorIs(t, err, ErrInvalidWebhook)

	id, token, err := parseDiscordWebhook("https://discordapp.com/api/v10/webhooks/9/tok/")
	require.NoError(t, err)
	assert.Equal(t, "9", id)
	assert.Equal(t, "tok", token)
}

func TestFlash_AutoClears(t *testing.T) {
	mock := clock.NewMock()
	f := NewFlash(mock)

	var mu sync.Mutex
	var seen []string
	f.OnChange(func(text string) {
		mu.Lock()
		seen = append(seen, text)
		mu.Unlock()
	})

	f.Show("File type not allowed")
	assert.Equal(t, "File type not allowed", f.Text())

	mock.Add(3 * time.Second)
	assert.Equal(t, "File type not allowed", f.Text())

	mock.Add(time.Second)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, f.Text())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"File type not allowed", ""}, seen)
}

func TestFlash_ShowRestartsTimer(t *testing.T) {
	mock := clock.NewMock()
	f := NewFlash(mock)

	f.Show("first")
	mock.Add(3 * time.Second)
	f.Show("second")
	mock.Add(2 * time.Second)
	assert.Equal(t, "second", f.Text())

	mock.Add(2 * time.Second)
	require.Eventually(t, func() bool { return f.Text() == "" }, time.Second, 5*time.Millisecond)
}

func TestFlash_Clear(t *testing.T) {
	f := NewFlash(clock.NewMock())
	f.Show("x")
	f.Clear()
	assert.Empty(t, f.Text())
}
