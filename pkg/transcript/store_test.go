package transcript

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/timeline"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func msg(id int, offset time.Duration) timeline.Message {
	return timeline.Message{
		ID:        protocol.ID(fmt.Sprint(id)),
		Sender:    timeline.Sender{ID: "2", Username: "bob", FullName: "Bob B"},
		Content:   fmt.Sprintf("message %d", id),
		Timestamp: base.Add(offset),
	}
}

func TestPutList_Roundtrip(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Put("lobby", msg(2, 2*time.Second)))
	require.NoError(t, s.Put("lobby", msg(1, time.Second)))
	img := msg(3, 3*time.Second)
	img.Kind = timeline.KindImage
	img.Content = "/media/uploads/cat.png"
	require.NoError(t, s.Put("lobby", img))
	require.NoError(t, s.Put("other", msg(9, 0)))

	got, err := s.List("lobby", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, protocol.ID("1"), got[0].ID, "ordered by timestamp")
	assert.Equal(t, protocol.ID("3"), got[2].ID)
	assert.Equal(t, timeline.KindImage, got[2].Kind)
	assert.Equal(t, "Bob B", got[0].Sender.FullName)
	assert.True(t, got[0].Timestamp.Equal(base.Add(time.Second)))
}

func TestList_Limit(t *testing.T) {
	s := openStore(t)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Put("lobby", msg(i, time.Duration(i)*time.Second)))
	}

	got, err := s.List("lobby", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, protocol.ID("4"), got[0].ID)
	assert.Equal(t, protocol.ID("5"), got[1].ID)
}

func TestPut_SameIDOverwrites(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put("lobby", msg(1, time.Second)))

	again := msg(1, time.Hour)
	again.Content = "updated"
	require.NoError(t, s.Put("lobby", again))

	got, err := s.List("lobby", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "updated", got[0].Content)
}

func TestEditDelete(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.PutAll("lobby", []timeline.Message{msg(1, 0), msg(2, time.Second)}))

	require.NoError(t, s.Edit("lobby", "1", "fixed typo"))
	m, err := s.Get("lobby", "1")
	require.NoError(t, err)
	assert.Equal(t, "fixed typo", m.Content)
	assert.True(t, m.Edited)

	require.NoError(t, s.Delete("lobby", "1"))
	require.NoError(t, s.Edit("lobby", "1", "resurrect"))
	m, err = s.Get("lobby", "1")
	require.NoError(t, err)
	assert.True(t, m.Deleted)
	assert.Empty(t, m.Content)

	assert.ErrorIs(t, s.Edit("lobby", "404", "x"), ErrNotFound)
	_, err = s.Get("other", "2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidRoom(t *testing.T) {
	s := openStore(t)
	assert.ErrorIs(t, s.Put("", msg(1, 0)), ErrInvalidRoom)
	_, err := s.List("bad\x00room", 0)
	assert.ErrorIs(t, err, ErrInvalidRoom)
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put("lobby", msg(1, 0)))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.List("lobby", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
