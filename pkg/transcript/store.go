// Package transcript keeps a local copy of room messages in a Pebble
// database so history can be read offline.
package transcript

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/v2"

	"github.com/tinyland-inc/chatline/pkg/logger"
	"github.com/tinyland-inc/chatline/pkg/protocol"
	"github.com/tinyland-inc/chatline/pkg/timeline"
)

var (
	ErrNotFound    = errors.New("message not found in transcript")
	ErrInvalidRoom = errors.New("invalid room name")
)

// Keys:
//
//	m/<room>\x00<unix nanos BE><id>  -> record JSON
//	i/<room>\x00<id>                 -> message key
const (
	messagePrefix = "m/"
	indexPrefix   = "i/"
	sep           = 0x00
)

type record struct {
	ID        protocol.ID `json:"id"`
	SenderID  protocol.ID `json:"sender_id,omitempty"`
	Username  string      `json:"username"`
	FullName  string      `json:"full_name,omitempty"`
	Content   string      `json:"content"`
	Kind      string      `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Edited    bool        `json:"edited,omitempty"`
	Deleted   bool        `json:"deleted,omitempty"`
	IsMe      bool        `json:"is_me,omitempty"`
}

func toRecord(m timeline.Message) record {
	return record{
		ID:        m.ID,
		SenderID:  m.Sender.ID,
		Username:  m.Sender.Username,
		FullName:  m.Sender.FullName,
		Content:   m.Content,
		Kind:      m.Kind.String(),
		Timestamp: m.Timestamp.UTC(),
		Edited:    m.Edited,
		Deleted:   m.Deleted,
		IsMe:      m.IsMe,
	}
}

func (r record) message() timeline.Message {
	m := timeline.Message{
		ID:        r.ID,
		Sender:    timeline.Sender{ID: r.SenderID, Username: r.Username, FullName: r.FullName},
		Content:   r.Content,
		Timestamp: r.Timestamp,
		Edited:    r.Edited,
		Deleted:   r.Deleted,
		IsMe:      r.IsMe,
	}
	switch r.Kind {
	case timeline.KindImage.String():
		m.Kind = timeline.KindImage
	case timeline.KindFile.String():
		m.Kind = timeline.KindFile
	}
	return m
}

type Store struct {
	db *pebble.DB
	mu sync.Mutex
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func roomPrefix(prefix, room string) []byte {
	b := make([]byte, 0, len(prefix)+len(room)+1)
	b = append(b, prefix...)
	b = append(b, room...)
	return append(b, sep)
}

func upperBound(prefix []byte) []byte {
	end := slices.Clone(prefix)
	end[len(end)-1]++
	return end
}

func messageKey(room string, ts time.Time, id protocol.ID) []byte {
	k := roomPrefix(messagePrefix, room)
	k = binary.BigEndian.AppendUint64(k, uint64(ts.UnixNano()))
	return append(k, string(id)...)
}

func indexKey(room string, id protocol.ID) []byte {
	return append(roomPrefix(indexPrefix, room), string(id)...)
}

func checkRoom(room string) error {
	if room == "" || strings.IndexByte(room, sep) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	return nil
}

func (s *Store) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return slices.Clone(v), nil
}

// Put stores m. A message already stored under the same id keeps its
// position and is overwritten.
func (s *Store) Put(room string, m timeline.Message) error {
	if err := checkRoom(room); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.get(indexKey(room, m.ID))
	switch {
	case errors.Is(err, ErrNotFound):
		key = messageKey(room, m.Timestamp, m.ID)
	case err != nil:
		return err
	}

	val, err := json.Marshal(toRecord(m))
	if err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, val, nil); err != nil {
		return err
	}
	if err := b.Set(indexKey(room, m.ID), key, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// PutAll stores a page of messages.
func (s *Store) PutAll(room string, msgs []timeline.Message) error {
	for _, m := range msgs {
		if err := s.Put(room, m); err != nil {
			return err
		}
	}
	logger.DebugCF("transcript", "Stored messages", map[string]any{"room": room, "count": len(msgs)})
	return nil
}

func (s *Store) update(room string, id protocol.ID, fn func(*record)) error {
	if err := checkRoom(room); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.get(indexKey(room, id))
	if err != nil {
		return err
	}
	val, err := s.get(key)
	if err != nil {
		return err
	}
	var r record
	if err := json.Unmarshal(val, &r); err != nil {
		return fmt.Errorf("decode %s: %w", id, err)
	}
	fn(&r)
	out, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Set(key, out, pebble.Sync)
}

// Edit replaces the content of a stored message. Deleted messages stay
// deleted.
func (s *Store) Edit(room string, id protocol.ID, content string) error {
	return s.update(room, id, func(r *record) {
		if r.Deleted {
			return
		}
		r.Content = content
		r.Edited = true
	})
}

func (s *Store) Delete(room string, id protocol.ID) error {
	return s.update(room, id, func(r *record) {
		r.Deleted = true
		r.Content = ""
	})
}

func (s *Store) Get(room string, id protocol.ID) (timeline.Message, error) {
	if err := checkRoom(room); err != nil {
		return timeline.Message{}, err
	}
	key, err := s.get(indexKey(room, id))
	if err != nil {
		return timeline.Message{}, err
	}
	val, err := s.get(key)
	if err != nil {
		return timeline.Message{}, err
	}
	var r record
	if err := json.Unmarshal(val, &r); err != nil {
		return timeline.Message{}, err
	}
	return r.message(), nil
}

// List returns up to limit of the newest messages in room, oldest first.
// A limit of zero or less returns everything.
func (s *Store) List(room string, limit int) ([]timeline.Message, error) {
	if err := checkRoom(room); err != nil {
		return nil, err
	}
	prefix := roomPrefix(messagePrefix, room)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var out []timeline.Message
	for valid := it.Last(); valid; valid = it.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var r record
		if err := json.Unmarshal(it.Value(), &r); err != nil {
			logger.WarnCF("transcript", "Skipping undecodable record", map[string]any{"room": room, "error": err.Error()})
			continue
		}
		out = append(out, r.message())
	}
	slices.Reverse(out)
	return out, nil
}
