package store

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/middleware"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/services/cache"
	"github.com/parleychat/parley/internal/services/recordstore"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStore(t *testing.T, remote recordstore.Store) *MessageStore {
	t.Helper()
	s := NewMessageStore(cache.NewLocal(), remote, nil, middleware.NewMetrics(), testLogger())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return base }
	return s
}

func TestAppendAssignsIDAndTokenCount(t *testing.T) {
	s := newTestStore(t, nil)

	msg := s.Append(context.Background(), "room1", models.Message{Text: "hello there", Author: "Ada"})
	if msg == nil {
		t.Fatal("expected message to be accepted")
	}
	if msg.ID == "" {
		t.Error("expected an id to be assigned")
	}
	if msg.TokenCount != 3 {
		t.Errorf("token count = %d, want 3", msg.TokenCount)
	}
	if got := s.Messages("room1"); len(got) != 1 {
		t.Fatalf("log length = %d, want 1", len(got))
	}
}

func TestAppendRejectsDuplicateWithinWindow(t *testing.T) {
	s := newTestStore(t, nil)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Now = func() time.Time { return base }
	if got := s.Append(context.Background(), "room1", models.Message{Text: "same text", Author: "Ada"}); got == nil {
		t.Fatal("first append rejected")
	}

	s.Now = func() time.Time { return base.Add(500 * time.Millisecond) }
	if got := s.Append(context.Background(), "room1", models.Message{Text: "same  text", Author: "Ada"}); got != nil {
		t.Error("duplicate within window was accepted")
	}

	// Same text from a different author is fine.
	if got := s.Append(context.Background(), "room1", models.Message{Text: "same text", Author: "Grace"}); got == nil {
		t.Error("different author was rejected")
	}

	// Outside the window the same text is a new message.
	s.Now = func() time.Time { return base.Add(2 * time.Second) }
	if got := s.Append(context.Background(), "room1", models.Message{Text: "same text", Author: "Ada"}); got == nil {
		t.Error("repeat outside window was rejected")
	}

	if got := s.Messages("room1"); len(got) != 3 {
		t.Errorf("log length = %d, want 3", len(got))
	}
}

func TestAppendRejectsEmpty(t *testing.T) {
	s := newTestStore(t, nil)
	if got := s.Append(context.Background(), "room1", models.Message{Author: "Ada"}); got != nil {
		t.Error("empty message was accepted")
	}
}

type fakeRemote struct {
	record  *models.Record
	loadErr error
	saved   chan *models.Record
}

func (f *fakeRemote) Load(ctx context.Context) (*models.Record, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.record, nil
}

func (f *fakeRemote) Save(ctx context.Context, record *models.Record) error {
	if f.saved != nil {
		f.saved <- record
	}
	return nil
}

func TestLoadSortsAndDedupsByID(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	record := models.NewRecord()
	record.Messages["room1"] = []models.Message{
		{ID: "b", Text: "second", Author: "Ada", Timestamp: base.Add(time.Minute)},
		{ID: "a", Text: "first draft", Author: "Grace", Timestamp: base},
		{ID: "a", Text: "first final", Author: "Grace", Timestamp: base},
		{Text: "no id", Author: "Ada", Timestamp: base.Add(2 * time.Minute)},
	}
	s := newTestStore(t, &fakeRemote{record: record})

	got, err := s.Load(context.Background(), "room1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d messages, want 3", len(got))
	}
	if got[0].Text != "first final" {
		t.Errorf("got[0].Text = %q, want last write for duplicated id", got[0].Text)
	}
	if got[1].ID != "b" || got[2].Text != "no id" {
		t.Errorf("unexpected order: %q, %q", got[1].Text, got[2].Text)
	}
	if got[2].ID == "" {
		t.Error("missing id was not assigned on load")
	}
}

func TestLoadFallsBackToLocalCache(t *testing.T) {
	local := cache.NewLocal()
	local.SaveMessages("room1", []models.Message{
		{ID: "a", Text: "cached", Author: "Ada", Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	})
	s := NewMessageStore(local, &fakeRemote{loadErr: context.DeadlineExceeded}, nil, middleware.NewMetrics(), testLogger())

	got, err := s.Load(context.Background(), "room1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Text != "cached" {
		t.Errorf("got %v, want the cached message", got)
	}
}

func TestAppendPersistsRemoteAsync(t *testing.T) {
	remote := &fakeRemote{record: models.NewRecord(), saved: make(chan *models.Record, 1)}
	s := newTestStore(t, remote)

	s.Append(context.Background(), "room1", models.Message{Text: "hello", Author: "Ada"})

	select {
	case record := <-remote.saved:
		if len(record.Messages["room1"]) != 1 {
			t.Errorf("remote record has %d messages, want 1", len(record.Messages["room1"]))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote save never happened")
	}
}

func TestClearEmptiesLog(t *testing.T) {
	s := newTestStore(t, nil)
	s.Append(context.Background(), "room1", models.Message{Text: "hello", Author: "Ada"})
	s.Clear(context.Background(), "room1")
	if got := s.Messages("room1"); len(got) != 0 {
		t.Errorf("log length after clear = %d, want 0", len(got))
	}
}
