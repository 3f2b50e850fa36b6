package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/robceliesius/plugin-ably/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestListMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)
	seed := []struct {
		id      string
		channel string
		offset  time.Duration
	}{
		{"a", "news", 0},
		{"b", "news", time.Second},
		{"c", "news", 2 * time.Second},
		{"x", "other", time.Second},
	}
	for _, m := range seed {
		msg := &store.Message{ID: m.id, Channel: m.channel, Name: "update", Data: []byte(`"payload"`), CreatedAt: base.Add(m.offset)}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("failed to save message %s: %v", m.id, err)
		}
		if msg.Seq == 0 {
			t.Fatalf("expected sequence to be assigned for %s", m.id)
		}
	}

	tests := []struct {
		name     string
		query    store.HistoryQuery
		expected []string
	}{
		{
			name:     "backwards is newest first",
			query:    store.HistoryQuery{Direction: store.DirectionBackwards},
			expected: []string{"c", "b", "a"},
		},
		{
			name:     "forwards is oldest first",
			query:    store.HistoryQuery{Direction: store.DirectionForwards},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "limit applies after ordering",
			query:    store.HistoryQuery{Direction: store.DirectionBackwards, Limit: 2},
			expected: []string{"c", "b"},
		},
		{
			name:     "start and end are inclusive",
			query:    store.HistoryQuery{Direction: store.DirectionForwards, Start: base.Add(time.Second), End: base.Add(time.Second)},
			expected: []string{"b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := s.ListMessages(ctx, "news", tt.query)
			if err != nil {
				t.Fatalf("ListMessages failed: %v", err)
			}
			if len(msgs) != len(tt.expected) {
				t.Fatalf("expected %d messages, got %d", len(tt.expected), len(msgs))
			}
			for i, msg := range msgs {
				if msg.ID != tt.expected[i] {
					t.Errorf("expected %s at index %d, got %s", tt.expected[i], i, msg.ID)
				}
				if msg.Channel != "news" {
					t.Errorf("unexpected channel %q", msg.Channel)
				}
			}
		})
	}
}

func TestListMessagesSameTimestampKeepsInsertOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.UnixMilli(1_700_000_000_000)
	for _, id := range []string{"first", "second"} {
		if err := s.SaveMessage(ctx, &store.Message{ID: id, Channel: "c", Name: "n", CreatedAt: now}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	msgs, err := s.ListMessages(ctx, "c", store.HistoryQuery{Direction: store.DirectionBackwards})
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "second" || msgs[1].ID != "first" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
}
