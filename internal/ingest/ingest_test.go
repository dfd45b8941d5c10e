package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Event
		ok      bool
		wantErr bool
	}{
		{"Alice knows Bob 1", Event{"Alice", "knows", "Bob", 1}, true, false},
		{"  Bob\tknows  Charlie 20  ", Event{"Bob", "knows", "Charlie", 20}, true, false},
		{"", Event{}, false, false},
		{"# comment", Event{}, false, false},
		{"Alice knows Bob", Event{}, false, true},
		{"Alice knows Bob soon", Event{}, false, true},
	}
	for _, tt := range tests {
		got, ok, err := ParseLine(tt.line)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrMalformedEvent, tt.line)
			continue
		}
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestRead(t *testing.T) {
	src := "# header\nAlice knows Bob 1\n\nBob knows Charlie 2\n"
	var got []Event
	err := Read(context.Background(), strings.NewReader(src), func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Event{{"Alice", "knows", "Bob", 1}, {"Bob", "knows", "Charlie", 2}}, got)

	err = Read(context.Background(), strings.NewReader("a b c 1\nbroken\n"), func(Event) error { return nil })
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Contains(t, err.Error(), "line 2")

	stop := errors.New("stop")
	err = Read(context.Background(), strings.NewReader(src), func(Event) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestFollowPicksUpAppendedLines(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "events.txt")
	require.NoError(t, os.WriteFile(path, []byte("Alice knows Bob 1\n"), 0o644))

	events := make(chan Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, func(ev Event) error {
			events <- ev
			return nil
		}, zaptest.NewLogger(t))
	}()

	next := func() Event {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
	assert.Equal(t, Event{"Alice", "knows", "Bob", 1}, next())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("Bob knows Charlie 2\nAlice likes")
	require.NoError(t, err)
	assert.Equal(t, Event{"Bob", "knows", "Charlie", 2}, next())

	_, err = f.WriteString(" Pizza 3\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, Event{"Alice", "likes", "Pizza", 3}, next())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestFollowMissingFile(t *testing.T) {
	err := Follow(context.Background(), filepath.Join(t.TempDir(), "missing"), func(Event) error { return nil }, nil)
	assert.Error(t, err)
}
