package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWALStoreAppendAndReplay(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(Event{Level: "INFO", Source: "cycle", Message: "started"}))
	require.NoError(t, store.Save(Event{Level: "TRADE", Source: "executor", Message: "bought 10 YES @ 45c"}))

	records, err := store.EventsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "started", records[0].Event.Message)
	require.False(t, records[0].Event.At.IsZero())

	// Tail from the last seen index.
	tail, err := store.EventsAfter(records[0].Index)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, "TRADE", tail[0].Event.Level)
}
