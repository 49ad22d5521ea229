package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLRUVictimOrder: victims come out least recently unpinned first.
func TestLRUVictimOrder(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	require.Equal(t, 3, r.Size())

	for _, want := range []FrameID{1, 2, 3} {
		got, ok := r.Victim()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := r.Victim()
	require.False(t, ok)
}

// TestLRUPinRemovesCandidate: a pinned frame is skipped by Victim until
// unpinned again.
func TestLRUPinRemovesCandidate(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)
	require.Equal(t, 1, r.Size())

	got, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, FrameID(2), got)

	r.Unpin(1)
	got, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, FrameID(1), got)
}

// TestLRUUnpinDoesNotRefresh: unpinning an already eligible frame keeps
// its original position.
func TestLRUUnpinDoesNotRefresh(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(1)

	got, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, FrameID(1), got)
}

// TestLRUPinUnknownFrameIsNoop: pinning a frame that was never unpinned
// must not disturb the list.
func TestLRUPinUnknownFrameIsNoop(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(7)
	r.Pin(3)
	require.Equal(t, 1, r.Size())
	got, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, FrameID(7), got)
}
