package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

func fillRing(r *ring, from, to uint64) {
	for seq := from; seq <= to; seq++ {
		r.append(models.Event{Seq: seq})
	}
}

func TestRingSinceReplaysGap(t *testing.T) {
	r := newRing(8)
	fillRing(r, 1, 5)

	events, ok := r.since(2)
	require.True(t, ok)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(3), events[0].Seq)
	assert.Equal(t, uint64(5), events[2].Seq)
}

func TestRingSinceUpToDate(t *testing.T) {
	r := newRing(8)
	fillRing(r, 1, 5)

	events, ok := r.since(5)
	require.True(t, ok)
	assert.Empty(t, events)
}

func TestRingSinceEmpty(t *testing.T) {
	r := newRing(8)

	events, ok := r.since(0)
	require.True(t, ok)
	assert.Empty(t, events)
}

func TestRingSinceGapExceedsBuffer(t *testing.T) {
	r := newRing(4)
	fillRing(r, 1, 10) // seqs 7..10 remain

	_, ok := r.since(3)
	assert.False(t, ok, "events 4..6 were evicted, replay must refuse")

	events, ok := r.since(6)
	require.True(t, ok)
	require.Len(t, events, 4)
	assert.Equal(t, uint64(7), events[0].Seq)
}

func TestRingWrapsOldest(t *testing.T) {
	r := newRing(3)
	fillRing(r, 1, 5)

	assert.Equal(t, uint64(3), r.oldest())
}
