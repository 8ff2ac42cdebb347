package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplySnapshotReplaces(t *testing.T) {
	tr := NewTracker()
	tr.MarkOnline("9")

	tr.ApplySnapshot([]string{"3", "1", "2", ""})
	assert.Equal(t, []string{"1", "2", "3"}, tr.Online())
	assert.False(t, tr.IsOnline("9"))

	tr.ApplySnapshot([]string{})
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.Online())

	tr.MarkOnline("1")
	tr.ApplySnapshot(nil)
	assert.Equal(t, 0, tr.Len())
}

func TestMarkIsIdempotent(t *testing.T) {
	tr := NewTracker()

	assert.True(t, tr.MarkOnline("7"))
	assert.False(t, tr.MarkOnline("7"))
	assert.Equal(t, 1, tr.Len())

	assert.True(t, tr.MarkOffline("7"))
	assert.False(t, tr.MarkOffline("7"))
	assert.False(t, tr.MarkOffline("never"))
	assert.False(t, tr.MarkOnline(""))
	assert.Equal(t, 0, tr.Len())
}

func TestShouldNotifyDedupesPerPeer(t *testing.T) {
	tr := NewTracker()

	assert.True(t, tr.ShouldNotify("1", true))
	assert.False(t, tr.ShouldNotify("1", true))
	assert.True(t, tr.ShouldNotify("2", true))
	assert.True(t, tr.ShouldNotify("1", false))
	assert.False(t, tr.ShouldNotify("1", false))
	assert.True(t, tr.ShouldNotify("1", true))
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.ApplySnapshot([]string{"1", "2"})
	tr.ShouldNotify("1", true)

	tr.Reset()
	assert.Equal(t, 0, tr.Len())
	assert.True(t, tr.ShouldNotify("1", true))
}
