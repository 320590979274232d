package listgroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/mcmigrate/internal/mailchimp"
)

func interest(id, cat, name string) mailchimp.Interest {
	return mailchimp.Interest{ID: id, CategoryID: cat, Name: name}
}

func TestInterestIndex_FIFO(t *testing.T) {
	x := NewInterestIndex()
	x.Add(10, "abc", interest("1", "catX", "VIP"))
	x.Add(10, "abc", interest("2", "catX", "VIP"))
	x.Add(10, "abc", interest("3", "catX", "Staff"))

	assert.True(t, x.Populated())
	assert.Equal(t, 3, x.Size())
	assert.Equal(t, 3, x.Len())

	in, ok := x.Pop(10, "abc", "VIP")
	require.True(t, ok)
	assert.Equal(t, "1", in.ID)
	in, ok = x.Pop(10, "abc", "VIP")
	require.True(t, ok)
	assert.Equal(t, "2", in.ID)

	_, ok = x.Pop(10, "abc", "VIP")
	assert.False(t, ok, "popped entries are never returned")
	_, ok = x.Pop(10, "abc", "Unknown")
	assert.False(t, ok)
	_, ok = x.Pop(11, "abc", "Staff")
	assert.False(t, ok)
	_, ok = x.Pop(10, "zzz", "Staff")
	assert.False(t, ok)

	assert.Equal(t, 1, x.Len())
	assert.Equal(t, 3, x.Size())
	assert.True(t, x.Populated())
}

func TestInterestIndex_RemainingOrder(t *testing.T) {
	x := NewInterestIndex()
	x.Add(20, "b", interest("5", "c", "Zed"))
	x.Add(10, "b", interest("4", "c", "Alpha"))
	x.Add(10, "a", interest("3", "c", "Beta"))
	x.Add(10, "a", interest("1", "c", "Alpha"))
	x.Add(10, "a", interest("2", "c", "Alpha"))

	var got []string
	for _, e := range x.Remaining() {
		got = append(got, e.Interest.ID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, got)

	first := x.Remaining()[0]
	assert.Equal(t, 10, first.EventID)
	assert.Equal(t, "a", first.ListID)
}

func TestInterestIndex_Claim(t *testing.T) {
	x := NewInterestIndex()
	x.Add(10, "abc", interest("1", "catX", "VIP"))
	x.Add(10, "abc", interest("2", "catX", "VIP"))
	x.Add(10, "abc", interest("3", "catX", "VIP"))

	assert.True(t, x.Claim(10, "abc", "2"))
	assert.False(t, x.Claim(10, "abc", "2"))
	assert.False(t, x.Claim(11, "abc", "1"))
	assert.Equal(t, 2, x.Len())

	in, ok := x.Pop(10, "abc", "VIP")
	require.True(t, ok)
	assert.Equal(t, "1", in.ID)
	in, ok = x.Pop(10, "abc", "VIP")
	require.True(t, ok)
	assert.Equal(t, "3", in.ID)
}

func TestInterestIndex_Reset(t *testing.T) {
	x := NewInterestIndex()
	assert.False(t, x.Populated())
	x.Add(1, "l", interest("1", "c", "n"))
	x.Reset()
	assert.False(t, x.Populated())
	assert.Empty(t, x.Remaining())
	assert.Zero(t, x.Len())
}

func TestConsumedSet(t *testing.T) {
	s := NewConsumedSet()
	assert.True(t, s.Add(10, "abc", "1"))
	assert.False(t, s.Add(10, "abc", "1"))
	// Another event sharing the list has its own universe
	assert.True(t, s.Add(11, "abc", "1"))

	assert.True(t, s.Contains(10, "abc", "1"))
	assert.False(t, s.Contains(10, "other", "1"))
	assert.Equal(t, 2, s.Len())
}
