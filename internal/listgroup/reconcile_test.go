package listgroup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/mcmigrate/internal/errors"
)

func TestReconciler_SkipsConsumedAndRecordsFailures(t *testing.T) {
	store := newTestStore(t)
	errs := &memErrors{}
	r := NewReconciler(&failingInserter{inner: store.rows, reject: map[string]bool{"2": true}}, errs, quietLogger())

	x := NewInterestIndex()
	x.Add(10, "abc", interest("1", "catX", "VIP"))
	x.Add(10, "abc", interest("2", "catX", "VIP"))
	x.Add(10, "abc", interest("3", "catX", "Staff"))
	x.Add(11, "abc", interest("1", "catX", "VIP"))

	consumed := NewConsumedSet()
	consumed.Add(10, "abc", "1")

	n, err := r.Run(t.Context(), x.Remaining(), consumed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows := store.all(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "3-catX-"+b64("Staff")+"-false", rows[0].GroupID)
	assert.Equal(t, 10, rows[0].EventID)
	assert.Equal(t, "1-catX-"+b64("VIP")+"-false", rows[1].GroupID)
	assert.Equal(t, 11, rows[1].EventID)

	require.Len(t, errs.entries, 1)
	assert.Nil(t, errs.rows[0])
	assert.True(t, errors.IsCategory(errs.entries[0], errors.CategoryDatabase))
	assert.Contains(t, errs.entries[0].Error(), "disk full")
	assert.False(t, consumed.Contains(10, "abc", "2"))
	assert.True(t, consumed.Contains(10, "abc", "3"))

	// A second run only retries what failed
	n, err = r.Run(t.Context(), x.Remaining(), consumed)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, errs.entries, 2)
}

func TestReconciler_EmptyIndexInsertsNothing(t *testing.T) {
	store := newTestStore(t)
	r := NewReconciler(store.rows, &memErrors{}, quietLogger())

	n, err := r.Run(t.Context(), NewInterestIndex().Remaining(), NewConsumedSet())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.all(t))
}

func TestReconciler_StopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	r := NewReconciler(store.rows, &memErrors{}, quietLogger())
	x := NewInterestIndex()
	x.Add(1, "l", interest("1", "c", "n"))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := r.Run(ctx, x.Remaining(), NewConsumedSet())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.all(t))
}
