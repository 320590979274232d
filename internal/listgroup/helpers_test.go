package listgroup

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/mcmigrate/internal/datastore"
	"github.com/tphakala/mcmigrate/internal/datastore/entities"
	"github.com/tphakala/mcmigrate/internal/datastore/repository"
	"github.com/tphakala/mcmigrate/internal/logger"
	"github.com/tphakala/mcmigrate/internal/mailchimp"
	"github.com/tphakala/mcmigrate/internal/testutil"
)

func quietLogger() logger.Logger {
	return testutil.QuietLogger()
}

// fakeDirectory serves categories and interests from maps.
type fakeDirectory struct {
	keyErr     error
	categories map[string][]mailchimp.InterestCategory // by list
	interests  map[string][]mailchimp.Interest         // by list/category
	catErr     map[string]error
	intErr     map[string]error

	mu    sync.Mutex
	calls []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		categories: make(map[string][]mailchimp.InterestCategory),
		interests:  make(map[string][]mailchimp.Interest),
		catErr:     make(map[string]error),
		intErr:     make(map[string]error),
	}
}

func (d *fakeDirectory) addInterests(listID, categoryID string, interests ...mailchimp.Interest) {
	found := false
	for _, c := range d.categories[listID] {
		if c.ID == categoryID {
			found = true
		}
	}
	if !found {
		d.categories[listID] = append(d.categories[listID], mailchimp.InterestCategory{ID: categoryID, ListID: listID})
	}
	d.interests[listID+"/"+categoryID] = append(d.interests[listID+"/"+categoryID], interests...)
}

func (d *fakeDirectory) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *fakeDirectory) ValidateKey(context.Context) error {
	d.record("root")
	return d.keyErr
}

func (d *fakeDirectory) InterestCategories(_ context.Context, listID string) ([]mailchimp.InterestCategory, error) {
	d.record("categories:" + listID)
	if err := d.catErr[listID]; err != nil {
		return nil, err
	}
	return d.categories[listID], nil
}

func (d *fakeDirectory) Interests(_ context.Context, listID, categoryID string) ([]mailchimp.Interest, error) {
	d.record("interests:" + listID + "/" + categoryID)
	if err := d.intErr[listID+"/"+categoryID]; err != nil {
		return nil, err
	}
	return d.interests[listID+"/"+categoryID], nil
}

// memErrors collects error log entries.
type memErrors struct {
	mu      sync.Mutex
	entries []error
	rows    []*uint
}

func (m *memErrors) RecordError(_ context.Context, _ string, rowID *uint, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, cause)
	m.rows = append(m.rows, rowID)
	return nil
}

// testStore is a SQLite database with the list-group table.
type testStore struct {
	db    *gorm.DB
	rows  repository.ListGroupRepository
	state *datastore.StateManager
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	mgr := testutil.OpenSQLite(t, "listgroup.db")

	return &testStore{
		db:    mgr.DB(),
		rows:  repository.NewListGroupRepository(mgr.DB(), nil),
		state: datastore.NewStateManager(mgr.DB(), "test-run", nil),
	}
}

func (s *testStore) seed(t *testing.T, rows ...entities.EventListGroup) []entities.EventListGroup {
	t.Helper()
	for i := range rows {
		require.NoError(t, s.db.Create(&rows[i]).Error)
	}
	return rows
}

func (s *testStore) all(t *testing.T) []entities.EventListGroup {
	t.Helper()
	var out []entities.EventListGroup
	require.NoError(t, s.db.Order("EMC_ID").Find(&out).Error)
	return out
}

// failingInserter rejects inserts for the listed interest IDs.
type failingInserter struct {
	inner  Inserter
	reject map[string]bool
}

func (f *failingInserter) Insert(ctx context.Context, row *entities.EventListGroup) error {
	tok, err := ParseToken(row.GroupID)
	if err == nil && f.reject[tok.InterestID] {
		return fmt.Errorf("disk full")
	}
	return f.inner.Insert(ctx, row)
}
