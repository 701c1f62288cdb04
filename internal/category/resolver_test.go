package category

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
	"github.com/Veraticus/finhelper/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	byName  map[string]*model.Category
	inserts atomic.Int32
	delay   time.Duration
	err     error
	// started and release, when set, hold an insert open until release is closed.
	started chan struct{}
	release chan struct{}
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{byName: make(map[string]*model.Category)}
}

func (f *fakeStore) GetCategoryByName(_ context.Context, name string) (*model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byName[name]; ok {
		return c, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeStore) GetCategoryByID(_ context.Context, id int64) (*model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byName {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeStore) InsertCategoryIfAbsent(ctx context.Context, name string) (*model.Category, bool, error) {
	if f.inserts.Add(1) == 1 && f.started != nil {
		close(f.started)
	}
	if f.err != nil {
		return nil, false, f.err
	}
	time.Sleep(f.delay)
	if f.release != nil {
		<-f.release
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byName[name]; ok {
		return c, false, nil
	}
	f.nextID++
	c := &model.Category{ID: f.nextID, Name: name, IsActive: true}
	f.byName[name] = c
	return c, true, nil
}

func TestResolver_ResolveOrCreate(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, common.DiscardLogger())
	ctx := context.Background()

	first, err := r.ResolveOrCreate(ctx, "Groceries")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", first.Name)
	assert.True(t, first.IsActive)

	again, err := r.ResolveOrCreate(ctx, "Groceries")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := r.ResolveOrCreate(ctx, "groceries")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	_, err = r.ResolveOrCreate(ctx, "  ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestResolver_ResolveOrCreate_StoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("disk full")
	r := NewResolver(store, common.DiscardLogger())

	_, err := r.ResolveOrCreate(context.Background(), "Bills")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.err)
}

func TestResolver_ConcurrentCallsShareOneInsert(t *testing.T) {
	store := newFakeStore()
	store.delay = 50 * time.Millisecond
	r := NewResolver(store, common.DiscardLogger())

	const workers = 10
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		ids   = make([]int64, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			cat, err := r.ResolveOrCreate(context.Background(), "Transportation")
			if assert.NoError(t, err) {
				ids[i] = cat.ID
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, store.byName, 1)
	assert.Less(t, int(store.inserts.Load()), workers, "in-flight calls should be collapsed")
}

func TestResolver_CanceledCallerDoesNotFailOthers(t *testing.T) {
	store := newFakeStore()
	store.started = make(chan struct{})
	store.release = make(chan struct{})
	r := NewResolver(store, common.DiscardLogger())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.ResolveOrCreate(firstCtx, "Health")
		firstErr <- err
	}()
	<-store.started

	type result struct {
		cat *model.Category
		err error
	}
	second := make(chan result, 1)
	go func() {
		cat, err := r.ResolveOrCreate(context.Background(), "Health")
		second <- result{cat: cat, err: err}
	}()
	// Give the second caller time to join the flight.
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(store.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Health", got.cat.Name)

	cat, err := store.GetCategoryByName(context.Background(), "Health")
	require.NoError(t, err)
	assert.Equal(t, cat.ID, got.cat.ID)
}

func TestResolver_SQLiteConcurrent(t *testing.T) {
	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	// Two resolvers stand in for two processes sharing one database.
	a := NewResolver(db, common.DiscardLogger())
	b := NewResolver(db, common.DiscardLogger())

	var (
		wg  sync.WaitGroup
		ids sync.Map
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := a
			if i%2 == 1 {
				r = b
			}
			cat, err := r.ResolveOrCreate(context.Background(), "Health & Fitness")
			if assert.NoError(t, err) {
				ids.Store(cat.ID, true)
			}
		}(i)
	}
	wg.Wait()

	distinct := 0
	ids.Range(func(_, _ any) bool {
		distinct++
		return true
	})
	assert.Equal(t, 1, distinct)

	all, err := db.ListCategories(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResolver_Get(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, common.DiscardLogger())
	ctx := context.Background()

	cat, err := r.ResolveOrCreate(ctx, "Entertainment")
	require.NoError(t, err)

	got, err := r.Get(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Entertainment", got.Name)

	_, err = r.Get(ctx, 404)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = r.Lookup(ctx, "Missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
