package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	mu    sync.Mutex
	inner Store
	fail  bool
	saves int
}

func (s *flakyStore) Load(ctx context.Context) (Document, error) { return s.inner.Load(ctx) }

func (s *flakyStore) Save(ctx context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.fail {
		return errors.New("disk full")
	}
	return s.inner.Save(ctx, doc)
}

func (s *flakyStore) Close() error { return nil }

func (s *flakyStore) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func openFileRegistry(t *testing.T, opts ...Option) (*Registry, *FileStore) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "db.json"))
	reg, err := Open(context.Background(), store, opts...)
	require.NoError(t, err)
	return reg, store
}

func mustUpsert(t *testing.T, reg *Registry, m Movie) Movie {
	t.Helper()
	stored, err := reg.UpsertMovie(context.Background(), m)
	require.NoError(t, err)
	return stored
}

func TestRegistry_MovieCRUD(t *testing.T) {
	ctx := context.Background()
	reg, _ := openFileRegistry(t)

	m, err := reg.AddMovie(ctx, Movie{Code: " 007 ", Payload: "ref-abc"})
	require.NoError(t, err)
	assert.Equal(t, Movie{Code: "007", Payload: "ref-abc"}, m)

	got, ok := reg.FindMovie("007")
	require.True(t, ok)
	assert.Equal(t, "ref-abc", got.Payload)

	_, err = reg.AddMovie(ctx, Movie{Code: "007", Payload: "other"})
	require.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, reg.UpdateMoviePayload(ctx, "007", "file-id", MediaVideo, "Dr. No"))
	got, _ = reg.FindMovie("007")
	assert.Equal(t, Movie{Code: "007", Payload: "file-id", MediaType: MediaVideo, Caption: "Dr. No"}, got)

	err = reg.UpdateMoviePayload(ctx, "404", "x", MediaNone, "")
	require.ErrorIs(t, err, ErrNotFound)

	mustUpsert(t, reg, Movie{Code: "007", Payload: "replaced"})
	got, _ = reg.FindMovie("007")
	assert.Equal(t, "replaced", got.Payload)
	assert.Len(t, reg.ListMovies(), 1)

	removed, err := reg.DeleteMovie(ctx, "007")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reg.DeleteMovie(ctx, "007")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRegistry_AddMovieRejectsEmptyFields(t *testing.T) {
	reg, _ := openFileRegistry(t)
	_, err := reg.AddMovie(context.Background(), Movie{Code: "", Payload: "x"})
	require.ErrorIs(t, err, ErrInvalid)
	_, err = reg.AddMovie(context.Background(), Movie{Code: "1", Payload: "  "})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestRegistry_AutoCodeAssignsSequentialCodes(t *testing.T) {
	ctx := context.Background()
	reg, _ := openFileRegistry(t, WithAutoCode(true))
	require.True(t, reg.AutoCode())

	mustUpsert(t, reg, Movie{Code: "41", Payload: "a"})
	mustUpsert(t, reg, Movie{Code: "intro", Payload: "b"})

	m, err := reg.AddMovie(ctx, Movie{Payload: "c"})
	require.NoError(t, err)
	assert.Equal(t, "42", m.Code)
	assert.Equal(t, "43", mustUpsert(t, reg, Movie{Payload: "d"}).Code)
}

func TestRegistry_UpsertMovieAssignsMissingCode(t *testing.T) {
	ctx := context.Background()
	reg, store := openFileRegistry(t)

	m, err := reg.UpsertMovie(ctx, Movie{Payload: " ref-abc "})
	require.NoError(t, err)
	assert.Equal(t, Movie{Code: "1", Payload: "ref-abc"}, m)
	assert.Len(t, reg.ListMovies(), 1)

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Movie{m}, doc.Movies)

	m, err = reg.UpsertMovie(ctx, Movie{Payload: "ref-def"})
	require.NoError(t, err)
	assert.Equal(t, "2", m.Code)

	_, err = reg.UpsertMovie(ctx, Movie{Code: "3", Payload: " "})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Len(t, reg.ListMovies(), 2)
}

func TestRegistry_ChannelsMatchCaseInsensitively(t *testing.T) {
	ctx := context.Background()
	reg, _ := openFileRegistry(t)

	require.NoError(t, reg.AddChannel(ctx, "@KinoNews"))
	assert.True(t, reg.HasChannel("@kinonews"))
	require.ErrorIs(t, reg.AddChannel(ctx, "@kinonews"), ErrAlreadyExists)

	removed, err := reg.DeleteChannel(ctx, "@KINONEWS")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, reg.ListChannels())
}

func TestRegistry_AdminLifecycle(t *testing.T) {
	ctx := context.Background()
	reg, _ := openFileRegistry(t)
	require.NoError(t, reg.Seed(ctx, 100, []string{"@a", "@a", ""}))
	assert.Equal(t, []int64{100}, reg.ListAdmins())
	assert.Equal(t, []string{"@a"}, reg.ListChannels())

	// seeding is one-shot
	require.NoError(t, reg.Seed(ctx, 555, []string{"@b"}))
	assert.Equal(t, []int64{100}, reg.ListAdmins())

	removed, err := reg.DeleteAdmin(ctx, 999)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, []int64{100}, reg.ListAdmins())

	_, err = reg.DeleteAdmin(ctx, 100)
	require.ErrorIs(t, err, ErrLastAdmin)
	assert.True(t, reg.IsAdmin(100))

	require.NoError(t, reg.AddAdmin(ctx, 200))
	require.ErrorIs(t, reg.AddAdmin(ctx, 200), ErrAlreadyExists)
	require.ErrorIs(t, reg.AddAdmin(ctx, 0), ErrInvalid)

	removed, err = reg.DeleteAdmin(ctx, 100)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []int64{200}, reg.ListAdmins())
}

func TestRegistry_ConcurrentAdminAddsAreNotLost(t *testing.T) {
	ctx := context.Background()
	reg, store := openFileRegistry(t)
	require.NoError(t, reg.Seed(ctx, 1, nil))

	var wg sync.WaitGroup
	for _, id := range []int64{111, 222} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, reg.AddAdmin(ctx, id))
		}(id)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int64{1, 111, 222}, reg.ListAdmins())

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 111, 222}, persisted.Admins)
}

func TestRegistry_StoreFailureKeepsLastGoodState(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{inner: NewFileStore(filepath.Join(t.TempDir(), "db.json"))}
	reg, err := Open(ctx, store)
	require.NoError(t, err)
	_, err = reg.AddMovie(ctx, Movie{Code: "1", Payload: "a"})
	require.NoError(t, err)

	store.setFail(true)
	_, err = reg.AddMovie(ctx, Movie{Code: "2", Payload: "b"})
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "movie.add", storeErr.Op)
	assert.Equal(t, "STORE_FAILURE", storeErr.Code())

	_, ok := reg.FindMovie("2")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Stats().Movies)

	store.setFail(false)
	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted.Movies, 1)
}

func TestRegistry_NoopSkipsSave(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{inner: NewFileStore(filepath.Join(t.TempDir(), "db.json"))}
	reg, err := Open(ctx, store)
	require.NoError(t, err)

	added, err := reg.AddUserIfAbsent(ctx, 7)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = reg.AddUserIfAbsent(ctx, 7)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, Stats{Users: 1}, reg.Stats())
}

func TestRegistry_SnapshotIsDetached(t *testing.T) {
	reg, _ := openFileRegistry(t)
	rating := 8.1
	mustUpsert(t, reg, Movie{Code: "1", Payload: "a", Rating: &rating})

	snap := reg.Snapshot()
	*snap.Movies[0].Rating = 1
	snap.Movies[0].Payload = "mutated"

	got, _ := reg.FindMovie("1")
	assert.Equal(t, "a", got.Payload)
	assert.InDelta(t, 8.1, *got.Rating, 1e-9)
}
