package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func expectClear(mock sqlmock.Sqlmock) {
	for _, table := range []string{"movies", "channels", "users", "admins"} {
		mock.ExpectExec("DELETE FROM " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

func TestPostgresStore_Load(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT code, payload, media_type, caption, rating, position FROM movies ORDER BY position`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "payload", "media_type", "caption", "rating", "position"}).
			AddRow("7", "https://example.org/7", "", "", nil, int64(0)).
			AddRow("007", "BAACAgIAAxkB", "video", "Bond", 7.5, int64(4)))
	mock.ExpectQuery(`SELECT id, position FROM channels ORDER BY position`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "position"}).AddRow("@zeta", int64(0)).AddRow("@alpha", int64(1)))
	mock.ExpectQuery(`SELECT id, position FROM users ORDER BY position`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "position"}).AddRow(int64(30), int64(0)).AddRow(int64(10), int64(1)))
	mock.ExpectQuery(`SELECT id, position FROM admins ORDER BY position`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "position"}).AddRow(int64(5), int64(0)))

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Document{
		Movies: []Movie{
			{Code: "7", Payload: "https://example.org/7"},
			{Code: "007", Payload: "BAACAgIAAxkB", MediaType: MediaVideo, Caption: "Bond", Rating: lo.ToPtr(7.5)},
		},
		Channels: []string{"@zeta", "@alpha"},
		Users:    []int64{30, 10},
		Admins:   []int64{5},
	}, doc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveWritesPositions(t *testing.T) {
	store, mock := newMockStore(t)
	doc := sampleDocument()

	mock.ExpectBegin()
	expectClear(mock)
	mock.ExpectExec(`INSERT INTO movies`).
		WithArgs(
			"7", "https://example.org/7", "", "", nil, 0,
			"007", "BAACAgIAAxkB", "video", "Bond", 7.5, 1,
			"3", "doc-token", "document", "", nil, 2,
		).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO channels`).
		WithArgs("@zeta", 0, "@alpha", 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(int64(30), 0, int64(10), 1, int64(20), 2).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO admins`).
		WithArgs(int64(5), 0, int64(1), 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	expectClear(mock)
	mock.ExpectExec(`INSERT INTO movies`).WillReturnError(errors.New("duplicate key value"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), sampleDocument())
	require.ErrorContains(t, err, "insert movies")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSplitsLargeTables(t *testing.T) {
	store, mock := newMockStore(t)
	doc := Document{Users: lo.RangeFrom[int64](0, pgBatchRows+5), Admins: []int64{1}}

	mock.ExpectBegin()
	expectClear(mock)
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, pgBatchRows))
	mock.ExpectExec(`INSERT INTO users`).WithArgs(
		int64(1000), 1000, int64(1001), 1001, int64(1002), 1002, int64(1003), 1003, int64(1004), 1004,
	).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(`INSERT INTO admins`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}
