package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

const pgBatchRows = 1000

type movieRow struct {
	Code      string          `db:"code"`
	Payload   string          `db:"payload"`
	MediaType string          `db:"media_type"`
	Caption   string          `db:"caption"`
	Rating    sql.NullFloat64 `db:"rating"`
	Position  int             `db:"position"`
}

type channelRow struct {
	ID       string `db:"id"`
	Position int    `db:"position"`
}

type idRow struct {
	ID       int64 `db:"id"`
	Position int   `db:"position"`
}

// PostgresStore keeps each collection in its own table. Schema lives in migrations/.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool. Close leaves db open.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load reads all four tables in position order.
func (s *PostgresStore) Load(ctx context.Context) (Document, error) {
	var (
		movies   []movieRow
		channels []channelRow
		users    []idRow
		admins   []idRow
	)
	if err := s.db.SelectContext(ctx, &movies,
		`SELECT code, payload, media_type, caption, rating, position FROM movies ORDER BY position`); err != nil {
		return Document{}, fmt.Errorf("select movies: %w", err)
	}
	if err := s.db.SelectContext(ctx, &channels, `SELECT id, position FROM channels ORDER BY position`); err != nil {
		return Document{}, fmt.Errorf("select channels: %w", err)
	}
	if err := s.db.SelectContext(ctx, &users, `SELECT id, position FROM users ORDER BY position`); err != nil {
		return Document{}, fmt.Errorf("select users: %w", err)
	}
	if err := s.db.SelectContext(ctx, &admins, `SELECT id, position FROM admins ORDER BY position`); err != nil {
		return Document{}, fmt.Errorf("select admins: %w", err)
	}

	doc := Document{}.Clone()
	for _, r := range movies {
		m := Movie{Code: r.Code, Payload: r.Payload, MediaType: MediaType(r.MediaType), Caption: r.Caption}
		if r.Rating.Valid {
			v := r.Rating.Float64
			m.Rating = &v
		}
		doc.Movies = append(doc.Movies, m)
	}
	for _, r := range channels {
		doc.Channels = append(doc.Channels, r.ID)
	}
	for _, r := range users {
		doc.Users = append(doc.Users, r.ID)
	}
	for _, r := range admins {
		doc.Admins = append(doc.Admins, r.ID)
	}
	return doc, nil
}

// Save replaces table contents inside one transaction.
func (s *PostgresStore) Save(ctx context.Context, doc Document) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"movies", "channels", "users", "admins"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	movies := make([]movieRow, 0, len(doc.Movies))
	for i, m := range doc.Movies {
		row := movieRow{Code: m.Code, Payload: m.Payload, MediaType: string(m.MediaType), Caption: m.Caption, Position: i}
		if m.Rating != nil {
			row.Rating = sql.NullFloat64{Float64: *m.Rating, Valid: true}
		}
		movies = append(movies, row)
	}
	if err = insertBatches(ctx, tx, "movies",
		`INSERT INTO movies (code, payload, media_type, caption, rating, position)
		 VALUES (:code, :payload, :media_type, :caption, :rating, :position)`, movies); err != nil {
		return err
	}
	channels := lo.Map(doc.Channels, func(ch string, i int) channelRow { return channelRow{ID: ch, Position: i} })
	if err = insertBatches(ctx, tx, "channels",
		`INSERT INTO channels (id, position) VALUES (:id, :position)`, channels); err != nil {
		return err
	}
	for _, t := range []struct {
		table string
		ids   []int64
	}{{"users", doc.Users}, {"admins", doc.Admins}} {
		rows := lo.Map(t.ids, func(id int64, i int) idRow { return idRow{ID: id, Position: i} })
		if err = insertBatches(ctx, tx, t.table,
			"INSERT INTO "+t.table+" (id, position) VALUES (:id, :position)", rows); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertBatches splits rows so one statement stays under the Postgres bind parameter limit.
func insertBatches[T any](ctx context.Context, tx *sqlx.Tx, table, query string, rows []T) error {
	for _, chunk := range lo.Chunk(rows, pgBatchRows) {
		if _, err := tx.NamedExecContext(ctx, query, chunk); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }
