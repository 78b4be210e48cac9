package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const (
	prefixMovie   = "movie:"
	prefixChannel = "channel:"
	prefixUser    = "user:"
	prefixAdmin   = "admin:"
)

var badgerPrefixes = []string{prefixMovie, prefixChannel, prefixUser, prefixAdmin}

// badgerEntry is the value stored under every key. Pos restores insertion order
// on Load; positions are increasing within a prefix but may have gaps.
type badgerEntry struct {
	Pos   int    `json:"pos"`
	Movie *Movie `json:"movie,omitempty"`
}

type positioned[T any] struct {
	pos int
	val T
}

// BadgerStore keeps one key per entity in an embedded Badger database.
type BadgerStore struct {
	db    *badger.DB
	owned bool
}

// OpenBadgerStore opens (or creates) a Badger database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

// NewBadgerStore wraps an already opened database. Close leaves db open.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Load reads every entity key and rebuilds the document in stored order.
func (s *BadgerStore) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	var (
		movies   []positioned[Movie]
		channels []positioned[string]
		users    []positioned[int64]
		admins   []positioned[int64]
	)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for _, prefix := range badgerPrefixes {
			p := []byte(prefix)
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				item := it.Item()
				id := strings.TrimPrefix(string(item.Key()), prefix)
				var entry badgerEntry
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &entry)
				}); err != nil {
					return fmt.Errorf("decode %s%s: %w", prefix, id, err)
				}
				switch prefix {
				case prefixMovie:
					if entry.Movie == nil {
						return fmt.Errorf("decode %s%s: missing movie body", prefix, id)
					}
					movies = append(movies, positioned[Movie]{entry.Pos, *entry.Movie})
				case prefixChannel:
					channels = append(channels, positioned[string]{entry.Pos, id})
				default:
					n, err := strconv.ParseInt(id, 10, 64)
					if err != nil {
						return fmt.Errorf("decode %s%s: %w", prefix, id, err)
					}
					if prefix == prefixUser {
						users = append(users, positioned[int64]{entry.Pos, n})
					} else {
						admins = append(admins, positioned[int64]{entry.Pos, n})
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}

	sort.SliceStable(movies, func(i, j int) bool { return movies[i].pos < movies[j].pos })
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].pos < channels[j].pos })
	sort.SliceStable(users, func(i, j int) bool { return users[i].pos < users[j].pos })
	sort.SliceStable(admins, func(i, j int) bool { return admins[i].pos < admins[j].pos })

	doc := Document{}.Clone()
	for _, m := range movies {
		doc.Movies = append(doc.Movies, m.val)
	}
	for _, c := range channels {
		doc.Channels = append(doc.Channels, c.val)
	}
	for _, u := range users {
		doc.Users = append(doc.Users, u.val)
	}
	for _, a := range admins {
		doc.Admins = append(doc.Admins, a.val)
	}
	return doc, nil
}

// Save writes the difference between doc and the stored keys in one update
// transaction. Entities whose key and order are unchanged are not rewritten,
// so recording a new user costs a single write whatever the registry size.
func (s *BadgerStore) Save(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		stored, err := storedEntries(txn)
		if err != nil {
			return err
		}
		for _, group := range entityGroups(doc) {
			// positions only need to grow along the group, so existing ones are reused
			last := -1
			for _, e := range group {
				old, ok := stored[e.key]
				delete(stored, e.key)
				pos := last + 1
				if ok && old.pos > last {
					pos = old.pos
				}
				last = pos
				val, err := json.Marshal(badgerEntry{Pos: pos, Movie: e.movie})
				if err != nil {
					return fmt.Errorf("encode %s: %w", e.key, err)
				}
				if ok && bytes.Equal(old.raw, val) {
					continue
				}
				if err := txn.Set([]byte(e.key), val); err != nil {
					return err
				}
			}
		}
		for key := range stored {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

type storedEntry struct {
	pos int
	raw []byte
}

type pendingEntry struct {
	key   string
	movie *Movie
}

func storedEntries(txn *badger.Txn) (map[string]storedEntry, error) {
	out := make(map[string]storedEntry)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for _, prefix := range badgerPrefixes {
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return nil, err
			}
			var entry badgerEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return nil, fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			out[string(item.KeyCopy(nil))] = storedEntry{pos: entry.Pos, raw: raw}
		}
	}
	return out, nil
}

// entityGroups lists the wanted keys per prefix in document order.
func entityGroups(doc Document) [][]pendingEntry {
	movies := make([]pendingEntry, 0, len(doc.Movies))
	for i := range doc.Movies {
		m := doc.Movies[i]
		movies = append(movies, pendingEntry{key: prefixMovie + m.Code, movie: &m})
	}
	channels := lo.Map(doc.Channels, func(ch string, _ int) pendingEntry {
		return pendingEntry{key: prefixChannel + ch}
	})
	ids := func(prefix string, list []int64) []pendingEntry {
		return lo.Map(list, func(id int64, _ int) pendingEntry {
			return pendingEntry{key: prefix + strconv.FormatInt(id, 10)}
		})
	}
	return [][]pendingEntry{movies, channels, ids(prefixUser, doc.Users), ids(prefixAdmin, doc.Admins)}
}

// Close closes the database if the store opened it.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
