// Package registry owns the durable collections of the bot: movies,
// subscription channels, users and admins.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/m3rciful/kinobot/core/logger"
	"github.com/m3rciful/kinobot/core/metrics"
)

// Option tweaks registry behavior.
type Option func(*Registry)

// WithAutoCode makes AddMovie assign sequential numeric codes when the code is empty.
func WithAutoCode(enabled bool) Option {
	return func(r *Registry) { r.autoCode = enabled }
}

// Registry serializes mutations and mirrors every accepted change to the Store.
type Registry struct {
	mu       sync.RWMutex
	doc      Document
	store    Store
	autoCode bool
}

// Open loads the current document from store.
func Open(ctx context.Context, store Store, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, errors.New("registry: nil store")
	}
	start := time.Now()
	doc, err := store.Load(ctx)
	if err != nil {
		logger.LogEvent(ctx, logger.Registry, slog.LevelError, "store.load",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return nil, &StoreError{Op: "load", Err: err}
	}
	r := &Registry{doc: doc.Clone(), store: store}
	for _, opt := range opts {
		opt(r)
	}
	logger.LogEvent(ctx, logger.Registry, slog.LevelInfo, "store.load",
		slog.String("status", "ok"),
		slog.Int("movies", len(doc.Movies)),
		slog.Int("channels", len(doc.Channels)),
		slog.Int("users", len(doc.Users)),
		slog.Int("admins", len(doc.Admins)),
		slog.Duration("duration", logger.Took(start)),
	)
	return r, nil
}

// AutoCode reports whether movie codes are assigned by the registry.
func (r *Registry) AutoCode() bool { return r.autoCode }

// Close releases the underlying store.
func (r *Registry) Close() error { return r.store.Close() }

// mutate applies fn to a copy of the document and swaps it in only after Save succeeds.
// A nil error from fn with changed=false skips the save.
func (r *Registry) mutate(ctx context.Context, op string, fn func(doc *Document) (bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.doc.Clone()
	changed, err := fn(&next)
	if err != nil {
		metrics.RegistryMutationsTotal.WithLabelValues(op, "rejected").Inc()
		return err
	}
	if !changed {
		metrics.RegistryMutationsTotal.WithLabelValues(op, "noop").Inc()
		return nil
	}

	start := time.Now()
	if err := r.store.Save(ctx, next); err != nil {
		metrics.RegistryMutationsTotal.WithLabelValues(op, "fail").Inc()
		logger.LogEvent(ctx, logger.Registry, slog.LevelError, "store.save",
			slog.String("op", op),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return &StoreError{Op: op, Err: err}
	}
	r.doc = next
	metrics.RegistryMutationsTotal.WithLabelValues(op, "ok").Inc()
	logger.LogEvent(ctx, logger.Registry, slog.LevelDebug, "store.save",
		slog.String("op", op),
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Snapshot returns a deep copy of the current document.
func (r *Registry) Snapshot() Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.Clone()
}

// Stats reports collection sizes.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Users:    len(r.doc.Users),
		Movies:   len(r.doc.Movies),
		Admins:   len(r.doc.Admins),
		Channels: len(r.doc.Channels),
	}
}

// Seed fills the admin and channel sets on first start.
// Nothing happens once at least one admin exists.
func (r *Registry) Seed(ctx context.Context, adminID int64, channels []string) error {
	return r.mutate(ctx, "seed", func(doc *Document) (bool, error) {
		if len(doc.Admins) > 0 {
			return false, nil
		}
		changed := false
		if adminID > 0 {
			doc.Admins = append(doc.Admins, adminID)
			changed = true
		}
		for _, ch := range channels {
			ch = normalizeChannel(ch)
			if ch == "" || channelIndex(doc.Channels, ch) >= 0 {
				continue
			}
			doc.Channels = append(doc.Channels, ch)
			changed = true
		}
		return changed, nil
	})
}

// --- movies ---

// ListMovies returns movies in insertion order.
func (r *Registry) ListMovies() []Movie {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.doc.Movies, func(m Movie, _ int) Movie { return m.clone() })
}

// FindMovie looks up a movie by exact code.
func (r *Registry) FindMovie(code string) (Movie, bool) {
	code = normalizeCode(code)
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := lo.Find(r.doc.Movies, func(m Movie) bool { return m.Code == code })
	return m.clone(), ok
}

// HasMovie reports whether code is taken.
func (r *Registry) HasMovie(code string) bool {
	_, ok := r.FindMovie(code)
	return ok
}

func nextCode(movies []Movie) string {
	var highest int64
	for _, m := range movies {
		if n, err := strconv.ParseInt(m.Code, 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	return strconv.FormatInt(highest+1, 10)
}

// AddMovie inserts a new movie and returns it as stored.
// An empty code is filled in when auto codes are enabled.
func (r *Registry) AddMovie(ctx context.Context, m Movie) (Movie, error) {
	m = m.clone()
	m.Code = normalizeCode(m.Code)
	m.Payload = strings.TrimSpace(m.Payload)
	if m.Code == "" && !r.autoCode {
		return Movie{}, fmt.Errorf("%w: empty movie code", ErrInvalid)
	}
	if m.Payload == "" {
		return Movie{}, fmt.Errorf("%w: empty movie payload", ErrInvalid)
	}
	err := r.mutate(ctx, "movie.add", func(doc *Document) (bool, error) {
		if m.Code == "" {
			m.Code = nextCode(doc.Movies)
		}
		if movieIndex(doc.Movies, m.Code) >= 0 {
			return false, fmt.Errorf("%w: movie %q", ErrAlreadyExists, m.Code)
		}
		doc.Movies = append(doc.Movies, m)
		return true, nil
	})
	if err != nil {
		return Movie{}, err
	}
	return m.clone(), nil
}

// UpsertMovie replaces the movie with the same code or appends it, and
// returns it as stored. An empty code gets the next sequential code.
func (r *Registry) UpsertMovie(ctx context.Context, m Movie) (Movie, error) {
	m = m.clone()
	m.Code = normalizeCode(m.Code)
	m.Payload = strings.TrimSpace(m.Payload)
	if m.Payload == "" {
		return Movie{}, fmt.Errorf("%w: empty movie payload", ErrInvalid)
	}
	err := r.mutate(ctx, "movie.upsert", func(doc *Document) (bool, error) {
		if m.Code == "" {
			m.Code = nextCode(doc.Movies)
		}
		if i := movieIndex(doc.Movies, m.Code); i >= 0 {
			doc.Movies[i] = m
		} else {
			doc.Movies = append(doc.Movies, m)
		}
		return true, nil
	})
	if err != nil {
		return Movie{}, err
	}
	return m.clone(), nil
}

// UpdateMoviePayload swaps the payload and caption of an existing movie, keeping its position.
func (r *Registry) UpdateMoviePayload(ctx context.Context, code, payload string, media MediaType, caption string) error {
	code = normalizeCode(code)
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return fmt.Errorf("%w: empty movie payload", ErrInvalid)
	}
	return r.mutate(ctx, "movie.update", func(doc *Document) (bool, error) {
		i := movieIndex(doc.Movies, code)
		if i < 0 {
			return false, fmt.Errorf("%w: movie %q", ErrNotFound, code)
		}
		doc.Movies[i].Payload = payload
		doc.Movies[i].MediaType = media
		doc.Movies[i].Caption = strings.TrimSpace(caption)
		return true, nil
	})
}

// DeleteMovie removes a movie. The bool reports whether it existed.
func (r *Registry) DeleteMovie(ctx context.Context, code string) (bool, error) {
	code = normalizeCode(code)
	removed := false
	err := r.mutate(ctx, "movie.delete", func(doc *Document) (bool, error) {
		i := movieIndex(doc.Movies, code)
		if i < 0 {
			return false, nil
		}
		doc.Movies = append(doc.Movies[:i], doc.Movies[i+1:]...)
		removed = true
		return true, nil
	})
	return removed, err
}

func movieIndex(movies []Movie, code string) int {
	_, i, ok := lo.FindIndexOf(movies, func(m Movie) bool { return m.Code == code })
	if !ok {
		return -1
	}
	return i
}

// --- channels ---

// ListChannels returns channel ids in insertion order.
func (r *Registry) ListChannels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.doc.Channels...)
}

// HasChannel matches ids case-insensitively.
func (r *Registry) HasChannel(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return channelIndex(r.doc.Channels, normalizeChannel(id)) >= 0
}

// AddChannel appends a channel id.
func (r *Registry) AddChannel(ctx context.Context, id string) error {
	id = normalizeChannel(id)
	if id == "" {
		return fmt.Errorf("%w: empty channel id", ErrInvalid)
	}
	return r.mutate(ctx, "channel.add", func(doc *Document) (bool, error) {
		if channelIndex(doc.Channels, id) >= 0 {
			return false, fmt.Errorf("%w: channel %q", ErrAlreadyExists, id)
		}
		doc.Channels = append(doc.Channels, id)
		return true, nil
	})
}

// DeleteChannel removes a channel id. The bool reports whether it existed.
func (r *Registry) DeleteChannel(ctx context.Context, id string) (bool, error) {
	id = normalizeChannel(id)
	removed := false
	err := r.mutate(ctx, "channel.delete", func(doc *Document) (bool, error) {
		i := channelIndex(doc.Channels, id)
		if i < 0 {
			return false, nil
		}
		doc.Channels = append(doc.Channels[:i], doc.Channels[i+1:]...)
		removed = true
		return true, nil
	})
	return removed, err
}

func channelIndex(channels []string, id string) int {
	_, i, ok := lo.FindIndexOf(channels, func(c string) bool { return strings.EqualFold(c, id) })
	if !ok {
		return -1
	}
	return i
}

// --- admins ---

// ListAdmins returns admin ids in insertion order.
func (r *Registry) ListAdmins() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int64(nil), r.doc.Admins...)
}

// IsAdmin reports whether id is in the admin set.
func (r *Registry) IsAdmin(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Contains(r.doc.Admins, id)
}

// AddAdmin grants admin rights.
func (r *Registry) AddAdmin(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: admin id must be positive", ErrInvalid)
	}
	return r.mutate(ctx, "admin.add", func(doc *Document) (bool, error) {
		if lo.Contains(doc.Admins, id) {
			return false, fmt.Errorf("%w: admin %d", ErrAlreadyExists, id)
		}
		doc.Admins = append(doc.Admins, id)
		return true, nil
	})
}

// DeleteAdmin revokes admin rights. The last remaining admin cannot be removed.
func (r *Registry) DeleteAdmin(ctx context.Context, id int64) (bool, error) {
	removed := false
	err := r.mutate(ctx, "admin.delete", func(doc *Document) (bool, error) {
		i := lo.IndexOf(doc.Admins, id)
		if i < 0 {
			return false, nil
		}
		if len(doc.Admins) == 1 {
			return false, ErrLastAdmin
		}
		doc.Admins = append(doc.Admins[:i], doc.Admins[i+1:]...)
		removed = true
		return true, nil
	})
	return removed, err
}

// --- users ---

// AddUserIfAbsent records a user id. The bool reports whether it was new.
func (r *Registry) AddUserIfAbsent(ctx context.Context, id int64) (bool, error) {
	r.mu.RLock()
	known := lo.Contains(r.doc.Users, id)
	r.mu.RUnlock()
	if known {
		return false, nil
	}
	added := false
	err := r.mutate(ctx, "user.add", func(doc *Document) (bool, error) {
		if lo.Contains(doc.Users, id) {
			return false, nil
		}
		doc.Users = append(doc.Users, id)
		added = true
		return true, nil
	})
	return added, err
}
