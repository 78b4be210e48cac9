// Package conversation runs the multi-step admin workflows, one session per user.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/kinobot/core/logger"
	"github.com/m3rciful/kinobot/core/metrics"
	"github.com/m3rciful/kinobot/internal/chat"
)

const (
	// DefaultTTL bounds how long an idle session survives.
	DefaultTTL = 15 * time.Minute

	textCancelled     = "Action cancelled."
	textPrevCancelled = "The previous action was cancelled."
	textSaveFailed    = "⚠️ Could not save the change, nothing was modified. Please try again later."
)

// Session is a read-only view of a user's workflow.
type Session struct {
	ID        string
	UserID    int64
	Workflow  Kind
	Step      string
	Draft     Draft
	StartedAt time.Time
	UpdatedAt time.Time
}

type session struct {
	id        string
	userID    int64
	kind      Kind
	step      int
	draft     Draft
	startedAt time.Time
	updatedAt time.Time
}

// userSlot serializes every event of one user. A slot removed from the map is
// marked dead so late waiters pick up a fresh one.
type userSlot struct {
	mu   sync.Mutex
	sess *session
	dead bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithTTL sets the idle timeout; non-positive values keep the default.
func WithTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine owns all in-flight sessions. Sessions live in memory only.
type Engine struct {
	reg Registry
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	slots map[int64]*userSlot
}

// New builds an Engine committing through reg.
func New(reg Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:   reg,
		ttl:   DefaultTTL,
		now:   time.Now,
		slots: make(map[int64]*userSlot),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) acquire(userID int64) *userSlot {
	for {
		e.mu.Lock()
		slot, ok := e.slots[userID]
		if !ok {
			slot = &userSlot{}
			e.slots[userID] = slot
		}
		e.mu.Unlock()

		slot.mu.Lock()
		if !slot.dead {
			return slot
		}
		slot.mu.Unlock()
	}
}

func (e *Engine) expired(s *session, now time.Time) bool {
	return now.Sub(s.updatedAt) > e.ttl
}

// live returns the slot's session, dropping it first if it expired.
func (e *Engine) live(ctx context.Context, slot *userSlot) *session {
	if slot.sess == nil {
		return nil
	}
	if e.expired(slot.sess, e.now()) {
		e.finish(ctx, slot, "expired", "cancelled")
		return nil
	}
	return slot.sess
}

// finish destroys the slot's session and records the terminal outcome.
func (e *Engine) finish(ctx context.Context, slot *userSlot, status, outcome string) {
	s := slot.sess
	if s == nil {
		return
	}
	slot.sess = nil
	metrics.ActiveSessions.Dec()
	metrics.WorkflowsTotal.WithLabelValues(string(s.kind), status).Inc()
	level := slog.LevelInfo
	if outcome == "fail" {
		level = slog.LevelError
	}
	logger.LogEvent(ctx, logger.Conversation, level, "workflow.finish",
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.String("workflow", string(s.kind)),
		slog.String("session_id", s.id),
		slog.Int64("user_id", s.userID),
		slog.Duration("duration", logger.RoundMS(e.now().Sub(s.startedAt))),
	)
}

// advance moves s to the next step that is not skipped.
// It returns false when no steps remain.
func (e *Engine) advance(s *session, from int) bool {
	steps := workflows[s.kind].steps
	for i := from; i < len(steps); i++ {
		if steps[i].skip != nil && steps[i].skip(e.reg) {
			continue
		}
		s.step = i
		return true
	}
	s.step = len(steps)
	return false
}

// Start opens a new workflow for userID, cancelling any active one.
func (e *Engine) Start(ctx context.Context, userID int64, kind Kind) ([]chat.Reply, error) {
	wf, ok := workflows[kind]
	if !ok {
		return nil, ErrUnknownWorkflow
	}
	slot := e.acquire(userID)
	defer slot.mu.Unlock()

	var replies []chat.Reply
	if e.live(ctx, slot) != nil {
		e.finish(ctx, slot, "cancelled", "cancelled")
		replies = append(replies, chat.Text(textPrevCancelled))
	}

	now := e.now()
	s := &session{
		id:        uuid.NewString(),
		userID:    userID,
		kind:      kind,
		startedAt: now,
		updatedAt: now,
	}
	slot.sess = s
	metrics.ActiveSessions.Inc()
	if !e.advance(s, 0) {
		out, err := e.commit(ctx, slot)
		return append(replies, out...), err
	}
	logger.LogEvent(ctx, logger.Conversation, slog.LevelInfo, "workflow.start",
		slog.String("status", "ok"),
		slog.String("workflow", string(kind)),
		slog.String("step", wf.steps[s.step].field),
		slog.String("session_id", s.id),
		slog.Int64("user_id", userID),
	)
	return append(replies, chat.Text(wf.steps[s.step].prompt)), nil
}

// Handle feeds one input to the user's active session.
// ErrNoSession means the input belongs to someone else (the router).
func (e *Engine) Handle(ctx context.Context, userID int64, in chat.Input) ([]chat.Reply, error) {
	slot := e.acquire(userID)
	defer slot.mu.Unlock()

	s := e.live(ctx, slot)
	if s == nil {
		return nil, ErrNoSession
	}
	wf := workflows[s.kind]
	st := wf.steps[s.step]

	next := s.draft
	err := st.accept(&next, in)
	if err == nil && st.check != nil {
		err = st.check(e.reg, next)
	}
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.updatedAt = e.now()
			logger.LogEvent(ctx, logger.Conversation, slog.LevelDebug, "workflow.step",
				slog.String("status", "invalid"),
				slog.String("workflow", string(s.kind)),
				slog.String("step", st.field),
				slog.String("session_id", s.id),
				slog.String("err", verr.Error()),
			)
			return []chat.Reply{chat.Text("⚠️ " + verr.Message), chat.Text(st.prompt)}, nil
		}
		if msg, ok := rejection(s.kind, next, err); ok {
			e.finish(ctx, slot, "rejected", "denied")
			return []chat.Reply{chat.Text(msg)}, nil
		}
		e.finish(ctx, slot, "failed", "fail")
		return []chat.Reply{chat.Text(textSaveFailed)}, err
	}

	s.draft = next
	s.updatedAt = e.now()
	if e.advance(s, s.step+1) {
		logger.LogEvent(ctx, logger.Conversation, slog.LevelDebug, "workflow.step",
			slog.String("status", "ok"),
			slog.String("workflow", string(s.kind)),
			slog.String("step", wf.steps[s.step].field),
			slog.String("session_id", s.id),
		)
		return []chat.Reply{chat.Text(wf.steps[s.step].prompt)}, nil
	}
	return e.commit(ctx, slot)
}

// commit writes the collected draft through the registry and always ends the session.
func (e *Engine) commit(ctx context.Context, slot *userSlot) ([]chat.Reply, error) {
	s := slot.sess
	wf := workflows[s.kind]
	ack, err := wf.commit(ctx, e.reg, s.draft)
	if err == nil {
		e.finish(ctx, slot, "committed", "ok")
		return []chat.Reply{chat.Text(ack)}, nil
	}
	if msg, ok := rejection(s.kind, s.draft, err); ok {
		e.finish(ctx, slot, "rejected", "denied")
		return []chat.Reply{chat.Text(msg)}, nil
	}
	logger.LogEvent(ctx, logger.Conversation, slog.LevelError, "workflow.commit",
		slog.String("status", "fail"),
		slog.String("workflow", string(s.kind)),
		slog.String("session_id", s.id),
		slog.String("err", err.Error()),
	)
	e.finish(ctx, slot, "failed", "fail")
	return []chat.Reply{chat.Text(textSaveFailed)}, err
}

// Cancel drops the user's session without committing. It reports whether one was active.
func (e *Engine) Cancel(ctx context.Context, userID int64) bool {
	slot := e.acquire(userID)
	defer slot.mu.Unlock()
	if e.live(ctx, slot) == nil {
		return false
	}
	e.finish(ctx, slot, "cancelled", "cancelled")
	return true
}

// Active reports the workflow the user is in, if any.
func (e *Engine) Active(userID int64) (Kind, bool) {
	s, ok := e.Session(userID)
	return s.Workflow, ok
}

// Session returns a snapshot of the user's live session.
func (e *Engine) Session(userID int64) (Session, bool) {
	e.mu.Lock()
	slot, ok := e.slots[userID]
	e.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	s := slot.sess
	if slot.dead || s == nil || e.expired(s, e.now()) {
		return Session{}, false
	}
	return Session{
		ID:        s.id,
		UserID:    s.userID,
		Workflow:  s.kind,
		Step:      workflows[s.kind].steps[s.step].field,
		Draft:     s.draft,
		StartedAt: s.startedAt,
		UpdatedAt: s.updatedAt,
	}, true
}

// Len returns the number of live sessions.
func (e *Engine) Len() int {
	e.mu.Lock()
	slots := make([]*userSlot, 0, len(e.slots))
	for _, slot := range e.slots {
		slots = append(slots, slot)
	}
	e.mu.Unlock()

	n := 0
	now := e.now()
	for _, slot := range slots {
		slot.mu.Lock()
		if !slot.dead && slot.sess != nil && !e.expired(slot.sess, now) {
			n++
		}
		slot.mu.Unlock()
	}
	return n
}

// Sweep drops expired sessions and idle slots. It returns the number of expired sessions.
func (e *Engine) Sweep(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	expired := 0
	for id, slot := range e.slots {
		if !slot.mu.TryLock() {
			// busy with an event right now, so not idle
			continue
		}
		if slot.sess != nil && e.expired(slot.sess, now) {
			e.finish(ctx, slot, "expired", "cancelled")
			expired++
		}
		if slot.sess == nil {
			slot.dead = true
			delete(e.slots, id)
		}
		slot.mu.Unlock()
	}
	if expired > 0 {
		logger.LogEvent(ctx, logger.Conversation, slog.LevelInfo, "session.sweep",
			slog.String("status", "ok"),
			slog.Int("expired", expired),
			slog.Int("remaining", len(e.slots)),
		)
	}
	return expired
}

// Run sweeps periodically until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	interval := e.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}
