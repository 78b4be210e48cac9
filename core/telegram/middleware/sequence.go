package middleware

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/m3rciful/kinobot/core/logger"
	tghelpers "github.com/m3rciful/kinobot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// SequencerOptions controls the inbound worker pool.
type SequencerOptions struct {
	Workers   int
	QueueSize int
	// OnError receives handler errors, since the handler no longer returns to the bot.
	OnError   func(error, tele.Context)
}

// Sequencer runs handlers on workers sharded by sender id. Updates from one
// user are handled one at a time in the order the bot received them, while
// different users proceed in parallel. The bot must run in synchronous mode
// so the middleware itself sees updates in arrival order.
type Sequencer struct {
	opts   SequencerOptions
	queues []chan func()
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	next   atomic.Uint64
}

// NewSequencer starts the workers, filling zero options with defaults.
func NewSequencer(opts SequencerOptions) *Sequencer {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	s := &Sequencer{opts: opts, queues: make([]chan func(), opts.Workers)}
	s.wg.Add(opts.Workers)
	for i := range s.queues {
		s.queues[i] = make(chan func(), opts.QueueSize)
		go s.worker(s.queues[i])
	}
	return s
}

func (s *Sequencer) worker(queue <-chan func()) {
	defer s.wg.Done()
	for run := range queue {
		run()
	}
}

func (s *Sequencer) shard(c tele.Context) chan func() {
	n := uint64(len(s.queues))
	if u := c.Sender(); u != nil && u.ID != 0 {
		id := u.ID
		if id < 0 {
			id = -id
		}
		return s.queues[uint64(id)%n]
	}
	return s.queues[s.next.Add(1)%n]
}

// Middleware queues the rest of the chain on the sender's worker.
// A full queue blocks the caller, which keeps ordering and pushes back on the poller.
// After Close the chain runs inline.
func (s *Sequencer) Middleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		run := func() {
			if err := next(c); err != nil {
				s.report(err, c)
			}
		}
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			return next(c)
		}
		queue := s.shard(c)
		depth := len(queue)
		queue <- run
		s.mu.RUnlock()
		if depth >= cap(queue) {
			logger.Warn(tghelpers.BuildContext(c), "tg", "inbound.backpressure",
				slog.Int("queue", depth),
			)
		}
		return nil
	}
}

func (s *Sequencer) report(err error, c tele.Context) {
	if s.opts.OnError != nil {
		s.opts.OnError(err, c)
		return
	}
	logger.Error(tghelpers.BuildContext(c), "tg", "handler.error", slog.String("err", err.Error()))
}

// Close stops accepting updates and waits for queued handlers to finish.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
