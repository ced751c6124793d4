// Package contextstore holds per-conversation state in memory. Access is
// serialized per conversation id so that concurrent turn handlers never
// interleave reads and writes of the same history, while unrelated
// conversations proceed in parallel across shards.
package contextstore

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain"
	"github.com/Remaker-Digital/AGNTCY-muti-agent-deployment-customer-service-sub001/internal/domain/conversation"
)

const shardCount = 32

// Options tunes idle eviction.
type Options struct {
	IdleTTL       time.Duration // conversations idle longer than this are evicted
	SweepInterval time.Duration // how often the sweeper scans
}

type shard struct {
	mu    sync.Mutex
	conns map[string]*conversation.Context
}

// Store is a sharded in-memory conversation store with background idle
// eviction.
type Store struct {
	shards  [shardCount]*shard
	opts    Options
	log     *slog.Logger
	done    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// New creates the store and starts the eviction sweeper when IdleTTL is set.
func New(opts Options, log *slog.Logger) *Store {
	s := &Store{opts: opts, log: log, done: make(chan struct{})}
	for i := range s.shards {
		s.shards[i] = &shard{conns: make(map[string]*conversation.Context)}
	}
	if opts.IdleTTL > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = time.Minute
		}
		s.wg.Add(1)
		go s.sweep(interval)
	}
	return s
}

func (s *Store) shardFor(contextID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(contextID))
	return s.shards[h.Sum32()%shardCount]
}

// Begin runs fn while holding the lock for contextID, creating the
// conversation if it does not exist yet. Only the turn-opening hop may
// create: every other write path goes through With and fails on unknown ids.
func (s *Store) Begin(ctx context.Context, contextID string, fn func(c *conversation.Context) error) error {
	return s.locked(ctx, contextID, true, fn)
}

// With runs fn while holding the lock for contextID. An unknown contextID is
// domain.ErrNotFound: a mid-turn write must never fabricate a conversation.
// Mutations made by fn are retained. fn must not call back into the store.
func (s *Store) With(ctx context.Context, contextID string, fn func(c *conversation.Context) error) error {
	return s.locked(ctx, contextID, false, fn)
}

func (s *Store) locked(ctx context.Context, contextID string, create bool, fn func(c *conversation.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shardFor(contextID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.conns[contextID]
	if !ok {
		if !create {
			return &domain.NotFoundError{Entity: "conversation", Key: contextID}
		}
		c = conversation.New(contextID, "")
		sh.conns[contextID] = c
	}
	if err := fn(c); err != nil {
		return err
	}
	c.Touch()
	return nil
}

// Get returns a copy-free reference to an existing conversation, or
// domain.ErrNotFound. Callers that mutate must use With instead.
func (s *Store) Get(contextID string) (*conversation.Context, error) {
	sh := s.shardFor(contextID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.conns[contextID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "conversation", Key: contextID}
	}
	return c, nil
}

// Len reports the number of live conversations.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.conns)
		sh.mu.Unlock()
	}
	return n
}

func (s *Store) sweep(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			evicted := s.evictIdle(time.Now())
			if evicted > 0 {
				s.log.Info("evicted idle conversations", "count", evicted)
			}
		}
	}
}

func (s *Store) evictIdle(now time.Time) int {
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, c := range sh.conns {
			if c.IdleSince(now, s.opts.IdleTTL) {
				delete(sh.conns, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}

// Close stops the sweeper. Conversations remain readable until the process
// exits.
func (s *Store) Close() {
	s.stopped.Do(func() { close(s.done) })
	s.wg.Wait()
}
