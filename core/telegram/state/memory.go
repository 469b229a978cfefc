package state

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/kaoribot/core/logger"
	"github.com/m3rciful/kaoribot/core/metrics"
)

type entry struct {
	// lock serializes Update, Delete and expiry of this entry.
	lock sync.Mutex

	key      Key
	status   Status
	data     any
	created  time.Time
	deadline time.Time
	onExpire ExpireFunc

	gen     uint64
	timer   *time.Timer
	removed atomic.Bool
}

func (e *entry) view() Session {
	return Session{
		Key:      e.key,
		Status:   e.status,
		Data:     e.data,
		Created:  e.created,
		Deadline: e.deadline,
	}
}

// Store is an in-memory session registry with per-session expiry.
// It is safe for concurrent use. Do not call Store methods for the same key
// from inside an Update callback.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// NewStore creates an empty store. Expiry callbacks receive a context that is
// cancelled by Close.
func NewStore() *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// Create inserts a new session. It fails with ErrSessionExists when the key is
// taken and with ErrConflict when opts.Conflict matches a live key.
func (s *Store) Create(key Key, opts Options) error {
	id := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.entries[id]; ok {
		return ErrSessionExists
	}
	if opts.Conflict != nil {
		for _, e := range s.entries {
			if opts.Conflict(e.key) {
				return ErrConflict
			}
		}
	}

	status := opts.Status
	if status == "" {
		status = StatusPending
	}
	e := &entry{
		key:      key,
		status:   status,
		data:     opts.Data,
		created:  s.now(),
		onExpire: opts.OnExpire,
	}
	s.entries[id] = e
	s.scheduleLocked(e, opts.TTL)

	metrics.SessionsActive.WithLabelValues(key.Feature).Inc()
	logger.SESS.Debug("session created",
		slog.String("session", id),
		slog.String("status", string(status)),
		slog.Int64("ttl_ms", opts.TTL.Milliseconds()),
	)
	return nil
}

// CreateExclusive is Create guarded by conflict, which is checked against
// every live key under the same lock as the insert.
func (s *Store) CreateExclusive(key Key, conflict func(Key) bool, opts Options) error {
	opts.Conflict = conflict
	return s.Create(key, opts)
}

// Get returns a snapshot of the session. Mutable payloads should be read
// through Update.
func (s *Store) Get(key Key) (Session, bool) {
	s.mu.Lock()
	e, ok := s.entries[key.String()]
	s.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.removed.Load() {
		return Session{}, false
	}
	return e.view(), true
}

// Update runs fn with exclusive access to the session and commits the
// Status, Data, Extend and End changes fn made. It reports false, without
// calling fn, when no session exists. An error from fn discards the changes.
func (s *Store) Update(key Key, fn func(*Session) error) (bool, error) {
	e := s.lookup(key)
	if e == nil {
		return false, nil
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.removed.Load() {
		return false, nil
	}

	v := e.view()
	if err := fn(&v); err != nil {
		return true, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ended {
		s.removeLocked(e)
		logger.SESS.Debug("session ended", slog.String("session", key.String()))
		return true, nil
	}
	e.status = v.Status
	e.data = v.Data
	if v.extend > 0 {
		s.scheduleLocked(e, v.extend)
	}
	return true, nil
}

// Delete removes the session without running its timeout action and returns
// the final snapshot.
func (s *Store) Delete(key Key) (Session, bool) {
	e := s.lookup(key)
	if e == nil {
		return Session{}, false
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.removed.Load() {
		return Session{}, false
	}
	s.mu.Lock()
	s.removeLocked(e)
	s.mu.Unlock()
	logger.SESS.Debug("session deleted", slog.String("session", key.String()))
	return e.view(), true
}

// Find returns the keys of live sessions matching pred.
func (s *Store) Find(pred func(Key) bool) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Key
	for _, e := range s.entries {
		if pred == nil || pred(e.key) {
			out = append(out, e.key)
		}
	}
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Counts returns the number of live sessions per feature.
func (s *Store) Counts() map[string]int {
	out := map[string]int{}
	for _, k := range s.Find(nil) {
		out[k.Feature]++
	}
	return out
}

// Close stops every timer and drops all sessions. Timeout actions do not run.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	for _, e := range s.entries {
		s.removeLocked(e)
	}
}

func (s *Store) lookup(key Key) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key.String()]
}

// scheduleLocked replaces the entry's timer. Callers hold s.mu.
func (s *Store) scheduleLocked(e *entry, ttl time.Duration) {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if ttl <= 0 {
		e.deadline = time.Time{}
		return
	}
	e.deadline = s.now().Add(ttl)
	gen := e.gen
	e.timer = time.AfterFunc(ttl, func() { s.expire(e, gen) })
}

// removeLocked drops the entry from the map. Callers hold s.mu.
func (s *Store) removeLocked(e *entry) {
	if e.removed.Load() {
		return
	}
	e.removed.Store(true)
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	id := e.key.String()
	if cur, ok := s.entries[id]; ok && cur == e {
		delete(s.entries, id)
	}
	metrics.SessionsActive.WithLabelValues(e.key.Feature).Dec()
}

func (s *Store) expire(e *entry, gen uint64) {
	e.lock.Lock()
	s.mu.Lock()
	if e.removed.Load() || e.gen != gen || s.closed {
		s.mu.Unlock()
		e.lock.Unlock()
		return
	}
	s.removeLocked(e)
	ctx := s.ctx
	s.mu.Unlock()
	snap := e.view()
	e.lock.Unlock()

	metrics.SessionsExpired.WithLabelValues(e.key.Feature).Inc()
	logger.SESS.Debug("session expired",
		slog.String("session", e.key.String()),
		slog.String("status", string(snap.Status)),
	)
	if e.onExpire != nil {
		e.onExpire(ctx, snap)
	}
}
