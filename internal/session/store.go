package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/browser"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"go.uber.org/zap"
)

const defaultTombstoneTTL = time.Hour

// Store is the concurrency-safe registry of live sessions. Each session owns
// exactly one browser handle; the handle is closed when the session leaves
// the registry.
type Store struct {
	factory      browser.Factory
	log          *zap.Logger
	idle         time.Duration
	tombstoneTTL time.Duration
	now          func() time.Time
	newID        func() string

	mu         sync.Mutex
	sessions   map[string]*Session
	tombstones map[string]time.Time
	observers  []Observer
	closed     bool
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTimeout sets how long a session may sit between steps before the sweeper reaps it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) { s.idle = d }
}

// WithTombstoneTTL sets how long an expired id keeps answering SessionExpired.
func WithTombstoneTTL(d time.Duration) Option {
	return func(s *Store) { s.tombstoneTTL = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets how ids are generated when the caller supplies none.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the store logger; the default discards.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithObservers registers lifecycle observers at construction.
func WithObservers(obs ...Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, obs...) }
}

func NewStore(factory browser.Factory, opts ...Option) *Store {
	s := &Store{
		factory:      factory,
		log:          zap.NewNop(),
		idle:         5 * time.Minute,
		tombstoneTTL: defaultTombstoneTTL,
		now:          time.Now,
		newID:        uuid.NewString,
		sessions:     make(map[string]*Session),
		tombstones:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe registers an additional lifecycle observer.
func (st *Store) Observe(obs Observer) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.observers = append(st.observers, obs)
}

func (st *Store) emit(e Event) {
	st.mu.Lock()
	observers := append([]Observer(nil), st.observers...)
	st.mu.Unlock()
	for _, o := range observers {
		o.Observe(e)
	}
}

// Create registers a new session, allocates its handle and returns it with
// the step lock held. An empty id gets a generated one.
func (st *Store) Create(ctx context.Context, kind Kind, id string, params Params) (*Session, error) {
	if id == "" {
		id = st.newID()
	}
	now := st.now()
	s := &Session{
		ID:         id,
		Kind:       kind,
		Params:     params,
		CreatedAt:  now,
		store:      st,
		step:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		state:      Init,
		lastActive: now,
	}
	s.step <- struct{}{}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil, failure.New(failure.AllocationFailure, "session store is shut down")
	}
	if _, exists := st.sessions[id]; exists {
		st.mu.Unlock()
		return nil, failure.New(failure.SessionConflict, "session %s is already active", id)
	}
	st.sessions[id] = s
	delete(st.tombstones, id)
	st.mu.Unlock()

	handle, err := st.factory.NewHandle(ctx)
	if err != nil {
		st.mu.Lock()
		delete(st.sessions, id)
		st.mu.Unlock()
		// Wake Acquire callers that found the id while allocation was pending.
		_, _ = s.closeHandle()
		st.log.Error("handle allocation failed", zap.String("session_id", id), zap.Error(err))
		return nil, failure.Wrap(failure.AllocationFailure, err, "could not open a browser context")
	}
	s.handle = handle

	st.emit(Event{Type: Opened, SessionID: id, Kind: kind, To: Init, At: now})
	st.log.Debug("session created", zap.String("session_id", id), zap.String("kind", string(kind)))
	return s, nil
}

func (st *Store) lookup(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s, nil
	}
	if _, ok := st.tombstones[id]; ok {
		return nil, failure.New(failure.SessionExpired, "session %s expired; please restart", id)
	}
	return nil, failure.New(failure.SessionNotFound, "session %s not found", id)
}

// Acquire takes the step lock of a live session, waiting for an in-flight
// step on the same id to finish.
func (st *Store) Acquire(ctx context.Context, id string) (*Session, error) {
	s, err := st.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case s.step <- struct{}{}:
	case <-s.done:
		return nil, st.goneErr(s)
	case <-ctx.Done():
		return nil, failure.Wrap(failure.Internal, ctx.Err(), "waiting for session %s", id)
	}
	if s.isReleased() {
		s.unlock()
		return nil, st.goneErr(s)
	}
	s.touch(st.now())
	return s, nil
}

func (st *Store) goneErr(s *Session) error {
	if s.State() == Expired {
		return failure.New(failure.SessionExpired, "session %s expired; please restart", s.ID)
	}
	return failure.New(failure.SessionNotFound, "session %s not found", s.ID)
}

// Get returns a snapshot of a live session.
func (st *Store) Get(id string) (Snapshot, error) {
	s, err := st.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Yield ends the current step and refreshes the idle clock.
func (st *Store) Yield(s *Session) {
	s.touch(st.now())
	s.unlock()
}

// Finish ends a step: terminal sessions are released, others yielded.
func (st *Store) Finish(s *Session) {
	if s.State().Terminal() {
		_ = st.release(s)
		return
	}
	st.Yield(s)
}

// Release closes the session's handle and removes it. Releasing an unknown
// or already released id is a no-op.
func (st *Store) Release(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return nil
	}
	return st.release(s)
}

func (st *Store) release(s *Session) error {
	st.mu.Lock()
	if cur, ok := st.sessions[s.ID]; ok && cur == s {
		delete(st.sessions, s.ID)
	}
	st.mu.Unlock()

	first, err := s.closeHandle()
	if !first {
		return nil
	}
	if err != nil {
		st.log.Warn("handle close failed", zap.String("session_id", s.ID), zap.Error(err))
	}

	snap := s.Snapshot()
	results := s.Results()
	st.emit(Event{Type: Released, SessionID: s.ID, Kind: s.Kind, From: snap.State, To: snap.State, At: st.now(), Final: &snap, Results: &results})
	st.log.Debug("session released", zap.String("session_id", s.ID), zap.String("state", string(snap.State)))
	return err
}

// Sweep expires sessions idle longer than the idle timeout and not mid-step.
// It returns the expired ids.
func (st *Store) Sweep(now time.Time) []string {
	st.mu.Lock()
	var stale []*Session
	for _, s := range st.sessions {
		if now.Sub(s.idleSince()) < st.idle {
			continue
		}
		if !s.tryLock() {
			continue
		}
		stale = append(stale, s)
	}
	for id, at := range st.tombstones {
		if now.Sub(at) > st.tombstoneTTL {
			delete(st.tombstones, id)
		}
	}
	st.mu.Unlock()

	expired := make([]string, 0, len(stale))
	for _, s := range stale {
		s.mu.Lock()
		if !s.state.Terminal() {
			s.err = failure.New(failure.SessionExpired, "session %s expired after %s idle", s.ID, st.idle)
		}
		s.mu.Unlock()
		s.Transition(Expired)

		st.mu.Lock()
		st.tombstones[s.ID] = now
		st.mu.Unlock()

		_ = st.release(s)
		expired = append(expired, s.ID)
		st.log.Info("session expired", zap.String("session_id", s.ID))
	}
	return expired
}

// Run sweeps every interval until ctx is cancelled.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep(st.now())
		}
	}
}

// Shutdown releases every live session and refuses new ones.
func (st *Store) Shutdown() {
	st.mu.Lock()
	st.closed = true
	live := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		live = append(live, s)
	}
	st.mu.Unlock()

	for _, s := range live {
		s.Fail(failure.New(failure.Internal, "service shutting down"))
		_ = st.release(s)
	}
	st.log.Info("session store drained", zap.Int("released", len(live)))
}

// List returns snapshots of live sessions, oldest first.
func (st *Store) List() []Snapshot {
	st.mu.Lock()
	live := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		live = append(live, s)
	}
	st.mu.Unlock()

	out := make([]Snapshot, 0, len(live))
	for _, s := range live {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len is the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
