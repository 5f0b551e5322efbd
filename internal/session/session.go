// Package session owns the process-wide registry of in-flight captcha
// sessions and the browser handles they hold.
package session

import (
	"sync"
	"time"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/browser"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/extract"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
)

// Kind identifies the workflow a session belongs to.
type Kind string

const (
	CNR       Kind = "CNR"
	CauseList Kind = "CAUSE_LIST"
)

// State is a workflow state. Each workflow uses a subset.
type State string

const (
	Init         State = "INIT"
	AwaitCaptcha State = "AWAIT_CAPTCHA"
	Submitting   State = "SUBMITTING"
	Extracting   State = "EXTRACTING"
	Packaging    State = "PACKAGING"
	Rendering    State = "RENDERING"
	Complete     State = "COMPLETE"
	Failed       State = "FAILED"
	Expired      State = "EXPIRED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Complete || s == Failed || s == Expired
}

// Params are the caller-supplied workflow inputs.
type Params struct {
	CNR          string `json:"cnr,omitempty"`
	State        string `json:"state,omitempty"`
	District     string `json:"district,omitempty"`
	CourtComplex string `json:"court_complex,omitempty"`
	CourtName    string `json:"court_name,omitempty"`
	Date         string `json:"date,omitempty"`
	CaseType     string `json:"case_type,omitempty"`
}

// Results accumulate as a workflow progresses.
type Results struct {
	CaseInfo        extract.CaseInfo `json:"case_info"`
	DocumentLinks   []string         `json:"document_links,omitempty"`
	DownloadedFiles []string         `json:"downloaded_files,omitempty"`
	Archive         string           `json:"archive,omitempty"`
	DocumentPath    string           `json:"document_path,omitempty"`
	Rows            [][]string       `json:"rows,omitempty"`
}

// Snapshot is a read-only copy of a session's observable state.
type Snapshot struct {
	ID          string       `json:"session_id"`
	Kind        Kind         `json:"kind"`
	State       State        `json:"state"`
	CaptchaGate bool         `json:"captcha_gate"`
	Params      Params       `json:"params"`
	CreatedAt   time.Time    `json:"created_at"`
	LastActive  time.Time    `json:"last_active"`
	ErrorKind   failure.Kind `json:"error_kind,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Session is one in-flight workflow run. Only the goroutine holding the step
// lock (obtained through Store.Create or Store.Acquire) may drive it.
type Session struct {
	ID        string
	Kind      Kind
	Params    Params
	CreatedAt time.Time

	store  *Store
	handle browser.Handle
	step   chan struct{}
	done   chan struct{}

	mu          sync.Mutex
	state       State
	captchaGate bool
	lastActive  time.Time
	err         error
	results     Results
	released    bool
	closeOnce   sync.Once
	closeErr    error
}

// Handle returns the browser handle exclusively owned by this session.
func (s *Session) Handle() browser.Handle {
	return s.handle
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure recorded by Fail or by expiry.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Transition moves the session to a new state and notifies observers.
// Transitions out of a terminal state are ignored.
func (s *Session) Transition(to State) {
	s.mu.Lock()
	from := s.state
	if from.Terminal() || from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	if to == AwaitCaptcha {
		s.captchaGate = true
	}
	s.mu.Unlock()

	s.store.emit(Event{Type: StateChanged, SessionID: s.ID, Kind: s.Kind, From: from, To: to, At: s.store.now()})
}

// Fail records err and moves the session to FAILED.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.mu.Unlock()
	s.Transition(Failed)
}

// Update mutates the session results under its lock.
func (s *Session) Update(fn func(r *Results)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.results)
}

func (s *Session) Results() Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:          s.ID,
		Kind:        s.Kind,
		State:       s.state,
		CaptchaGate: s.captchaGate,
		Params:      s.Params,
		CreatedAt:   s.CreatedAt,
		LastActive:  s.lastActive,
	}
	if s.err != nil {
		snap.ErrorKind = failure.KindOf(s.err)
		snap.Error = failure.Public(s.err)
	}
	return snap
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// closeHandle closes the owned handle exactly once. first is true only for
// the call that actually closed it.
func (s *Session) closeHandle() (first bool, err error) {
	s.closeOnce.Do(func() {
		first = true
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
		close(s.done)
		if s.handle != nil {
			s.closeErr = s.handle.Close()
		}
	})
	return first, s.closeErr
}

func (s *Session) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// tryLock takes the step lock without waiting.
func (s *Session) tryLock() bool {
	select {
	case s.step <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) unlock() {
	select {
	case <-s.step:
	default:
	}
}
