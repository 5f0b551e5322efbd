// Package journal records session lifecycle events as Mangle facts and
// evaluates lifecycle rules over them, such as finished sessions that never
// gave back their browser context.
package journal

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"go.uber.org/zap"
)

//go:embed sessions.mg
var builtinSchema []byte

// Lifecycle predicates.
const (
	PredOpened             = "session_opened"
	PredState              = "session_state"
	PredReleased           = "session_released"
	PredOpenSession        = "open_session"
	PredUnreleasedTerminal = "unreleased_terminal"
)

// ErrNotReady is returned by rule evaluation when the journal is disabled
// or has no program loaded.
var ErrNotReady = errors.New("journal not ready")

// Fact is one recorded lifecycle observation. The first argument is always
// the session id.
type Fact struct {
	Predicate string    `json:"predicate"`
	Args      []string  `json:"args"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal buffers lifecycle facts and evaluates the lifecycle program on
// demand. It implements session.Observer.
type Journal struct {
	cfg config.JournalConfig
	log *zap.Logger

	mu          sync.RWMutex
	programInfo *analysis.ProgramInfo

	// Bounded buffer, oldest first.
	facts []Fact
	// Predicate to buffer positions.
	index map[string][]int
}

// New builds a journal. The built-in program is used unless cfg.SchemaPath
// names another one.
func New(cfg config.JournalConfig, log *zap.Logger) (*Journal, error) {
	if log == nil {
		log = zap.NewNop()
	}
	j := &Journal{
		cfg:   cfg,
		log:   log,
		index: make(map[string][]int),
	}
	if !cfg.Enable {
		return j, nil
	}
	if cfg.SchemaPath != "" {
		if err := j.LoadSchema(cfg.SchemaPath); err != nil {
			return nil, err
		}
		return j, nil
	}
	if err := j.loadProgram(builtinSchema); err != nil {
		return nil, fmt.Errorf("built-in schema: %w", err)
	}
	return j, nil
}

// LoadSchema parses and analyzes a Mangle program from disk, replacing the
// current one.
func (j *Journal) LoadSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	return j.loadProgram(data)
}

func (j *Journal) loadProgram(src []byte) error {
	unit, err := parse.Unit(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return fmt.Errorf("analyze schema: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.programInfo = programInfo
	return nil
}

// Ready reports whether rules can be evaluated.
func (j *Journal) Ready() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.cfg.Enable && j.programInfo != nil
}

// Observe turns a lifecycle event into a fact. Opening an id that was used
// before drops the earlier run's facts, so its release does not mask the new run.
func (j *Journal) Observe(e session.Event) {
	var f Fact
	switch e.Type {
	case session.Opened:
		j.forget(e.SessionID)
		f = Fact{Predicate: PredOpened, Args: []string{e.SessionID, string(e.Kind)}}
	case session.StateChanged:
		f = Fact{Predicate: PredState, Args: []string{e.SessionID, string(e.To)}}
	case session.Released:
		f = Fact{Predicate: PredReleased, Args: []string{e.SessionID, string(e.To)}}
	default:
		return
	}
	f.Timestamp = e.At
	j.Add(f)
}

// Add appends facts, trimming the oldest beyond the buffer limit.
func (j *Journal) Add(facts ...Fact) {
	if !j.cfg.Enable || len(facts) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	base := len(j.facts)
	j.facts = append(j.facts, facts...)
	if limit := j.cfg.FactBufferLimit; limit > 0 && len(j.facts) > limit {
		trim := len(j.facts) - limit
		j.facts = append([]Fact(nil), j.facts[trim:]...)
		j.rebuildIndex()
		j.log.Debug("journal trimmed", zap.Int("dropped", trim))
		return
	}
	for i, f := range facts {
		j.index[f.Predicate] = append(j.index[f.Predicate], base+i)
	}
}

func (j *Journal) forget(id string) {
	if !j.cfg.Enable {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.facts[:0]
	for _, f := range j.facts {
		if len(f.Args) > 0 && f.Args[0] == id {
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == len(j.facts) {
		return
	}
	j.facts = kept
	j.rebuildIndex()
}

func (j *Journal) rebuildIndex() {
	j.index = make(map[string][]int)
	for i, f := range j.facts {
		j.index[f.Predicate] = append(j.index[f.Predicate], i)
	}
}

// Facts returns a copy of the buffered facts.
func (j *Journal) Facts() []Fact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Fact, len(j.facts))
	copy(out, j.facts)
	return out
}

// FactsByPredicate returns buffered facts of one predicate, oldest first.
func (j *Journal) FactsByPredicate(predicate string) []Fact {
	j.mu.RLock()
	defer j.mu.RUnlock()

	indices := j.index[predicate]
	out := make([]Fact, 0, len(indices))
	for _, i := range indices {
		out = append(out, j.facts[i])
	}
	return out
}

// SessionFacts returns the buffered facts about one session, oldest first.
func (j *Journal) SessionFacts(id string) []Fact {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Fact, 0)
	for _, f := range j.facts {
		if len(f.Args) > 0 && f.Args[0] == id {
			out = append(out, f)
		}
	}
	return out
}

// Evaluate runs the program over a fresh store built from the buffer and
// returns the facts derived for predicate. Derived facts are not retained
// between calls.
func (j *Journal) Evaluate(ctx context.Context, predicate string) ([]Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	programInfo := j.programInfo
	buffered := make([]Fact, len(j.facts))
	copy(buffered, j.facts)
	j.mu.RUnlock()

	if !j.cfg.Enable || programInfo == nil {
		return nil, ErrNotReady
	}

	arity := -1
	for sym := range programInfo.Decls {
		if sym.Symbol == predicate {
			arity = sym.Arity
			break
		}
	}
	if arity < 0 {
		return nil, fmt.Errorf("predicate %q is not declared", predicate)
	}

	var store factstore.FactStore = factstore.NewSimpleInMemoryStore()
	for _, f := range buffered {
		store.Add(toAtom(f))
	}
	if err := engine.EvalProgram(programInfo, store); err != nil {
		return nil, fmt.Errorf("eval program: %w", err)
	}

	args := make([]ast.BaseTerm, arity)
	for i := range args {
		args[i] = ast.Variable{Symbol: fmt.Sprintf("V%d", i)}
	}
	query := ast.Atom{Predicate: ast.PredicateSym{Symbol: predicate, Arity: arity}, Args: args}

	now := time.Now()
	derived := make([]Fact, 0)
	err := store.GetFacts(query, func(atom ast.Atom) error {
		derived = append(derived, fromAtom(atom, now))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get facts: %w", err)
	}
	sort.Slice(derived, func(a, b int) bool {
		return fmt.Sprint(derived[a].Args) < fmt.Sprint(derived[b].Args)
	})
	return derived, nil
}

// Leaks lists sessions that reached a terminal state without being released.
func (j *Journal) Leaks(ctx context.Context) ([]string, error) {
	return j.sessionsFor(ctx, PredUnreleasedTerminal)
}

// OpenSessions lists sessions opened and not yet released.
func (j *Journal) OpenSessions(ctx context.Context) ([]string, error) {
	return j.sessionsFor(ctx, PredOpenSession)
}

func (j *Journal) sessionsFor(ctx context.Context, predicate string) ([]string, error) {
	facts, err := j.Evaluate(ctx, predicate)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(facts))
	for _, f := range facts {
		if len(f.Args) > 0 {
			ids = append(ids, f.Args[0])
		}
	}
	return ids, nil
}

func toAtom(f Fact) ast.Atom {
	args := make([]ast.BaseTerm, len(f.Args))
	for i, a := range f.Args {
		args[i] = ast.String(a)
	}
	return ast.Atom{
		Predicate: ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)},
		Args:      args,
	}
}

func fromAtom(atom ast.Atom, at time.Time) Fact {
	args := make([]string, len(atom.Args))
	for i, arg := range atom.Args {
		args[i] = constantString(arg)
	}
	return Fact{Predicate: atom.Predicate.Symbol, Args: args, Timestamp: at}
}

func constantString(term ast.BaseTerm) string {
	c, ok := term.(ast.Constant)
	if !ok {
		return fmt.Sprintf("%v", term)
	}
	if c.Type == ast.StringType {
		if v, err := c.StringValue(); err == nil {
			return v
		}
	}
	return c.String()
}
