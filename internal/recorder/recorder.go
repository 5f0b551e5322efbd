// Package recorder writes one JSONL trace file per session so a failed
// captcha round trip can be replayed step by step.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"go.uber.org/zap"
)

const (
	DefaultMaxFiles = 50
	DefaultTraceDir = "data/traces"
)

// Entry is a single line of a trace file.
type Entry struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

type trace struct {
	file    *os.File
	encoder *json.Encoder
}

// Recorder manages the open trace files. It implements session.Observer.
type Recorder struct {
	mu       sync.Mutex
	basePath string
	maxFiles int
	open     map[string]*trace
	log      *zap.Logger
	now      func() time.Time
}

// NewRecorder creates a recorder and ensures its directory exists.
func NewRecorder(cfg config.TraceConfig, log *zap.Logger) (*Recorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	basePath := cfg.Dir
	if basePath == "" {
		basePath = DefaultTraceDir
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{
		basePath: basePath,
		maxFiles: maxFiles,
		open:     make(map[string]*trace),
		log:      log,
		now:      time.Now,
	}, nil
}

// Start opens a new trace for sessionID, rotating old traces first.
func (r *Recorder) Start(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.open[sessionID]; ok {
		_ = t.file.Close()
		delete(r.open, sessionID)
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	filename := fmt.Sprintf("trace_%s_%d.jsonl", sessionID, r.now().UnixMilli())
	f, err := os.Create(filepath.Join(r.basePath, filename))
	if err != nil {
		return err
	}
	r.open[sessionID] = &trace{file: f, encoder: json.NewEncoder(f)}
	return nil
}

// Log appends an entry to the session's trace. Sessions without an open
// trace are ignored.
func (r *Recorder) Log(eventType, sessionID string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.open[sessionID]
	if !ok {
		return
	}
	entry := Entry{
		Timestamp: r.now(),
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
	}
	if err := t.encoder.Encode(entry); err != nil {
		r.log.Warn("trace write failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Finish closes the session's trace.
func (r *Recorder) Finish(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.open[sessionID]
	if !ok {
		return nil
	}
	delete(r.open, sessionID)
	return t.file.Close()
}

// Observe records lifecycle events: Opened starts a trace, Released ends it.
func (r *Recorder) Observe(e session.Event) {
	switch e.Type {
	case session.Opened:
		if err := r.Start(e.SessionID); err != nil {
			r.log.Warn("trace start failed", zap.String("session_id", e.SessionID), zap.Error(err))
			return
		}
		r.Log(string(e.Type), e.SessionID, map[string]string{"kind": string(e.Kind)})
	case session.StateChanged:
		r.Log(string(e.Type), e.SessionID, map[string]string{"from": string(e.From), "to": string(e.To)})
	case session.Released:
		r.Log(string(e.Type), e.SessionID, map[string]interface{}{"final": e.Final, "results": e.Results})
		if err := r.Finish(e.SessionID); err != nil {
			r.log.Warn("trace close failed", zap.String("session_id", e.SessionID), zap.Error(err))
		}
	}
}

// rotate deletes the oldest closed traces so that, with the one about to be
// created, at most maxFiles remain. Caller holds r.mu.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	openNames := make(map[string]bool, len(r.open))
	for _, t := range r.open {
		openNames[filepath.Base(t.file.Name())] = true
	}

	type traceFile struct {
		name string
		mod  time.Time
	}
	var traces []traceFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" || openNames[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, traceFile{e.Name(), info.ModTime()})
	}

	// Newest first.
	sort.Slice(traces, func(i, j int) bool {
		if traces[i].mod.Equal(traces[j].mod) {
			return traces[i].name > traces[j].name
		}
		return traces[i].mod.After(traces[j].mod)
	})

	keep := r.maxFiles - 1 - len(openNames)
	if keep < 0 {
		keep = 0
	}
	for i := keep; i < len(traces); i++ {
		_ = os.Remove(filepath.Join(r.basePath, traces[i].name))
	}
	return nil
}

// Close ends every open trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for id, t := range r.open {
		if err := t.file.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.open, id)
	}
	return first
}
