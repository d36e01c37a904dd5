// classifier/pkg/store/rulestore.go

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rgehrsitz/classifier/pkg/compiler"
	"rgehrsitz/classifier/pkg/logging"
	"rgehrsitz/classifier/pkg/metrics"
	"rgehrsitz/classifier/pkg/validator"
)

// ErrNoSource is returned by Reload when the store has no Source.
var ErrNoSource = errors.New("rule store has no source")

// RuleStore holds the active RuleSet. Readers take a snapshot with a single
// atomic load; reloads compile a complete new RuleSet first and then swap
// the pointer.
type RuleStore struct {
	current  atomic.Pointer[compiler.RuleSet]
	compiler *compiler.Compiler
	source   Source
	metrics  *metrics.Metrics

	// seq orders reload attempts. A reload only swaps if no attempt that
	// started after it has swapped already.
	seq     atomic.Uint64
	mu      sync.Mutex
	swapped uint64

	listenersMu sync.RWMutex
	listeners   []func(*compiler.RuleSet)
}

// NewRuleStore returns a store holding an empty RuleSet. source and m may
// be nil; without a source only Load can be used.
func NewRuleStore(c *compiler.Compiler, source Source, m *metrics.Metrics) *RuleStore {
	if c == nil {
		c = compiler.NewCompiler(compiler.DefaultField, nil)
	}
	s := &RuleStore{compiler: c, source: source, metrics: m}
	s.current.Store(compiler.EmptyRuleSet())
	return s
}

// Snapshot returns the active RuleSet. It never blocks.
func (s *RuleStore) Snapshot() *compiler.RuleSet {
	return s.current.Load()
}

// LastLoadTime is the time the active RuleSet was loaded, zero before the
// first successful load.
func (s *RuleStore) LastLoadTime() time.Time {
	return s.Snapshot().LoadedAt
}

func (s *RuleStore) Source() Source {
	return s.source
}

func (s *RuleStore) DefaultField() string {
	return s.compiler.DefaultField()
}

// OnSwap registers fn to be called with every RuleSet that becomes active.
// Listeners run in swap order while the swap lock is held, so fn must not
// block or call back into the store.
func (s *RuleStore) OnSwap(fn func(*compiler.RuleSet)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload reads the source and loads it. On error the active RuleSet is
// left as it was.
func (s *RuleStore) Reload(ctx context.Context) error {
	seq := s.seq.Add(1)
	if s.source == nil {
		return ErrNoSource
	}
	data, err := s.source.Read(ctx)
	if err != nil {
		s.metrics.ObserveReload(metrics.ReloadFailure)
		logging.LogError(logging.Logger, err)
		return err
	}
	return s.load(seq, s.source.Name(), data)
}

// Load compiles source and makes it the active RuleSet. Rules that fail to
// compile are logged and left out; only an unreadable document is an error.
func (s *RuleStore) Load(source []byte) error {
	return s.load(s.seq.Add(1), "inline", source)
}

func (s *RuleStore) load(seq uint64, origin string, source []byte) error {
	rs, diagnostics, err := s.compiler.Compile(source)
	if err != nil {
		s.metrics.ObserveReload(metrics.ReloadFailure)
		logging.LogError(logging.Logger, err)
		return err
	}
	for _, d := range diagnostics {
		logging.Logger.Warn().Str("source", origin).Str("category", d.CategoryKey).Str("reason", d.Message).Msg("Category dropped from rule set")
	}
	for _, f := range validator.Lint(rs) {
		logging.Logger.Warn().Str("source", origin).Str("category", f.Category).Str("reason", f.Message).Msg("Category will never match")
	}

	if !s.swap(seq, rs) {
		logging.Logger.Debug().Str("source", origin).Str("version", rs.Version).Msg("Discarding rule set superseded by a newer reload")
		return nil
	}

	s.metrics.ObserveReload(metrics.ReloadSuccess)
	s.metrics.SetActive(rs.Len(), len(diagnostics), rs.LoadedAt)
	logging.Logger.Info().
		Str("source", origin).
		Str("version", rs.Version).
		Int("categories", rs.Len()).
		Int("diagnostics", len(diagnostics)).
		Msg("Loaded rule set")
	return nil
}

func (s *RuleStore) swap(seq uint64, rs *compiler.RuleSet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.swapped {
		return false
	}
	s.swapped = seq
	s.current.Store(rs)

	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(rs)
	}
	return true
}
