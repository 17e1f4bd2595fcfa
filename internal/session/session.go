// Package session owns the current result and the history log, and is the
// only place either is mutated.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/lotto-desk/internal/archive"
	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/metrics"
	"github.com/MJE43/lotto-desk/internal/predict"
)

var (
	ErrNotFound    = errors.New("session: entry not found")
	ErrNoStore     = errors.New("session: no history store")
	ErrIDExhausted = errors.New("session: id generator keeps returning taken ids")
)

const (
	idLength   = 9
	maxIDTries = 16
)

// Clock supplies entry timestamps.
type Clock func() time.Time

// IDGenerator supplies entry ids.
type IDGenerator func() string

// Archiver receives entries that leave the log.
type Archiver interface {
	Add(ctx context.Context, reason archive.Reason, entries ...history.Entry) error
}

type Options struct {
	Store         history.Store
	Predictor     predict.Predictor
	PredictorName string
	Archive       Archiver
	Clock         Clock
	IDs           IDGenerator
	Logger        *slog.Logger
	// OnChange is called after every successful history mutation, outside
	// the session lock.
	OnChange func()
}

type Session struct {
	mu      sync.RWMutex
	log     *history.Log
	current *history.Entry

	store         history.Store
	predictor     predict.Predictor
	predictorName string
	archive       Archiver
	clock         Clock
	ids           IDGenerator
	logger        *slog.Logger
	onChange      func()
}

// Open loads history from opts.Store. Stored data that cannot be read is
// logged and replaced by an empty history.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.Predictor == nil {
		opts.Predictor = predict.NewLocal(nil)
		if opts.PredictorName == "" {
			opts.PredictorName = "local"
		}
	}
	if opts.PredictorName == "" {
		opts.PredictorName = "custom"
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.IDs == nil {
		opts.IDs = NewID
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		store:         opts.Store,
		predictor:     opts.Predictor,
		predictorName: opts.PredictorName,
		archive:       opts.Archive,
		clock:         opts.Clock,
		ids:           opts.IDs,
		logger:        opts.Logger.With("component", "session"),
		onChange:      opts.OnChange,
	}

	entries, err := opts.Store.Load(ctx)
	switch {
	case errors.Is(err, history.ErrCorrupt):
		s.logger.Warn("stored history is corrupt; starting empty", "error", err)
		entries = nil
	case err != nil:
		s.logger.Error("history load failed; starting empty", "error", err)
		entries = nil
	}
	s.log = history.NewLog(entries)
	metrics.SetHistorySize(s.log.Len())
	s.logger.Info("session opened", "entries", s.log.Len())
	return s, nil
}

// SetOnChange replaces the change callback.
func (s *Session) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Predict asks the predictor for numbers under t, records the result as the
// current entry and prepends it to history. On any failure neither history
// nor the current entry changes.
func (s *Session) Predict(ctx context.Context, t matrix.Type, contextText string) (history.Entry, error) {
	cfg, err := playable(t)
	if err != nil {
		return history.Entry{}, err
	}

	req := predict.Request{Matrix: t, Context: contextText, History: s.History(history.Filter{})}
	res, err := s.predictor.Predict(ctx, req)
	if err != nil {
		return history.Entry{}, &predict.Error{Predictor: s.predictorName, Matrix: t, Err: err}
	}
	res = res.Sorted()
	if err := predict.Validate(cfg, res); err != nil {
		return history.Entry{}, &predict.Error{Predictor: s.predictorName, Matrix: t, Err: err}
	}

	e := history.Entry{
		Numbers:       res.Numbers,
		SpecialNumber: res.SpecialNumber,
		Analysis:      res.Analysis,
		MatrixType:    t,
		Origin:        history.OriginPrediction,
	}
	e, err = s.commit(ctx, e, true)
	if err != nil {
		return history.Entry{}, err
	}
	metrics.RecordDraw(string(t), string(history.OriginPrediction))
	return e, nil
}

// CommitDraw records a simulated draw in history. The current entry is left
// alone.
func (s *Session) CommitDraw(ctx context.Context, t matrix.Type, d draw.Draw, analysis string) (history.Entry, error) {
	cfg, err := playable(t)
	if err != nil {
		return history.Entry{}, err
	}
	if err := d.Validate(cfg); err != nil {
		return history.Entry{}, err
	}
	if strings.TrimSpace(analysis) == "" {
		analysis = fmt.Sprintf("Local %s simulation draw.", t)
	}
	d = d.Clone()
	e := history.Entry{
		Numbers:       d.Numbers,
		SpecialNumber: d.Special,
		Analysis:      analysis,
		MatrixType:    t,
		Origin:        history.OriginSimulation,
	}
	return s.commit(ctx, e, false)
}

func (s *Session) commit(ctx context.Context, e history.Entry, setCurrent bool) (history.Entry, error) {
	s.mu.Lock()
	e.ID = ""
	for i := 0; i < maxIDTries; i++ {
		id := s.ids()
		if _, taken := s.log.Find(id); !taken {
			e.ID = id
			break
		}
	}
	if e.ID == "" {
		s.mu.Unlock()
		return history.Entry{}, ErrIDExhausted
	}
	e.Timestamp = s.clock().UnixMilli()
	if prev := s.log.Entries(); len(prev) > 0 && e.Timestamp < prev[0].Timestamp {
		e.Timestamp = prev[0].Timestamp
	}

	before := s.log.Entries()
	prevCurrent := s.current
	dropped := s.log.Prepend(e)
	if setCurrent {
		cur := e.Clone()
		s.current = &cur
	}
	if err := s.store.Save(ctx, s.log.Entries()); err != nil {
		s.log = history.NewLog(before)
		s.current = prevCurrent
		s.mu.Unlock()
		return history.Entry{}, fmt.Errorf("session: save history: %w", err)
	}
	n := s.log.Len()
	onChange := s.onChange
	s.mu.Unlock()

	s.archiveEntries(ctx, archive.ReasonTruncated, dropped)
	metrics.SetHistorySize(n)
	s.logger.Debug("entry committed", "id", e.ID, "matrix", e.MatrixType, "origin", e.Origin, "entries", n)
	notify(onChange)
	return e.Clone(), nil
}

// Current returns the entry under analysis.
func (s *Session) Current() (history.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return history.Entry{}, false
	}
	return s.current.Clone(), true
}

// Restore makes a history entry current without touching history.
func (s *Session) Restore(id string) (history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.log.Find(id)
	if !ok {
		return history.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.current = &e
	return e.Clone(), nil
}

// History returns the entries matching f, most recent first.
func (s *Session) History(f history.Filter) []history.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.Filtered(f)
}

// Len returns the number of entries in history.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.Len()
}

// Clear empties history and persists the result. The current entry is kept.
func (s *Session) Clear(ctx context.Context) error {
	return s.replace(ctx, nil, archive.ReasonCleared)
}

// Delete removes a single entry.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	before := s.log.Entries()
	removed, ok := s.log.Remove(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.store.Save(ctx, s.log.Entries()); err != nil {
		s.log = history.NewLog(before)
		s.mu.Unlock()
		return fmt.Errorf("session: save history: %w", err)
	}
	n := s.log.Len()
	onChange := s.onChange
	s.mu.Unlock()

	s.archiveEntries(ctx, archive.ReasonDeleted, []history.Entry{removed})
	metrics.SetHistorySize(n)
	notify(onChange)
	return nil
}

// Stats computes the report for the current entry against history.
func (s *Session) Stats() history.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return history.Analyze(s.current, s.log.Entries())
}

// Export renders history as the persisted JSON document.
func (s *Session) Export() ([]byte, error) {
	return history.Encode(s.History(history.Filter{}))
}

// Import replaces history with a JSON document. The document is validated
// exactly like stored history; an invalid one changes nothing.
func (s *Session) Import(ctx context.Context, raw []byte) (int, error) {
	entries, err := history.Decode(raw)
	if err != nil {
		return 0, err
	}
	if err := s.replace(ctx, entries, archive.ReasonCleared); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *Session) replace(ctx context.Context, entries []history.Entry, reason archive.Reason) error {
	s.mu.Lock()
	before := s.log.Entries()
	next := history.NewLog(entries)
	if err := s.store.Save(ctx, next.Entries()); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: save history: %w", err)
	}
	s.log = next
	n := s.log.Len()
	onChange := s.onChange
	s.mu.Unlock()

	keep := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keep[e.ID] = struct{}{}
	}
	gone := before[:0]
	for _, e := range before {
		if _, ok := keep[e.ID]; !ok {
			gone = append(gone, e)
		}
	}
	s.archiveEntries(ctx, reason, gone)
	metrics.SetHistorySize(n)
	s.logger.Info("history replaced", "entries", n, "archived", len(gone))
	notify(onChange)
	return nil
}

func (s *Session) archiveEntries(ctx context.Context, reason archive.Reason, entries []history.Entry) {
	if s.archive == nil || len(entries) == 0 {
		return
	}
	if err := s.archive.Add(ctx, reason, entries...); err != nil {
		s.logger.Warn("archive failed", "reason", reason, "entries", len(entries), "error", err)
	}
}

func playable(t matrix.Type) (matrix.Config, error) {
	cfg, err := matrix.Lookup(t)
	if err != nil {
		return matrix.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return matrix.Config{}, err
	}
	return cfg, nil
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}

// NewID returns a 9-character uppercase base-36 token taken from a random
// UUID.
func NewID() string {
	u := uuid.New()
	s := strings.ToUpper(new(big.Int).SetBytes(u[:]).Text(36))
	if len(s) < idLength {
		s = strings.Repeat("0", idLength-len(s)) + s
	}
	return s[len(s)-idLength:]
}
