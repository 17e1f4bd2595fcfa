package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/lotto-desk/internal/archive"
	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/kvstore"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/predict"
)

type flakyStore struct {
	history.Store
	fail bool
}

func (f *flakyStore) Save(ctx context.Context, entries []history.Entry) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Store.Save(ctx, entries)
}

type memArchive struct {
	mu      sync.Mutex
	reasons map[string]archive.Reason
}

func (m *memArchive) Add(_ context.Context, reason archive.Reason, entries ...history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reasons == nil {
		m.reasons = map[string]archive.Reason{}
	}
	for _, e := range entries {
		m.reasons[e.ID] = reason
	}
	return nil
}

func sequentialIDs() IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("ID%07d", n)
	}
}

func fixedClock(ms int64) Clock {
	return func() time.Time { return time.UnixMilli(ms) }
}

type fixture struct {
	s       *Session
	kv      *kvstore.MemoryStore
	store   *flakyStore
	archive *memArchive
	changes int
}

func newFixture(t *testing.T, p predict.Predictor) *fixture {
	t.Helper()
	f := &fixture{kv: kvstore.NewMemoryStore(), archive: &memArchive{}}
	f.store = &flakyStore{Store: history.NewKVStore(f.kv)}
	s, err := Open(context.Background(), Options{
		Store:     f.store,
		Predictor: p,
		Archive:   f.archive,
		Clock:     fixedClock(1_700_000_000_000),
		IDs:       sequentialIDs(),
		OnChange:  func() { f.changes++ },
	})
	require.NoError(t, err)
	f.s = s
	return f
}

func TestPredictCommitsEntry(t *testing.T) {
	f := newFixture(t, predict.NewLocal(draw.NewSeededSource(1, 2)))
	ctx := context.Background()

	e, err := f.s.Predict(ctx, matrix.Powerball, "lucky")
	require.NoError(t, err)
	assert.Equal(t, "ID0000001", e.ID)
	assert.Equal(t, int64(1_700_000_000_000), e.Timestamp)
	assert.Equal(t, history.OriginPrediction, e.Origin)
	require.NoError(t, e.Validate())
	assert.IsIncreasing(t, e.Numbers)

	cur, ok := f.s.Current()
	require.True(t, ok)
	assert.Equal(t, e, cur)
	assert.Equal(t, 1, f.s.Len())
	assert.Equal(t, 1, f.changes)

	stored, err := history.NewKVStore(f.kv).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []history.Entry{e}, stored)
}

func TestPredictFailureChangesNothing(t *testing.T) {
	boom := errors.New("service unavailable")
	f := newFixture(t, predict.Func(func(context.Context, predict.Request) (predict.Result, error) {
		return predict.Result{}, boom
	}))

	_, err := f.s.Predict(context.Background(), matrix.Lotto645, "")
	assert.ErrorIs(t, err, boom)
	var pe *predict.Error
	assert.ErrorAs(t, err, &pe)

	_, ok := f.s.Current()
	assert.False(t, ok)
	assert.Zero(t, f.s.Len())
	assert.Zero(t, f.changes)
}

func TestPredictRejectsInvalidOutput(t *testing.T) {
	f := newFixture(t, predict.Func(func(context.Context, predict.Request) (predict.Result, error) {
		return predict.Result{Numbers: []int{1, 2, 3, 4, 5, 99}, Analysis: "garbage"}, nil
	}))

	_, err := f.s.Predict(context.Background(), matrix.Lotto645, "")
	assert.True(t, predict.IsInvalidResult(err), "err = %v", err)
	assert.Zero(t, f.s.Len())
}

func TestPredictSortsNumbers(t *testing.T) {
	f := newFixture(t, predict.Func(func(context.Context, predict.Request) (predict.Result, error) {
		return predict.Result{Numbers: []int{40, 3, 17, 9, 22, 1}, Analysis: "unsorted"}, nil
	}))
	e, err := f.s.Predict(context.Background(), matrix.Lotto649, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 9, 17, 22, 40}, e.Numbers)
}

func TestPredictRejectsCustomMatrix(t *testing.T) {
	called := false
	f := newFixture(t, predict.Func(func(context.Context, predict.Request) (predict.Result, error) {
		called = true
		return predict.Result{}, nil
	}))
	_, err := f.s.Predict(context.Background(), matrix.Custom, "")
	assert.ErrorIs(t, err, matrix.ErrInvalidConfig)
	assert.False(t, called)
}

func TestSaveFailureRollsBack(t *testing.T) {
	f := newFixture(t, predict.NewLocal(draw.NewSeededSource(3, 4)))
	ctx := context.Background()

	first, err := f.s.Predict(ctx, matrix.Lotto645, "")
	require.NoError(t, err)

	f.store.fail = true
	_, err = f.s.Predict(ctx, matrix.Lotto649, "")
	require.Error(t, err)

	assert.Equal(t, 1, f.s.Len())
	cur, _ := f.s.Current()
	assert.Equal(t, first.ID, cur.ID)

	assert.Error(t, f.s.Clear(ctx))
	assert.Equal(t, 1, f.s.Len())
	assert.Error(t, f.s.Delete(ctx, first.ID))
	assert.Equal(t, 1, f.s.Len())
}

func TestHistoryCapArchivesTruncated(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	special := 1
	d := draw.Draw{Numbers: []int{1, 2, 3, 4, 5}, Special: &special}

	for i := 0; i < history.MaxEntries+2; i++ {
		_, err := f.s.CommitDraw(ctx, matrix.Powerball, d, "")
		require.NoError(t, err)
	}
	assert.Equal(t, history.MaxEntries, f.s.Len())
	entries := f.s.History(history.Filter{})
	assert.Equal(t, fmt.Sprintf("ID%07d", history.MaxEntries+2), entries[0].ID)
	assert.Equal(t, archive.ReasonTruncated, f.archive.reasons["ID0000001"])
	assert.Equal(t, archive.ReasonTruncated, f.archive.reasons["ID0000002"])

	_, ok := f.s.Current()
	assert.False(t, ok, "simulation commits must not set the current entry")
}

func TestCommitDrawValidates(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.s.CommitDraw(context.Background(), matrix.Lotto645, draw.Draw{Numbers: []int{1, 2, 3}}, "")
	assert.Error(t, err)
	assert.Zero(t, f.s.Len())
}

func TestRestoreDeleteAndClear(t *testing.T) {
	f := newFixture(t, predict.NewLocal(draw.NewSeededSource(5, 6)))
	ctx := context.Background()

	a, err := f.s.Predict(ctx, matrix.Lotto645, "")
	require.NoError(t, err)
	b, err := f.s.Predict(ctx, matrix.MegaMillions, "")
	require.NoError(t, err)

	restored, err := f.s.Restore(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, restored)
	cur, _ := f.s.Current()
	assert.Equal(t, a.ID, cur.ID)
	assert.Equal(t, 2, f.s.Len())

	_, err = f.s.Restore("NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.s.Delete(ctx, b.ID))
	assert.ErrorIs(t, f.s.Delete(ctx, b.ID), ErrNotFound)
	assert.Equal(t, archive.ReasonDeleted, f.archive.reasons[b.ID])

	require.NoError(t, f.s.Clear(ctx))
	assert.Zero(t, f.s.Len())
	assert.Equal(t, archive.ReasonCleared, f.archive.reasons[a.ID])
	_, ok := f.s.Current()
	assert.True(t, ok, "clear keeps the current entry")
}

func TestStatsFollowHistory(t *testing.T) {
	f := newFixture(t, predict.Func(func(_ context.Context, req predict.Request) (predict.Result, error) {
		return predict.Result{Numbers: []int{1, 2, 3, 4, 5, 6}, Analysis: "fixed"}, nil
	}))
	ctx := context.Background()

	empty := f.s.Stats()
	assert.Nil(t, empty.Sums)
	assert.Equal(t, "0:0", empty.Parity.Ratio)

	_, err := f.s.Predict(ctx, matrix.Lotto645, "")
	require.NoError(t, err)
	r := f.s.Stats()
	require.NotNil(t, r.Sums)
	assert.Equal(t, 21, r.Sums.Sum)
	assert.Equal(t, 21, r.Sums.AverageSum)
	require.NotNil(t, r.Overlap)
	assert.Equal(t, 100, r.Overlap.Percent)

	require.NoError(t, f.s.Clear(ctx))
	r = f.s.Stats()
	assert.Equal(t, 0, r.Sums.AverageSum)
	assert.False(t, r.Sums.HasBaseline)
}

func TestOpenWithCorruptHistoryStartsEmpty(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	require.NoError(t, kv.Set(context.Background(), history.StorageKey, []byte(`[{"id":"x"}]`)))

	s, err := Open(context.Background(), Options{Store: history.NewKVStore(kv)})
	require.NoError(t, err)
	assert.Zero(t, s.Len())
}

func TestOpenRequiresStore(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestExportImport(t *testing.T) {
	src := newFixture(t, predict.NewLocal(draw.NewSeededSource(7, 8)))
	ctx := context.Background()
	for _, mt := range []matrix.Type{matrix.Lotto645, matrix.Powerball, matrix.Lotto649} {
		_, err := src.s.Predict(ctx, mt, "")
		require.NoError(t, err)
	}
	doc, err := src.s.Export()
	require.NoError(t, err)

	dst := newFixture(t, nil)
	n, err := dst.s.Import(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, src.s.History(history.Filter{}), dst.s.History(history.Filter{}))
	assert.Len(t, dst.s.History(history.Filter{MatrixType: string(matrix.Powerball)}), 1)

	_, err = dst.s.Import(ctx, []byte(`not json`))
	assert.ErrorIs(t, err, history.ErrCorrupt)
	assert.Equal(t, 3, dst.s.Len())
}

func TestTimestampsNeverGoBackwards(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	now := int64(2_000)
	s, err := Open(context.Background(), Options{
		Store: history.NewKVStore(kv),
		Clock: func() time.Time { now -= 1000; return time.UnixMilli(now) },
	})
	require.NoError(t, err)

	d := draw.Draw{Numbers: []int{1, 2, 3, 4, 5, 6}}
	a, err := s.CommitDraw(context.Background(), matrix.Lotto645, d, "")
	require.NoError(t, err)
	b, err := s.CommitDraw(context.Background(), matrix.Lotto645, d, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b.Timestamp, a.Timestamp)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCommitRegeneratesTakenIDs(t *testing.T) {
	ids := []string{"AAAAAAAAA", "AAAAAAAAA", "AAAAAAAAA", "BBBBBBBBB"}
	s, err := Open(context.Background(), Options{
		Store: history.NewKVStore(kvstore.NewMemoryStore()),
		IDs: func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		},
	})
	require.NoError(t, err)

	d := draw.Draw{Numbers: []int{1, 2, 3, 4, 5, 6}}
	a, err := s.CommitDraw(context.Background(), matrix.Lotto645, d, "")
	require.NoError(t, err)
	b, err := s.CommitDraw(context.Background(), matrix.Lotto645, d, "")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAAA", a.ID)
	assert.Equal(t, "BBBBBBBBB", b.ID)
}

func TestCommitGivesUpOnStuckIDGenerator(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, err := Open(context.Background(), Options{
		Store: history.NewKVStore(kv),
		IDs:   func() string { return "SAMEIDXXX" },
	})
	require.NoError(t, err)

	d := draw.Draw{Numbers: []int{1, 2, 3, 4, 5, 6}}
	_, err = s.CommitDraw(context.Background(), matrix.Lotto645, d, "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.CommitDraw(context.Background(), matrix.Lotto645, d, "")
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrIDExhausted)
	case <-time.After(2 * time.Second):
		t.Fatal("commit did not return")
	}
	assert.Equal(t, 1, s.Len())

	// the lock was released
	assert.Len(t, s.History(history.Filter{}), 1)
}

func TestNewID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.Len(t, id, idLength)
		assert.Equal(t, strings.ToUpper(id), id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
