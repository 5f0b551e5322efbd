package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/extract"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func released(id string, kind session.Kind, state session.State, at time.Time) session.Event {
	snap := session.Snapshot{
		ID:        id,
		Kind:      kind,
		State:     state,
		Params:    session.Params{CNR: "MHAU010012342024"},
		CreatedAt: at.Add(-time.Minute),
	}
	return session.Event{Type: session.Released, SessionID: id, Kind: kind, To: state, At: at, Final: &snap}
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2025, 10, 20, 10, 30, 0, 0, time.UTC)

	results := &session.Results{
		CaseInfo:      extract.NewCaseInfo(extract.Field{Label: "Case Type", Value: "Civil Suit"}, extract.Field{Label: "Next Hearing Date", Value: "21st October 2025"}),
		DocumentLinks: []string{"https://portal.example/orders/1.pdf"},
	}
	err := store.Save(ctx, &Outcome{
		SessionID:  "s1",
		Kind:       session.CNR,
		State:      session.Complete,
		Params:     session.Params{CNR: "MHAU010012342024"},
		Results:    results,
		CreatedAt:  at.Add(-time.Minute),
		ReleasedAt: at,
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.Complete, got.State)
	assert.Equal(t, "MHAU010012342024", got.Params.CNR)
	assert.True(t, got.ReleasedAt.Equal(at))
	require.NotNil(t, got.Results)
	assert.Equal(t, []string{"Case Type", "Next Hearing Date"}, labels(got.Results.CaseInfo))
	assert.Equal(t, results.DocumentLinks, got.Results.DocumentLinks)
}

func TestGetMissing(t *testing.T) {
	got, err := newTestStore(t).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestObservePersistsReleasedOnly(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)

	store.Observe(session.Event{Type: session.Opened, SessionID: "s1", Kind: session.CNR, At: at})
	store.Observe(session.Event{Type: session.StateChanged, SessionID: "s1", To: session.AwaitCaptcha, At: at})

	ev := released("s1", session.CNR, session.Failed, at)
	ev.Final.ErrorKind = failure.TimeoutWaitingForResult
	ev.Final.Error = "case status table did not appear"
	store.Observe(ev)

	list, err := store.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, session.Failed, list[0].State)
	assert.Equal(t, failure.TimeoutWaitingForResult, list[0].ErrorKind)
	assert.Nil(t, list[0].Results)
}

func TestListNewestFirstAndFiltered(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)

	store.Observe(released("a", session.CNR, session.Complete, base))
	store.Observe(released("b", session.CauseList, session.Complete, base.Add(time.Minute)))
	store.Observe(released("c", session.CNR, session.Expired, base.Add(2*time.Minute)))

	all, err := store.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].SessionID)
	assert.Equal(t, "a", all[2].SessionID)

	cnr, err := store.List(ctx, session.CNR, 10)
	require.NoError(t, err)
	require.Len(t, cnr, 2)
	for _, o := range cnr {
		assert.Equal(t, session.CNR, o.Kind)
	}

	limited, err := store.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReusedIDReturnsLatest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)

	store.Observe(released("court-1", session.CauseList, session.Failed, base))
	store.Observe(released("court-1", session.CauseList, session.Complete, base.Add(time.Hour)))

	got, err := store.Get(ctx, "court-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.Complete, got.State)
}

func TestFileDatabaseSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "history.db")

	store, err := NewSQLiteStore(dsn, nil)
	require.NoError(t, err)
	store.Observe(released("s1", session.CNR, session.Complete, time.Now()))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dsn, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func labels(info extract.CaseInfo) []string {
	out := make([]string, 0, info.Len())
	for _, f := range info.Fields() {
		out = append(out, f.Label)
	}
	return out
}
