package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateRun(ctx, Run{
		ID:         "run-1",
		ProjectID:  "proj-1",
		Status:     StatusRunning,
		Credential: "rk-abc",
	})
	require.NoError(t, err)

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "proj-1", run.ProjectID)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, "rk-abc", run.Credential)
	assert.Zero(t, run.TokensInput)
	assert.Zero(t, run.TokensOutput)
	assert.Zero(t, run.TokenCeiling)
	assert.False(t, run.CreatedAt.IsZero())
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCreateRun_DefaultsToPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, Run{ID: "run-1", ProjectID: "proj-1"}))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, run.Status)
	assert.Empty(t, run.Credential)
}

func TestSetRunStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, Run{ID: "run-1", ProjectID: "proj-1"}))
	require.NoError(t, s.SetRunStatus(ctx, "run-1", StatusRunning))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)

	assert.ErrorIs(t, s.SetRunStatus(ctx, "nope", StatusRunning), ErrRunNotFound)
}

func TestProvisionCredential(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, Run{ID: "run-1", ProjectID: "proj-1", Status: StatusRunning}))
	require.NoError(t, s.ProvisionCredential(ctx, "run-1", "rk-first"))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "rk-first", run.Credential)

	// A run that already holds a credential keeps it.
	require.NoError(t, s.ProvisionCredential(ctx, "run-1", "rk-second"))
	run, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "rk-first", run.Credential)
}

func TestRecordUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, Run{ID: "run-1", ProjectID: "proj-1", Status: StatusRunning}))

	rec := UsageRecord{
		RunID:        "run-1",
		ProjectID:    "proj-1",
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-5",
		InputTokens:  100,
		OutputTokens: 50,
		CostCents:    3,
	}
	require.NoError(t, s.RecordUsage(ctx, rec))
	require.NoError(t, s.RecordUsage(ctx, rec))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), run.TokensInput)
	assert.Equal(t, int64(100), run.TokensOutput)
	assert.Equal(t, int64(6), run.CostCents)

	total, err := s.ProjectTokens(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), total)

	records, err := s.UsageRecords(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "anthropic", records[0].Provider)
	assert.Equal(t, "claude-sonnet-4-5", records[0].Model)
	assert.Equal(t, int64(100), records[0].InputTokens)
	assert.Equal(t, int64(50), records[0].OutputTokens)
}

func TestRecordUsage_UnknownRun(t *testing.T) {
	s := newTestStore(t)

	err := s.RecordUsage(context.Background(), UsageRecord{
		RunID:       "ghost",
		ProjectID:   "proj-1",
		Provider:    "anthropic",
		InputTokens: 10,
	})
	assert.ErrorIs(t, err, ErrRunNotFound)

	// The rolled-back transaction must leave no project rollup behind.
	total, err := s.ProjectTokens(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRecordUsage_ConcurrentIncrementsSumExactly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, Run{ID: "run-1", ProjectID: "proj-1", Status: StatusRunning}))

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RecordUsage(ctx, UsageRecord{
				RunID:        "run-1",
				ProjectID:    "proj-1",
				Provider:     "anthropic",
				InputTokens:  100,
				OutputTokens: 50,
				CostCents:    1,
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*100), run.TokensInput)
	assert.Equal(t, int64(workers*50), run.TokensOutput)
	assert.Equal(t, int64(workers), run.CostCents)

	total, err := s.ProjectTokens(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*150), total)

	records, err := s.UsageRecords(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, records, workers)
}

func TestProjectTokens_UnknownProjectIsZero(t *testing.T) {
	s := newTestStore(t)

	total, err := s.ProjectTokens(context.Background(), "nope")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestTokenCeilingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, Run{ID: "run-1", ProjectID: "proj-1", TokenCeiling: 5000}))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), run.TokenCeiling)
}
