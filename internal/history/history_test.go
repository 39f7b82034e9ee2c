package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leavebot/internal/config"
	"leavebot/internal/forms"
	"leavebot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(&config.StorageConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "history.db"),
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, cfg := range []*config.StorageConfig{
		nil,
		{},
		{Driver: "none"},
	} {
		st, err := Open(cfg, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(&config.StorageConfig{Driver: "postgres", Path: "x"}, logx.Nop())
	require.Error(t, err)
}

func TestRecordAndListRuns(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	target := time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)
	sum := forms.Summary{
		Mode:     "wait",
		TargetAt: target,
		Started:  target.Add(-30 * time.Second),
		Finished: target.Add(5 * time.Second),
		Results: []forms.Result{
			{
				Target:     forms.Target{Day: 2, URL: "https://docs.google.com/forms/wed"},
				Status:     forms.StatusSucceeded,
				Attempts:   1,
				SubmitSkew: 4 * time.Millisecond,
			},
			{
				Target:     forms.Target{Day: 5, URL: "https://docs.google.com/forms/sat"},
				Status:     forms.StatusExhausted,
				Attempts:   3,
				Screenshot: "./fail_img/2026-08-26-Saturday.png",
				Err:        "no redirect within 20s",
			},
		},
	}

	id, err := st.RecordRun(ctx, sum)
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	runs, err := st.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	rec := runs[0]
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "wait", rec.Mode)
	assert.Equal(t, 1, rec.OKCount)
	assert.Equal(t, 1, rec.Fails)
	assert.True(t, rec.TargetAt.Equal(target), "target_at = %v, want %v", rec.TargetAt, target)
}

func TestRecentRunsNewestFirst(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		_, err := st.RecordRun(ctx, forms.Summary{
			Mode:     "now",
			TargetAt: base.Add(time.Duration(i) * time.Hour),
			Started:  base,
			Finished: base,
		})
		require.NoError(t, err)
	}

	runs, err := st.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Greater(t, runs[0].ID, runs[1].ID, "newest run must come first")
}
