package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuns_Lifecycle(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	last, err := db.LastRun()
	require.NoError(t, err)
	assert.Nil(t, last)

	r := &Run{ID: "0b6d4f3e-run", InputDir: "/mail", Format: "pdf", Total: 3}
	require.NoError(t, db.StartRun(r))

	got, err := db.GetRun(r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, RunRunning, got.Status)
	assert.True(t, got.StartedAt.Valid)
	assert.False(t, got.FinishedAt.Valid)

	r.Status = RunComplete
	r.Converted, r.Skipped, r.Failed = 2, 1, 0
	require.NoError(t, db.FinishRun(r))

	last, err = db.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, r.ID, last.ID)
	assert.Equal(t, RunComplete, last.Status)
	assert.Equal(t, 2, last.Converted)
	assert.Equal(t, 1, last.Skipped)
	assert.True(t, last.FinishedAt.Valid)
}

func TestGetRun_NotFound(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	r, err := db.GetRun("nope")
	require.NoError(t, err)
	assert.Nil(t, r)
}
