package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/eqtrak/internal/database"
	testingpkg "github.com/aristath/eqtrak/internal/testing"
)

type countingJob struct {
	runs int32
	err  error
}

func (j *countingJob) Run() error {
	atomic.AddInt32(&j.runs, 1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("@every 15m", &countingJob{}))
	assert.Equal(t, 1, s.JobCount())

	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
	assert.Equal(t, 1, s.JobCount())
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("failures are logged, not fatal")}

	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs)
}

func TestScheduler_RunNowRefusesOverlap(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	require.True(t, s.begin(job.Name()))
	assert.ErrorIs(t, s.RunNow(job), ErrJobRunning)
	assert.Equal(t, int32(0), job.runs)

	s.end(job.Name())
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New(zerolog.Nop())

	assert.True(t, s.begin("sync"))
	assert.False(t, s.begin("sync"))
	assert.True(t, s.begin("other"))
	s.end("sync")
	assert.True(t, s.begin("sync"))
}

func TestDatabaseJobs(t *testing.T) {
	mainDB, _ := testingpkg.NewTestDB(t, database.NameMain)
	cacheDB, _ := testingpkg.NewTestDB(t, database.NameCache)

	integrity := NewCheckCoreDatabasesJob(zerolog.Nop(), mainDB, cacheDB, nil)
	assert.Equal(t, "check_core_databases", integrity.Name())
	assert.NoError(t, integrity.Run())

	wal := NewCheckWALCheckpointsJob(zerolog.Nop(), mainDB, cacheDB, nil)
	assert.Equal(t, "check_wal_checkpoints", wal.Name())
	assert.NoError(t, wal.Run())
}
