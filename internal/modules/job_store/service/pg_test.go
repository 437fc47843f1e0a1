package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"signal_exec/internal/models"
	"signal_exec/pkg/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDSNEnv = "JOB_STORE_TEST_DSN"

// newPgStore поднимает стор на реальной базе; без JOB_STORE_TEST_DSN тест пропускается.
func newPgStore(t *testing.T, opts Options) (*PgStore, *SignalStore) {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", testDSNEnv)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: dsn, MaxConns: 20})
	require.NoError(t, err)
	tm := db.NewPgTxManager(pool)
	t.Cleanup(tm.Close)

	require.NoError(t, Migrate(ctx, tm.Conn()))
	_, err = tm.Conn().Exec(ctx, `TRUNCATE execution_jobs, signals`)
	require.NoError(t, err)

	return NewPgStore(tm, opts), NewSignalStore(tm)
}

func TestPgStore_Lifecycle(t *testing.T) {
	s, _ := newPgStore(t, Options{})
	ctx := context.Background()

	job, err := s.Enqueue(ctx, models.NewJob{ID: "j1", Signal: btcBuy()})
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	require.NotNil(t, job.Signal)
	assert.Equal(t, "BTCUSDT", job.Signal.Symbol)

	jobs, err := s.ClaimJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Attempt)
	assert.NotNil(t, jobs[0].ClaimedAt)

	require.NoError(t, s.CompleteJob(ctx, "j1"))
	require.NoError(t, s.CompleteJob(ctx, "j1"))
	assert.ErrorIs(t, s.FailJob(ctx, "j1", "late"), models.ErrInvalidTransition)
	assert.ErrorIs(t, s.CompleteJob(ctx, "missing"), models.ErrJobNotFound)

	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Nil(t, got.ClaimedAt)
}

func TestPgStore_FailAndReclaim(t *testing.T) {
	s, _ := newPgStore(t, Options{MaxAttempts: 2})
	ctx := context.Background()

	_, err := s.Enqueue(ctx, models.NewJob{ID: "bad", Signal: btcBuy()})
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, models.NewJob{ID: "stuck", SignalID: "s1"})
	require.NoError(t, err)

	jobs, err := s.ClaimJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	require.NoError(t, s.FailJob(ctx, "bad", "insufficient margin"))

	n, err := s.ReclaimStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	time.Sleep(50 * time.Millisecond)
	n, err = s.ReclaimStale(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
	assert.Equal(t, 1, got.Attempt)

	// второй заход исчерпывает лимит
	_, err = s.ClaimJobs(ctx, 10)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	n, err = s.ReclaimStale(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err = s.Get(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Contains(t, got.LastError, "after 2 attempts")

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.JobFailed])
}

func TestPgStore_ConcurrentClaimsAreDisjoint(t *testing.T) {
	s, _ := newPgStore(t, Options{})
	ctx := context.Background()

	const total = 200
	for i := 0; i < total; i++ {
		_, err := s.Enqueue(ctx, models.NewJob{Signal: btcBuy()})
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jobs, err := s.ClaimJobs(ctx, 5)
				if err != nil || len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					seen[j.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestSignalStore(t *testing.T) {
	_, sigs := newPgStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, sigs.PutSignal(ctx, models.Signal{ID: "s1", Symbol: "ETHUSDT", Side: models.SideSell, Qty: "0.5"}))

	sig, err := sigs.GetSignal(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", sig.Symbol)
	assert.Equal(t, "0.5", sig.Qty)

	_, err = sigs.GetSignal(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrSignalNotFound)
}
