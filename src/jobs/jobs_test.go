package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestTrackerCancelAndWait(t *testing.T) {
	t.Run("finishes fast enough", func(t *testing.T) {
		testJobs := Jobs{
			FakeJob("Job A", time.Millisecond*100),
			FakeJob("Job B", time.Millisecond*200),
		}

		before := time.Now()
		unfinished := testJobs.CancelAndWait(time.Second * 1)
		after := time.Now()
		assert.WithinDuration(t, after, before, time.Millisecond*500, "tracker.Finish did not finish fast enough")
		assert.Len(t, unfinished, 0)
	})
	t.Run("reports unfinished jobs", func(t *testing.T) {
		testJobs := Jobs{
			FakeJob("Job A", time.Millisecond*100),
			FakeJob("Job B", time.Second*10),
		}

		unfinished := testJobs.CancelAndWait(time.Second * 1)
		assert.Equal(t, []string{"Job B"}, unfinished)
	})
}

func TestPeriodically(t *testing.T) {
	var runs atomic.Int32
	job := Periodically("count runs", 10*time.Millisecond, true, func(ctx context.Context, logger *zerolog.Logger) error {
		n := runs.Add(1)
		if n == 2 {
			return errors.New("transient failure")
		}
		if n == 3 {
			panic("still keeps running")
		}
		return nil
	})

	assert.Eventually(t, func() bool { return runs.Load() >= 4 }, time.Second, 5*time.Millisecond)

	unfinished := Jobs{job}.CancelAndWait(time.Second)
	assert.Empty(t, unfinished)
}

func TestPeriodicallyNonPositiveInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		var runs atomic.Int32
		job := Periodically("bad interval", interval, true, func(ctx context.Context, logger *zerolog.Logger) error {
			runs.Add(1)
			return nil
		})

		select {
		case <-job.Finished():
		case <-time.After(time.Second):
			t.Fatalf("job with interval %v never finished", interval)
		}
		assert.Zero(t, runs.Load())
		assert.Empty(t, Jobs{job}.CancelAndWait(time.Second))
	}
}

func FakeJob(name string, timeout time.Duration) *Job {
	job := New(name)
	go func() {
		<-job.Ctx.Done()
		timer := time.NewTimer(timeout)
		<-timer.C
		job.Finish()
	}()
	return job
}
