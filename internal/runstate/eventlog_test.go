package runstate

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLog_PublishAssignsSequence(t *testing.T) {
	log := NewEventLog()

	seq, err := log.Publish(RunEvent{RunID: "r", Status: RunRunning})
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	seq, err = log.Publish(RunEvent{RunID: "r", Status: RunCompleted})
	require.NoError(t, err)
	assert.Equal(t, 2, seq)
	assert.Equal(t, 2, log.Len())
}

func TestEventLog_CloseIsFinal(t *testing.T) {
	log := NewEventLog()
	require.NoError(t, log.Close())
	assert.True(t, log.Closed())

	assert.ErrorIs(t, log.Close(), ErrLogClosed)

	_, err := log.Publish(RunEvent{RunID: "r"})
	assert.ErrorIs(t, err, ErrLogClosed)
	assert.Zero(t, log.Len())
}

func TestEventLog_SubscriberDrainsThenEOF(t *testing.T) {
	log := NewEventLog()
	_, _ = log.Publish(RunEvent{RunID: "r", Status: RunRunning})
	_, _ = log.Publish(ErrorEvent{RunID: "r", Message: "x"})
	require.NoError(t, log.Close())

	ctx := context.Background()
	sub := log.Subscribe(0)

	env, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Seq)
	assert.Equal(t, EventRun, env.Event.Kind())

	env, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, env.Seq)
	assert.Equal(t, EventError, env.Event.Kind())

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, io.EOF, "EOF is sticky")
}

func TestEventLog_SubscribeResumesAfterOffset(t *testing.T) {
	log := NewEventLog()
	for i := 0; i < 3; i++ {
		_, _ = log.Publish(RunEvent{RunID: "r"})
	}
	require.NoError(t, log.Close())

	sub := log.Subscribe(2)
	env, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, env.Seq)

	// Offsets outside the log are clamped.
	_, err = log.Subscribe(99).Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	env, err = log.Subscribe(-5).Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, env.Seq)
}

func TestEventLog_NextBlocksUntilPublish(t *testing.T) {
	log := NewEventLog()
	sub := log.Subscribe(0)

	got := make(chan Envelope, 1)
	go func() {
		env, err := sub.Next(context.Background())
		if err == nil {
			got <- env
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before anything was published")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := log.Publish(StageEvent{RunID: "r", Snapshot: NewSnapshot(StageIngest, StageRunning, "", nil)})
	require.NoError(t, err)

	select {
	case env := <-got:
		assert.Equal(t, EventStage, env.Event.Kind())
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not wake after publish")
	}
}

func TestEventLog_NextHonoursContext(t *testing.T) {
	log := NewEventLog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := log.Subscribe(0).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// An abandoned subscriber does not affect the producer.
	_, err = log.Publish(RunEvent{RunID: "r"})
	assert.NoError(t, err)
}

func TestEventLog_ConcurrentSubscribersSeeEverything(t *testing.T) {
	log := NewEventLog()
	const events = 100
	const readers = 4

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make([][]int, readers)
	var wg sync.WaitGroup
	for r := 0; r < readers; r++ {
		wg.Add(1)
		sub := log.Subscribe(0)
		go func(r int) {
			defer wg.Done()
			for {
				env, err := sub.Next(ctx)
				if errors.Is(err, io.EOF) {
					return
				}
				if !assert.NoError(t, err) {
					return
				}
				results[r] = append(results[r], env.Seq)
			}
		}(r)
	}

	for i := 0; i < events; i++ {
		_, err := log.Publish(RunEvent{RunID: "r"})
		require.NoError(t, err)
	}
	require.NoError(t, log.Close())
	wg.Wait()

	for r := 0; r < readers; r++ {
		require.Len(t, results[r], events, "reader %d", r)
		for i, seq := range results[r] {
			assert.Equal(t, i+1, seq)
		}
	}
}

func TestEventLog_History(t *testing.T) {
	log := NewEventLog()
	_, _ = log.Publish(RunEvent{RunID: "r", Status: RunRunning})
	_, _ = log.Publish(CompleteEvent{RunID: "r"})

	hist := log.History()
	require.Len(t, hist, 2)
	assert.Equal(t, 1, hist[0].Seq)
	assert.Equal(t, EventComplete, hist[1].Event.Kind())
}
