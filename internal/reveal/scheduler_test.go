package reveal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 20s question with 5 initial cells leaves 20 cells at 1s apart.
const testQuestionTime = 20 * time.Second

func TestSchedulerInitialBatch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reveals := make(chan int, GridCells)

	s := NewScheduler(clock, 1, testQuestionTime, func(cells []int, percent int) {
		reveals <- percent
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	percent := <-reveals
	assert.Equal(t, 20, percent, "initial batch reveals 20%% of the grid")
	assert.Equal(t, 20, s.Percent())
}

func TestSchedulerRevealsOneCellPerTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reveals := make(chan []int, GridCells)

	s := NewScheduler(clock, 1, testQuestionTime, func(cells []int, percent int) {
		reveals <- cells
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	first := <-reveals
	require.Len(t, first, InitialCells)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	next := <-reveals
	assert.Len(t, next, InitialCells+1)
	assert.Equal(t, first, next[:InitialCells], "earlier cells stay revealed")
}

func TestSchedulerCompletesExactlyOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reveals := make(chan int, GridCells+1)
	var completions atomic.Int32

	s := NewScheduler(clock, 1, testQuestionTime, func(cells []int, percent int) {
		reveals <- percent
	}, func() {
		completions.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	<-reveals
	for i := 0; i < GridCells-InitialCells; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)
		<-reveals
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after full reveal")
	}
	assert.Equal(t, int32(1), completions.Load())
	assert.Equal(t, 100, s.Percent())
}

func TestSchedulerHoldStopsReveals(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reveals := make(chan int, GridCells)
	var completions atomic.Int32

	s := NewScheduler(clock, 1, testQuestionTime, func(cells []int, percent int) {
		reveals <- percent
	}, func() {
		completions.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	<-reveals
	s.Hold()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	select {
	case percent := <-reveals:
		t.Fatalf("held scheduler revealed a cell (%d%%)", percent)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(0), completions.Load())
	assert.Equal(t, 20, s.Percent())
}
