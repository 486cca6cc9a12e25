package streaming

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	progress []float64
	events   []string
}

func (r *recorder) handlers() ProgressHandlers {
	return ProgressHandlers{
		OnProgress: func(total float64) { r.progress = append(r.progress, total) },
		OnActive:   func() { r.events = append(r.events, "active") },
		OnInactive: func() { r.events = append(r.events, "inactive") },
		OnComplete: func() { r.events = append(r.events, "complete") },
	}
}

func runAggregator(t *testing.T, a *Aggregator) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- a.Run(context.Background()) }()
	return errc
}

func TestAggregatorSequence(t *testing.T) {
	rec := &recorder{}
	a := NewAggregator([]string{"a", "b"}, rec.handlers())
	errc := runAggregator(t, a)
	ctx := context.Background()

	ra, rb := a.Reporter("a"), a.Reporter("b")
	require.NoError(t, ra.Active(ctx))
	require.NoError(t, rb.Active(ctx))
	require.NoError(t, ra.Progress(ctx, 0.5))
	require.NoError(t, rb.Progress(ctx, 0.5))
	require.NoError(t, ra.Progress(ctx, 1))
	require.NoError(t, ra.Inactive(ctx))
	require.NoError(t, ra.Complete(ctx))
	require.NoError(t, rb.Inactive(ctx))
	require.NoError(t, rb.Complete(ctx))

	require.NoError(t, <-errc)
	<-a.Done()

	require.Equal(t, []float64{0.25, 0.5, 0.75, 1}, rec.progress)
	require.Equal(t, []string{"active", "inactive", "complete"}, rec.events)
	require.Equal(t, Summary{Total: 1, Active: 0, Completed: 2}, a.Summary())

	require.ErrorIs(t, ra.Progress(ctx, 1), ErrAggregatorDone)
}

func TestAggregatorIgnoresRepeatsAndStrangers(t *testing.T) {
	rec := &recorder{}
	a := NewAggregator([]string{"only"}, rec.handlers())
	errc := runAggregator(t, a)
	ctx := context.Background()

	r := a.Reporter("only")
	require.NoError(t, r.Active(ctx))
	require.NoError(t, r.Active(ctx))
	require.NoError(t, a.Reporter("stranger").Active(ctx))
	require.NoError(t, r.Progress(ctx, 2))
	require.NoError(t, r.Inactive(ctx))
	require.NoError(t, r.Inactive(ctx))
	require.NoError(t, r.Complete(ctx))

	require.NoError(t, <-errc)
	require.Equal(t, []float64{1}, rec.progress)
	require.Equal(t, []string{"active", "inactive", "complete"}, rec.events)
}

func TestAggregatorConcurrentParsers(t *testing.T) {
	const parsers = 16
	names := make([]string, parsers)
	for i := range names {
		names[i] = fmt.Sprintf("chunk%d", i)
	}

	var completed int
	a := NewAggregator(names, ProgressHandlers{OnComplete: func() { completed++ }})
	errc := runAggregator(t, a)

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(r *Reporter) {
			defer wg.Done()
			ctx := context.Background()
			_ = r.Active(ctx)
			for step := 1; step <= 10; step++ {
				_ = r.Progress(ctx, float64(step)/10)
			}
			_ = r.Inactive(ctx)
			_ = r.Complete(ctx)
		}(a.Reporter(name))
	}
	wg.Wait()

	require.NoError(t, <-errc)
	require.Equal(t, 1, completed)
	require.InDelta(t, 1.0, a.Summary().Total, 1e-9)
	require.Equal(t, parsers, a.Summary().Completed)
}

func TestAggregatorCancel(t *testing.T) {
	a := NewAggregator([]string{"a"}, ProgressHandlers{})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("aggregator did not stop")
	}
}

func TestAggregatorWithoutParsers(t *testing.T) {
	done := false
	a := NewAggregator(nil, ProgressHandlers{OnComplete: func() { done = true }})
	require.NoError(t, a.Run(context.Background()))
	require.True(t, done)
}
