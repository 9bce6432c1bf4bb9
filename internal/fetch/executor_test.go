package fetch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/portfolio-cli/internal/model"
)

func quickTask(provider string, dt model.DataType, call func(ctx context.Context) (map[string]any, error)) Task {
	return Task{Provider: provider, DataType: dt, Timeout: time.Second, Call: call}
}

func TestExecute_CollectsOneResultPerTask(t *testing.T) {
	tasks := []Task{
		quickTask(ProviderTavily, model.DataProfile, func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"summary": "ok"}, nil
		}),
		quickTask(ProviderCoinGecko, model.DataPrice, func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"current_price": 3.0}, nil
		}),
		quickTask(ProviderOpenBB, model.DataMetrics, func(ctx context.Context) (map[string]any, error) {
			return nil, eris.New("no results")
		}),
	}

	results := NewExecutor().Execute(context.Background(), tasks, "acme")
	require.Len(t, results, 3)

	assert.True(t, results["tavily_profile"].OK())
	assert.True(t, results["coingecko_price"].OK())
	assert.False(t, results["openbb_metrics"].OK())
	assert.Equal(t, "no results", results["openbb_metrics"].Err)
}

func TestExecute_TasksRunInParallel(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(ctx context.Context) (map[string]any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		return map[string]any{"ok": true}, nil
	}

	tasks := []Task{
		quickTask(ProviderTavily, model.DataProfile, slow),
		quickTask(ProviderTavily, model.DataFunding, slow),
		quickTask(ProviderTavily, model.DataTeam, slow),
	}

	start := time.Now()
	results := NewExecutor().Execute(context.Background(), tasks, "acme")
	elapsed := time.Since(start)

	require.Len(t, results, 3)
	assert.Greater(t, peak.Load(), int32(1), "tasks should overlap")
	assert.Less(t, elapsed, 140*time.Millisecond, "three 50ms tasks should not run serially")
}

func TestExecute_TimeoutProducesExactTimeoutError(t *testing.T) {
	tasks := []Task{
		{
			Provider: ProviderCoinGecko,
			DataType: model.DataPrice,
			Timeout:  20 * time.Millisecond,
			Call: func(ctx context.Context) (map[string]any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
		quickTask(ProviderTavily, model.DataProfile, func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"summary": "ok"}, nil
		}),
	}

	results := NewExecutor().Execute(context.Background(), tasks, "acme")

	slow := results["coingecko_price"]
	assert.Equal(t, "timeout", slow.Err)
	assert.True(t, slow.TimedOut)
	assert.True(t, results["tavily_profile"].OK(), "a timed-out provider must not take others down")
}

func TestExecute_HungCallDoesNotBlockPastDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	tasks := []Task{
		{
			Provider: ProviderTavily,
			DataType: model.DataProfile,
			Timeout:  20 * time.Millisecond,
			// Ignores its context entirely.
			Call: func(ctx context.Context) (map[string]any, error) {
				<-release
				return nil, nil
			},
		},
	}

	start := time.Now()
	results := NewExecutor().Execute(context.Background(), tasks, "acme")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "timeout", results["tavily_profile"].Err)
}

func TestExecute_ParentCancellationIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []Task{
		quickTask(ProviderTavily, model.DataProfile, func(ctx context.Context) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}

	results := NewExecutor().Execute(ctx, tasks, "acme")
	r := results["tavily_profile"]
	assert.False(t, r.TimedOut)
	assert.Equal(t, context.Canceled.Error(), r.Err)
}

func TestExecute_EmptyTaskList(t *testing.T) {
	results := NewExecutor().Execute(context.Background(), nil, "acme")
	assert.Empty(t, results)
}

func TestExecute_MaxParallelBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(ctx context.Context) (map[string]any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		return map[string]any{"ok": true}, nil
	}

	tasks := make([]Task, 6)
	for i, dt := range model.AllDataTypes {
		tasks[i] = quickTask(ProviderTavily, dt, slow)
	}

	NewExecutor().WithMaxParallel(2).Execute(context.Background(), tasks, "acme")
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
