package fetch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxParallel bounds how many provider calls run at once per cycle.
const DefaultMaxParallel = 8

// TaskResult is the outcome of one provider call. Failures are absorbed into
// Err rather than failing the cycle; the merger decides what they mean.
type TaskResult struct {
	Provider string
	DataType string
	Data     map[string]any
	Err      string
	Elapsed  time.Duration
	TimedOut bool
}

// OK reports whether the call produced usable data.
func (r TaskResult) OK() bool { return r.Err == "" && len(r.Data) > 0 }

// Executor runs a cycle's tasks in parallel, each under its own provider
// deadline.
type Executor struct {
	maxParallel int
}

// NewExecutor creates an executor with the default parallelism bound.
func NewExecutor() *Executor {
	return &Executor{maxParallel: DefaultMaxParallel}
}

// WithMaxParallel overrides the parallelism bound.
func (e *Executor) WithMaxParallel(n int) *Executor {
	if n > 0 {
		e.maxParallel = n
	}
	return e
}

// Execute fans the tasks out and collects exactly one result per task, keyed
// by provider_datatype. It never returns before every task has either
// finished or hit its deadline, and a single slow provider only costs its own
// slot.
func (e *Executor) Execute(ctx context.Context, tasks []Task, label string) map[string]TaskResult {
	results := make([]TaskResult, len(tasks))

	g := new(errgroup.Group)
	g.SetLimit(e.maxParallel)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = e.runTask(ctx, task, label)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]TaskResult, len(tasks))
	for i, task := range tasks {
		out[task.Key()] = results[i]
	}
	return out
}

type callOutcome struct {
	data map[string]any
	err  error
}

func (e *Executor) runTask(ctx context.Context, task Task, label string) TaskResult {
	start := time.Now()
	result := TaskResult{Provider: task.Provider, DataType: string(task.DataType)}

	tctx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()

	// The call runs in its own goroutine so a provider that ignores context
	// cancellation still cannot hold the cycle past its deadline.
	ch := make(chan callOutcome, 1)
	go func() {
		data, err := task.Call(tctx)
		ch <- callOutcome{data: data, err: err}
	}()

	select {
	case o := <-ch:
		result.Elapsed = time.Since(start)
		if o.err != nil {
			// A call that surfaces its own deadline is still a timeout.
			if errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
				result.Err = "timeout"
				result.TimedOut = true
				return result
			}
			result.Err = o.err.Error()
			zap.L().Warn("fetch: provider call failed",
				zap.String("company", label),
				zap.String("provider", task.Provider),
				zap.String("data_type", string(task.DataType)),
				zap.Duration("elapsed", result.Elapsed),
				zap.Error(o.err),
			)
			return result
		}
		result.Data = o.data
		zap.L().Debug("fetch: provider call completed",
			zap.String("company", label),
			zap.String("provider", task.Provider),
			zap.String("data_type", string(task.DataType)),
			zap.Duration("elapsed", result.Elapsed),
		)
		return result

	case <-tctx.Done():
		result.Elapsed = time.Since(start)
		if ctx.Err() != nil {
			result.Err = ctx.Err().Error()
			return result
		}
		result.Err = "timeout"
		result.TimedOut = true
		zap.L().Warn("fetch: provider call timed out",
			zap.String("company", label),
			zap.String("provider", task.Provider),
			zap.String("data_type", string(task.DataType)),
			zap.Duration("timeout", task.Timeout),
		)
		return result
	}
}
