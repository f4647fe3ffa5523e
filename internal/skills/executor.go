package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Call is one requested skill invocation.
type Call struct {
	Name string
	Args map[string]any
}

// Executor runs skill calls through a bounded goroutine pool so one round of
// tool fan-out can never exhaust the process.
type Executor struct {
	registry *Registry
	pool     *ants.Pool
	logger   *slog.Logger
}

// NewExecutor creates an executor with the given concurrency (minimum 1).
func NewExecutor(registry *Registry, concurrency int, logger *slog.Logger) (*Executor, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "skills"))
	}
	pool, err := ants.NewPool(concurrency, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create executor pool: %w", err)
	}
	return &Executor{registry: registry, pool: pool, logger: logger}, nil
}

// ExecuteAll runs the calls concurrently and returns their results in input
// order. Panics and pool errors become error-prefixed results; a cancelled
// ctx resolves every not-yet-finished call to the ctx error.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Call) []string {
	results := make([]string, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		i, call := i, call
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("skill panicked", "skill", call.Name, "panic", r)
					results[i] = Errorf("skill '%s' panicked: %v", call.Name, r)
				}
			}()
			if ctx.Err() != nil {
				results[i] = Errorf("skill '%s' cancelled: %v", call.Name, ctx.Err())
				return
			}
			results[i] = e.registry.Execute(ctx, call.Name, call.Args)
		})
		if err != nil {
			wg.Done()
			results[i] = Errorf("skill '%s' rejected: %v", call.Name, err)
		}
	}
	wg.Wait()
	return results
}

// Release shuts the pool down.
func (e *Executor) Release() {
	e.pool.Release()
}
