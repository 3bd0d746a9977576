package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// PanicError is returned when an executor panics. The pipeline records it as
// an ordinary stage failure.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("executor panic: %v", e.Value)
}

// offload runs fn on a worker goroutine and waits for it. The orchestration
// goroutine only blocks on the result, never inside the executor itself, and
// a panic in fn becomes a *PanicError instead of crashing the process.
func offload[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var out T
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		v, err := fn(gctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err := g.Wait(); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
