package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` for fire-and-forget work.
//
// Example:
//
//	SafeGo(context.WithoutCancel(ctx), 5*time.Second, "notify membership.created", log, func(ctx context.Context) error {
//	    return notifier.Notify(ctx, event)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, log logrus.FieldLogger, fn func(context.Context) error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.WithField("task", taskName).
					WithField("stack", string(debug.Stack())).
					Errorf("panic in background task: %v", r)
			}
		}()

		if err := fn(ctx); err != nil {
			log.WithField("task", taskName).WithError(err).Warn("background task failed")
		}
	}()
}

// Batch runs fn for every item with at most workers running at once.
// Each call gets its own timeout. Returns all errors encountered, including
// recovered panics. Items not yet started when ctx is canceled are skipped
// and reported with ctx.Err().
//
// Example:
//
//	errs := Batch(ctx, notifiers, len(notifiers), "notify fan-out", 5*time.Second, func(ctx context.Context, n Notifier) error {
//	    return n.Notify(ctx, event)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	sem := make(chan struct{}, workers)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			record(fmt.Errorf("%s: %w", taskName, err))
			continue
		}
		select {
		case <-ctx.Done():
			record(fmt.Errorf("%s: %w", taskName, ctx.Err()))
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					record(fmt.Errorf("%s: panic: %v", taskName, r))
				}
			}()

			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := fn(taskCtx, item); err != nil {
				record(err)
			}
		}(item)
	}
	wg.Wait()
	return errs
}
