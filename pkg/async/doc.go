// Package async provides safe concurrent execution primitives for background tasks.
//
// SafeGo runs a fire-and-forget task with panic recovery, a timeout and
// logrus error logging:
//
//	async.SafeGo(context.WithoutCancel(ctx), 5*time.Second, "notify", log, func(ctx context.Context) error {
//		return notifier.Notify(ctx, event)
//	})
//
// Batch fans a function out over a slice with bounded concurrency and
// collects every error:
//
//	errs := async.Batch(ctx, sinks, len(sinks), "fan-out", 5*time.Second, func(ctx context.Context, s Sink) error {
//		return s.Send(ctx, msg)
//	})
package async
