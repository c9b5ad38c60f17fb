// Package commandqueue serializes work per session through lanes.
//
// Invariants:
// - Tasks in the same lane execute one at a time in FIFO order.
// - Tasks in different lanes may execute concurrently.
// - Lanes are created on first use and dropped once idle.
// - A task is never started after its caller's context is done.
// - After Close, Enqueue fails with ErrClosed; queued tasks still run.
//
// Usage:
//
//	queue := commandqueue.New(logger)
//	defer queue.Close(context.Background())
//	result, err := queue.Enqueue(ctx, sessionID, func(ctx context.Context) (interface{}, error) {
//		return "ok", nil
//	}, nil)
package commandqueue
