package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/shinimi/internal/observability"
	"github.com/harun/shinimi/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ErrClosed is returned by Enqueue once Close has been called
var ErrClosed = errors.New("command queue closed")

// Task is a unit of work executed inside a lane
type Task func(ctx context.Context) (interface{}, error)

// TaskOptions provides configuration for task execution
type TaskOptions struct {
	// WarnAfter logs a warning (and calls OnWait) when the task is still
	// queued after this long. Zero disables the warning.
	WarnAfter time.Duration
	OnWait    func(wait time.Duration, queuePos int)
}

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	options    TaskOptions
	result     chan taskResult
	started    bool
	abandoned  bool
}

type taskResult struct {
	value interface{}
	err   error
}

type lane struct {
	name    string
	queue   []*taskRecord
	running bool
}

// LaneStats is a point-in-time view of one lane
type LaneStats struct {
	Queued  int  `json:"queued"`
	Running bool `json:"running"`
}

// EventHandler is a function that handles queue events
type EventHandler func(event Event)

// Event represents a queue event
type Event struct {
	Type   string // "enqueued" or "completed"
	Lane   string
	TaskID string
	Data   map[string]interface{}
}

// CommandQueue runs tasks in per-key FIFO lanes
type CommandQueue struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	seq    uint64
	closed bool
	queued int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	eventHandlers map[string][]EventHandler
	eventMu       sync.RWMutex
}

// New creates an empty CommandQueue
func New(logger zerolog.Logger) *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &CommandQueue{
		lanes:         make(map[string]*lane),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger.With().Str("component", "commandqueue").Logger(),
		eventHandlers: make(map[string][]EventHandler),
	}
}

// Enqueue appends task to the named lane and blocks until it has run.
// If ctx is done before the task starts, the task is skipped and ctx.Err()
// returned. If ctx is done while the task runs, the task sees a cancelled
// context and Enqueue returns once it finishes.
func (cq *CommandQueue) Enqueue(ctx context.Context, laneName string, task Task, options *TaskOptions) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(ctx, tracing.TracerDispatch, "commandqueue.enqueue",
		attribute.String("lane", laneName),
	)
	defer span.End()

	opts := TaskOptions{}
	if options != nil {
		opts = *options
	}

	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil, ErrClosed
	}

	cq.seq++
	record := &taskRecord{
		id:         fmt.Sprintf("%s-%d", laneName, cq.seq),
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		options:    opts,
		result:     make(chan taskResult, 1),
	}

	l, ok := cq.lanes[laneName]
	if !ok {
		l = &lane{name: laneName}
		cq.lanes[laneName] = l
	}
	l.queue = append(l.queue, record)
	queueSize := len(l.queue)
	cq.queued++
	cq.publishGauges()

	if !l.running {
		l.running = true
		cq.wg.Add(1)
		go cq.drain(l)
	}
	cq.mu.Unlock()

	cq.logger.Debug().
		Str("lane", laneName).
		Str("task_id", record.id).
		Int("queue_size", queueSize).
		Msg("Task enqueued")

	cq.emit(Event{
		Type:   "enqueued",
		Lane:   laneName,
		TaskID: record.id,
		Data:   map[string]interface{}{"queueSize": queueSize},
	})

	if opts.WarnAfter > 0 {
		go cq.warnIfWaiting(l, record)
	}

	select {
	case res := <-record.result:
		tracing.RecordError(span, res.err)
		return res.value, res.err
	case <-ctx.Done():
		cq.mu.Lock()
		if !record.started {
			record.abandoned = true
		}
		started := record.started
		cq.mu.Unlock()

		if started {
			res := <-record.result
			tracing.RecordError(span, res.err)
			return res.value, res.err
		}
		tracing.RecordError(span, ctx.Err())
		return nil, ctx.Err()
	}
}

// drain runs the lane until it is empty, then drops it
func (cq *CommandQueue) drain(l *lane) {
	defer cq.wg.Done()

	for {
		cq.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			delete(cq.lanes, l.name)
			cq.publishGauges()
			cq.mu.Unlock()
			return
		}
		record := l.queue[0]
		l.queue = l.queue[1:]
		cq.queued--
		skip := record.abandoned
		record.started = !skip
		cq.publishGauges()
		cq.mu.Unlock()

		if skip {
			cq.logger.Debug().Str("lane", l.name).Str("task_id", record.id).Msg("Task abandoned before start")
			continue
		}

		cq.execute(l.name, record)
	}
}

func (cq *CommandQueue) execute(laneName string, record *taskRecord) {
	runCtx, cancel := context.WithCancel(record.ctx)
	stop := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	start := time.Now()
	value, err := runTask(runCtx, record.task)
	duration := time.Since(start)

	logger := tracing.LoggerFromContext(record.ctx, cq.logger)
	if err != nil {
		logger.Warn().
			Str("lane", laneName).
			Str("task_id", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		logger.Debug().
			Str("lane", laneName).
			Str("task_id", record.id).
			Dur("duration", duration).
			Msg("Task completed")
	}

	observability.RecordLaneTask(err == nil)

	cq.emit(Event{
		Type:   "completed",
		Lane:   laneName,
		TaskID: record.id,
		Data: map[string]interface{}{
			"duration": duration.Milliseconds(),
			"success":  err == nil,
		},
	})

	record.result <- taskResult{value: value, err: err}
}

// runTask converts a panic into an error so the lane keeps draining
func runTask(ctx context.Context, task Task) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

func (cq *CommandQueue) warnIfWaiting(l *lane, record *taskRecord) {
	timer := time.NewTimer(record.options.WarnAfter)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-record.ctx.Done():
		return
	case <-cq.ctx.Done():
		return
	}

	cq.mu.Lock()
	pos := -1
	for i, r := range l.queue {
		if r == record {
			pos = i
			break
		}
	}
	cq.mu.Unlock()

	if pos < 0 {
		return
	}

	wait := time.Since(record.enqueuedAt)
	cq.logger.Warn().
		Str("lane", l.name).
		Str("task_id", record.id).
		Dur("wait", wait).
		Int("queue_pos", pos).
		Msg("Task waiting longer than expected")

	if record.options.OnWait != nil {
		record.options.OnWait(wait, pos)
	}
}

// must be called with mu held
func (cq *CommandQueue) publishGauges() {
	observability.SetLaneQueueSize(cq.queued)
	observability.SetActiveLanes(len(cq.lanes))
}

// GetQueueSize returns the number of tasks waiting (not running) in a lane
func (cq *CommandQueue) GetQueueSize(laneName string) int {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	if l, ok := cq.lanes[laneName]; ok {
		return len(l.queue)
	}
	return 0
}

// LaneCount returns the number of live lanes
func (cq *CommandQueue) LaneCount() int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.lanes)
}

// GetStats returns statistics for all live lanes
func (cq *CommandQueue) GetStats() map[string]LaneStats {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	stats := make(map[string]LaneStats, len(cq.lanes))
	for name, l := range cq.lanes {
		stats[name] = LaneStats{Queued: len(l.queue), Running: l.running}
	}
	return stats
}

// Close stops accepting tasks and waits for queued and running tasks to finish.
// If ctx is done first, running tasks are cancelled and Close returns ctx.Err()
// after they exit.
func (cq *CommandQueue) Close(ctx context.Context) error {
	cq.mu.Lock()
	cq.closed = true
	cq.mu.Unlock()

	done := make(chan struct{})
	go func() {
		cq.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cq.cancel()
		cq.logger.Info().Msg("Command queue drained")
		return nil
	case <-ctx.Done():
		cq.cancel()
		<-done
		cq.logger.Warn().Msg("Command queue closed before drain completed")
		return ctx.Err()
	}
}

// On registers an event handler for a specific event type
func (cq *CommandQueue) On(eventType string, handler EventHandler) {
	cq.eventMu.Lock()
	defer cq.eventMu.Unlock()

	cq.eventHandlers[eventType] = append(cq.eventHandlers[eventType], handler)
}

// Off removes all handlers for the event type
func (cq *CommandQueue) Off(eventType string) {
	cq.eventMu.Lock()
	defer cq.eventMu.Unlock()

	delete(cq.eventHandlers, eventType)
}

func (cq *CommandQueue) emit(event Event) {
	cq.eventMu.RLock()
	handlers := cq.eventHandlers[event.Type]
	cq.eventMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
