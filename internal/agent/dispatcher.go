package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dayuer/charbot-go/internal/bus"
	"github.com/dayuer/charbot-go/internal/lane"
	"github.com/dayuer/charbot-go/internal/session"
)

// Dispatcher consumes the inbound bus and feeds each message to the current
// Engine. Session mutations happen in arrival order on the dispatch
// goroutine; echo replies run on per-chat lanes. Command replies and group
// listings bypass the lanes so a reply mode can never drop them.
type Dispatcher struct {
	bus     *bus.MessageBus
	current atomic.Pointer[Engine]
	lanes   *lane.Manager
	logger  *zap.Logger

	swapMu sync.Mutex
}

// NewDispatcher creates a dispatcher serving engine.
func NewDispatcher(b *bus.MessageBus, engine *Engine, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{bus: b, logger: logger.Named("dispatcher")}
	d.current.Store(engine)
	d.lanes = lane.NewManager(lane.Config{
		Mode:   engine.replyMode,
		Logger: logger,
		OnDrop: func(string, int) { d.Engine().metrics.Inbound("superseded") },
	})
	return d
}

// Lanes exposes the reply lanes, for status reporting.
func (d *Dispatcher) Lanes() *lane.Manager { return d.lanes }

// Engine returns the engine currently handling messages.
func (d *Dispatcher) Engine() *Engine { return d.current.Load() }

// Swap transfers the session from the current engine to next and makes
// next the handler for subsequent messages. Messages already begun finish
// on the engine that started them.
func (d *Dispatcher) Swap(next *Engine) {
	d.swapMu.Lock()
	defer d.swapMu.Unlock()

	prev := d.current.Load()
	if prev == next {
		return
	}
	if prev != nil {
		next.machine.Restore(prev.machine.Snapshot())
		next.corrections = prev.corrections
	}
	d.current.Store(next)
	if prev != nil {
		prev.successor.Store(next)
	}
	d.lanes.SetMode(next.replyMode)
	d.logger.Info("engine swapped", zap.String("state", next.machine.State().Status().String()))
}

// Run dispatches until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-d.bus.Inbound:
			d.Dispatch(ctx, msg)
		}
	}
}

// Dispatch handles one message. A failure or panic is logged and never
// affects later messages.
func (d *Dispatcher) Dispatch(ctx context.Context, msg bus.InboundMessage) {
	d.swapMu.Lock()
	task, err := d.begin(msg)
	d.swapMu.Unlock()
	if err != nil {
		d.logFailure(msg, err)
		return
	}
	if task == nil {
		return
	}

	key := ""
	if task.decision.Action == session.Pipeline {
		key = msg.ChatID
	}
	d.lanes.Submit(ctx, key, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				d.logFailure(msg, &StageError{Stage: StagePanic, Err: fmt.Errorf("%v", r)})
			}
		}()
		if err := task.Run(ctx); err != nil {
			d.logFailure(msg, err)
		}
	})
}

func (d *Dispatcher) begin(msg bus.InboundMessage) (task *Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: StagePanic, Err: fmt.Errorf("%v", r)}
		}
	}()
	return d.current.Load().Begin(msg), nil
}

func (d *Dispatcher) logFailure(msg bus.InboundMessage, err error) {
	stage := "unknown"
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	if errors.Is(err, context.Canceled) {
		d.logger.Debug("message abandoned on shutdown", zap.String("id", msg.ID), zap.String("stage", stage))
		return
	}
	d.logger.Error("message failed",
		zap.String("chat", msg.ChatID), zap.String("id", msg.ID),
		zap.String("stage", stage), zap.Error(err))
}

// Wait blocks until in-flight replies and scheduled corrections are done.
func (d *Dispatcher) Wait() {
	d.lanes.Wait()
	if e := d.current.Load(); e != nil {
		e.Wait()
	}
}
