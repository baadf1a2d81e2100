package bus

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/utils/logging"
)

// Handler processes a message delivered by the bus. For notifications the
// returned payload is ignored. For requests the returned payload becomes the
// response body; a returned error rejects the request.
type Handler func(ctx context.Context, msg *model.Message) (any, error)

type subKey struct {
	contextID model.ContextID
	msgType   model.MessageType
}

type subscription struct {
	key     subKey
	handler Handler
	seq     uint64
}

// target is a subscription snapshot taken under the lock. The handler value
// is captured at snapshot time so a concurrent re-subscribe cannot race with
// delivery.
type target struct {
	contextID model.ContextID
	seq       uint64
	handler   Handler
}

const (
	requestDone = iota + 1
	requestTimedOut
	requestCancelled
)

// Bus is the in-process broker connecting contexts: pub/sub notifications
// plus correlated request/response delivery.
type Bus struct {
	mu   sync.RWMutex
	subs map[subKey]*subscription
	seq  uint64

	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once

	observer  func(*DeliveryReport)
	queueSize int
}

type Option func(*Bus)

// WithObserver installs a callback receiving the delivery report of every
// dispatched notification.
func WithObserver(fn func(*DeliveryReport)) Option {
	return func(b *Bus) {
		b.observer = fn
	}
}

// WithQueueSize sets the notification dispatch queue capacity
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New creates a bus and starts its dispatcher
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[subKey]*subscription),
		done:      make(chan struct{}),
		queueSize: 128,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.queue = make(chan func(), b.queueSize)
	go b.dispatch()

	return b
}

// dispatch executes queued notification deliveries one at a time. A single
// consumer preserves enqueue order, so notifications from the same source
// are observed in program order.
func (b *Bus) dispatch() {
	for {
		select {
		case job := <-b.queue:
			job()
		case <-b.done:
			// Drain remaining jobs before exit
			for {
				select {
				case job := <-b.queue:
					job()
				default:
					return
				}
			}
		}
	}
}

// Close stops the dispatcher after draining queued notifications
func (b *Bus) Close() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}

// Subscribe registers a handler for (contextID, msgType). A context may hold
// only one handler per message type; re-subscribing replaces the previous
// handler and logs a warning. The returned function removes the
// subscription.
func (b *Bus) Subscribe(contextID model.ContextID, msgType model.MessageType, handler Handler) func() {
	key := subKey{contextID: contextID, msgType: msgType}

	b.mu.Lock()
	if prev, ok := b.subs[key]; ok {
		logging.Default().Warn("bus handler replaced",
			"context", contextID, "type", msgType)
		// Keep the original registration slot so fan-out order is stable
		prev.handler = handler
		sub := prev
		b.mu.Unlock()
		return b.unsubscriber(key, sub)
	}

	b.seq++
	sub := &subscription{key: key, handler: handler, seq: b.seq}
	b.subs[key] = sub
	b.mu.Unlock()

	return b.unsubscriber(key, sub)
}

func (b *Bus) unsubscriber(key subKey, sub *subscription) func() {
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.subs[key]; ok && cur == sub {
			delete(b.subs, key)
		}
	}
}

// Notify queues a notification for delivery to every subscriber of the
// message type, in subscription-registration order. Delivery is
// asynchronous; a failing handler never blocks the remaining handlers nor
// propagates to the caller. The aggregate outcome is reported to the
// observer and logged.
func (b *Bus) Notify(ctx context.Context, msg *model.Message) {
	logger := logging.From(ctx)

	b.mu.RLock()
	targets := make([]target, 0, 4)
	for _, sub := range b.subs {
		if sub.key.msgType == msg.Type {
			targets = append(targets, target{
				contextID: sub.key.contextID,
				seq:       sub.seq,
				handler:   sub.handler,
			})
		}
	}
	b.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].seq < targets[j].seq })

	job := func() {
		report := b.deliver(ctx, msg, targets)
		if report.Failed > 0 {
			logger.Warn("notification delivery incomplete",
				"message_id", msg.ID,
				"type", msg.Type,
				"delivered", report.Delivered,
				"failed", report.Failed)
		}
		if b.observer != nil {
			b.observer(report)
		}
	}

	select {
	case b.queue <- job:
	case <-b.done:
		logger.Warn("notification dropped, bus closed", "type", msg.Type)
	}
}

func (b *Bus) deliver(ctx context.Context, msg *model.Message, targets []target) *DeliveryReport {
	report := &DeliveryReport{
		MessageID: msg.ID,
		Type:      msg.Type,
	}

	for _, tgt := range targets {
		outcome := HandlerOutcome{ContextID: tgt.contextID}
		start := time.Now()
		outcome.Err = b.invoke(ctx, tgt.handler, msg)
		outcome.Elapsed = time.Since(start)

		if outcome.Err != nil {
			report.Failed++
			logging.From(ctx).Warn("notification handler failed",
				"context", tgt.contextID,
				"type", msg.Type,
				"error", outcome.Err)
		} else {
			report.Delivered++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report
}

// invoke runs a handler with panic isolation
func (b *Bus) invoke(ctx context.Context, h Handler, msg *model.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("handler panicked", goerr.V("recovered", r))
		}
	}()

	_, err = h(ctx, msg)
	return err
}

// SendRequest delivers a request to the single subscriber registered for
// (TargetContext, Type) and waits for its response. Exactly one outcome is
// observed per correlation ID: the first completion wins, any later one is
// discarded with a warning. Exceeding timeout abandons interest in the
// result without cancelling the running handler.
func (b *Bus) SendRequest(ctx context.Context, req *model.Message, timeout time.Duration) (*model.Message, error) {
	logger := logging.From(ctx)

	key := subKey{contextID: req.TargetContext, msgType: req.Type}
	b.mu.RLock()
	var handler Handler
	if sub, ok := b.subs[key]; ok {
		handler = sub.handler
	}
	b.mu.RUnlock()
	if handler == nil {
		return nil, goerr.Wrap(model.ErrNoHandler, "request has no subscriber",
			goerr.V("target", req.TargetContext),
			goerr.V("type", req.Type))
	}

	if req.CorrelationID == "" {
		req.CorrelationID = model.NewCorrelationID()
	}

	type result struct {
		payload any
		err     error
	}

	resCh := make(chan result, 1)
	var state atomic.Int32

	complete := func(payload any, err error) {
		if !state.CompareAndSwap(0, requestDone) {
			logger.Warn("response discarded",
				"correlation_id", req.CorrelationID,
				"type", req.Type,
				"reason", discardReason(state.Load()))
			return
		}
		resCh <- result{payload: payload, err: err}
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				complete(nil, goerr.New("request handler panicked", goerr.V("recovered", r)))
			}
		}()
		payload, err := handler(ctx, req)
		complete(payload, err)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-resCh:
		if r.err != nil {
			return nil, goerr.Wrap(r.err, "request handler failed",
				goerr.V("target", req.TargetContext),
				goerr.V("type", req.Type),
				goerr.V("correlation_id", req.CorrelationID))
		}
		return model.NewResponse(req, r.payload), nil

	case <-timer.C:
		state.CompareAndSwap(0, requestTimedOut)
		return nil, goerr.Wrap(model.ErrTimeout, "no response before deadline",
			goerr.V("target", req.TargetContext),
			goerr.V("type", req.Type),
			goerr.V("timeout", timeout))

	case <-ctx.Done():
		state.CompareAndSwap(0, requestCancelled)
		return nil, goerr.Wrap(ctx.Err(), "request cancelled",
			goerr.V("target", req.TargetContext),
			goerr.V("type", req.Type))
	}
}

func discardReason(state int32) string {
	switch state {
	case requestDone:
		return "already resolved"
	case requestTimedOut:
		return "timed out"
	case requestCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
