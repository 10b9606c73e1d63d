package shm

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/printq/pkg/shm"

// Queue is the bounded FIFO over a Region, guarded by a SemaphoreSet.
// Any number of processes may hold their own Queue over the same segment.
type Queue struct {
	region *Region
	sems   *SemaphoreSet
	tracer trace.Tracer

	pushes     metric.Int64Counter
	pops       metric.Int64Counter
	violations metric.Int64Counter
}

type queueOptions struct {
	meter  metric.Meter
	tracer trace.Tracer
}

// QueueOption configures a Queue.
type QueueOption func(*queueOptions)

// WithMeter records push, pop and violation counts on m.
func WithMeter(m metric.Meter) QueueOption {
	return func(o *queueOptions) { o.meter = m }
}

// WithTracer records a span per operation on t.
func WithTracer(t trace.Tracer) QueueOption {
	return func(o *queueOptions) { o.tracer = t }
}

// NewQueue binds an attached region and an open semaphore set.
func NewQueue(region *Region, sems *SemaphoreSet, opts ...QueueOption) (*Queue, error) {
	if region == nil || sems == nil {
		return nil, errors.New("queue needs a region and a semaphore set")
	}
	o := queueOptions{
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	q := &Queue{region: region, sems: sems, tracer: o.tracer}
	var err error
	if q.pushes, err = o.meter.Int64Counter("printq.queue.push",
		metric.WithDescription("Requests inserted into the shared queue.")); err != nil {
		return nil, fmt.Errorf("push counter: %w", err)
	}
	if q.pops, err = o.meter.Int64Counter("printq.queue.pop",
		metric.WithDescription("Requests removed from the shared queue.")); err != nil {
		return nil, fmt.Errorf("pop counter: %w", err)
	}
	if q.violations, err = o.meter.Int64Counter("printq.queue.violations",
		metric.WithDescription("Broken queue invariants detected in the critical section.")); err != nil {
		return nil, fmt.Errorf("violation counter: %w", err)
	}
	return q, nil
}

// Capacity returns the slot count.
func (q *Queue) Capacity() int { return q.region.Capacity() }

// Push appends req at the back of the queue, blocking while the queue is full.
// It never drops or overwrites a request. If ctx is cancelled while waiting
// for a free slot, Push returns ctx.Err() and the queue is unchanged.
func (q *Queue) Push(ctx context.Context, req Request) (err error) {
	if err := req.Validate(); err != nil {
		return err
	}
	ctx, span := q.tracer.Start(ctx, "shm.Queue.Push")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if err := q.sems.empty.WaitContext(ctx); err != nil {
		return err
	}
	if err := q.sems.mutex.Wait(); err != nil {
		return errors.Join(err, q.sems.empty.Post())
	}
	perr := q.region.push(req)
	if err := q.sems.mutex.Post(); err != nil {
		return errors.Join(perr, err)
	}
	if perr != nil {
		q.violations.Add(ctx, 1)
		// hand the slot back so other participants are not starved by our failure
		return errors.Join(perr, q.sems.empty.Post())
	}
	q.pushes.Add(ctx, 1)
	return q.sems.full.Post()
}

// Pop removes and returns the request at the front, blocking while the queue
// is empty. If ctx is cancelled while waiting, Pop returns ctx.Err() and the
// queue is unchanged.
func (q *Queue) Pop(ctx context.Context) (req Request, err error) {
	ctx, span := q.tracer.Start(ctx, "shm.Queue.Pop")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if err := q.sems.full.WaitContext(ctx); err != nil {
		return Request{}, err
	}
	if err := q.sems.mutex.Wait(); err != nil {
		return Request{}, errors.Join(err, q.sems.full.Post())
	}
	req, perr := q.region.pop()
	if err := q.sems.mutex.Post(); err != nil {
		return Request{}, errors.Join(perr, err)
	}
	if perr != nil {
		q.violations.Add(ctx, 1)
		return Request{}, errors.Join(perr, q.sems.full.Post())
	}
	q.pops.Add(ctx, 1)
	return req, q.sems.empty.Post()
}

// Len returns the number of queued requests, read under the mutex.
func (q *Queue) Len() (int, error) {
	st, err := q.Snapshot()
	if err != nil {
		return 0, err
	}
	return st.Length, nil
}

// Snapshot returns the queue contents and counters, read under the mutex.
func (q *Queue) Snapshot() (State, error) {
	if err := q.sems.mutex.Wait(); err != nil {
		return State{}, err
	}
	st, serr := q.region.snapshot()
	if err := q.sems.mutex.Post(); err != nil {
		return State{}, errors.Join(serr, err)
	}
	if serr != nil {
		return State{}, serr
	}
	st.Mutex, st.Empty, st.Full = q.sems.Values()
	return st, nil
}
