/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package printer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/srediag/printq/pkg/shm"
)

var errNotDrained = errors.New("queue not drained")

// Coordinator owns the shared resources for one run. It provisions them,
// launches the workers, waits for every producer, lets the consumers drain
// the queue, stops them and releases everything exactly once.
type Coordinator struct {
	cfg      *Config
	launcher Launcher
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *Metrics
	opts     []shm.QueueOption

	workers   cmap.ConcurrentMap[string, Worker]
	resources atomic.Pointer[Resources]
}

type exit struct {
	worker Worker
	err    error
}

// NewCoordinator assigns a run id when c has none. reg and m may be nil; m
// must be registered with reg when both are given.
func NewCoordinator(c *Config, l Launcher, log *zap.Logger, reg *prometheus.Registry, m *Metrics, opts ...shm.QueueOption) *Coordinator {
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if m == nil {
		m = NewMetrics(reg)
	}
	return &Coordinator{
		cfg:      c,
		launcher: l,
		log:      log,
		registry: reg,
		metrics:  m,
		opts:     opts,
		workers:  cmap.New[Worker](),
	}
}

// Metrics returns the coordinator's collectors.
func (c *Coordinator) Metrics() *Metrics { return c.metrics }

// Run returns an error wrapping ErrSetup when provisioning fails; in that
// case no worker was started. Otherwise resources are always released before
// Run returns, and the error joins every worker failure.
func (c *Coordinator) Run(ctx context.Context) (err error) {
	res, err := Provision(c.cfg, c.log, c.opts...)
	if err != nil {
		return err
	}
	c.resources.Store(res)
	defer func() {
		c.resources.Store(nil)
		err = errors.Join(err, res.Release())
	}()

	pool, err := ants.NewPool(c.cfg.Producers + c.cfg.Consumers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	if c.cfg.AdminAddr != "" {
		stop, aerr := c.serveAdmin()
		if aerr != nil {
			return aerr
		}
		defer stop()
	}

	producers := make(chan exit, c.cfg.Producers)
	consumers := make(chan exit, c.cfg.Consumers)
	var launched []Worker
	launch := func(role Role, n int, exits chan exit) error {
		for i := 0; i < n; i++ {
			w, lerr := c.launcher.Launch(ctx, role, i)
			if lerr != nil {
				return lerr
			}
			launched = append(launched, w)
			c.track(w)
			if serr := pool.Submit(func() { exits <- c.reap(w) }); serr != nil {
				return fmt.Errorf("failed to watch %s: %w", w.ID(), serr)
			}
		}
		return nil
	}
	if err := launch(RoleProducer, c.cfg.Producers, producers); err != nil {
		c.stopAll(launched)
		return c.awaitReapers(err)
	}
	if err := launch(RoleConsumer, c.cfg.Consumers, consumers); err != nil {
		c.stopAll(launched)
		return c.awaitReapers(err)
	}
	c.log.Info("workers launched",
		zap.Int("producers", c.cfg.Producers),
		zap.Int("consumers", c.cfg.Consumers))

	var errs []error
	for i := 0; i < c.cfg.Producers; i++ {
		select {
		case e := <-producers:
			if e.err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", e.worker.ID(), e.err))
			}
		case <-ctx.Done():
			c.log.Warn("interrupted before producers finished", zap.Error(ctx.Err()))
			c.stopAll(launched)
			return c.awaitReapers(ctx.Err())
		}
	}
	c.log.Info("all producers finished")

	if derr := c.drain(ctx, res.Queue); derr != nil {
		c.log.Warn("queue not drained before shutdown", zap.Error(derr))
		if errors.Is(derr, shm.ErrProtocolViolation) {
			errs = append(errs, derr)
		}
	}
	if gerr := sleepContext(ctx, c.cfg.DrainGrace); gerr != nil {
		c.log.Warn("drain grace interrupted", zap.Error(gerr))
	}

	for _, w := range launched {
		if w.Role() != RoleConsumer {
			continue
		}
		if serr := w.Stop(c.cfg.StopTimeout); serr != nil {
			c.log.Warn("failed to stop consumer", zap.String("worker", w.ID()), zap.Error(serr))
		}
	}
	for i := 0; i < c.cfg.Consumers; i++ {
		e := <-consumers
		if e.err != nil {
			c.log.Warn("consumer exited with error", zap.String("worker", e.worker.ID()), zap.Error(e.err))
		}
	}
	c.log.Info("run complete")
	return errors.Join(errs...)
}

// awaitReapers waits until every stopped worker has been reaped, so nothing
// is attached when the resources are released.
func (c *Coordinator) awaitReapers(cause error) error {
	deadline := time.Now().Add(c.cfg.StopTimeout + time.Second)
	for c.workers.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	return cause
}

func (c *Coordinator) track(w Worker) {
	c.workers.Set(w.ID(), w)
	c.metrics.Workers.WithLabelValues(string(w.Role())).Inc()
	c.log.Info("worker started", zap.String("worker", w.ID()), zap.Int("worker_pid", w.Pid()))
}

func (c *Coordinator) reap(w Worker) exit {
	err := w.Wait()
	c.workers.Remove(w.ID())
	c.metrics.Workers.WithLabelValues(string(w.Role())).Dec()
	c.log.Info("worker exited", zap.String("worker", w.ID()), zap.Error(err))
	return exit{worker: w, err: err}
}

func (c *Coordinator) stopAll(ws []Worker) {
	for _, w := range ws {
		if err := w.Stop(c.cfg.StopTimeout); err != nil {
			c.log.Warn("failed to stop worker", zap.String("worker", w.ID()), zap.Error(err))
		}
	}
}

// drain polls the queue length with exponential backoff until it is empty
// or DrainTimeout elapses.
func (c *Coordinator) drain(ctx context.Context, q *shm.Queue) error {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if c.cfg.DrainTimeout > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 50 * time.Millisecond
		eb.MaxInterval = time.Second
		eb.MaxElapsedTime = c.cfg.DrainTimeout
		b = eb
	}
	return backoff.Retry(func() error {
		n, err := q.Len()
		if err != nil {
			return backoff.Permanent(err)
		}
		if n > 0 {
			c.log.Debug("waiting for consumers to drain", zap.Int("queued", n))
			return errNotDrained
		}
		return nil
	}, backoff.WithContext(b, ctx))
}
