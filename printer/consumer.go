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
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"go.uber.org/zap"

	"github.com/srediag/printq/pkg/shm"
)

// Popper is the consuming side of the shared queue.
type Popper interface {
	Pop(ctx context.Context) (shm.Request, error)
}

// Consumer removes requests forever and simulates printing each one. It only
// stops when its context ends.
type Consumer struct {
	queue   Popper
	work    WorkSimulator
	log     *zap.Logger
	metrics *Metrics

	mu      sync.Mutex
	history *queue.RingBuffer
	keep    int
	done    int
}

func NewConsumer(q Popper, c *Config, work WorkSimulator, log *zap.Logger, m *Metrics) *Consumer {
	if work == nil {
		work = RateSimulator{BytesPerSecond: c.BytesPerSecond}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	cs := &Consumer{queue: q, work: work, log: log, metrics: m, keep: c.HistorySize}
	if cs.keep > 0 {
		cs.history = queue.NewRingBuffer(uint64(cs.keep))
	}
	return cs
}

// Run returns nil when ctx ends, including in the middle of a job, and the
// queue error otherwise.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		req, err := c.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopping", zap.Int("printed", c.Printed()), zap.Strings("recent", c.recentNames()))
				return nil
			}
			return err
		}
		c.metrics.Dequeued.Inc()
		c.log.Info("removed print request, starting job", requestFields(req)...)

		start := time.Now()
		if err := sleepContext(ctx, c.work.Duration(req.FileSize)); err != nil {
			c.log.Warn("print job interrupted", requestFields(req)...)
			return nil
		}
		elapsed := time.Since(start)
		c.metrics.Completed.Inc()
		c.metrics.JobDuration.Observe(elapsed.Seconds())
		c.record(req)
		c.log.Info("print job complete", append(requestFields(req), zap.Duration("took", elapsed))...)
	}
}

func (c *Consumer) record(req shm.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done++
	if c.history == nil {
		return
	}
	if c.history.Len() >= uint64(c.keep) {
		_, _ = c.history.Get()
	}
	_, _ = c.history.Offer(req)
}

// Printed is the number of completed jobs.
func (c *Consumer) Printed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Consumer) recentNames() []string {
	recent := c.Recent()
	names := make([]string, len(recent))
	for i, r := range recent {
		names[i] = r.FileName
	}
	return names
}

// Recent returns the last completed jobs, oldest first.
func (c *Consumer) Recent() []shm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.history == nil {
		return nil
	}
	n := c.history.Len()
	out := make([]shm.Request, 0, n)
	for i := uint64(0); i < n; i++ {
		item, err := c.history.Get()
		if err != nil {
			break
		}
		out = append(out, item.(shm.Request))
	}
	for _, r := range out {
		_, _ = c.history.Offer(r)
	}
	return out
}
