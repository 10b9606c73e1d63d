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
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/srediag/printq/pkg/shm"
)

// Pusher is the producing side of the shared queue.
type Pusher interface {
	Push(ctx context.Context, req shm.Request) error
}

// Producer issues a fixed number of print requests, pausing a random
// interval between consecutive insertions.
type Producer struct {
	queue    Pusher
	gen      *RequestGenerator
	count    int
	minPause time.Duration
	maxPause time.Duration
	rng      *rand.Rand
	log      *zap.Logger
	metrics  *Metrics
}

func NewProducer(q Pusher, c *Config, clientID int64, log *zap.Logger, m *Metrics) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	rng := rand.New(rand.NewPCG(rand.Uint64(), uint64(clientID)))
	return &Producer{
		queue:    q,
		gen:      NewRequestGenerator(clientID, c, rng),
		count:    c.RequestsPerProducer,
		minPause: c.MinPause,
		maxPause: c.MaxPause,
		rng:      rng,
		log:      log,
		metrics:  m,
	}
}

// Run inserts all requests in order and returns once the last one is in the
// queue. It blocks while the queue is full.
func (p *Producer) Run(ctx context.Context) error {
	for i := 0; i < p.count; i++ {
		req := p.gen.Next()
		if err := p.queue.Push(ctx, req); err != nil {
			return fmt.Errorf("insert %s: %w", req.FileName, err)
		}
		p.metrics.Enqueued.Inc()
		p.log.Info("inserted print request", requestFields(req)...)
		if i == p.count-1 {
			break
		}
		if err := sleepContext(ctx, p.pause()); err != nil {
			return err
		}
	}
	p.log.Info("all print requests issued", zap.Int("count", p.count))
	return nil
}

func (p *Producer) pause() time.Duration {
	if p.maxPause <= p.minPause {
		return p.minPause
	}
	return p.minPause + time.Duration(p.rng.Int64N(int64(p.maxPause-p.minPause)+1))
}
