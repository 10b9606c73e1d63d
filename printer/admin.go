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
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	goroutineThreshold = 1000
	queueCheckTimeout  = time.Second
)

var errNotProvisioned = errors.New("shared queue not provisioned")

// AdminHandler serves /live, /ready and /metrics for the coordinator.
// Readiness takes the queue mutex, so a participant that died inside the
// critical section turns it into a timeout.
func (c *Coordinator) AdminHandler() http.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(goroutineThreshold))
	health.AddReadinessCheck("shared-queue", healthcheck.Timeout(c.checkQueue, queueCheckTimeout))
	health.AddReadinessCheck("workers", c.checkWorkers)

	mux := http.NewServeMux()
	mux.Handle("/live", health)
	mux.Handle("/ready", health)
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return mux
}

func (c *Coordinator) checkQueue() error {
	res := c.resources.Load()
	if res == nil {
		return errNotProvisioned
	}
	_, err := res.Queue.Len()
	return err
}

func (c *Coordinator) checkWorkers() error {
	for id, w := range c.workers.Items() {
		if !w.Running() {
			return fmt.Errorf("worker %s (pid %d) is gone", id, w.Pid())
		}
	}
	return nil
}

// serveAdmin listens on AdminAddr and returns a function that shuts the
// server down.
func (c *Coordinator) serveAdmin() (func(), error) {
	ln, err := net.Listen("tcp", c.cfg.AdminAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", c.cfg.AdminAddr, err)
	}
	srv := &http.Server{Handler: c.AdminHandler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("admin server failed", zap.Error(err))
		}
	}()
	c.log.Info("admin server listening", zap.String("addr", ln.Addr().String()))
	return func() { _ = srv.Close() }, nil
}
