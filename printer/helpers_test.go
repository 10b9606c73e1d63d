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
	"math/rand/v2"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/srediag/printq/pkg/shm"
)

// testConfig returns a fast configuration on a key and prefix no other test
// uses. Anything it names is removed when the test ends.
func testConfig(t *testing.T) *Config {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("shared queue needs linux")
	}
	c := DefaultConfig()
	c.SegmentKey = 0x5000000 + rand.IntN(0xffffff)
	c.SemaphorePrefix = fmt.Sprintf("printq-test-%d", rand.Uint32())
	c.MinPause = 0
	c.MaxPause = time.Millisecond
	c.MinFileSize = 100
	c.MaxFileSize = 1000
	c.BytesPerSecond = 0
	c.DrainTimeout = 10 * time.Second
	c.DrainGrace = 0
	c.StopTimeout = 2 * time.Second
	c.LogDevelopment = false
	c.LogLevel = "error"
	t.Cleanup(func() { _ = Cleanup(c) })
	return c
}

func provisionOrSkip(t *testing.T, c *Config) *Resources {
	t.Helper()
	res, err := Provision(c, nil)
	if errors.Is(err, shm.ErrUnsupported) {
		t.Skip(err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Release() })
	return res
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	_ = g.Write(m)
	return m.GetGauge().GetValue()
}
