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
	"bytes"
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalshm "github.com/srediag/printq/internal/shm"
	"github.com/srediag/printq/pkg/shm"
)

const helperEnv = "PRINTQ_TEST_HELPER"

// TestHelperProcess is not a test. It is the worker entry point when the
// test binary is re-executed by helperLauncher.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	role, err := ParseRole(os.Args[len(os.Args)-1])
	if err != nil {
		os.Exit(2)
	}
	c, err := LoadConfig()
	if err != nil {
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	if err := RunWorker(ctx, c, role, c.ClientID, nil, nil); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

// syncBuffer collects the output of several children.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func helperLauncher(c *Config, out *syncBuffer) *ExecLauncher {
	env := append(os.Environ(), c.Environ()...)
	return &ExecLauncher{
		Path:   os.Args[0],
		Args:   []string{"-test.run=^TestHelperProcess$", "--"},
		Env:    append(env, helperEnv+"=1"),
		Stdout: out,
		Stderr: out,
	}
}

func TestCrossProcessProducer(t *testing.T) {
	c := testConfig(t)
	c.ClientID = 42
	res := provisionOrSkip(t, c)

	var out syncBuffer
	w, err := helperLauncher(c, &out).Launch(context.Background(), RoleProducer, 0)
	require.NoError(t, err)
	assert.Equal(t, "producer-0", w.ID())
	assert.NotEqual(t, os.Getpid(), w.Pid())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := 1; i <= c.RequestsPerProducer; i++ {
		r, err := res.Queue.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, FileName(42, i), r.FileName)
		assert.Equal(t, int64(42), r.ClientID)
	}
	require.NoError(t, w.Wait(), out.String())
	assert.False(t, w.Running())
	// Wait may be called again
	assert.NoError(t, w.Wait())
}

func TestCrossProcessWorkerWithoutCoordinator(t *testing.T) {
	c := testConfig(t)
	var out syncBuffer
	w, err := helperLauncher(c, &out).Launch(context.Background(), RoleConsumer, 0)
	require.NoError(t, err)
	err = w.Wait()
	var exitErr interface{ ExitCode() int }
	require.True(t, errors.As(err, &exitErr), "worker must fail to attach: %v", err)
	assert.Equal(t, 1, exitErr.ExitCode())
}

func TestProcessWorkerStopTerminatesConsumer(t *testing.T) {
	c := testConfig(t)
	provisionOrSkip(t, c)

	var out syncBuffer
	w, err := helperLauncher(c, &out).Launch(context.Background(), RoleConsumer, 0)
	require.NoError(t, err)
	go func() { _ = w.Wait() }()
	// attached means the consumer already handles SIGTERM
	require.Eventually(t, func() bool {
		info, err := internalshm.StatSegment(c.SegmentKey)
		return err == nil && info.Attached >= 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, w.Running())

	require.NoError(t, w.Stop(5*time.Second))
	assert.False(t, w.Running())
	assert.NoError(t, w.Wait(), out.String())
}

func TestCoordinatorWithProcesses(t *testing.T) {
	c := testConfig(t)
	c.Producers = 2
	c.Consumers = 2
	c.DrainGrace = 200 * time.Millisecond

	var out syncBuffer
	reg := prometheus.NewRegistry()
	coord := NewCoordinator(c, helperLauncher(c, &out), nil, reg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := coord.Run(ctx)
	if errors.Is(err, shm.ErrUnsupported) {
		t.Skip(err)
	}
	require.NoError(t, err, out.String())
	assert.Zero(t, coord.workers.Count())

	_, err = shm.OpenSemaphoreSet(c.SemaphoreNames())
	assert.ErrorIs(t, err, shm.ErrSemaphoreNotFound)
}
