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
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Worker is a launched producer or consumer.
type Worker interface {
	ID() string
	Role() Role
	Pid() int
	// Wait blocks until the worker exits. It may be called more than once.
	Wait() error
	// Stop asks the worker to terminate and forces it after timeout.
	Stop(timeout time.Duration) error
	Running() bool
}

// Launcher starts workers.
type Launcher interface {
	Launch(ctx context.Context, role Role, index int) (Worker, error)
}

func workerID(role Role, index int) string {
	return fmt.Sprintf("%s-%d", role, index)
}

// ExecLauncher runs every worker as a separate process of Path. The role is
// appended to Args and the configuration travels in the environment.
type ExecLauncher struct {
	Path   string
	Args   []string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecLauncher re-executes the running binary.
func NewExecLauncher(c *Config) (*ExecLauncher, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return &ExecLauncher{
		Path:   path,
		Env:    append(os.Environ(), c.Environ()...),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, nil
}

func (l *ExecLauncher) Launch(_ context.Context, role Role, index int) (Worker, error) {
	args := append(append([]string(nil), l.Args...), string(role))
	cmd := exec.Command(l.Path, args...)
	cmd.Env = l.Env
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", workerID(role, index), err)
	}
	return &processWorker{
		id:   workerID(role, index),
		role: role,
		cmd:  cmd,
		done: make(chan struct{}),
	}, nil
}

type processWorker struct {
	id   string
	role Role
	cmd  *exec.Cmd
	once sync.Once
	done chan struct{}
	err  error
}

func (w *processWorker) ID() string { return w.id }
func (w *processWorker) Role() Role { return w.role }
func (w *processWorker) Pid() int   { return w.cmd.Process.Pid }

func (w *processWorker) Wait() error {
	w.once.Do(func() {
		w.err = w.cmd.Wait()
		close(w.done)
	})
	return w.err
}

func (w *processWorker) Stop(timeout time.Duration) error {
	select {
	case <-w.done:
		return nil
	default:
	}
	if err := w.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	go func() { _ = w.Wait() }()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done:
		return nil
	case <-t.C:
	}
	if err := w.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-w.done
	return nil
}

func (w *processWorker) Running() bool {
	select {
	case <-w.done:
		return false
	default:
	}
	p, err := process.NewProcess(int32(w.Pid()))
	if err != nil {
		return false
	}
	ok, err := p.IsRunning()
	return err == nil && ok
}

// InProcessLauncher runs workers as goroutines of the calling process. Each
// worker still attaches its own mapping and semaphore handles.
type InProcessLauncher struct {
	Config  *Config
	Log     *zap.Logger
	Metrics *Metrics
}

func (l *InProcessLauncher) Launch(_ context.Context, role Role, index int) (Worker, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	id := workerID(role, index)
	ctx, cancel := context.WithCancel(context.Background())
	w := &goroutineWorker{id: id, role: role, cancel: cancel, done: make(chan struct{})}
	clientID := l.Config.ClientID
	if clientID == 0 {
		clientID = int64(os.Getpid())*100 + int64(index)
	}
	go func() {
		defer close(w.done)
		w.err = RunWorker(ctx, l.Config, role, clientID, log.With(zap.String("worker", id)), l.Metrics)
	}()
	return w, nil
}

type goroutineWorker struct {
	id     string
	role   Role
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (w *goroutineWorker) ID() string { return w.id }
func (w *goroutineWorker) Role() Role { return w.role }
func (w *goroutineWorker) Pid() int   { return os.Getpid() }

func (w *goroutineWorker) Wait() error {
	<-w.done
	return w.err
}

func (w *goroutineWorker) Stop(timeout time.Duration) error {
	w.cancel()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done:
		return nil
	case <-t.C:
		return fmt.Errorf("%s did not stop within %s", w.id, timeout)
	}
}

func (w *goroutineWorker) Running() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}
