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
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/srediag/printq/pkg/shm"
)

// ErrSetup means the shared resources could not be created. Nothing is left
// behind when it is returned.
var ErrSetup = errors.New("shared resource setup failed")

// Resources are the semaphore set and segment owned by a coordinator.
type Resources struct {
	Region *shm.Region
	Sems   *shm.SemaphoreSet
	Queue  *shm.Queue

	log  *zap.Logger
	once sync.Once
	err  error
}

// Provision claims the segment first and only then creates the semaphore
// set. A segment that is still attached means a live run owns the key, and
// Provision fails without touching that run's semaphore names. Once the key
// is claimed, leftover names can only belong to a crashed run and are
// replaced.
func Provision(c *Config, log *zap.Logger, opts ...shm.QueueOption) (*Resources, error) {
	if log == nil {
		log = zap.NewNop()
	}
	names := c.SemaphoreNames()
	need := uint64(3 * os.Getpagesize())
	if !canCreateOnDevShm(need, filepath.Join(shm.SemaphoreDir, names.Mutex)) {
		return nil, fmt.Errorf("%w: %s has less than %d bytes free", ErrSetup, shm.SemaphoreDir, need)
	}

	region, err := shm.CreateRegion(c.SegmentKey, c.Capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: segment %d: %w", ErrSetup, c.SegmentKey, err)
	}
	sems, err := shm.CreateSemaphoreSet(names, c.Capacity)
	if err != nil {
		_ = region.Detach()
		if rerr := region.Remove(); rerr != nil {
			log.Warn("failed to remove segment after setup failure", zap.Error(rerr))
		}
		return nil, fmt.Errorf("%w: semaphores: %w", ErrSetup, err)
	}
	q, err := shm.NewQueue(region, sems, opts...)
	if err != nil {
		_ = region.Detach()
		_ = region.Remove()
		_ = sems.Close()
		_ = sems.Unlink()
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	log.Info("shared resources created",
		zap.Int("segment_key", c.SegmentKey),
		zap.Int("capacity", c.Capacity),
		zap.String("mutex", names.Mutex),
		zap.String("empty", names.Empty),
		zap.String("full", names.Full))
	return &Resources{Region: region, Sems: sems, Queue: q, log: log}, nil
}

// Release detaches and removes the segment and unlinks the semaphores.
// Only the first call does the work; later calls return its result.
func (r *Resources) Release() error {
	r.once.Do(func() {
		var errs []error
		if err := r.Region.Detach(); err != nil {
			errs = append(errs, err)
		}
		if err := r.Region.Remove(); err != nil {
			errs = append(errs, err)
		}
		if err := r.Sems.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := r.Sems.Unlink(); err != nil {
			errs = append(errs, err)
		}
		r.err = errors.Join(errs...)
		if r.err != nil {
			r.log.Error("failed to release shared resources", zap.Error(r.err))
			return
		}
		r.log.Info("shared resources released")
	})
	return r.err
}

// Cleanup removes resources left by a run whose coordinator died. Missing
// resources are not an error.
func Cleanup(c *Config) error {
	return errors.Join(
		shm.RemoveRegion(c.SegmentKey),
		shm.UnlinkSemaphoreSet(c.SemaphoreNames()),
	)
}

// canCreateOnDevShm reports whether size bytes fit on the filesystem of path.
// Paths outside /dev/shm are not checked.
func canCreateOnDevShm(size uint64, path string) bool {
	if !strings.HasPrefix(path, shm.SemaphoreDir) {
		return true
	}
	stat, err := disk.Usage(shm.SemaphoreDir)
	if err != nil {
		return false
	}
	return stat.Free >= size
}
