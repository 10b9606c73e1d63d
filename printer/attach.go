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
	"sync"

	"github.com/srediag/printq/pkg/shm"
)

// ErrAttach means a worker could not open the resources its coordinator
// provisioned.
var ErrAttach = errors.New("attach to shared queue failed")

// Session is one worker's view of the shared queue.
type Session struct {
	Queue *shm.Queue

	region *shm.Region
	sems   *shm.SemaphoreSet
	once   sync.Once
	err    error
}

// Attach opens the semaphore set and attaches the segment named by c. It
// never creates anything.
func Attach(c *Config, opts ...shm.QueueOption) (*Session, error) {
	sems, err := shm.OpenSemaphoreSet(c.SemaphoreNames())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAttach, err)
	}
	region, err := shm.AttachRegion(c.SegmentKey, c.Capacity)
	if err != nil {
		_ = sems.Close()
		return nil, fmt.Errorf("%w: %w", ErrAttach, err)
	}
	q, err := shm.NewQueue(region, sems, opts...)
	if err != nil {
		_ = region.Detach()
		_ = sems.Close()
		return nil, fmt.Errorf("%w: %w", ErrAttach, err)
	}
	return &Session{Queue: q, region: region, sems: sems}, nil
}

// Close detaches the segment and closes the semaphore handles. It removes
// nothing.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.err = errors.Join(s.region.Detach(), s.sems.Close())
	})
	return s.err
}
