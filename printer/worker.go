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
	"os"

	"go.uber.org/zap"
)

// Role selects what a worker process does.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleProducer    Role = "producer"
	RoleConsumer    Role = "consumer"
)

// ParseRole accepts the worker roles only.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleProducer, RoleConsumer:
		return r, nil
	}
	return "", fmt.Errorf("unknown worker role %q", s)
}

// RunWorker attaches to the queue and runs one producer or consumer until it
// finishes or ctx ends. clientID is used by producers; 0 means the pid.
func RunWorker(ctx context.Context, c *Config, role Role, clientID int64, log *zap.Logger, m *Metrics) error {
	if log == nil {
		log = zap.NewNop()
	}
	sess, err := Attach(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("failed to detach", zap.Error(cerr))
		}
	}()
	log.Debug("attached to shared queue", zap.Int("segment_key", c.SegmentKey))

	switch role {
	case RoleProducer:
		if clientID == 0 {
			clientID = int64(os.Getpid())
		}
		return NewProducer(sess.Queue, c, clientID, log, m).Run(ctx)
	case RoleConsumer:
		return NewConsumer(sess.Queue, c, nil, log, m).Run(ctx)
	}
	return fmt.Errorf("unknown worker role %q", role)
}
