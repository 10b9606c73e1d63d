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
	"math"
	"time"
)

// WorkSimulator decides how long printing a file takes.
type WorkSimulator interface {
	Duration(size int64) time.Duration
}

const maxDuration = time.Duration(math.MaxInt64)

// RateSimulator prints at a fixed byte rate. A zero rate prints instantly.
type RateSimulator struct {
	BytesPerSecond int64
}

func (r RateSimulator) Duration(size int64) time.Duration {
	if r.BytesPerSecond <= 0 || size <= 0 {
		return 0
	}
	// whole seconds first so large sizes cannot overflow
	secs := size / r.BytesPerSecond
	if secs >= int64(maxDuration/time.Second) {
		return maxDuration
	}
	rest := time.Duration(float64(size%r.BytesPerSecond) / float64(r.BytesPerSecond) * float64(time.Second))
	return time.Duration(secs)*time.Second + rest
}

// sleepContext waits d or until ctx ends, whichever is first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
