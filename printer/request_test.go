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
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "FILE_42_1", FileName(42, 1))
	assert.Equal(t, "FILE_12345_6", FileName(12345, 6))
}

func TestRequestGeneratorSequence(t *testing.T) {
	c := DefaultConfig()
	g := NewRequestGenerator(7, c, rand.New(rand.NewPCG(1, 2)))
	for i := 1; i <= 50; i++ {
		r := g.Next()
		assert.Equal(t, int64(7), r.ClientID)
		assert.Equal(t, FileName(7, i), r.FileName)
		assert.GreaterOrEqual(t, r.FileSize, c.MinFileSize)
		assert.LessOrEqual(t, r.FileSize, c.MaxFileSize)
		assert.NoError(t, r.Validate())
	}
}

func TestRequestGeneratorFixedSize(t *testing.T) {
	c := DefaultConfig()
	c.MinFileSize, c.MaxFileSize = 900, 900
	g := NewRequestGenerator(1, c, nil)
	assert.Equal(t, int64(900), g.Next().FileSize)
}

func TestRateSimulator(t *testing.T) {
	r := RateSimulator{BytesPerSecond: 7000}
	assert.Equal(t, time.Second, r.Duration(7000))
	assert.Equal(t, 500*time.Millisecond, r.Duration(3500))
	assert.Equal(t, time.Duration(0), r.Duration(0))
	assert.Equal(t, time.Duration(0), RateSimulator{}.Duration(40000))
	assert.Equal(t, 5714285714*time.Nanosecond, r.Duration(40000))
}

func TestRateSimulatorLargeSizes(t *testing.T) {
	r := RateSimulator{BytesPerSecond: 7000}
	assert.Equal(t, 2*time.Hour, r.Duration(7000*7200))
	// size * time.Second alone would overflow here
	assert.Equal(t, 10_000_000*time.Second, r.Duration(7000*10_000_000))
	assert.Equal(t, time.Duration(math.MaxInt64), r.Duration(math.MaxInt64))
	assert.Equal(t, time.Duration(math.MaxInt64), RateSimulator{BytesPerSecond: 1}.Duration(10_000_000_000))
}
