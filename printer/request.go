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
	"math/rand/v2"
	"strconv"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/printq/pkg/shm"
)

// RequestGenerator produces the requests of one client: FILE_<id>_<n> with
// n counting from 1, sized uniformly in [MinFileSize, MaxFileSize].
type RequestGenerator struct {
	clientID int64
	minSize  int64
	maxSize  int64
	rng      *rand.Rand
	seq      int
}

func NewRequestGenerator(clientID int64, c *Config, rng *rand.Rand) *RequestGenerator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), uint64(clientID)))
	}
	return &RequestGenerator{
		clientID: clientID,
		minSize:  c.MinFileSize,
		maxSize:  c.MaxFileSize,
		rng:      rng,
	}
}

// Next returns the next request of the sequence.
func (g *RequestGenerator) Next() shm.Request {
	g.seq++
	size := g.minSize
	if g.maxSize > g.minSize {
		size += g.rng.Int64N(g.maxSize - g.minSize + 1)
	}
	return shm.Request{
		ClientID: g.clientID,
		FileName: FileName(g.clientID, g.seq),
		FileSize: size,
	}
}

// FileName formats the name of the n-th file of a client.
func FileName(clientID int64, n int) string {
	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	b.B = append(b.B, "FILE_"...)
	b.B = strconv.AppendInt(b.B, clientID, 10)
	b.B = append(b.B, '_')
	b.B = strconv.AppendInt(b.B, int64(n), 10)
	return string(b.B)
}
