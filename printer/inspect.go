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
	"fmt"
	"io"
	"strconv"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/printq/pkg/shm"
)

// Inspect attaches to a running queue and writes a snapshot of it to w.
func Inspect(c *Config, w io.Writer) error {
	sess, err := Attach(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	st, err := sess.Queue.Snapshot()
	if err != nil {
		return err
	}
	_, err = w.Write(RenderState(st))
	return err
}

// RenderState formats a snapshot for humans.
func RenderState(st shm.State) []byte {
	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	fmt.Fprintf(b, "segment %d owned by pid %d\n", st.Key, st.OwnerPID)
	fmt.Fprintf(b, "length %d/%d front %d back %d\n", st.Length, st.Capacity, st.Front, st.Back)
	fmt.Fprintf(b, "pushed %d popped %d\n", st.Pushed, st.Popped)
	fmt.Fprintf(b, "semaphores mutex=%d empty=%d full=%d\n", st.Mutex, st.Empty, st.Full)
	for i, r := range st.Items {
		_, _ = b.WriteString("  ")
		b.B = strconv.AppendInt(b.B, int64(i), 10)
		_, _ = b.WriteString(": ")
		_, _ = b.WriteString(r.String())
		_ = b.WriteByte('\n')
	}
	return append([]byte(nil), b.B...)
}
