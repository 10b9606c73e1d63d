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
	"runtime"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/printq/pkg/shm"
)

type ProvisionTestSuite struct {
	suite.Suite
	cfg *Config
}

func TestProvisionTestSuite(t *testing.T) {
	suite.Run(t, new(ProvisionTestSuite))
}

func (s *ProvisionTestSuite) SetupTest() {
	s.cfg = testConfig(s.T())
}

func (s *ProvisionTestSuite) TestAttachBeforeProvisionFails() {
	_, err := Attach(s.cfg)
	s.ErrorIs(err, ErrAttach)
	s.ErrorIs(err, shm.ErrSemaphoreNotFound)
}

func (s *ProvisionTestSuite) TestAttachSharesTheQueue() {
	res := provisionOrSkip(s.T(), s.cfg)

	sess, err := Attach(s.cfg)
	s.Require().NoError(err)
	defer sess.Close()

	req := shm.Request{ClientID: 42, FileName: "FILE_42_1", FileSize: 1000}
	s.Require().NoError(sess.Queue.Push(context.Background(), req))
	got, err := res.Queue.Pop(context.Background())
	s.Require().NoError(err)
	s.Equal(req, got)
}

func (s *ProvisionTestSuite) TestAttachCapacityMismatch() {
	provisionOrSkip(s.T(), s.cfg)
	other := *s.cfg
	other.Capacity = s.cfg.Capacity + 1
	_, err := Attach(&other)
	s.ErrorIs(err, ErrAttach)
	s.ErrorIs(err, shm.ErrProtocolViolation)
}

func (s *ProvisionTestSuite) TestReleaseRemovesEverythingOnce() {
	res := provisionOrSkip(s.T(), s.cfg)
	s.Require().NoError(res.Release())
	s.Require().NoError(res.Release())

	_, err := shm.OpenSemaphoreSet(s.cfg.SemaphoreNames())
	s.ErrorIs(err, shm.ErrSemaphoreNotFound)
	_, err = shm.AttachRegion(s.cfg.SegmentKey, s.cfg.Capacity)
	s.ErrorIs(err, shm.ErrSegmentNotFound)
}

func (s *ProvisionTestSuite) TestSetupFailureLeavesNothing() {
	busy, err := shm.CreateRegion(s.cfg.SegmentKey, s.cfg.Capacity)
	if err != nil {
		s.T().Skip(err)
	}
	defer func() {
		_ = busy.Detach()
		_ = busy.Remove()
	}()

	_, err = Provision(s.cfg, nil)
	s.ErrorIs(err, ErrSetup)
	s.ErrorIs(err, shm.ErrSegmentInUse)

	_, err = shm.OpenSemaphoreSet(s.cfg.SemaphoreNames())
	s.ErrorIs(err, shm.ErrSemaphoreNotFound)
}

// A second coordinator on a live key must leave the running queue usable.
func (s *ProvisionTestSuite) TestSecondProvisionKeepsLiveRun() {
	res := provisionOrSkip(s.T(), s.cfg)

	_, err := Provision(s.cfg, nil)
	s.ErrorIs(err, ErrSetup)
	s.ErrorIs(err, shm.ErrSegmentInUse)

	sess, err := Attach(s.cfg)
	s.Require().NoError(err)
	defer sess.Close()
	req := shm.Request{ClientID: 7, FileName: "FILE_7_1", FileSize: 700}
	s.Require().NoError(sess.Queue.Push(context.Background(), req))
	got, err := res.Queue.Pop(context.Background())
	s.Require().NoError(err)
	s.Equal(req, got)
}

func (s *ProvisionTestSuite) TestSemaphoreFailureRemovesSegment() {
	other := *s.cfg
	other.SemaphorePrefix = "bad\x00"
	_, err := Provision(&other, nil)
	s.ErrorIs(err, ErrSetup)
	_, err = shm.AttachRegion(s.cfg.SegmentKey, s.cfg.Capacity)
	s.ErrorIs(err, shm.ErrSegmentNotFound)
}

func (s *ProvisionTestSuite) TestProvisionReplacesLeftovers() {
	res := provisionOrSkip(s.T(), s.cfg)
	// a crashed coordinator: handles gone, names and segment still there
	s.Require().NoError(res.Region.Detach())
	s.Require().NoError(res.Sems.Close())

	again, err := Provision(s.cfg, nil)
	s.Require().NoError(err)
	defer again.Release()
	n, err := again.Queue.Len()
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ProvisionTestSuite) TestCleanupMissingIsNoop() {
	s.NoError(Cleanup(s.cfg))
}

func TestCanCreateOnDevShm(t *testing.T) {
	switch runtime.GOOS {
	case "linux":
		assert.True(t, canCreateOnDevShm(math.MaxUint64, "sdffafds"))
		stat, err := disk.Usage("/dev/shm")
		require.NoError(t, err)
		assert.True(t, canCreateOnDevShm(stat.Free/2, "/dev/shm/xxx"))
		assert.False(t, canCreateOnDevShm(math.MaxUint64, "/dev/shm/yyy"))
	default:
		assert.True(t, canCreateOnDevShm(33333, "sdffafds"))
	}
}
