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
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/srediag/printq/pkg/shm"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "PRINTQ"

// Config is shared by the coordinator and every worker process. Workers get
// it through the environment, so all participants agree on key, names and
// capacity.
type Config struct {
	SegmentKey      int    `envconfig:"SEGMENT_KEY" default:"7639184"`
	Capacity        int    `envconfig:"CAPACITY" default:"3"`
	SemaphorePrefix string `envconfig:"SEMAPHORE_PREFIX" default:"printq"`

	Producers           int `envconfig:"PRODUCERS" default:"1"`
	Consumers           int `envconfig:"CONSUMERS" default:"1"`
	RequestsPerProducer int `envconfig:"REQUESTS_PER_PRODUCER" default:"6"`

	MinFileSize int64         `envconfig:"MIN_FILE_SIZE" default:"500"`
	MaxFileSize int64         `envconfig:"MAX_FILE_SIZE" default:"40000"`
	MinPause    time.Duration `envconfig:"MIN_PAUSE" default:"1s"`
	MaxPause    time.Duration `envconfig:"MAX_PAUSE" default:"3s"`

	// BytesPerSecond is the simulated print rate.
	BytesPerSecond int64 `envconfig:"BYTES_PER_SECOND" default:"7000"`
	HistorySize    int   `envconfig:"HISTORY_SIZE" default:"16"`

	DrainTimeout time.Duration `envconfig:"DRAIN_TIMEOUT" default:"2m"`
	DrainGrace   time.Duration `envconfig:"DRAIN_GRACE" default:"10s"`
	StopTimeout  time.Duration `envconfig:"STOP_TIMEOUT" default:"5s"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"true"`
	AdminAddr      string `envconfig:"ADMIN_ADDR"`

	// ClientID overrides the producer's client id; 0 means the process id.
	ClientID int64  `envconfig:"CLIENT_ID"`
	RunID    string `envconfig:"RUN_ID"`
}

// DefaultConfig returns the parameters of the reference run: one producer
// issuing six requests into a three-slot queue drained by one consumer.
func DefaultConfig() *Config {
	return &Config{
		SegmentKey:          shm.DefaultSegmentKey,
		Capacity:            shm.DefaultCapacity,
		SemaphorePrefix:     "printq",
		Producers:           1,
		Consumers:           1,
		RequestsPerProducer: 6,
		MinFileSize:         500,
		MaxFileSize:         40000,
		MinPause:            time.Second,
		MaxPause:            3 * time.Second,
		BytesPerSecond:      7000,
		HistorySize:         16,
		DrainTimeout:        2 * time.Minute,
		DrainGrace:          10 * time.Second,
		StopTimeout:         5 * time.Second,
		LogLevel:            "info",
		LogDevelopment:      true,
	}
}

// LoadConfig reads PRINTQ_* variables over the defaults and verifies the result.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := VerifyConfig(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// VerifyConfig reports the first inconsistent parameter.
func VerifyConfig(c *Config) error {
	switch {
	case c == nil:
		return errors.New("nil config")
	case c.SegmentKey <= 0:
		return fmt.Errorf("segment key must be positive, got %d", c.SegmentKey)
	case c.Capacity <= 0:
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	case c.SemaphorePrefix == "":
		return errors.New("semaphore prefix is empty")
	case c.Producers < 1:
		return fmt.Errorf("need at least one producer, got %d", c.Producers)
	case c.Consumers < 1:
		return fmt.Errorf("need at least one consumer, got %d", c.Consumers)
	case c.RequestsPerProducer < 0:
		return fmt.Errorf("requests per producer must not be negative, got %d", c.RequestsPerProducer)
	case c.MinFileSize <= 0 || c.MaxFileSize < c.MinFileSize:
		return fmt.Errorf("file size range [%d, %d] is invalid", c.MinFileSize, c.MaxFileSize)
	case c.MinPause < 0 || c.MaxPause < c.MinPause:
		return fmt.Errorf("pause range [%s, %s] is invalid", c.MinPause, c.MaxPause)
	case c.BytesPerSecond < 0:
		return fmt.Errorf("print rate must not be negative, got %d", c.BytesPerSecond)
	case c.HistorySize < 0:
		return fmt.Errorf("history size must not be negative, got %d", c.HistorySize)
	case c.DrainTimeout < 0 || c.DrainGrace < 0 || c.StopTimeout < 0:
		return errors.New("shutdown timeouts must not be negative")
	}
	for _, r := range c.SemaphorePrefix {
		if r == '/' || r == 0 {
			return fmt.Errorf("semaphore prefix %q contains %q", c.SemaphorePrefix, r)
		}
	}
	return nil
}

// SemaphoreNames returns the agreed names of the semaphore set.
func (c *Config) SemaphoreNames() shm.SemaphoreNames {
	return shm.DefaultSemaphoreNames(c.SemaphorePrefix)
}

// Environ renders c as PRINTQ_* assignments for a child process.
func (c *Config) Environ() []string {
	kv := func(k, v string) string { return EnvPrefix + "_" + k + "=" + v }
	return []string{
		kv("SEGMENT_KEY", strconv.Itoa(c.SegmentKey)),
		kv("CAPACITY", strconv.Itoa(c.Capacity)),
		kv("SEMAPHORE_PREFIX", c.SemaphorePrefix),
		kv("PRODUCERS", strconv.Itoa(c.Producers)),
		kv("CONSUMERS", strconv.Itoa(c.Consumers)),
		kv("REQUESTS_PER_PRODUCER", strconv.Itoa(c.RequestsPerProducer)),
		kv("MIN_FILE_SIZE", strconv.FormatInt(c.MinFileSize, 10)),
		kv("MAX_FILE_SIZE", strconv.FormatInt(c.MaxFileSize, 10)),
		kv("MIN_PAUSE", c.MinPause.String()),
		kv("MAX_PAUSE", c.MaxPause.String()),
		kv("BYTES_PER_SECOND", strconv.FormatInt(c.BytesPerSecond, 10)),
		kv("HISTORY_SIZE", strconv.Itoa(c.HistorySize)),
		kv("DRAIN_TIMEOUT", c.DrainTimeout.String()),
		kv("DRAIN_GRACE", c.DrainGrace.String()),
		kv("STOP_TIMEOUT", c.StopTimeout.String()),
		kv("LOG_LEVEL", c.LogLevel),
		kv("LOG_DEVELOPMENT", strconv.FormatBool(c.LogDevelopment)),
		kv("CLIENT_ID", strconv.FormatInt(c.ClientID, 10)),
		kv("RUN_ID", c.RunID),
	}
}
