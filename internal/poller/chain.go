// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package poller runs self-rescheduling fetch loops: run the task, wait the
// interval, run it again. A loop never overlaps with itself.
package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torrentdash/internal/metrics"
)

const (
	DefaultTorrentInterval = 5 * time.Second
	DefaultPeerInterval    = 3 * time.Second
)

var (
	// ErrIdle is returned by a task that had nothing to fetch this tick.
	ErrIdle = errors.New("nothing to poll")
	// ErrStale is returned by a task whose result was discarded because the
	// state it was fetched for no longer exists.
	ErrStale = errors.New("stale poll result discarded")
)

// Task is one tick of a chain. Its error is logged and never stops the chain.
type Task func(ctx context.Context) error

// Chain is one polling loop.
type Chain struct {
	name     string
	task     Task
	interval atomic.Int64
	wake     chan struct{}
	ticks    atomic.Uint64

	after   func(time.Duration) <-chan time.Time
	now     func() time.Time
	metrics *metrics.Metrics
	log     zerolog.Logger
}

type ChainOption func(*Chain)

// WithAfter replaces time.After, mostly for tests.
func WithAfter(after func(time.Duration) <-chan time.Time) ChainOption {
	return func(c *Chain) { c.after = after }
}

func WithMetrics(m *metrics.Metrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

func NewChain(name string, interval time.Duration, task Task, opts ...ChainOption) *Chain {
	c := &Chain{
		name:  name,
		task:  task,
		wake:  make(chan struct{}, 1),
		after: time.After,
		now:   time.Now,
		log:   log.With().Str("module", "poller").Str("chain", name).Logger(),
	}
	c.SetInterval(interval)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Name() string {
	return c.name
}

func (c *Chain) Interval() time.Duration {
	return time.Duration(c.interval.Load())
}

// SetInterval changes the wait used after the current tick. Non-positive
// values are ignored.
func (c *Chain) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	if prev := time.Duration(c.interval.Swap(int64(d))); prev != 0 && prev != d {
		c.log.Debug().Dur("previous", prev).Dur("interval", d).Msg("Poll interval changed")
	}
}

// Trigger cuts the current wait short. If a tick is in flight the next one
// starts as soon as it finishes. Multiple triggers coalesce.
func (c *Chain) Trigger() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Ticks returns how many times the task has run.
func (c *Chain) Ticks() uint64 {
	return c.ticks.Load()
}

// Run executes the task immediately and then after every interval until ctx
// is cancelled. It always returns nil.
func (c *Chain) Run(ctx context.Context) error {
	c.log.Debug().Dur("interval", c.Interval()).Msg("Starting poll chain")
	defer c.log.Debug().Msg("Poll chain stopped")

	for {
		c.tick(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-c.after(c.Interval()):
		case <-c.wake:
		}
	}
}

func (c *Chain) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := c.now()
	err := c.task(ctx)
	took := c.now().Sub(start)
	c.ticks.Add(1)

	switch {
	case err == nil:
		c.metrics.ObservePoll(c.name, metrics.OutcomeSuccess, took)
		c.log.Trace().Dur("took", took).Msg("Poll succeeded")
	case errors.Is(err, ErrIdle):
		c.metrics.ObservePoll(c.name, metrics.OutcomeIdle, took)
	case errors.Is(err, ErrStale):
		c.metrics.ObservePoll(c.name, metrics.OutcomeStale, took)
		c.log.Debug().Err(err).Msg("Discarded stale poll result")
	case ctx.Err() != nil:
		// shutting down
	default:
		c.metrics.ObservePoll(c.name, metrics.OutcomeError, took)
		c.log.Warn().Err(err).Dur("took", took).Msg("Poll failed, retrying next interval")
	}
}
