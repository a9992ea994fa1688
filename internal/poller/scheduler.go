// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package poller

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Scheduler runs independent chains concurrently. Chains interleave freely
// with each other but each one stays strictly sequential.
type Scheduler struct {
	chains []*Chain
}

func NewScheduler(chains ...*Chain) *Scheduler {
	return &Scheduler{chains: chains}
}

func (s *Scheduler) Chains() []*Chain {
	return s.chains
}

// Run blocks until ctx is cancelled and every chain has returned.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range s.chains {
		g.Go(func() error {
			return c.Run(ctx)
		})
	}
	return g.Wait()
}
