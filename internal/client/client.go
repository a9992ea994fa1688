// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package client composes the store, the backend and the poll chains into the
// dashboard's single entry point.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torrentdash/internal/backend"
	"github.com/autobrr/torrentdash/internal/metrics"
	"github.com/autobrr/torrentdash/internal/models"
	"github.com/autobrr/torrentdash/internal/poller"
	"github.com/autobrr/torrentdash/internal/store"
)

const (
	OpCreate  = "create"
	OpDestroy = "destroy"
	OpFocus   = "focus"
)

type Option func(*options)

type options struct {
	torrentInterval time.Duration
	peerInterval    time.Duration
	metrics         *metrics.Metrics
	chainOpts       []poller.ChainOption
}

func WithIntervals(torrents, peers time.Duration) Option {
	return func(o *options) {
		o.torrentInterval = torrents
		o.peerInterval = peers
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithChainOptions passes options through to both poll chains.
func WithChainOptions(opts ...poller.ChainOption) Option {
	return func(o *options) { o.chainOpts = append(o.chainOpts, opts...) }
}

// Client owns the torrent store. Every mutation holds dispatchMu while it
// computes its events under mu and hands them to the view, so views observe
// events in mutation order. Lock order is dispatchMu, then mu.
type Client struct {
	fetcher backend.Fetcher
	view    View
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu    sync.Mutex
	store *store.TorrentStore
	// issued counts torrent-list fetches, applied is the newest one applied.
	issued  uint64
	applied uint64
	// tombstones maps a destroyed hash to the last fetch issued before the
	// destroy was confirmed.
	tombstones map[string]uint64

	dispatchMu sync.Mutex

	torrentChain *poller.Chain
	peerChain    *poller.Chain
	scheduler    *poller.Scheduler
}

func New(fetcher backend.Fetcher, view View, opts ...Option) *Client {
	o := options{
		torrentInterval: poller.DefaultTorrentInterval,
		peerInterval:    poller.DefaultPeerInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if view == nil {
		view = NopView{}
	}

	c := &Client{
		fetcher:    fetcher,
		view:       view,
		metrics:    o.metrics,
		log:        log.With().Str("module", "client").Logger(),
		store:      store.NewTorrentStore(),
		tombstones: make(map[string]uint64),
	}

	chainOpts := append([]poller.ChainOption{poller.WithMetrics(o.metrics)}, o.chainOpts...)
	c.torrentChain = poller.NewChain("torrents", o.torrentInterval, c.RefreshTorrents, chainOpts...)
	c.peerChain = poller.NewChain("peers", o.peerInterval, c.RefreshPeers, chainOpts...)
	c.scheduler = poller.NewScheduler(c.torrentChain, c.peerChain)

	return c
}

// Start runs both poll chains until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	c.log.Info().
		Dur("torrentInterval", c.torrentChain.Interval()).
		Dur("peerInterval", c.peerChain.Interval()).
		Msg("Starting poll chains")
	return c.scheduler.Run(ctx)
}

// SetIntervals applies new poll intervals from the next wait onwards.
func (c *Client) SetIntervals(torrents, peers time.Duration) {
	c.torrentChain.SetInterval(torrents)
	c.peerChain.SetInterval(peers)
}

// RefreshTorrents performs one torrent chain tick. A response older than one
// already applied is discarded, as are hashes destroyed after it was issued.
func (c *Client) RefreshTorrents(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	records, err := c.fetcher.ListTorrents(ctx)
	if err != nil {
		return err
	}

	return c.mutate(func() ([]store.Event, error) {
		if seq < c.applied {
			return nil, fmt.Errorf("%w: torrent list %d superseded by %d", poller.ErrStale, seq, c.applied)
		}
		c.applied = seq
		return c.store.ApplySnapshot(c.withoutTombstoned(seq, records)), nil
	})
}

// withoutTombstoned must be called with mu held.
func (c *Client) withoutTombstoned(seq uint64, records []models.TorrentRecord) []models.TorrentRecord {
	if len(c.tombstones) == 0 {
		return records
	}

	filtered := make([]models.TorrentRecord, 0, len(records))
	for _, r := range records {
		hash := models.TorrentRecordKey(r)
		if destroyedAt, ok := c.tombstones[hash]; ok && seq <= destroyedAt {
			continue
		}
		filtered = append(filtered, r)
	}

	for hash, destroyedAt := range c.tombstones {
		if seq > destroyedAt {
			delete(c.tombstones, hash)
		}
	}
	return filtered
}

// RefreshPeers performs one peer chain tick. Without focus it returns
// poller.ErrIdle; a response for a torrent that lost focus meanwhile is
// discarded with poller.ErrStale.
func (c *Client) RefreshPeers(ctx context.Context) error {
	c.mu.Lock()
	hash := c.store.FocusedHash()
	c.mu.Unlock()

	if hash == "" {
		return poller.ErrIdle
	}

	records, err := c.fetcher.ListPeers(ctx, hash)
	if err != nil {
		return err
	}

	return c.mutate(func() ([]store.Event, error) {
		events, err := c.store.ApplyPeers(hash, records)
		if errors.Is(err, store.ErrStalePeers) {
			return nil, fmt.Errorf("%w: peers for %s", poller.ErrStale, hash)
		}
		return events, err
	})
}

// CreateTorrent validates and submits a .torrent. Local state is left alone;
// the torrent shows up with the next torrent list.
func (c *Client) CreateTorrent(ctx context.Context, file []byte) error {
	meta, err := backend.ParseTorrentFile(file)
	if err != nil {
		return c.fail(OpCreate, err)
	}

	if err := c.fetcher.CreateTorrent(ctx, file); err != nil {
		return c.fail(OpCreate, err)
	}

	c.metrics.ObserveOperation(OpCreate, nil)
	c.log.Info().Str("hash", meta.InfoHash).Str("name", meta.Name).Msg("Torrent submitted")
	c.torrentChain.Trigger()
	return nil
}

// DestroyTorrent asks the backend to delete hash and removes it locally only
// once the backend confirmed.
func (c *Client) DestroyTorrent(ctx context.Context, hash string) error {
	hash = models.NormalizeHash(hash)

	c.mu.Lock()
	_, known := c.store.Get(hash)
	c.mu.Unlock()
	if !known {
		return c.fail(OpDestroy, fmt.Errorf("%w: %s", store.ErrTorrentNotFound, hash))
	}

	if err := c.fetcher.DestroyTorrent(ctx, hash); err != nil {
		return c.fail(OpDestroy, err)
	}

	c.metrics.ObserveOperation(OpDestroy, nil)
	c.log.Info().Str("hash", hash).Msg("Torrent destroyed")

	return c.mutate(func() ([]store.Event, error) {
		c.tombstones[hash] = c.issued
		return c.store.Remove(hash), nil
	})
}

// DestroySelected destroys every selected torrent and joins the failures.
func (c *Client) DestroySelected(ctx context.Context) error {
	c.mu.Lock()
	hashes := c.store.SelectedHashes()
	c.mu.Unlock()

	var errs []error
	for _, hash := range hashes {
		if err := c.DestroyTorrent(ctx, hash); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", hash, err))
		}
	}
	return errors.Join(errs...)
}

// Focus follows the peers of hash. An empty hash clears the focus.
func (c *Client) Focus(hash string) error {
	var changed bool
	err := c.mutate(func() ([]store.Event, error) {
		events, err := c.store.SetFocus(hash)
		changed = len(events) > 0
		return events, err
	})
	if err != nil {
		return err
	}

	if changed && hash != "" {
		c.peerChain.Trigger()
	}
	return nil
}

func (c *Client) Unfocus() {
	_ = c.Focus("")
}

func (c *Client) MarkSelected(hash string, selected bool) error {
	return c.mutate(func() ([]store.Event, error) {
		changed, err := c.store.MarkSelected(hash, selected)
		if err != nil || !changed {
			return nil, err
		}
		t, _ := c.store.Get(hash)
		return []store.Event{{Kind: store.TorrentUpdated, Torrent: t, Changed: true}}, nil
	})
}

func (c *Client) IsSelected(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.IsSelected(hash)
}

func (c *Client) SelectAll(selected bool) {
	_ = c.mutate(func() ([]store.Event, error) {
		changed := c.store.SelectAll(selected)
		events := make([]store.Event, 0, len(changed))
		for _, t := range changed {
			events = append(events, store.Event{Kind: store.TorrentUpdated, Torrent: t, Changed: true})
		}
		return events, nil
	})
}

func (c *Client) Torrents() []models.Torrent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Torrents()
}

func (c *Client) Torrent(hash string) (models.Torrent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(hash)
}

func (c *Client) Peers() []models.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Peers()
}

func (c *Client) Focused() (models.Torrent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Focused()
}

// mutate takes dispatchMu before mu. Views read state under mu while
// dispatchMu is held, so the reverse order would deadlock the two chains.
func (c *Client) mutate(fn func() ([]store.Event, error)) error {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	events, err := fn()
	torrents, peers := c.store.Len(), c.store.PeerCount()
	c.mu.Unlock()

	c.metrics.SetTracked(torrents, peers)
	for _, ev := range events {
		c.dispatch(ev)
	}
	return err
}

// dispatch must be called with dispatchMu held.
func (c *Client) dispatch(ev store.Event) {
	c.metrics.CountEvent(ev.Kind.String())

	switch ev.Kind {
	case store.TorrentCreated:
		c.view.TorrentCreated(ev.Torrent)
	case store.TorrentUpdated:
		c.view.TorrentUpdated(ev.Torrent)
	case store.TorrentRemoved:
		c.view.TorrentRemoved(ev.Torrent)
	case store.PeerCreated:
		c.view.PeerCreated(ev.Peer)
	case store.PeerUpdated:
		c.view.PeerUpdated(ev.Peer)
	case store.PeerRemoved:
		c.view.PeerRemoved(ev.Peer)
	case store.FocusChanged:
		c.view.FocusChanged(ev.Prev, ev.Next)
	}
}

func (c *Client) fail(op string, err error) error {
	c.metrics.ObserveOperation(op, err)
	c.log.Warn().Err(err).Str("op", op).Msg("Operation failed")

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	c.view.OperationFailed(op, err)
	return err
}
