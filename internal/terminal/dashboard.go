// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package terminal renders the dashboard to a terminal. Lifecycle
// notifications only mark the screen dirty; a single render loop redraws
// from client snapshots.
package terminal

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/torrentdash/internal/filter"
	"github.com/autobrr/torrentdash/internal/models"
)

const (
	clearScreen = "\033[H\033[2J"

	DefaultMinRedraw = 250 * time.Millisecond
)

// Source provides the snapshots the dashboard draws.
type Source interface {
	Torrents() []models.Torrent
	Peers() []models.Peer
	Focused() (models.Torrent, bool)
}

type Options struct {
	Version string
	// Clear emits an ANSI clear before each frame. Set it when out is a TTY.
	Clear bool
	// MinRedraw bounds the redraw rate under bursts of notifications.
	MinRedraw time.Duration
}

type Dashboard struct {
	source Source
	out    io.Writer
	opts   Options

	dirty chan struct{}

	mu      sync.Mutex
	filter  *filter.Filter
	lastErr string
	frames  int
}

func New(source Source, out io.Writer, opts Options) *Dashboard {
	if opts.MinRedraw <= 0 {
		opts.MinRedraw = DefaultMinRedraw
	}
	return &Dashboard{
		source: source,
		out:    out,
		opts:   opts,
		dirty:  make(chan struct{}, 1),
	}
}

// SetSource attaches the client once it exists, since the client is built
// with the dashboard as its view.
func (d *Dashboard) SetSource(source Source) {
	d.mu.Lock()
	d.source = source
	d.mu.Unlock()
	d.markDirty()
}

func (d *Dashboard) SetFilter(f *filter.Filter) {
	d.mu.Lock()
	d.filter = f
	d.mu.Unlock()
	d.markDirty()
}

func (d *Dashboard) markDirty() {
	select {
	case d.dirty <- struct{}{}:
	default:
	}
}

func (d *Dashboard) TorrentCreated(models.Torrent) { d.markDirty() }
func (d *Dashboard) TorrentUpdated(models.Torrent) { d.markDirty() }
func (d *Dashboard) TorrentRemoved(models.Torrent) { d.markDirty() }
func (d *Dashboard) PeerCreated(models.Peer)       { d.markDirty() }
func (d *Dashboard) PeerUpdated(models.Peer)       { d.markDirty() }
func (d *Dashboard) PeerRemoved(models.Peer)       { d.markDirty() }

func (d *Dashboard) FocusChanged(_, _ *models.Torrent) { d.markDirty() }

func (d *Dashboard) OperationFailed(op string, err error) {
	d.mu.Lock()
	d.lastErr = fmt.Sprintf("%s: %v", op, err)
	d.mu.Unlock()
	d.markDirty()
}

// Frames reports how many frames were drawn.
func (d *Dashboard) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Run draws one frame immediately and then one per dirty mark, at most once
// per MinRedraw, until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	if err := d.Draw(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.dirty:
		}

		if err := d.Draw(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.opts.MinRedraw):
		}
	}
}

// Draw writes a single frame.
func (d *Dashboard) Draw() error {
	frame := d.Render()
	if d.opts.Clear {
		frame = clearScreen + frame
	}
	if _, err := io.WriteString(d.out, frame); err != nil {
		return fmt.Errorf("draw dashboard: %w", err)
	}

	d.mu.Lock()
	d.frames++
	d.mu.Unlock()
	return nil
}

// Render builds a frame without writing it.
func (d *Dashboard) Render() string {
	d.mu.Lock()
	source, f, lastErr := d.source, d.filter, d.lastErr
	d.mu.Unlock()

	if source == nil {
		return "waiting for backend...\n"
	}

	all := source.Torrents()
	shown, err := f.Apply(all)
	if err != nil {
		log.Debug().Err(err).Str("expr", f.Source()).Msg("Filter evaluation failed")
	}
	focused, hasFocus := source.Focused()

	var b strings.Builder
	fmt.Fprintf(&b, "torrentdash %s  %d torrents", d.opts.Version, len(all))
	if f != nil {
		fmt.Fprintf(&b, " (%d shown, filter: %s)", len(shown), f.Source())
	}
	b.WriteString("\n")
	b.WriteString(RenderTorrents(shown, focused.InfoHash))
	b.WriteString("\n")

	if hasFocus {
		peers := source.Peers()
		fmt.Fprintf(&b, "\nPeers of %s (%d)\n", focused.Name, len(peers))
		b.WriteString(RenderPeers(peers))
		b.WriteString("\n")
	}

	if lastErr != "" {
		fmt.Fprintf(&b, "\nLast error: %s\n", lastErr)
	}
	return b.String()
}
