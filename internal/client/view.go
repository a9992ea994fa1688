// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package client

import (
	"github.com/autobrr/torrentdash/internal/models"
)

// View receives lifecycle notifications in the order they were produced.
// Callbacks run one at a time outside the client's state lock: they may read
// client snapshots but must not call mutating client methods synchronously.
type View interface {
	TorrentCreated(t models.Torrent)
	TorrentUpdated(t models.Torrent)
	TorrentRemoved(t models.Torrent)
	PeerCreated(p models.Peer)
	PeerUpdated(p models.Peer)
	PeerRemoved(p models.Peer)
	// FocusChanged passes nil for "no focus".
	FocusChanged(prev, next *models.Torrent)
	OperationFailed(op string, err error)
}

// NopView ignores every notification. Embed it to implement only some methods.
type NopView struct{}

func (NopView) TorrentCreated(models.Torrent) {}
func (NopView) TorrentUpdated(models.Torrent) {}
func (NopView) TorrentRemoved(models.Torrent) {}
func (NopView) PeerCreated(models.Peer) {}
func (NopView) PeerUpdated(models.Peer) {}
func (NopView) PeerRemoved(models.Peer) {}
func (NopView) FocusChanged(_, _ *models.Torrent) {}
func (NopView) OperationFailed(op string, err error) {}

// MultiView fans notifications out to several views in order.
type MultiView []View

func (m MultiView) TorrentCreated(t models.Torrent) {
	for _, v := range m {
		v.TorrentCreated(t)
	}
}

func (m MultiView) TorrentUpdated(t models.Torrent) {
	for _, v := range m {
		v.TorrentUpdated(t)
	}
}

func (m MultiView) TorrentRemoved(t models.Torrent) {
	for _, v := range m {
		v.TorrentRemoved(t)
	}
}

func (m MultiView) PeerCreated(p models.Peer) {
	for _, v := range m {
		v.PeerCreated(p)
	}
}

func (m MultiView) PeerUpdated(p models.Peer) {
	for _, v := range m {
		v.PeerUpdated(p)
	}
}

func (m MultiView) PeerRemoved(p models.Peer) {
	for _, v := range m {
		v.PeerRemoved(p)
	}
}

func (m MultiView) FocusChanged(prev, next *models.Torrent) {
	for _, v := range m {
		v.FocusChanged(prev, next)
	}
}

func (m MultiView) OperationFailed(op string, err error) {
	for _, v := range m {
		v.OperationFailed(op, err)
	}
}
