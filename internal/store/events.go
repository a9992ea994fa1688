// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"errors"

	"github.com/autobrr/torrentdash/internal/models"
)

var (
	ErrTorrentNotFound = errors.New("torrent not found")
	ErrStalePeers      = errors.New("peer snapshot is for a torrent that is no longer focused")
)

type EventKind int

const (
	TorrentCreated EventKind = iota
	TorrentUpdated
	TorrentRemoved
	PeerCreated
	PeerUpdated
	PeerRemoved
	FocusChanged
)

var eventKindNames = map[EventKind]string{
	TorrentCreated: "torrent_created",
	TorrentUpdated: "torrent_updated",
	TorrentRemoved: "torrent_removed",
	PeerCreated:    "peer_created",
	PeerUpdated:    "peer_updated",
	PeerRemoved:    "peer_removed",
	FocusChanged:   "focus_changed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is a lifecycle notification produced by a store mutation. Entities are
// copied at the moment the event was produced so later mutations never leak
// into an event that is still waiting to be dispatched.
type Event struct {
	Kind    EventKind
	Torrent models.Torrent
	Peer    models.Peer
	// Changed is set on updates when an attribute value actually differed.
	Changed bool

	// Prev and Next are only set for FocusChanged. nil means no focus.
	Prev *models.Torrent
	Next *models.Torrent
}

func torrentEvent(kind EventKind, t *models.Torrent, changed bool) Event {
	return Event{Kind: kind, Torrent: *t, Changed: changed}
}

func peerEvent(kind EventKind, p *models.Peer, changed bool) Event {
	return Event{Kind: kind, Peer: *p, Changed: changed}
}

func focusEvent(prev, next *models.Torrent) Event {
	ev := Event{Kind: FocusChanged}
	if prev != nil {
		cp := *prev
		ev.Prev = &cp
	}
	if next != nil {
		cp := *next
		ev.Next = &cp
	}
	return ev
}
