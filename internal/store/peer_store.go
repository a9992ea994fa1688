// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"github.com/autobrr/torrentdash/internal/models"
	"github.com/autobrr/torrentdash/internal/reconcile"
)

var peerAdapter = reconcile.Adapter[models.PeerKey, *models.Peer, models.PeerRecord]{
	EntityKey: models.PeerKeyOf,
	RecordKey: models.PeerRecordKey,
	New:       models.NewPeer,
	Update:    (*models.Peer).Apply,
}

// PeerStore holds the peers of exactly one torrent.
type PeerStore struct {
	owner string
	peers []*models.Peer
}

func NewPeerStore(owner string) *PeerStore {
	return &PeerStore{owner: models.NormalizeHash(owner)}
}

// Owner returns the info hash of the torrent these peers belong to.
func (s *PeerStore) Owner() string {
	return s.owner
}

func (s *PeerStore) ApplySnapshot(records []models.PeerRecord) []Event {
	result, changes := reconcile.Reconcile(s.peers, records, peerAdapter)
	s.peers = result

	events := make([]Event, 0, len(changes))
	for _, change := range changes {
		switch change.Kind {
		case reconcile.Created:
			events = append(events, peerEvent(PeerCreated, change.Entity, false))
		case reconcile.Updated:
			events = append(events, peerEvent(PeerUpdated, change.Entity, change.Changed))
		case reconcile.Removed:
			events = append(events, peerEvent(PeerRemoved, change.Entity, false))
		}
	}
	return events
}

// AddPeer inserts a single peer unless one with the same identity is already
// held, in which case nothing happens.
func (s *PeerStore) AddPeer(record models.PeerRecord) ([]Event, bool) {
	key := models.PeerRecordKey(record)
	if reconcile.Contains(s.peers, key, models.PeerKeyOf) {
		return nil, false
	}
	peer := models.NewPeer(record)
	s.peers = append(s.peers, peer)
	return []Event{peerEvent(PeerCreated, peer, false)}, true
}

// Clear empties the store, emitting PeerRemoved for every peer in current order.
func (s *PeerStore) Clear() []Event {
	if len(s.peers) == 0 {
		return nil
	}
	events := make([]Event, 0, len(s.peers))
	for _, p := range s.peers {
		events = append(events, peerEvent(PeerRemoved, p, false))
	}
	s.peers = nil
	return events
}

func (s *PeerStore) Peers() []models.Peer {
	out := make([]models.Peer, len(s.peers))
	for i, p := range s.peers {
		out[i] = *p
	}
	return out
}

func (s *PeerStore) Len() int {
	return len(s.peers)
}
