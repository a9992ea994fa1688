// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package store keeps the local torrent collection, the focused torrent and
// that torrent's peers in sync with backend snapshots.
package store

import (
	"github.com/autobrr/torrentdash/internal/models"
	"github.com/autobrr/torrentdash/internal/reconcile"
)

var torrentAdapter = reconcile.Adapter[string, *models.Torrent, models.TorrentRecord]{
	EntityKey: models.TorrentKey,
	RecordKey: models.TorrentRecordKey,
	New:       models.NewTorrent,
	Update:    (*models.Torrent).Apply,
}

// TorrentStore is the root collection. It is not safe for concurrent use;
// callers serialise access.
//
// Invariants: no two torrents share an info hash, focus is either empty or the
// hash of a held torrent, and peers is non-nil exactly when focus is set.
type TorrentStore struct {
	torrents []*models.Torrent
	focus    string
	peers    *PeerStore
}

func NewTorrentStore() *TorrentStore {
	return &TorrentStore{}
}

// ApplySnapshot reconciles the collection with records. A removed torrent that
// was focused first loses its peers and the focus, then is reported removed.
func (s *TorrentStore) ApplySnapshot(records []models.TorrentRecord) []Event {
	result, changes := reconcile.Reconcile(s.torrents, records, torrentAdapter)

	events := make([]Event, 0, len(changes))
	for _, change := range changes {
		switch change.Kind {
		case reconcile.Removed:
			events = append(events, s.cascade(change.Entity)...)
			events = append(events, torrentEvent(TorrentRemoved, change.Entity, false))
		case reconcile.Created:
			events = append(events, torrentEvent(TorrentCreated, change.Entity, false))
		case reconcile.Updated:
			events = append(events, torrentEvent(TorrentUpdated, change.Entity, change.Changed))
		}
	}

	s.torrents = result
	return events
}

// AddTorrent inserts a single torrent. It is a no-op when the identity is
// already present.
func (s *TorrentStore) AddTorrent(record models.TorrentRecord) ([]Event, bool) {
	if s.index(models.TorrentRecordKey(record)) >= 0 {
		return nil, false
	}
	t := models.NewTorrent(record)
	s.torrents = append(s.torrents, t)
	return []Event{torrentEvent(TorrentCreated, t, false)}, true
}

// Remove drops the torrent with the given hash using the same cascade as a
// snapshot removal. Unknown hashes produce no events.
func (s *TorrentStore) Remove(hash string) []Event {
	idx := s.index(models.NormalizeHash(hash))
	if idx < 0 {
		return nil
	}

	t := s.torrents[idx]
	events := s.cascade(t)
	s.torrents = append(s.torrents[:idx:idx], s.torrents[idx+1:]...)
	return append(events, torrentEvent(TorrentRemoved, t, false))
}

// SetFocus moves the focus to hash. An empty hash clears it. Focusing the
// already focused torrent does nothing.
func (s *TorrentStore) SetFocus(hash string) ([]Event, error) {
	hash = models.NormalizeHash(hash)
	if hash == s.focus {
		return nil, nil
	}

	var next *models.Torrent
	if hash != "" {
		idx := s.index(hash)
		if idx < 0 {
			return nil, ErrTorrentNotFound
		}
		next = s.torrents[idx]
	}

	prev := s.focused()
	var events []Event
	if s.peers != nil {
		events = s.peers.Clear()
	}

	s.focus = hash
	s.peers = nil
	if next != nil {
		s.peers = NewPeerStore(hash)
	}

	return append(events, focusEvent(prev, next)), nil
}

// Focused returns a copy of the focused torrent.
func (s *TorrentStore) Focused() (models.Torrent, bool) {
	t := s.focused()
	if t == nil {
		return models.Torrent{}, false
	}
	return *t, true
}

func (s *TorrentStore) FocusedHash() string {
	return s.focus
}

// ApplyPeers reconciles the focused torrent's peers. Snapshots fetched for any
// other torrent are stale and rejected with ErrStalePeers without mutation.
func (s *TorrentStore) ApplyPeers(hash string, records []models.PeerRecord) ([]Event, error) {
	hash = models.NormalizeHash(hash)
	if s.peers == nil || hash == "" || hash != s.peers.Owner() {
		return nil, ErrStalePeers
	}
	return s.peers.ApplySnapshot(records), nil
}

// AddPeer inserts a peer for the focused torrent when hash is still focused.
func (s *TorrentStore) AddPeer(hash string, record models.PeerRecord) ([]Event, error) {
	hash = models.NormalizeHash(hash)
	if s.peers == nil || hash != s.peers.Owner() {
		return nil, ErrStalePeers
	}
	events, _ := s.peers.AddPeer(record)
	return events, nil
}

// MarkSelected sets the transient selection flag and reports whether it changed.
func (s *TorrentStore) MarkSelected(hash string, selected bool) (bool, error) {
	idx := s.index(models.NormalizeHash(hash))
	if idx < 0 {
		return false, ErrTorrentNotFound
	}
	t := s.torrents[idx]
	if t.Selected == selected {
		return false, nil
	}
	t.Selected = selected
	return true, nil
}

func (s *TorrentStore) IsSelected(hash string) bool {
	idx := s.index(models.NormalizeHash(hash))
	return idx >= 0 && s.torrents[idx].Selected
}

// SelectAll sets the selection flag on every torrent and returns copies of the
// torrents whose flag actually changed.
func (s *TorrentStore) SelectAll(selected bool) []models.Torrent {
	var changed []models.Torrent
	for _, t := range s.torrents {
		if t.Selected != selected {
			t.Selected = selected
			changed = append(changed, *t)
		}
	}
	return changed
}

// SelectedHashes lists selected torrents in collection order.
func (s *TorrentStore) SelectedHashes() []string {
	var hashes []string
	for _, t := range s.torrents {
		if t.Selected {
			hashes = append(hashes, t.InfoHash)
		}
	}
	return hashes
}

func (s *TorrentStore) Get(hash string) (models.Torrent, bool) {
	idx := s.index(models.NormalizeHash(hash))
	if idx < 0 {
		return models.Torrent{}, false
	}
	return *s.torrents[idx], true
}

func (s *TorrentStore) Torrents() []models.Torrent {
	out := make([]models.Torrent, len(s.torrents))
	for i, t := range s.torrents {
		out[i] = *t
	}
	return out
}

// Peers returns the focused torrent's peers, or nil without focus.
func (s *TorrentStore) Peers() []models.Peer {
	if s.peers == nil {
		return nil
	}
	return s.peers.Peers()
}

func (s *TorrentStore) Len() int {
	return len(s.torrents)
}

func (s *TorrentStore) PeerCount() int {
	if s.peers == nil {
		return 0
	}
	return s.peers.Len()
}

// cascade tears down the peers and focus owned by t. It must run before t's
// own removal event is emitted.
func (s *TorrentStore) cascade(t *models.Torrent) []Event {
	if s.focus == "" || t.InfoHash != s.focus {
		return nil
	}

	var events []Event
	if s.peers != nil {
		events = s.peers.Clear()
	}
	s.focus = ""
	s.peers = nil
	return append(events, focusEvent(t, nil))
}

func (s *TorrentStore) focused() *models.Torrent {
	if s.focus == "" {
		return nil
	}
	idx := s.index(s.focus)
	if idx < 0 {
		return nil
	}
	return s.torrents[idx]
}

func (s *TorrentStore) index(hash string) int {
	return reconcile.IndexOf(s.torrents, hash, models.TorrentKey)
}
