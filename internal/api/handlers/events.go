// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/autobrr/torrentdash/internal/models"
	"github.com/autobrr/torrentdash/internal/store"
)

const (
	DefaultEventLogSize = 1024

	kindOperationFailed = "operation_failed"
)

// LoggedEvent is one entry of the event log as served to API clients.
type LoggedEvent struct {
	Seq     uint64          `json:"seq"`
	Time    time.Time       `json:"time"`
	Kind    string          `json:"kind"`
	Torrent *models.Torrent `json:"torrent,omitempty"`
	Peer    *models.Peer    `json:"peer,omitempty"`
	Prev    *models.Torrent `json:"prev,omitempty"`
	Next    *models.Torrent `json:"next,omitempty"`
	Op      string          `json:"op,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type EventsResponse struct {
	Events []LoggedEvent `json:"events"`
	// Last is the sequence number to pass as ?since= on the next request.
	Last uint64 `json:"last"`
	// Truncated is set when events after since were already evicted.
	Truncated bool `json:"truncated"`
}

// EventLog is a client.View that keeps the most recent notifications in a
// bounded ring with monotonically increasing sequence numbers.
type EventLog struct {
	mu    sync.Mutex
	ring  []LoggedEvent
	start int
	size  int
	seq   uint64
	now   func() time.Time
}

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogSize
	}
	return &EventLog{
		ring: make([]LoggedEvent, capacity),
		now:  time.Now,
	}
}

func (l *EventLog) append(ev LoggedEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	ev.Seq = l.seq
	ev.Time = l.now()

	if l.size < len(l.ring) {
		l.ring[(l.start+l.size)%len(l.ring)] = ev
		l.size++
		return
	}
	l.ring[l.start] = ev
	l.start = (l.start + 1) % len(l.ring)
}

// Since returns the retained events with a sequence number above since.
func (l *EventLog) Since(since uint64) EventsResponse {
	l.mu.Lock()
	defer l.mu.Unlock()

	resp := EventsResponse{Events: []LoggedEvent{}, Last: l.seq}
	if l.size == 0 {
		return resp
	}

	oldest := l.ring[l.start].Seq
	resp.Truncated = since+1 < oldest

	for i := 0; i < l.size; i++ {
		ev := l.ring[(l.start+i)%len(l.ring)]
		if ev.Seq > since {
			resp.Events = append(resp.Events, ev)
		}
	}
	return resp
}

func (l *EventLog) torrent(kind store.EventKind, t models.Torrent) {
	l.append(LoggedEvent{Kind: kind.String(), Torrent: &t})
}

func (l *EventLog) peer(kind store.EventKind, p models.Peer) {
	l.append(LoggedEvent{Kind: kind.String(), Peer: &p})
}

func (l *EventLog) TorrentCreated(t models.Torrent) { l.torrent(store.TorrentCreated, t) }
func (l *EventLog) TorrentUpdated(t models.Torrent) { l.torrent(store.TorrentUpdated, t) }
func (l *EventLog) TorrentRemoved(t models.Torrent) { l.torrent(store.TorrentRemoved, t) }
func (l *EventLog) PeerCreated(p models.Peer)       { l.peer(store.PeerCreated, p) }
func (l *EventLog) PeerUpdated(p models.Peer)       { l.peer(store.PeerUpdated, p) }
func (l *EventLog) PeerRemoved(p models.Peer)       { l.peer(store.PeerRemoved, p) }

func (l *EventLog) FocusChanged(prev, next *models.Torrent) {
	l.append(LoggedEvent{Kind: store.FocusChanged.String(), Prev: prev, Next: next})
}

func (l *EventLog) OperationFailed(op string, err error) {
	l.append(LoggedEvent{Kind: kindOperationFailed, Op: op, Error: err.Error()})
}

// List serves GET /events?since=N.
func (l *EventLog) List(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			RespondError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = parsed
	}

	RespondJSON(w, http.StatusOK, l.Since(since))
}
