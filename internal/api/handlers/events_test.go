// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/torrentdash/internal/models"
)

func kinds(events []LoggedEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestEventLogRecordsInOrder(t *testing.T) {
	l := NewEventLog(8)
	a := models.Torrent{InfoHash: "aa"}

	l.TorrentCreated(a)
	l.FocusChanged(nil, &a)
	l.PeerCreated(models.Peer{IP: "10.0.0.1", Port: 1})
	l.PeerRemoved(models.Peer{IP: "10.0.0.1", Port: 1})
	l.FocusChanged(&a, nil)
	l.TorrentRemoved(a)
	l.OperationFailed("destroy", errors.New("refused"))

	resp := l.Since(0)
	assert.Equal(t, []string{
		"torrent_created",
		"focus_changed",
		"peer_created",
		"peer_removed",
		"focus_changed",
		"torrent_removed",
		"operation_failed",
	}, kinds(resp.Events))
	assert.Equal(t, uint64(7), resp.Last)
	assert.False(t, resp.Truncated)

	assert.Nil(t, resp.Events[1].Prev)
	require.NotNil(t, resp.Events[1].Next)
	assert.Equal(t, "aa", resp.Events[1].Next.InfoHash)
	assert.Equal(t, "refused", resp.Events[6].Error)
	assert.Equal(t, "destroy", resp.Events[6].Op)

	later := l.Since(5)
	assert.Equal(t, []string{"torrent_removed", "operation_failed"}, kinds(later.Events))
}

func TestEventLogEvictsOldest(t *testing.T) {
	l := NewEventLog(3)
	for i := 0; i < 5; i++ {
		l.TorrentUpdated(models.Torrent{InfoHash: "aa", Uploaded: int64(i)})
	}

	resp := l.Since(0)
	require.Len(t, resp.Events, 3)
	assert.Equal(t, uint64(3), resp.Events[0].Seq)
	assert.Equal(t, uint64(5), resp.Events[2].Seq)
	assert.True(t, resp.Truncated)

	resp = l.Since(2)
	assert.Len(t, resp.Events, 3)
	assert.False(t, resp.Truncated)

	resp = l.Since(5)
	assert.Empty(t, resp.Events)
	assert.Equal(t, uint64(5), resp.Last)
}

func TestEventLogCopiesTorrent(t *testing.T) {
	l := NewEventLog(0)
	tr := models.Torrent{InfoHash: "aa", Name: "before"}
	l.TorrentCreated(tr)
	tr.Name = "after"

	assert.Equal(t, "before", l.Since(0).Events[0].Torrent.Name)
}

func TestEventLogListHandler(t *testing.T) {
	l := NewEventLog(4)
	l.TorrentCreated(models.Torrent{InfoHash: "aa"})
	l.TorrentCreated(models.Torrent{InfoHash: "bb"})

	rec := do(t, http.HandlerFunc(l.List), http.MethodGet, "/events?since=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EventsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "bb", resp.Events[0].Torrent.InfoHash)
	assert.Equal(t, uint64(2), resp.Last)

	rec = do(t, http.HandlerFunc(l.List), http.MethodGet, "/events?since=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
