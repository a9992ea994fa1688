// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"testing"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/stretchr/testify/assert"
)

func newOfflineClient() *Client {
	return &Client{
		Client:          qbt.NewClient(qbt.Config{Host: "http://127.0.0.1:1"}),
		isHealthy:       true,
		peerSyncManager: make(map[string]*qbt.PeerSyncManager),
	}
}

func TestPeerSyncManagerFollowsOneTorrent(t *testing.T) {
	c := newOfflineClient()

	first := c.GetOrCreatePeerSyncManager("aaaa")
	assert.Same(t, first, c.GetOrCreatePeerSyncManager("aaaa"))

	c.GetOrCreatePeerSyncManager("bbbb")
	assert.Len(t, c.peerSyncManager, 1)
	assert.NotSame(t, first, c.GetOrCreatePeerSyncManager("aaaa"))
}

func TestDropPeerSyncManager(t *testing.T) {
	c := newOfflineClient()

	first := c.GetOrCreatePeerSyncManager("aaaa")
	c.DropPeerSyncManager("aaaa")
	assert.Empty(t, c.peerSyncManager)
	assert.NotSame(t, first, c.GetOrCreatePeerSyncManager("aaaa"))

	// unknown hashes are ignored
	c.DropPeerSyncManager("ffff")
	assert.Len(t, c.peerSyncManager, 1)
}

func TestUpdateHealth(t *testing.T) {
	c := newOfflineClient()

	c.UpdateHealth(false)
	assert.False(t, c.IsHealthy())

	c.UpdateHealth(true)
	assert.True(t, c.IsHealthy())
	assert.False(t, c.GetLastHealthCheck().IsZero())
}
