// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"net"
	"strconv"
)

// PeerRecord is a single entry of the backend's peer list for one torrent.
type PeerRecord struct {
	IP            string  `json:"ip"`
	Port          int     `json:"port"`
	Client        string  `json:"client"`
	Completed     float64 `json:"completed"`
	Uploaded      int64   `json:"uploaded"`
	Downloaded    int64   `json:"downloaded"`
	UploadSpeed   float64 `json:"upload_speed"`
	DownloadSpeed float64 `json:"download_speed"`
}

// PeerAttributes names the fields that Peer.Apply copies from a record.
var PeerAttributes = []string{
	"ip",
	"client",
	"completed",
	"uploaded",
	"downloaded",
	"upload_speed",
	"download_speed",
}

// PeerKey identifies a peer within a torrent's swarm.
type PeerKey struct {
	IP   string
	Port int
}

// String renders the key as "ip:port", bracketing IPv6 addresses.
func (k PeerKey) String() string {
	return net.JoinHostPort(k.IP, strconv.Itoa(k.Port))
}

// Peer is a connected peer of the focused torrent.
type Peer struct {
	Port int `json:"port"`

	IP            string  `json:"ip"`
	Client        string  `json:"client"`
	Completed     float64 `json:"completed"`
	Uploaded      int64   `json:"uploaded"`
	Downloaded    int64   `json:"downloaded"`
	UploadSpeed   float64 `json:"upload_speed"`
	DownloadSpeed float64 `json:"download_speed"`
}

// NewPeer builds a peer entity from its first observed record.
func NewPeer(r PeerRecord) *Peer {
	p := &Peer{Port: r.Port}
	p.Apply(r)
	return p
}

// Apply overwrites the allow-listed attributes with the values from r and
// reports whether any of them changed.
func (p *Peer) Apply(r PeerRecord) bool {
	changed := p.IP != r.IP ||
		p.Client != r.Client ||
		p.Completed != r.Completed ||
		p.Uploaded != r.Uploaded ||
		p.Downloaded != r.Downloaded ||
		p.UploadSpeed != r.UploadSpeed ||
		p.DownloadSpeed != r.DownloadSpeed

	p.IP = r.IP
	p.Client = r.Client
	p.Completed = r.Completed
	p.Uploaded = r.Uploaded
	p.Downloaded = r.Downloaded
	p.UploadSpeed = r.UploadSpeed
	p.DownloadSpeed = r.DownloadSpeed

	return changed
}

// Key returns the identity of p.
func (p *Peer) Key() PeerKey {
	return PeerKey{IP: p.IP, Port: p.Port}
}

// Equal compares identities only.
func (p *Peer) Equal(other *Peer) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Key() == other.Key()
}

// PeerKeyOf is Key as a plain function, for use as a reconcile key func.
func PeerKeyOf(p *Peer) PeerKey {
	return p.Key()
}

// PeerRecordKey returns the identity a record would have as an entity.
func PeerRecordKey(r PeerRecord) PeerKey {
	return PeerKey{IP: r.IP, Port: r.Port}
}
