// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"strings"
)

// TorrentRecord is a single entry of the backend's torrent list.
type TorrentRecord struct {
	InfoHash      string  `json:"info_hash"`
	State         string  `json:"state"`
	Name          string  `json:"name"`
	Size          int64   `json:"size"`
	Completed     float64 `json:"completed"`
	DownloadSpeed float64 `json:"download_speed"`
	UploadSpeed   float64 `json:"upload_speed"`
	Uploaded      int64   `json:"uploaded"`
	Downloaded    int64   `json:"downloaded"`
	Ratio         float64 `json:"ratio"`
}

// TorrentAttributes names the fields that Torrent.Apply copies from a record.
// Anything else in a record is ignored.
var TorrentAttributes = []string{
	"size",
	"completed",
	"download_speed",
	"upload_speed",
	"uploaded",
	"ratio",
	"state",
	"name",
}

// Torrent is the client-side view of a torrent tracked by the backend.
type Torrent struct {
	InfoHash string `json:"info_hash"`

	State         string  `json:"state"`
	Name          string  `json:"name"`
	Size          int64   `json:"size"`
	Completed     float64 `json:"completed"`
	DownloadSpeed float64 `json:"download_speed"`
	UploadSpeed   float64 `json:"upload_speed"`
	Uploaded      int64   `json:"uploaded"`
	Ratio         float64 `json:"ratio"`

	// Selected is client-only state and survives every snapshot.
	Selected bool `json:"selected"`
}

// NewTorrent builds a torrent entity from its first observed record.
func NewTorrent(r TorrentRecord) *Torrent {
	t := &Torrent{InfoHash: NormalizeHash(r.InfoHash)}
	t.Apply(r)
	return t
}

// Apply overwrites the allow-listed attributes with the values from r and
// reports whether any of them changed. Identity and Selected are untouched.
func (t *Torrent) Apply(r TorrentRecord) bool {
	changed := t.Size != r.Size ||
		t.Completed != r.Completed ||
		t.DownloadSpeed != r.DownloadSpeed ||
		t.UploadSpeed != r.UploadSpeed ||
		t.Uploaded != r.Uploaded ||
		t.Ratio != r.Ratio ||
		t.State != r.State ||
		t.Name != r.Name

	t.Size = r.Size
	t.Completed = r.Completed
	t.DownloadSpeed = r.DownloadSpeed
	t.UploadSpeed = r.UploadSpeed
	t.Uploaded = r.Uploaded
	t.Ratio = r.Ratio
	t.State = r.State
	t.Name = r.Name

	return changed
}

// Equal compares identities only.
func (t *Torrent) Equal(other *Torrent) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.InfoHash == other.InfoHash
}

// TorrentKey returns the identity of t.
func TorrentKey(t *Torrent) string {
	return t.InfoHash
}

// TorrentRecordKey returns the identity a record would have as an entity.
func TorrentRecordKey(r TorrentRecord) string {
	return NormalizeHash(r.InfoHash)
}

// NormalizeHash canonicalises an info hash to trimmed lower-case hex.
func NormalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
