// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"bytes"
	"fmt"

	"github.com/anacrolix/torrent/metainfo"
)

// TorrentFile is the part of a .torrent the dashboard cares about before
// handing the raw bytes to the backend.
type TorrentFile struct {
	InfoHash string
	Name     string
	Size     int64
}

// ParseTorrentFile validates data as bencoded metainfo. Invalid input is
// reported as a ConflictError since the backend would reject it anyway.
func ParseTorrentFile(data []byte) (TorrentFile, error) {
	if len(data) == 0 {
		return TorrentFile{}, conflictError("parse torrent", 0, "empty torrent file")
	}

	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return TorrentFile{}, conflictError("parse torrent", 0, fmt.Sprintf("failed to parse torrent metainfo: %v", err))
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return TorrentFile{}, conflictError("parse torrent", 0, fmt.Sprintf("failed to parse torrent info: %v", err))
	}

	return TorrentFile{
		InfoHash: mi.HashInfoBytes().HexString(),
		Name:     info.Name,
		Size:     info.TotalLength(),
	}, nil
}
