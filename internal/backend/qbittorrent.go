// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torrentdash/internal/models"
	"github.com/autobrr/torrentdash/internal/qbittorrent"
)

// QBittorrentClient implements Fetcher on top of a qBittorrent Web UI.
type QBittorrentClient struct {
	client *qbittorrent.Client
}

// NewQBittorrentClient logs in to the instance described by cfg.
func NewQBittorrentClient(ctx context.Context, cfg qbittorrent.Config) (*QBittorrentClient, error) {
	client, err := qbittorrent.NewClient(ctx, cfg)
	if err != nil {
		return nil, transportError("connect", 0, err)
	}
	return &QBittorrentClient{client: client}, nil
}

func (q *QBittorrentClient) ListTorrents(ctx context.Context) ([]models.TorrentRecord, error) {
	if err := q.client.HealthCheck(ctx); err != nil {
		return nil, transportError("list torrents", 0, err)
	}

	torrents, err := q.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{})
	if err != nil {
		q.client.UpdateHealth(false)
		return nil, transportError("list torrents", 0, errors.Wrap(err, "failed to get torrents"))
	}

	records := make([]models.TorrentRecord, 0, len(torrents))
	for _, t := range torrents {
		records = append(records, torrentRecordFromQbt(t))
	}
	return records, nil
}

func (q *QBittorrentClient) ListPeers(ctx context.Context, infoHash string) ([]models.PeerRecord, error) {
	if err := q.client.HealthCheck(ctx); err != nil {
		return nil, transportError("list peers", 0, err)
	}

	peerSync := q.client.GetOrCreatePeerSyncManager(infoHash)
	if err := peerSync.Sync(ctx); err != nil {
		q.client.DropPeerSyncManager(infoHash)
		return nil, transportError("list peers", 0, errors.Wrap(err, "failed to sync torrent peers"))
	}

	resp := peerSync.GetPeers()
	if resp == nil {
		return nil, nil
	}

	records := make([]models.PeerRecord, 0, len(resp.Peers))
	for key, p := range resp.Peers {
		records = append(records, peerRecordFromQbt(key, p))
	}
	// map iteration order is random; keep snapshots deterministic
	slices.SortFunc(records, func(a, b models.PeerRecord) int {
		return cmp.Or(cmp.Compare(a.IP, b.IP), cmp.Compare(a.Port, b.Port))
	})
	return records, nil
}

func (q *QBittorrentClient) CreateTorrent(ctx context.Context, file []byte) error {
	meta, err := ParseTorrentFile(file)
	if err != nil {
		return err
	}

	exists, err := q.exists(ctx, meta.InfoHash)
	if err != nil {
		return transportError("create torrent", 0, err)
	}
	if exists {
		return conflictError("create torrent", http.StatusConflict, "torrent already exists: "+meta.InfoHash)
	}

	if err := q.client.AddTorrentFromMemoryCtx(ctx, file, map[string]string{}); err != nil {
		return transportError("create torrent", 0, errors.Wrap(err, "failed to add torrent"))
	}

	log.Debug().Str("hash", meta.InfoHash).Str("name", meta.Name).Msg("Submitted torrent to qBittorrent")
	return nil
}

func (q *QBittorrentClient) DestroyTorrent(ctx context.Context, infoHash string) error {
	exists, err := q.exists(ctx, infoHash)
	if err != nil {
		return transportError("destroy torrent", 0, err)
	}
	if !exists {
		return conflictError("destroy torrent", http.StatusNotFound, "torrent not found: "+infoHash)
	}

	if err := q.client.DeleteTorrentsCtx(ctx, []string{infoHash}, false); err != nil {
		return transportError("destroy torrent", 0, errors.Wrap(err, "failed to delete torrent"))
	}

	q.client.DropPeerSyncManager(infoHash)
	return nil
}

func (q *QBittorrentClient) exists(ctx context.Context, infoHash string) (bool, error) {
	torrents, err := q.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{infoHash}})
	if err != nil {
		return false, errors.Wrap(err, "failed to look up torrent")
	}
	for _, t := range torrents {
		if models.NormalizeHash(t.Hash) == models.NormalizeHash(infoHash) {
			return true, nil
		}
	}
	return false, nil
}

func torrentRecordFromQbt(t qbt.Torrent) models.TorrentRecord {
	ratio := float64(t.Ratio)
	if ratio < 0 {
		ratio = 0
	}
	return models.TorrentRecord{
		InfoHash:      t.Hash,
		State:         string(t.State),
		Name:          t.Name,
		Size:          int64(t.Size),
		Completed:     float64(t.Progress),
		DownloadSpeed: float64(t.DlSpeed),
		UploadSpeed:   float64(t.UpSpeed),
		Uploaded:      int64(t.Uploaded),
		Downloaded:    int64(t.Downloaded),
		Ratio:         ratio,
	}
}

// peerRecordFromQbt falls back to the "ip:port" map key when the incremental
// response omitted the address fields.
func peerRecordFromQbt(key string, p qbt.TorrentPeer) models.PeerRecord {
	ip, port := p.IP, int(p.Port)
	if ip == "" || port == 0 {
		if idx := strings.LastIndex(key, ":"); idx > 0 {
			if ip == "" {
				ip = strings.Trim(key[:idx], "[]")
			}
			if port == 0 {
				port, _ = strconv.Atoi(key[idx+1:])
			}
		}
	}

	return models.PeerRecord{
		IP:            ip,
		Port:          port,
		Client:        p.Client,
		Completed:     float64(p.Progress),
		Uploaded:      int64(p.Uploaded),
		Downloaded:    int64(p.Downloaded),
		UploadSpeed:   float64(p.UpSpeed),
		DownloadSpeed: float64(p.DownSpeed),
	}
}
