// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbittorrent wraps a go-qbittorrent connection with a Web API
// version gate, health tracking and a single per-torrent peer sync manager.
package qbittorrent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const minHealthCheckInterval = 20 * time.Second

// torrents/delete with deleteFiles and sync/torrentPeers both exist from 2.0
var minWebAPIVersion = semver.MustParse("2.0.0")

// Config describes how to reach a qBittorrent Web UI.
type Config struct {
	Host          string
	Username      string
	Password      string
	BasicUser     string
	BasicPass     string
	TLSSkipVerify bool
	Timeout       time.Duration
}

type Client struct {
	*qbt.Client
	host            string
	webAPIVersion   string
	lastHealthCheck time.Time
	isHealthy       bool
	peerSyncManager map[string]*qbt.PeerSyncManager // keyed by torrent hash
	mu              sync.RWMutex
	healthMu        sync.RWMutex
}

// NewClient logs in and reads the Web API version. Hosts older than the
// minimum supported version are refused.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	qbtCfg := qbt.Config{
		Host:          cfg.Host,
		Username:      cfg.Username,
		Password:      cfg.Password,
		Timeout:       int(cfg.Timeout.Seconds()),
		TLSSkipVerify: cfg.TLSSkipVerify,
	}
	if cfg.BasicUser != "" {
		qbtCfg.BasicUser = cfg.BasicUser
		qbtCfg.BasicPass = cfg.BasicPass
	}

	qbtClient := qbt.NewClient(qbtCfg)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := qbtClient.LoginCtx(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to qBittorrent instance: %w", err)
	}

	client := &Client{
		Client:          qbtClient,
		host:            cfg.Host,
		lastHealthCheck: time.Now(),
		isHealthy:       true,
		peerSyncManager: make(map[string]*qbt.PeerSyncManager),
	}

	if err := client.RefreshCapabilities(ctx); err != nil {
		return nil, err
	}

	log.Debug().
		Str("host", cfg.Host).
		Str("webAPIVersion", client.GetWebAPIVersion()).
		Bool("tlsSkipVerify", cfg.TLSSkipVerify).
		Msg("qBittorrent client created successfully")

	return client, nil
}

// RefreshCapabilities fetches the WebAPI version and rejects hosts below the
// supported minimum.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	version, err := c.Client.GetWebAPIVersionCtx(ctx)
	if err != nil {
		return fmt.Errorf("failed to read web API version: %w", err)
	}

	version = strings.TrimSpace(version)
	if version == "" {
		return fmt.Errorf("web API version is empty")
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("failed to parse web API version %q: %w", version, err)
	}
	if v.LessThan(minWebAPIVersion) {
		return fmt.Errorf("web API version %s is older than the supported minimum %s", v, minWebAPIVersion)
	}

	c.mu.Lock()
	previousVersion := c.webAPIVersion
	c.webAPIVersion = version
	c.mu.Unlock()

	if previousVersion != "" && previousVersion != version {
		log.Trace().
			Str("previousWebAPIVersion", previousVersion).
			Str("webAPIVersion", version).
			Msg("Refreshed qBittorrent capabilities")
	}

	return nil
}

func (c *Client) GetWebAPIVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.webAPIVersion
}

// UpdateHealth records the outcome of the latest request.
func (c *Client) UpdateHealth(healthy bool) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if c.isHealthy != healthy {
		log.Info().Str("host", c.host).Bool("healthy", healthy).Msg("qBittorrent health changed")
	}
	c.isHealthy = healthy
	c.lastHealthCheck = time.Now()
}

func (c *Client) IsHealthy() bool {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.isHealthy
}

func (c *Client) GetLastHealthCheck() time.Time {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.lastHealthCheck
}

// HealthCheck re-establishes the session when the client was marked
// unhealthy. Healthy clients are only rechecked every minHealthCheckInterval.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.IsHealthy() && time.Since(c.GetLastHealthCheck()) < minHealthCheckInterval {
		return nil
	}

	if !c.IsHealthy() {
		if err := c.Client.LoginCtx(ctx); err != nil {
			c.UpdateHealth(false)
			return errors.Wrap(err, "re-login failed")
		}
	}

	if err := c.RefreshCapabilities(ctx); err != nil {
		c.UpdateHealth(false)
		return errors.Wrap(err, "health check failed")
	}

	c.UpdateHealth(true)
	return nil
}

// GetOrCreatePeerSyncManager returns the peer sync manager for hash. Managers
// for any other torrent are dropped, since only one torrent's peers are
// followed at a time.
func (c *Client) GetOrCreatePeerSyncManager(hash string) *qbt.PeerSyncManager {
	c.mu.Lock()
	defer c.mu.Unlock()

	if peerSync, exists := c.peerSyncManager[hash]; exists {
		return peerSync
	}

	for other := range c.peerSyncManager {
		delete(c.peerSyncManager, other)
	}

	peerSyncOpts := qbt.DefaultPeerSyncOptions()
	peerSyncOpts.AutoSync = false
	peerSync := c.Client.NewPeerSyncManager(hash, peerSyncOpts)
	c.peerSyncManager[hash] = peerSync
	return peerSync
}

// DropPeerSyncManager forgets the incremental peer state for hash.
func (c *Client) DropPeerSyncManager(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.peerSyncManager, hash)
}
