// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"time"
)

const (
	BackendREST        = "rest"
	BackendQBittorrent = "qbittorrent"
)

type Config struct {
	Version string

	Backend         string        `toml:"backend" mapstructure:"backend"`
	BackendURL      string        `toml:"backendUrl" mapstructure:"backendUrl"`
	BackendUsername string        `toml:"backendUsername" mapstructure:"backendUsername"`
	BackendPassword string        `toml:"backendPassword" mapstructure:"backendPassword"`
	TLSSkipVerify   bool          `toml:"tlsSkipVerify" mapstructure:"tlsSkipVerify"`
	RequestTimeout  time.Duration `toml:"requestTimeout" mapstructure:"requestTimeout"`
	RequestRetries  int           `toml:"requestRetries" mapstructure:"requestRetries"`

	TorrentPollInterval time.Duration `toml:"torrentPollInterval" mapstructure:"torrentPollInterval"`
	PeerPollInterval    time.Duration `toml:"peerPollInterval" mapstructure:"peerPollInterval"`
	Filter              string        `toml:"filter" mapstructure:"filter"`

	Host    string `toml:"host" mapstructure:"host"`
	Port    int    `toml:"port" mapstructure:"port"`
	BaseURL string `toml:"baseUrl" mapstructure:"baseUrl"`

	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`

	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost    string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort    int    `toml:"metricsPort" mapstructure:"metricsPort"`
}
