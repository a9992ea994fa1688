// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torrentdash/internal/buildinfo"
	"github.com/autobrr/torrentdash/internal/models"
)

const maxResponseBytes int64 = 8 << 20

// RESTConfig configures the plain JSON-over-HTTP backend.
type RESTConfig struct {
	BaseURL       string
	Username      string
	Password      string
	Timeout       time.Duration
	TLSSkipVerify bool
	// Retries is the number of extra attempts for idempotent GETs that fail
	// with a transport error.
	Retries    int
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// RESTClient implements Fetcher against the dashboard's native REST backend.
type RESTClient struct {
	baseURL    string
	username   string
	password   string
	retries    int
	retryDelay time.Duration
	httpClient *http.Client
}

func NewRESTClient(cfg RESTConfig) *RESTClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.TLSSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
		}
		httpClient = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}

	return &RESTClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		httpClient: httpClient,
	}
}

func (c *RESTClient) ListTorrents(ctx context.Context) ([]models.TorrentRecord, error) {
	var records []models.TorrentRecord
	if err := c.getJSON(ctx, "list torrents", "/torrents/", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *RESTClient) ListPeers(ctx context.Context, infoHash string) ([]models.PeerRecord, error) {
	query := url.Values{}
	query.Set("info_hash", infoHash)

	var records []models.PeerRecord
	if err := c.getJSON(ctx, "list peers", "/torrents/peers/", query, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *RESTClient) CreateTorrent(ctx context.Context, file []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("torrent", "upload.torrent")
	if err != nil {
		return fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := part.Write(file); err != nil {
		return fmt.Errorf("failed to write torrent data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return c.post(ctx, "create torrent", "/torrents/create", writer.FormDataContentType(), &body)
}

func (c *RESTClient) DestroyTorrent(ctx context.Context, infoHash string) error {
	form := url.Values{}
	form.Set("info_hash", infoHash)

	return c.post(ctx, "destroy torrent", "/torrents/destroy", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (c *RESTClient) getJSON(ctx context.Context, op, path string, query url.Values, dst any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return retry.Do(
		func() error {
			return c.doGet(ctx, op, endpoint, dst)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.retries+1)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsTransport),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Str("op", op).Uint("attempt", n+1).Msg("Retrying backend request")
		}),
	)
}

func (c *RESTClient) doGet(ctx context.Context, op, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return transportError(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(op, resp)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(dst); err != nil {
		return transportError(op, 0, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *RESTClient) post(ctx context.Context, op, path, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(req)
	if err != nil {
		return transportError(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	return classifyStatus(op, resp)
}

func (c *RESTClient) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return c.httpClient.Do(req)
}

// classifyStatus maps rejections of a well-formed request to ConflictError
// and everything else to TransportError.
func classifyStatus(op string, resp *http.Response) error {
	reason := readReason(resp.Body)

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusBadRequest:
		return conflictError(op, resp.StatusCode, reason)
	default:
		return transportError(op, resp.StatusCode, errors.New(reason))
	}
}

func readReason(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4<<10))
	reason := strings.TrimSpace(string(raw))
	if reason == "" {
		return "no response body"
	}
	return reason
}
