// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package backend talks to the torrent-management backend. Every
// implementation returns parsed records and classifies failures as either
// transport or conflict errors.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/autobrr/torrentdash/internal/models"
)

// Fetcher is the boundary between the dashboard core and a backend.
type Fetcher interface {
	ListTorrents(ctx context.Context) ([]models.TorrentRecord, error)
	ListPeers(ctx context.Context, infoHash string) ([]models.PeerRecord, error)
	CreateTorrent(ctx context.Context, file []byte) error
	DestroyTorrent(ctx context.Context, infoHash string) error
}

var (
	ErrTransport = errors.New("backend transport failure")
	ErrConflict  = errors.New("backend rejected request")
)

// TransportError covers network failures, 5xx responses and undecodable bodies.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: backend returned status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ConflictError means the backend understood the request and refused it, for
// example destroying a torrent that is already gone.
type ConflictError struct {
	Op         string
	StatusCode int
	Reason     string
}

func (e *ConflictError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: rejected with status %d: %s", e.Op, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s: rejected: %s", e.Op, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func transportError(op string, status int, err error) error {
	return &TransportError{Op: op, StatusCode: status, Err: err}
}

func conflictError(op string, status int, reason string) error {
	return &ConflictError{Op: op, StatusCode: status, Reason: reason}
}
