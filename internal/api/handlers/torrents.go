// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/torrentdash/internal/filter"
	"github.com/autobrr/torrentdash/internal/models"
)

const (
	addTorrentMaxFormMemory = 32 << 20
	operationTimeout        = 60 * time.Second
)

// Dashboard is the slice of the client the HTTP API drives.
type Dashboard interface {
	Torrents() []models.Torrent
	Peers() []models.Peer
	Focused() (models.Torrent, bool)
	CreateTorrent(ctx context.Context, file []byte) error
	DestroyTorrent(ctx context.Context, hash string) error
	DestroySelected(ctx context.Context) error
	Focus(hash string) error
	Unfocus()
	MarkSelected(hash string, selected bool) error
	SelectAll(selected bool)
}

type TorrentsHandler struct {
	dashboard Dashboard
	filters   *filter.Compiler
}

func NewTorrentsHandler(dashboard Dashboard, filters *filter.Compiler) *TorrentsHandler {
	if filters == nil {
		filters = filter.NewCompiler(0)
	}
	return &TorrentsHandler{dashboard: dashboard, filters: filters}
}

type TorrentResponse struct {
	models.Torrent
	Focused bool `json:"focused"`
}

type TorrentListResponse struct {
	Torrents []TorrentResponse `json:"torrents"`
	Total    int               `json:"total"`
}

type selectRequest struct {
	Selected bool `json:"selected"`
}

type focusRequest struct {
	Hash string `json:"hash"`
}

type FocusResponse struct {
	Torrent *models.Torrent `json:"torrent"`
}

type DestroySelectedResponse struct {
	Errors []string `json:"errors,omitempty"`
}

// ListTorrents serves GET /torrents?search=&filter=.
func (h *TorrentsHandler) ListTorrents(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	expr := r.URL.Query().Get("filter")

	f, err := h.filters.Compile(expr)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	all := h.dashboard.Torrents()
	torrents, err := f.Apply(filter.Search(search, all))
	if err != nil {
		log.Warn().Err(err).Str("expr", truncateExpr(expr, 150)).Msg("Filter evaluation failed for some torrents")
	}

	focused, _ := h.dashboard.Focused()
	resp := TorrentListResponse{
		Torrents: make([]TorrentResponse, 0, len(torrents)),
		Total:    len(all),
	}
	for _, t := range torrents {
		resp.Torrents = append(resp.Torrents, TorrentResponse{
			Torrent: t,
			Focused: focused.InfoHash != "" && t.InfoHash == focused.InfoHash,
		})
	}

	RespondJSON(w, http.StatusOK, resp)
}

// AddTorrent serves POST /torrents with a multipart "torrent" file.
func (h *TorrentsHandler) AddTorrent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), operationTimeout)
	defer cancel()

	if err := r.ParseMultipartForm(addTorrentMaxFormMemory); err != nil {
		if errors.Is(err, multipart.ErrMessageTooLarge) {
			RespondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeded %d MB limit", addTorrentMaxFormMemory>>20))
			return
		}
		RespondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("torrent")
	if err != nil {
		RespondError(w, http.StatusBadRequest, "torrent file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		log.Warn().Err(err).Str("filename", header.Filename).Msg("Failed to read torrent file")
		RespondError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	if err := h.dashboard.CreateTorrent(ctx, content); err != nil {
		RespondError(w, statusForError(err, http.StatusUnprocessableEntity), err.Error())
		return
	}

	RespondJSON(w, http.StatusAccepted, nil)
}

// DeleteTorrent serves DELETE /torrents/{hash}.
func (h *TorrentsHandler) DeleteTorrent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), operationTimeout)
	defer cancel()

	hash := chi.URLParam(r, "hash")
	if err := h.dashboard.DestroyTorrent(ctx, hash); err != nil {
		RespondError(w, statusForError(err, http.StatusNotFound), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DestroySelected serves POST /torrents/destroy-selected. Partial failures
// are reported per torrent with 207.
func (h *TorrentsHandler) DestroySelected(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), operationTimeout)
	defer cancel()

	err := h.dashboard.DestroySelected(ctx)
	if err == nil {
		RespondJSON(w, http.StatusOK, DestroySelectedResponse{})
		return
	}

	var resp DestroySelectedResponse
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			resp.Errors = append(resp.Errors, e.Error())
		}
	} else {
		resp.Errors = []string{err.Error()}
	}
	RespondJSON(w, http.StatusMultiStatus, resp)
}

// SetSelected serves PUT /torrents/{hash}/selected.
func (h *TorrentsHandler) SetSelected(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.dashboard.MarkSelected(chi.URLParam(r, "hash"), req.Selected); err != nil {
		RespondError(w, statusForError(err, http.StatusNotFound), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetAllSelected serves PUT /torrents/selected.
func (h *TorrentsHandler) SetAllSelected(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	h.dashboard.SelectAll(req.Selected)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TorrentsHandler) GetFocus(w http.ResponseWriter, r *http.Request) {
	var resp FocusResponse
	if t, ok := h.dashboard.Focused(); ok {
		resp.Torrent = &t
	}
	RespondJSON(w, http.StatusOK, resp)
}

func (h *TorrentsHandler) SetFocus(w http.ResponseWriter, r *http.Request) {
	var req focusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.dashboard.Focus(req.Hash); err != nil {
		RespondError(w, statusForError(err, http.StatusNotFound), err.Error())
		return
	}

	h.GetFocus(w, r)
}

func (h *TorrentsHandler) ClearFocus(w http.ResponseWriter, r *http.Request) {
	h.dashboard.Unfocus()
	w.WriteHeader(http.StatusNoContent)
}

// ListPeers serves GET /peers for the focused torrent.
func (h *TorrentsHandler) ListPeers(w http.ResponseWriter, r *http.Request) {
	peers := h.dashboard.Peers()
	if peers == nil {
		peers = []models.Peer{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"peers": peers})
}

func truncateExpr(expr string, limit int) string {
	if len(expr) <= limit {
		return expr
	}
	return expr[:limit] + "..."
}
