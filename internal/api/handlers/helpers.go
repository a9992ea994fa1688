// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/torrentdash/internal/backend"
	"github.com/autobrr/torrentdash/internal/store"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// statusForError maps operation failures onto HTTP statuses. conflictStatus
// is used when the backend refused the request.
func statusForError(err error, conflictStatus int) int {
	switch {
	case errors.Is(err, store.ErrTorrentNotFound):
		return http.StatusNotFound
	case backend.IsConflict(err):
		return conflictStatus
	case backend.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
