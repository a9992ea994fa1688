// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestREST(t *testing.T, handler http.Handler, retries int) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTClient(RESTConfig{
		BaseURL:    srv.URL + "/",
		Timeout:    5 * time.Second,
		Retries:    retries,
		RetryDelay: time.Millisecond,
	})
}

func TestRESTListTorrents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/torrents/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"info_hash":"ABC","name":"a","state":"seeding","size":10,"completed":1,"download_speed":0,"upload_speed":5.5,"uploaded":3,"downloaded":10,"ratio":0.3,"peers":7}
		]`)
	})

	client := newTestREST(t, mux, 0)
	records, err := client.ListTorrents(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ABC", records[0].InfoHash)
	assert.Equal(t, "seeding", records[0].State)
	assert.Equal(t, int64(10), records[0].Size)
	assert.Equal(t, 5.5, records[0].UploadSpeed)
	assert.Equal(t, 0.3, records[0].Ratio)
}

func TestRESTListPeersSendsInfoHash(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/torrents/peers/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("info_hash"))
		_, _ = io.WriteString(w, `[{"ip":"10.0.0.1","port":6881,"client":"x","completed":0.5}]`)
	})

	client := newTestREST(t, mux, 0)
	records, err := client.ListPeers(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.0.0.1", records[0].IP)
	assert.Equal(t, 6881, records[0].Port)
	assert.Equal(t, 0.5, records[0].Completed)
}

func TestRESTRetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})

	client := newTestREST(t, handler, 1)
	records, err := client.ListTorrents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRESTGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	client := newTestREST(t, handler, 2)
	_, err := client.ListTorrents(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.False(t, IsConflict(err))
	assert.Equal(t, int32(3), calls.Load())

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusServiceUnavailable, transportErr.StatusCode)
}

func TestRESTDecodeFailureIsTransport(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	})

	client := newTestREST(t, handler, 0)
	_, err := client.ListTorrents(context.Background())
	assert.True(t, IsTransport(err))
}

func TestRESTCreateTorrentMultipart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/torrents/create", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		file, _, err := r.FormFile("torrent")
		require.NoError(t, err)
		defer file.Close()
		body, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(body))
		w.WriteHeader(http.StatusCreated)
	})

	client := newTestREST(t, mux, 0)
	require.NoError(t, client.CreateTorrent(context.Background(), []byte("payload")))
}

func TestRESTDestroyTorrent(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantConflict bool
		wantErr      bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "unknown torrent", status: http.StatusNotFound, wantErr: true, wantConflict: true},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, wantErr: true, wantConflict: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/torrents/destroy", func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "abc", r.PostForm.Get("info_hash"))
				w.WriteHeader(tt.status)
			})

			client := newTestREST(t, mux, 0)
			err := client.DestroyTorrent(context.Background(), "abc")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantConflict, IsConflict(err))
			assert.Equal(t, !tt.wantConflict, IsTransport(err))
		})
	}
}

func TestRESTConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewRESTClient(RESTConfig{BaseURL: url, Timeout: time.Second})
	_, err := client.ListTorrents(context.Background())
	assert.True(t, IsTransport(err))
}
