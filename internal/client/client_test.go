// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/torrentdash/internal/backend"
	"github.com/autobrr/torrentdash/internal/models"
	"github.com/autobrr/torrentdash/internal/poller"
	"github.com/autobrr/torrentdash/internal/store"
)

type fakeFetcher struct {
	mu        sync.Mutex
	torrents  []models.TorrentRecord
	peers     map[string][]models.PeerRecord
	listErr   error
	peersErr  error
	createErr error
	destroyFn func(hash string) error

	// peerGate, when set, blocks ListPeers for the given hash until closed
	peerGate map[string]chan struct{}
	peerCall chan string

	created   [][]byte
	destroyed []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		peers:    make(map[string][]models.PeerRecord),
		peerGate: make(map[string]chan struct{}),
		peerCall: make(chan string, 16),
	}
}

func (f *fakeFetcher) setTorrents(records ...models.TorrentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torrents = records
}

func (f *fakeFetcher) ListTorrents(ctx context.Context) ([]models.TorrentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.TorrentRecord(nil), f.torrents...), nil
}

func (f *fakeFetcher) ListPeers(ctx context.Context, infoHash string) ([]models.PeerRecord, error) {
	f.mu.Lock()
	gate := f.peerGate[infoHash]
	f.mu.Unlock()

	select {
	case f.peerCall <- infoHash:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.peersErr != nil {
		return nil, f.peersErr
	}
	return append([]models.PeerRecord(nil), f.peers[infoHash]...), nil
}

func (f *fakeFetcher) CreateTorrent(ctx context.Context, file []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, file)
	return nil
}

func (f *fakeFetcher) DestroyTorrent(ctx context.Context, infoHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyFn != nil {
		if err := f.destroyFn(infoHash); err != nil {
			return err
		}
	}
	f.destroyed = append(f.destroyed, infoHash)
	return nil
}

type recordingView struct {
	mu     sync.Mutex
	events []string
	failed []error
}

func (v *recordingView) add(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, s)
}

func (v *recordingView) TorrentCreated(t models.Torrent) { v.add("torrent_created:" + t.InfoHash) }
func (v *recordingView) TorrentUpdated(t models.Torrent) { v.add("torrent_updated:" + t.InfoHash) }
func (v *recordingView) TorrentRemoved(t models.Torrent) { v.add("torrent_removed:" + t.InfoHash) }
func (v *recordingView) PeerCreated(p models.Peer) { v.add("peer_created:" + p.Key().String()) }
func (v *recordingView) PeerUpdated(p models.Peer) { v.add("peer_updated:" + p.Key().String()) }
func (v *recordingView) PeerRemoved(p models.Peer) { v.add("peer_removed:" + p.Key().String()) }

func (v *recordingView) FocusChanged(prev, next *models.Torrent) {
	name := func(t *models.Torrent) string {
		if t == nil {
			return "-"
		}
		return t.InfoHash
	}
	v.add(fmt.Sprintf("focus:%s->%s", name(prev), name(next)))
}

func (v *recordingView) OperationFailed(op string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failed = append(v.failed, err)
	v.events = append(v.events, "failed:"+op)
}

func (v *recordingView) take() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.events
	v.events = nil
	return out
}

func rec(hash, name string) models.TorrentRecord {
	return models.TorrentRecord{InfoHash: hash, Name: name, State: "seeding"}
}

func peer(ip string, port int) models.PeerRecord {
	return models.PeerRecord{IP: ip, Port: port}
}

func testTorrent(t *testing.T) []byte {
	t.Helper()
	infoBytes, err := bencode.Marshal(metainfo.Info{
		Name:        "debian.iso",
		PieceLength: 16 * 1024,
		Length:      42,
		Pieces:      make([]byte, 20),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, (&metainfo.MetaInfo{InfoBytes: infoBytes}).Write(&buf))
	return buf.Bytes()
}

func newTestClient(t *testing.T) (*Client, *fakeFetcher, *recordingView) {
	t.Helper()
	f := newFakeFetcher()
	v := &recordingView{}
	return New(f, v), f, v
}

func TestRefreshTorrentsDispatchesInOrder(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	f.setTorrents(rec("h1", "a"), rec("h2", "b"))
	require.NoError(t, c.RefreshTorrents(ctx))
	assert.Equal(t, []string{"torrent_created:h1", "torrent_created:h2"}, v.take())

	f.setTorrents(rec("h2", "b"), rec("h3", "c"))
	require.NoError(t, c.RefreshTorrents(ctx))
	assert.Equal(t, []string{"torrent_removed:h1", "torrent_updated:h2", "torrent_created:h3"}, v.take())
}

func TestRefreshTorrentsTransportErrorLeavesStateAlone(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	f.setTorrents(rec("h1", "a"))
	require.NoError(t, c.RefreshTorrents(ctx))
	v.take()

	f.listErr = &backend.TransportError{Op: "list torrents", Err: errors.New("connection refused")}
	err := c.RefreshTorrents(ctx)
	assert.True(t, backend.IsTransport(err))
	assert.Len(t, c.Torrents(), 1)
	assert.Empty(t, v.take())
}

func TestSelectionSurvivesRefresh(t *testing.T) {
	c, f, _ := newTestClient(t)
	ctx := context.Background()

	f.setTorrents(rec("H1", "a"))
	require.NoError(t, c.RefreshTorrents(ctx))
	require.NoError(t, c.MarkSelected("h1", true))

	f.setTorrents(rec("H1", "a-renamed"))
	require.NoError(t, c.RefreshTorrents(ctx))

	torrent, ok := c.Torrent("h1")
	require.True(t, ok)
	assert.Equal(t, "a-renamed", torrent.Name)
	assert.True(t, torrent.Selected)
	assert.True(t, c.IsSelected("H1"))
}

func TestRefreshPeersIdleWithoutFocus(t *testing.T) {
	c, _, _ := newTestClient(t)

	err := c.RefreshPeers(context.Background())
	assert.ErrorIs(t, err, poller.ErrIdle)
}

func TestFocusSwitchDiscardsInFlightPeers(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	f.setTorrents(rec("h1", "a"), rec("h2", "b"))
	f.peers["h1"] = []models.PeerRecord{peer("10.0.0.1", 1)}
	f.peers["h2"] = []models.PeerRecord{peer("10.0.0.2", 2)}
	gate := make(chan struct{})
	f.peerGate["h1"] = gate

	require.NoError(t, c.RefreshTorrents(ctx))
	require.NoError(t, c.Focus("h1"))
	v.take()

	result := make(chan error, 1)
	go func() { result <- c.RefreshPeers(ctx) }()
	require.Equal(t, "h1", <-f.peerCall)

	// focus moves while the h1 fetch is in flight
	require.NoError(t, c.Focus("h2"))
	require.NoError(t, c.RefreshPeers(ctx))
	require.Equal(t, "h2", <-f.peerCall)

	close(gate)
	err := <-result
	assert.ErrorIs(t, err, poller.ErrStale)

	peers := c.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "10.0.0.2", peers[0].IP)
	assert.Equal(t, []string{"focus:h1->h2", "peer_created:10.0.0.2:2"}, v.take())
}

func TestFocusedTorrentRemovalCascade(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	f.setTorrents(rec("h1", "a"))
	f.peers["h1"] = []models.PeerRecord{peer("10.0.0.1", 1), peer("10.0.0.2", 2)}
	require.NoError(t, c.RefreshTorrents(ctx))
	require.NoError(t, c.Focus("h1"))
	require.NoError(t, c.RefreshPeers(ctx))
	<-f.peerCall
	v.take()

	f.setTorrents()
	require.NoError(t, c.RefreshTorrents(ctx))

	assert.Equal(t, []string{
		"peer_removed:10.0.0.1:1",
		"peer_removed:10.0.0.2:2",
		"focus:h1->-",
		"torrent_removed:h1",
	}, v.take())
	_, focused := c.Focused()
	assert.False(t, focused)
	assert.Empty(t, c.Peers())
}

func TestFocusErrors(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	f.setTorrents(rec("h1", "a"))
	require.NoError(t, c.RefreshTorrents(ctx))
	v.take()

	assert.ErrorIs(t, c.Focus("missing"), store.ErrTorrentNotFound)
	require.NoError(t, c.Focus("h1"))
	require.NoError(t, c.Focus("H1"))
	assert.Equal(t, []string{"focus:-->h1"}, v.take())

	c.Unfocus()
	assert.Equal(t, []string{"focus:h1->-"}, v.take())
}

func TestDestroyTorrentRemovesOnlyOnSuccess(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	f.setTorrents(rec("h1", "a"), rec("h2", "b"))
	require.NoError(t, c.RefreshTorrents(ctx))
	v.take()

	f.destroyFn = func(hash string) error {
		if hash == "h2" {
			return &backend.ConflictError{Op: "destroy torrent", StatusCode: 404, Reason: "gone"}
		}
		return nil
	}

	err := c.DestroyTorrent(ctx, "h2")
	assert.True(t, backend.IsConflict(err))
	assert.Len(t, c.Torrents(), 2, "failed destroy must not mutate local state")
	assert.Equal(t, []string{"failed:destroy"}, v.take())

	require.NoError(t, c.DestroyTorrent(ctx, "H1"))
	assert.Equal(t, []string{"torrent_removed:h1"}, v.take())
	assert.Equal(t, []string{"h1"}, f.destroyed)
	assert.Len(t, c.Torrents(), 1)
}

func TestDestroyUnknownTorrent(t *testing.T) {
	c, f, v := newTestClient(t)

	err := c.DestroyTorrent(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrTorrentNotFound)
	assert.Empty(t, f.destroyed)
	assert.Equal(t, []string{"failed:destroy"}, v.take())
}

func TestStaleTorrentListDoesNotResurrectDestroyed(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	f.setTorrents(rec("h1", "a"), rec("h2", "b"))
	require.NoError(t, c.RefreshTorrents(ctx))

	// a list fetch is issued, then the destroy is confirmed before it lands
	gate := make(chan struct{})
	listed := make(chan struct{})
	slow := &gatedLister{Fetcher: f, gate: gate, listed: listed}
	c.fetcher = slow

	result := make(chan error, 1)
	go func() { result <- c.RefreshTorrents(ctx) }()
	<-listed

	c.fetcher = f
	require.NoError(t, c.DestroyTorrent(ctx, "h1"))
	v.take()

	close(gate)
	require.NoError(t, <-result)
	assert.Equal(t, []string{"torrent_updated:h2"}, v.take())
	for _, torrent := range c.Torrents() {
		assert.NotEqual(t, "h1", torrent.InfoHash)
	}

	// the backend has really dropped it; the next list retires the tombstone
	f.setTorrents(rec("h2", "b"))
	require.NoError(t, c.RefreshTorrents(ctx))
	c.mu.Lock()
	assert.Empty(t, c.tombstones)
	c.mu.Unlock()
}

// gatedLister returns the snapshot it read when called, but only after gate
// is closed, emulating a slow response to an early request.
type gatedLister struct {
	backend.Fetcher
	gate   chan struct{}
	listed chan struct{}
}

func (g *gatedLister) ListTorrents(ctx context.Context) ([]models.TorrentRecord, error) {
	records, err := g.Fetcher.ListTorrents(ctx)
	close(g.listed)
	<-g.gate
	return records, err
}

func TestOutOfOrderTorrentListIsDiscarded(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	gate := make(chan struct{})
	listed := make(chan struct{})
	f.setTorrents(rec("old", "x"))
	c.fetcher = &gatedLister{Fetcher: f, gate: gate, listed: listed}

	result := make(chan error, 1)
	go func() { result <- c.RefreshTorrents(ctx) }()
	<-listed

	c.fetcher = f
	f.setTorrents(rec("new", "y"))
	require.NoError(t, c.RefreshTorrents(ctx))

	close(gate)
	assert.ErrorIs(t, <-result, poller.ErrStale)
	assert.Equal(t, []string{"torrent_created:new"}, v.take())
}

func TestCreateTorrentValidatesAndDoesNotMutate(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	err := c.CreateTorrent(ctx, []byte("not a torrent"))
	assert.True(t, backend.IsConflict(err))
	assert.Empty(t, f.created, "invalid files never reach the backend")
	assert.Equal(t, []string{"failed:create"}, v.take())

	data := testTorrent(t)
	require.NoError(t, c.CreateTorrent(ctx, data))
	assert.Len(t, f.created, 1)
	assert.Empty(t, c.Torrents())
	assert.Empty(t, v.take())

	f.createErr = &backend.TransportError{Op: "create torrent", StatusCode: 502, Err: errors.New("bad gateway")}
	err = c.CreateTorrent(ctx, data)
	assert.True(t, backend.IsTransport(err))
	assert.Equal(t, []string{"failed:create"}, v.take())
}

func TestDestroySelected(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	f.setTorrents(rec("h1", "a"), rec("h2", "b"), rec("h3", "c"))
	require.NoError(t, c.RefreshTorrents(ctx))
	c.SelectAll(true)
	require.NoError(t, c.MarkSelected("h2", false))
	v.take()

	f.destroyFn = func(hash string) error {
		if hash == "h3" {
			return &backend.TransportError{Op: "destroy torrent", Err: errors.New("timeout")}
		}
		return nil
	}

	err := c.DestroySelected(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "h3")
	assert.True(t, backend.IsTransport(err))

	var hashes []string
	for _, torrent := range c.Torrents() {
		hashes = append(hashes, torrent.InfoHash)
	}
	assert.Equal(t, []string{"h2", "h3"}, hashes)
	assert.Equal(t, []string{"torrent_removed:h1", "failed:destroy"}, v.take())
}

func TestSelectAllDispatchesChangedOnly(t *testing.T) {
	c, f, v := newTestClient(t)
	ctx := context.Background()

	f.setTorrents(rec("h1", "a"), rec("h2", "b"))
	require.NoError(t, c.RefreshTorrents(ctx))
	require.NoError(t, c.MarkSelected("h1", true))
	v.take()

	c.SelectAll(true)
	assert.Equal(t, []string{"torrent_updated:h2"}, v.take())

	assert.ErrorIs(t, c.MarkSelected("nope", true), store.ErrTorrentNotFound)
}

// reentrantView reads client state from inside a callback.
type reentrantView struct {
	NopView
	c    *Client
	seen []int
}

func (r *reentrantView) TorrentCreated(models.Torrent) {
	r.seen = append(r.seen, len(r.c.Torrents()))
}

func TestViewMayReadStateDuringDispatch(t *testing.T) {
	f := newFakeFetcher()
	view := &reentrantView{}
	c := New(f, view)
	view.c = c

	f.setTorrents(rec("h1", "a"), rec("h2", "b"))
	done := make(chan error, 1)
	go func() { done <- c.RefreshTorrents(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch deadlocked")
	}
	assert.Equal(t, []int{2, 2}, view.seen)
}

// crossReadingView parks the first peer update until released, then reads the
// torrent list. Torrent updates read the peer list.
type crossReadingView struct {
	NopView
	c           *Client
	once        sync.Once
	dispatching chan struct{}
	release     chan struct{}
}

func (v *crossReadingView) PeerUpdated(models.Peer) {
	v.once.Do(func() {
		close(v.dispatching)
		<-v.release
	})
	_ = v.c.Torrents()
}

func (v *crossReadingView) TorrentUpdated(models.Torrent) {
	_ = v.c.Peers()
}

func TestConcurrentChainsWithReadingViewDoNotDeadlock(t *testing.T) {
	f := newFakeFetcher()
	view := &crossReadingView{
		dispatching: make(chan struct{}),
		release:     make(chan struct{}),
	}
	c := New(f, view)
	view.c = c
	ctx := context.Background()

	f.setTorrents(rec("h1", "a"))
	f.peers["h1"] = []models.PeerRecord{peer("10.0.0.1", 1)}
	require.NoError(t, c.RefreshTorrents(ctx))
	require.NoError(t, c.Focus("h1"))
	require.NoError(t, c.RefreshPeers(ctx))

	peersDone := make(chan error, 1)
	go func() { peersDone <- c.RefreshPeers(ctx) }()

	select {
	case <-view.dispatching:
	case <-time.After(2 * time.Second):
		t.Fatal("peer update never dispatched")
	}

	torrentsDone := make(chan error, 1)
	go func() { torrentsDone <- c.RefreshTorrents(ctx) }()

	// let the torrent refresh reach its mutation while the peer dispatch is parked
	time.Sleep(50 * time.Millisecond)
	close(view.release)

	for _, done := range []chan error{peersDone, torrentsDone} {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("chains deadlocked")
		}
	}
	assert.Len(t, c.Torrents(), 1)
	assert.Len(t, c.Peers(), 1)
}

func TestStartPollsUntilCancelled(t *testing.T) {
	f := newFakeFetcher()
	v := &recordingView{}
	f.setTorrents(rec("h1", "a"))

	c := New(f, v, WithIntervals(10*time.Millisecond, 10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(c.Torrents()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Focus("h1"))
	f.mu.Lock()
	f.peers["h1"] = []models.PeerRecord{peer("10.0.0.9", 9)}
	f.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(c.Peers()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
}

func TestChainOptionsApplyToBothChains(t *testing.T) {
	f := newFakeFetcher()
	waits := make(chan time.Duration, 8)
	never := make(chan time.Time)

	c := New(f, &recordingView{},
		WithIntervals(7*time.Second, 11*time.Second),
		WithChainOptions(poller.WithAfter(func(d time.Duration) <-chan time.Time {
			waits <- d
			return never
		})),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	got := map[time.Duration]bool{}
	for len(got) < 2 {
		select {
		case d := <-waits:
			got[d] = true
		case <-time.After(2 * time.Second):
			t.Fatal("chains never waited")
		}
	}
	assert.True(t, got[7*time.Second])
	assert.True(t, got[11*time.Second])

	cancel()
	require.NoError(t, <-done)
}

func TestMultiViewFansOut(t *testing.T) {
	a, b := &recordingView{}, &recordingView{}
	mv := MultiView{a, b}

	mv.TorrentCreated(models.Torrent{InfoHash: "h1"})
	mv.OperationFailed(OpCreate, errors.New("x"))

	assert.Equal(t, []string{"torrent_created:h1", "failed:create"}, a.take())
	assert.Equal(t, []string{"torrent_created:h1", "failed:create"}, b.take())
}
