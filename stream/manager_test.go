package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openderiv/ledgerx-data/auth"
)

// fakeClient is an in-memory Client for driving the Manager without a
// network.
type fakeClient struct {
	connectErr error
	onSend     func([]byte) // Invoked outside the lock after each Send

	mu        sync.Mutex
	connected bool
	closed    bool
	sent      [][]byte

	messages chan TimestampedMessage
	errors   chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages: make(chan TimestampedMessage, 100),
		errors:   make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.connected = false
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return ErrNotConnected
	}
	f.sent = append(f.sent, data)
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(data)
	}
	return nil
}

func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.messages }
func (f *fakeClient) Errors() <-chan error                { return f.errors }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) push(t *testing.T, frame string) {
	t.Helper()
	select {
	case f.messages <- TimestampedMessage{Data: []byte(frame), ReceivedAt: time.Now()}:
	case <-time.After(time.Second):
		t.Fatal("push timed out")
	}
}

func (f *fakeClient) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeFactory hands out fakeClients in order and records how many the
// Manager asked for.
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	next    int
}

func (ff *fakeFactory) new(cfg ClientConfig, logger *slog.Logger) Client {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.next >= len(ff.clients) {
		// Extra attempts beyond the script get fresh healthy clients
		ff.clients = append(ff.clients, newFakeClient())
	}
	cl := ff.clients[ff.next]
	ff.next++
	return cl
}

func (ff *fakeFactory) attempts() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.next
}

func (ff *fakeFactory) client(i int) *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.clients[i]
}

func testManagerConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "ws://test.invalid/ws"
	cfg.Credentials = auth.Credentials{APIKey: "test-token"}
	cfg.HeartbeatTimeout = 200 * time.Millisecond
	cfg.ReconnectBaseWait = 10 * time.Millisecond
	cfg.ReconnectMaxWait = 50 * time.Millisecond
	cfg.EventBufferSize = 100
	return cfg
}

func newTestManager(t *testing.T, ff *fakeFactory) *Manager {
	t.Helper()
	m := NewManager(testManagerConfig(), slog.Default())
	m.newClient = ff.new
	return m
}

func decodeSubscribeFrame(t *testing.T, data []byte) (string, []int64) {
	t.Helper()
	var frame struct {
		Type        string  `json:"type"`
		ContractIDs []int64 `json:"contract_ids"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("bad subscribe frame %q: %v", data, err)
	}
	return frame.Type, frame.ContractIDs
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestManager_ConnectReplaysSubscriptions(t *testing.T) {
	ff := &fakeFactory{clients: []*fakeClient{newFakeClient()}}
	m := newTestManager(t, ff)
	defer m.Close()

	// Registered before Connect: must be replayed on the first dial
	m.Subscribe(10)
	m.Subscribe(20)
	m.Subscribe(20) // idempotent

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if got := m.State(); got != StateSubscribed {
		t.Errorf("State = %v, want subscribed", got)
	}

	frames := ff.client(0).sentFrames()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1 replay frame", len(frames))
	}
	typ, ids := decodeSubscribeFrame(t, frames[0])
	if typ != "subscribe" {
		t.Errorf("type = %q, want subscribe", typ)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Errorf("contract_ids = %v, want [10 20]", ids)
	}
}

func TestManager_SubscribeWhileConnected(t *testing.T) {
	ff := &fakeFactory{clients: []*fakeClient{newFakeClient()}}
	m := newTestManager(t, ff)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	m.Subscribe(7)

	waitFor(t, time.Second, func() bool {
		return len(ff.client(0).sentFrames()) == 1
	}, "subscribe frame never sent")

	typ, ids := decodeSubscribeFrame(t, ff.client(0).sentFrames()[0])
	if typ != "subscribe" || len(ids) != 1 || ids[0] != 7 {
		t.Errorf("frame = %s %v, want subscribe [7]", typ, ids)
	}

	m.Unsubscribe(7)

	waitFor(t, time.Second, func() bool {
		return len(ff.client(0).sentFrames()) == 2
	}, "unsubscribe frame never sent")

	typ, ids = decodeSubscribeFrame(t, ff.client(0).sentFrames()[1])
	if typ != "unsubscribe" || len(ids) != 1 || ids[0] != 7 {
		t.Errorf("frame = %s %v, want unsubscribe [7]", typ, ids)
	}
}

func TestManager_SubscribeDuringReplayNotDropped(t *testing.T) {
	first := newFakeClient()
	ff := &fakeFactory{clients: []*fakeClient{first}}
	m := newTestManager(t, ff)
	defer m.Close()

	// Subscribe racing the replay: by the time the replay frame is on the
	// wire the connection must already be live for sends, so the new
	// contract's frame reaches the server instead of vanishing.
	var fired atomic.Bool
	first.onSend = func([]byte) {
		if fired.CompareAndSwap(false, true) {
			m.Subscribe(77)
		}
	}

	m.Subscribe(1)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return len(first.sentFrames()) >= 2
	}, "subscribe frame for the racing contract never sent")

	frames := first.sentFrames()
	_, replayIDs := decodeSubscribeFrame(t, frames[0])
	if len(replayIDs) != 1 || replayIDs[0] != 1 {
		t.Errorf("replay contract_ids = %v, want [1]", replayIDs)
	}
	typ, ids := decodeSubscribeFrame(t, frames[1])
	if typ != "subscribe" || len(ids) != 1 || ids[0] != 77 {
		t.Errorf("racing frame = %s %v, want subscribe [77]", typ, ids)
	}
}

func TestManager_AuthErrorNotRetried(t *testing.T) {
	bad := newFakeClient()
	bad.connectErr = &AuthError{StatusCode: 401}
	ff := &fakeFactory{clients: []*fakeClient{bad}}
	m := newTestManager(t, ff)

	err := m.Connect(context.Background())
	if err == nil {
		t.Fatal("expected auth error")
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %T, want *AuthError", err)
	}

	// No background reconnection may happen
	time.Sleep(100 * time.Millisecond)
	if got := ff.attempts(); got != 1 {
		t.Errorf("connect attempts = %d, want 1", got)
	}

	m.Close()
}

func TestManager_TransportErrorConnectsInBackground(t *testing.T) {
	bad := newFakeClient()
	bad.connectErr = errors.New("connection refused")
	ff := &fakeFactory{clients: []*fakeClient{bad, newFakeClient()}}
	m := newTestManager(t, ff)
	defer m.Close()

	m.Subscribe(1)

	// Transport failure on the first dial is not fatal
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned %v, want nil for transport error", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return m.State() == StateSubscribed
	}, "never reached subscribed after background reconnect")

	frames := ff.client(1).sentFrames()
	if len(frames) != 1 {
		t.Fatalf("got %d frames on second client, want 1", len(frames))
	}
	_, ids := decodeSubscribeFrame(t, frames[0])
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("replayed contract_ids = %v, want [1]", ids)
	}
}

func TestManager_ReconnectReplaysFullSet(t *testing.T) {
	first := newFakeClient()
	second := newFakeClient()
	ff := &fakeFactory{clients: []*fakeClient{first, second}}
	m := newTestManager(t, ff)
	defer m.Close()

	m.Subscribe(1)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Subscriptions added while connected are part of the replay set too
	m.Subscribe(2)
	m.Subscribe(3)

	// Kill the connection
	first.errors <- errors.New("read: connection reset by peer")

	waitFor(t, 2*time.Second, func() bool {
		return ff.attempts() >= 2 && m.State() == StateSubscribed
	}, "never reconnected")

	frames := second.sentFrames()
	if len(frames) == 0 {
		t.Fatal("no replay frame on reconnect")
	}
	typ, ids := decodeSubscribeFrame(t, frames[0])
	if typ != "subscribe" {
		t.Errorf("type = %q, want subscribe", typ)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("replayed contract_ids = %v, want [1 2 3]", ids)
	}
}

func TestManager_HeartbeatTimeoutForcesReconnect(t *testing.T) {
	first := newFakeClient()
	second := newFakeClient()
	ff := &fakeFactory{clients: []*fakeClient{first, second}}

	cfg := testManagerConfig()
	cfg.HeartbeatTimeout = 50 * time.Millisecond
	m := NewManager(cfg, slog.Default())
	m.newClient = ff.new
	defer m.Close()

	m.Subscribe(1)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Send no heartbeats: the watchdog must tear the connection down and
	// reconnect on its own.
	waitFor(t, 2*time.Second, func() bool {
		return first.closed && ff.attempts() >= 2
	}, "stale connection never torn down")

	waitFor(t, 2*time.Second, func() bool {
		return m.State() == StateSubscribed
	}, "never resubscribed after heartbeat timeout")

	frames := second.sentFrames()
	if len(frames) != 1 {
		t.Fatalf("got %d frames on reconnect, want exactly one replay", len(frames))
	}
	typ, ids := decodeSubscribeFrame(t, frames[0])
	if typ != "subscribe" || len(ids) != 1 || ids[0] != 1 {
		t.Errorf("replay frame = %s %v, want subscribe [1]", typ, ids)
	}
}

func TestManager_HeartbeatKeepsConnectionAlive(t *testing.T) {
	first := newFakeClient()
	ff := &fakeFactory{clients: []*fakeClient{first}}

	cfg := testManagerConfig()
	cfg.HeartbeatTimeout = 80 * time.Millisecond
	m := NewManager(cfg, slog.Default())
	m.newClient = ff.new
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Feed heartbeats for several timeout windows
	stop := time.After(300 * time.Millisecond)
feed:
	for {
		select {
		case <-stop:
			break feed
		case <-time.After(20 * time.Millisecond):
			first.push(t, `{"type":"heartbeat","timestamp":1,"ticks":1,"run_id":1}`)
		}
	}

	if ff.attempts() != 1 {
		t.Errorf("connect attempts = %d, want 1 (no reconnect while heartbeats flow)", ff.attempts())
	}
	if m.State() != StateSubscribed {
		t.Errorf("State = %v, want subscribed", m.State())
	}
}

func TestManager_MalformedFrameIsDropped(t *testing.T) {
	first := newFakeClient()
	ff := &fakeFactory{clients: []*fakeClient{first}}
	m := newTestManager(t, ff)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	first.push(t, `{"truncated`)
	first.push(t, `not json at all`)
	// A valid frame after garbage still gets through
	first.push(t, `{"type":"heartbeat","timestamp":1,"ticks":1,"run_id":1}`)

	select {
	case ev := <-m.Events():
		if ev.Kind != KindHeartbeat {
			t.Errorf("Kind = %v, want heartbeat (malformed frames must not be emitted)", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for heartbeat event")
	}

	if m.State() != StateSubscribed {
		t.Errorf("State = %v, want subscribed (malformed frame changed state)", m.State())
	}
	if ff.attempts() != 1 {
		t.Errorf("connect attempts = %d, want 1 (malformed frame caused reconnect)", ff.attempts())
	}
}

func TestManager_BookTopFiltering(t *testing.T) {
	first := newFakeClient()
	ff := &fakeFactory{clients: []*fakeClient{first}}
	m := newTestManager(t, ff)
	defer m.Close()

	m.Subscribe(1)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Not in the registry: dropped without caching or emitting
	first.push(t, `{"type":"book_top","contract_id":99,"bid":100,"bid_size":1,"ask":200,"ask_size":1,"clock":1}`)
	// Subscribed: cached and emitted
	first.push(t, `{"type":"book_top","contract_id":1,"bid":100,"bid_size":1,"ask":200,"ask_size":1,"clock":1}`)

	select {
	case ev := <-m.Events():
		if ev.Kind != KindBookTop {
			t.Fatalf("Kind = %v, want book_top", ev.Kind)
		}
		if ev.BookTop.ContractID != 1 {
			t.Errorf("ContractID = %d, want 1 (unsubscribed contract leaked)", ev.BookTop.ContractID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for book top event")
	}

	if _, ok := m.Top(99); ok {
		t.Error("unsubscribed contract must not be cached")
	}
	if _, ok := m.Top(1); !ok {
		t.Error("subscribed contract should be cached")
	}
}

func TestManager_StaleBookTopNotCached(t *testing.T) {
	first := newFakeClient()
	ff := &fakeFactory{clients: []*fakeClient{first}}
	m := newTestManager(t, ff)
	defer m.Close()

	m.Subscribe(1)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	first.push(t, `{"type":"book_top","contract_id":1,"bid":100,"bid_size":1,"ask":200,"ask_size":1,"clock":10}`)
	first.push(t, `{"type":"book_top","contract_id":1,"bid":999,"bid_size":1,"ask":1000,"ask_size":1,"clock":5}`)

	waitFor(t, time.Second, func() bool {
		top, ok := m.Top(1)
		return ok && top.Timestamp == 10
	}, "fresh book top never cached")

	// Let the second frame drain, then confirm the stale one didn't win
	time.Sleep(50 * time.Millisecond)
	top, _ := m.Top(1)
	if top.Timestamp != 10 {
		t.Errorf("Timestamp = %d, want 10 (stale frame overwrote cache)", top.Timestamp)
	}
}

func TestManager_ZeroClockFrameIsStale(t *testing.T) {
	first := newFakeClient()
	ff := &fakeFactory{clients: []*fakeClient{first}}
	m := newTestManager(t, ff)
	defer m.Close()

	m.Subscribe(42)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	first.push(t, `{"type":"book_top","contract_id":42,"bid":10000,"bid_size":1,"ask":10100,"ask_size":2,"clock":1}`)
	first.push(t, `{"type":"book_top","contract_id":42,"bid":9900,"bid_size":1,"ask":10200,"ask_size":1,"clock":0}`)

	waitFor(t, time.Second, func() bool {
		top, ok := m.Top(42)
		return ok && top.Timestamp == 1
	}, "clock=1 book top never cached")

	time.Sleep(50 * time.Millisecond)
	top, _ := m.Top(42)
	if top.Timestamp != 1 {
		t.Fatalf("Timestamp = %d, want 1 (clock=0 frame overwrote the cache)", top.Timestamp)
	}
	if top.BidSize != 1 || top.AskSize != 2 {
		t.Errorf("sizes = %d/%d, want the clock=1 frame's 1/2", top.BidSize, top.AskSize)
	}
}

func TestManager_AccountUpdates(t *testing.T) {
	first := newFakeClient()
	ff := &fakeFactory{clients: []*fakeClient{first}}
	m := newTestManager(t, ff)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	first.push(t, `{"type":"collateral_balance_update","timestamp":10,"collateral":{"available_balances":{"USD":100000},"position_locked_balances":{}}}`)
	first.push(t, `{"type":"open_positions_update","timestamp":10,"positions":[{"contract_id":5,"size":-2}]}`)

	waitFor(t, time.Second, func() bool {
		_, ok := m.Balance("USD")
		return ok
	}, "balance never cached")

	waitFor(t, time.Second, func() bool {
		_, ok := m.Position(5)
		return ok
	}, "position never cached")

	pos, _ := m.Position(5)
	if pos.Size != 2 || pos.Side != "short" {
		t.Errorf("Position = %+v, want size 2 short", pos)
	}
}

func TestManager_CloseUnblocksBackoff(t *testing.T) {
	cfg := testManagerConfig()
	cfg.ReconnectBaseWait = 10 * time.Second // Long enough that only Close can end the wait
	cfg.ReconnectMaxWait = 10 * time.Second
	m := NewManager(cfg, slog.Default())
	m.newClient = func(c ClientConfig, l *slog.Logger) Client {
		cl := newFakeClient()
		cl.connectErr = errors.New("connection refused")
		return cl
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on backoff wait")
	}

	if m.State() != StateClosed {
		t.Errorf("State = %v, want closed", m.State())
	}
}

func TestManager_ZeroConfigGetsDefaults(t *testing.T) {
	m := NewManager(Config{URL: "ws://test.invalid/ws"}, slog.Default())

	if m.cfg.ReconnectBaseWait != DefaultConfig().ReconnectBaseWait {
		t.Errorf("ReconnectBaseWait = %v, want default", m.cfg.ReconnectBaseWait)
	}
	if m.cfg.ReconnectMaxWait != DefaultConfig().ReconnectMaxWait {
		t.Errorf("ReconnectMaxWait = %v, want default", m.cfg.ReconnectMaxWait)
	}
	if m.cfg.HeartbeatTimeout != DefaultConfig().HeartbeatTimeout {
		t.Errorf("HeartbeatTimeout = %v, want default", m.cfg.HeartbeatTimeout)
	}
	if m.cfg.WriteTimeout != DefaultConfig().WriteTimeout {
		t.Errorf("WriteTimeout = %v, want default", m.cfg.WriteTimeout)
	}

	// A failing first dial must reach the backoff wait without panicking
	// the connection goroutine.
	m.newClient = func(c ClientConfig, l *slog.Logger) Client {
		cl := newFakeClient()
		cl.connectErr = errors.New("connection refused")
		return cl
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestManager_CloseRacingConnect(t *testing.T) {
	// Close may run before, during, or after Connect's goroutine start.
	// Whatever the interleaving, a frame already buffered on the transport
	// must not be dispatched onto the closed event channel.
	for i := 0; i < 50; i++ {
		fc := newFakeClient()
		fc.messages <- TimestampedMessage{
			Data:       []byte(`{"type":"heartbeat","timestamp":1,"ticks":1,"run_id":"r"}`),
			ReceivedAt: time.Now(),
		}
		ff := &fakeFactory{clients: []*fakeClient{fc}}
		m := newTestManager(t, ff)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := m.Connect(context.Background())
			if err != nil && !errors.Is(err, ErrAlreadyClosed) {
				t.Errorf("Connect: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			m.Close()
		}()
		wg.Wait()

		if err := m.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
			t.Fatalf("Connect after Close = %v, want ErrAlreadyClosed", err)
		}
	}
}

func TestManager_CloseIdempotent(t *testing.T) {
	ff := &fakeFactory{clients: []*fakeClient{newFakeClient()}}
	m := newTestManager(t, ff)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	// Events channel is closed exactly once
	if _, ok := <-m.Events(); ok {
		t.Error("events channel should be closed after Close")
	}

	if err := m.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestManager_CacheSurvivesReconnect(t *testing.T) {
	first := newFakeClient()
	second := newFakeClient()
	ff := &fakeFactory{clients: []*fakeClient{first, second}}
	m := newTestManager(t, ff)
	defer m.Close()

	m.Subscribe(1)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	first.push(t, `{"type":"book_top","contract_id":1,"bid":100,"bid_size":1,"ask":200,"ask_size":1,"clock":10}`)

	waitFor(t, time.Second, func() bool {
		_, ok := m.Top(1)
		return ok
	}, "book top never cached")

	first.errors <- errors.New("connection reset")

	waitFor(t, 2*time.Second, func() bool {
		return ff.attempts() >= 2 && m.State() == StateSubscribed
	}, "never reconnected")

	// Last known value is still readable across the reconnect
	top, ok := m.Top(1)
	if !ok || top.Timestamp != 10 {
		t.Errorf("Top after reconnect = %+v ok=%v, want cached value", top, ok)
	}
}
