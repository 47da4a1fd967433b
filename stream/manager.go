package stream

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openderiv/ledgerx-data/model"
)

// Manager owns the stream connection lifecycle: dialing, the auth token,
// subscription replay, heartbeat liveness, and reconnection with capped
// exponential backoff. One goroutine drives the connection; reconnect
// attempts are serialized. Cached reads and Subscribe/Unsubscribe are safe
// from any goroutine.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	registry *Registry
	cache    *Cache

	// newClient builds the transport; tests substitute a fake.
	newClient func(ClientConfig, *slog.Logger) Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   ConnectionState
	client  Client
	started bool
	closed  bool

	events chan Event
}

// NewManager creates a stream Manager. Call Connect to start it.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	// Zero durations would panic the backoff jitter or make the watchdog
	// spin; fill every unset field, not just the buffer size.
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = def.ReconnectMaxWait
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = def.EventBufferSize
	}

	return &Manager{
		cfg:       cfg,
		logger:    logger,
		registry:  NewRegistry(),
		cache:     NewCache(),
		newClient: NewClient,
		state:     StateDisconnected,
		events:    make(chan Event, cfg.EventBufferSize),
	}
}

// Connect performs the first connection attempt and starts the connection
// goroutine. A rejected credential is returned as *AuthError and is not
// retried; transport failures return nil and are retried in the background
// with backoff until Close.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	cl, err := m.connectOnce()
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			m.mu.Lock()
			m.started = false
			m.mu.Unlock()
			return err
		}
		m.logger.Warn("initial connect failed, retrying in background", "error", err)
		cl = nil
	}

	// Close waits on wg and then closes the event channel, so the Add must
	// happen under the same lock that Close uses to flip closed. A Close
	// that won the race means no goroutine may start.
	m.mu.Lock()
	if m.closed {
		m.client = nil
		m.mu.Unlock()
		if cl != nil {
			cl.Close()
		}
		return ErrAlreadyClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()
	go m.run(cl)

	return nil
}

// Close tears down the connection and stops all reconnection. It is safe
// to call from any goroutine and unblocks any pending backoff wait. The
// manager cannot be restarted afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.state = StateClosed
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	cl := m.client
	m.client = nil
	m.mu.Unlock()
	if cl != nil {
		cl.Close()
	}

	close(m.events)

	m.logger.Info("stream closed")
	return nil
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Events returns the caller-facing event channel. Delivery is best-effort:
// a slow consumer never blocks frame processing, overflow is dropped with
// a logged warning. Closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Subscribe registers interest in book tops for a contract. Idempotent.
// The subscription survives reconnects; delivery of the subscribe frame is
// guaranteed by replay even if the connection is currently down.
func (m *Manager) Subscribe(contractID int64) {
	if !m.registry.Add(contractID) {
		return
	}
	m.logger.Info("subscribed", "contract_id", contractID)
	m.send(EncodeSubscribe([]int64{contractID}))
}

// Unsubscribe removes interest in a contract.
func (m *Manager) Unsubscribe(contractID int64) {
	if !m.registry.Remove(contractID) {
		return
	}
	m.logger.Info("unsubscribed", "contract_id", contractID)
	m.send(EncodeUnsubscribe([]int64{contractID}))
}

// Subscriptions returns the current subscription set.
func (m *Manager) Subscriptions() []int64 {
	return m.registry.Snapshot()
}

// Top returns the last known book top for a contract; ok is false before
// any update has arrived.
func (m *Manager) Top(contractID int64) (model.BookTop, bool) {
	return m.cache.Top(contractID)
}

// Balance returns the last known balance for an asset.
func (m *Manager) Balance(asset string) (model.Balance, bool) {
	return m.cache.Balance(asset)
}

// Position returns the last known position for a contract.
func (m *Manager) Position(contractID int64) (model.Position, bool) {
	return m.cache.Position(contractID)
}

// Fill returns the last known fill state for an order mid.
func (m *Manager) Fill(mid uuid.UUID) (model.Fill, bool) {
	return m.cache.Fill(mid)
}

// send writes an encoded frame to the live connection, best-effort. A
// down connection is not an error here: replay after (re)connect covers it.
func (m *Manager) send(payload []byte, err error) {
	if err != nil {
		m.logger.Warn("encode frame", "error", err)
		return
	}

	m.mu.Lock()
	cl := m.client
	m.mu.Unlock()

	if cl == nil || !cl.IsConnected() {
		return
	}
	if err := cl.Send(payload); err != nil {
		m.logger.Warn("send failed, will replay after reconnect", "error", err)
	}
}

// connectOnce performs a single connection attempt: dial with the auth
// token attached, then replay the subscription registry.
func (m *Manager) connectOnce() (Client, error) {
	m.setState(StateConnecting)

	url, err := m.cfg.Credentials.WSURL(m.cfg.URL)
	if err != nil {
		m.setState(StateDisconnected)
		return nil, err
	}

	cl := m.newClient(ClientConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       DefaultClientConfig().BufferSize,
	}, m.logger)

	if err := cl.Connect(m.ctx); err != nil {
		m.setState(StateDisconnected)
		return nil, err
	}
	m.setState(StateAuthenticated)

	// Publish the client before the replay so a concurrent Subscribe sends
	// its own frame instead of silently dropping it. The snapshot is taken
	// after the publish: a racing Subscribe lands in the snapshot, sends a
	// duplicate frame, or both, and subscribe frames are idempotent.
	m.mu.Lock()
	m.client = cl
	m.mu.Unlock()

	// The exchange forgets subscriptions on disconnect; replay the full set.
	if ids := m.registry.Snapshot(); len(ids) > 0 {
		payload, err := EncodeSubscribe(ids)
		if err == nil {
			err = cl.Send(payload)
		}
		if err != nil {
			m.mu.Lock()
			m.client = nil
			m.mu.Unlock()
			cl.Close()
			m.setState(StateDisconnected)
			return nil, err
		}
		m.logger.Info("subscriptions replayed", "count", len(ids))
	}
	m.setState(StateSubscribed)

	return cl, nil
}

// run drives the connection until Close. cl is the already-established
// first connection, or nil to begin with a backoff wait.
func (m *Manager) run(cl Client) {
	defer m.wg.Done()

	backoff := m.cfg.ReconnectBaseWait

	for {
		if cl == nil {
			// Jittered backoff to avoid thundering-herd reconnection.
			wait := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(wait):
			}

			var err error
			cl, err = m.connectOnce()
			if err != nil {
				var authErr *AuthError
				if errors.As(err, &authErr) {
					m.logger.Error("authentication rejected, reconnection stopped", "error", err)
					m.emit(Event{Kind: KindError, ReceivedAt: time.Now(), Err: err})
					return
				}

				m.logger.Warn("reconnect failed", "error", err, "next_wait", backoff)
				backoff *= 2
				if backoff > m.cfg.ReconnectMaxWait {
					backoff = m.cfg.ReconnectMaxWait
				}
				continue
			}

			m.logger.Info("reconnected", "url", m.cfg.URL)
		}

		backoff = m.cfg.ReconnectBaseWait
		m.serve(cl)
		cl = nil

		select {
		case <-m.ctx.Done():
			return
		default:
		}
	}
}

// serve processes frames from one connection until it dies, goes stale, or
// the manager closes.
func (m *Manager) serve(cl Client) {
	interval := m.cfg.HeartbeatTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	watchdog := time.NewTicker(interval)
	defer watchdog.Stop()

	// Grace period: connect counts as liveness until the first heartbeat.
	lastBeat := time.Now()

	for {
		select {
		case <-m.ctx.Done():
			cl.Close()
			return

		case err := <-cl.Errors():
			m.logger.Warn("transport error", "error", err)
			cl.Close()
			m.setState(StateDisconnected)
			return

		case <-watchdog.C:
			if time.Since(lastBeat) > m.cfg.HeartbeatTimeout {
				m.logger.Warn("heartbeat timeout, forcing reconnect",
					"last_heartbeat", lastBeat,
					"timeout", m.cfg.HeartbeatTimeout,
				)
				m.setState(StateDegraded)
				cl.Close()
				m.setState(StateDisconnected)
				return
			}

		case msg, ok := <-cl.Messages():
			if !ok {
				cl.Close()
				m.setState(StateDisconnected)
				return
			}
			// Messages can be buffered past cancellation; never dispatch
			// one once Close is underway.
			if m.ctx.Err() != nil {
				cl.Close()
				return
			}

			ev := Decode(msg.Data, msg.ReceivedAt)
			if ev.Kind == KindHeartbeat {
				lastBeat = time.Now()
			}
			m.handleEvent(ev)
		}
	}
}

// handleEvent applies a decoded event to the cache and fans it out.
// Nothing on this path may block or fail the connection.
func (m *Manager) handleEvent(ev Event) {
	switch ev.Kind {
	case KindUnknown:
		m.logger.Warn("dropping unrecognized frame", "error", ev.Err)
		return

	case KindBookTop:
		if !m.registry.Contains(ev.BookTop.ContractID) {
			m.logger.Debug("book top for unsubscribed contract",
				"contract_id", ev.BookTop.ContractID,
			)
			return
		}
		m.cache.Apply(ev)

	case KindBalance, KindPosition, KindFill:
		m.cache.Apply(ev)

	case KindAuthResult:
		m.logger.Debug("session established", "authenticated", ev.Authed)

	case KindStateManifest:
		m.logger.Debug("state manifest", "open_orders", ev.Manifest.OpenOrderCount)

	case KindError:
		m.logger.Warn("server error frame", "error", ev.Err)
	}

	m.emit(ev)
}

// emit hands an event to the caller without blocking frame processing.
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("event buffer full, dropping event", "kind", ev.Kind)
	}
}

// setState records a state transition. Closed is terminal.
func (m *Manager) setState(s ConnectionState) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = s
	m.mu.Unlock()

	if old != s {
		m.logger.Debug("connection state", "from", old.String(), "to", s.String())
	}
}
