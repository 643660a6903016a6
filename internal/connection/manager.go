// Package connection owns the lifecycle of MongoDB connections: establishing
// them, caching live ones by signature, probing their health, and tearing
// them down.
package connection

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rjnmav/mongoscope/internal/core"
	"github.com/rjnmav/mongoscope/internal/types"
)

// Handle is an established connection. It is handed out by the manager and
// stays valid until disconnected or evicted.
type Handle struct {
	id        string
	signature string
	config    types.ConnectionConfig
	client    *mongo.Client
	closed    atomic.Bool
}

// ID returns the unique handle identifier.
func (h *Handle) ID() string { return h.id }

// Signature returns the password-less identity of the connection.
func (h *Handle) Signature() string { return h.signature }

// Config returns the config the connection was established with.
func (h *Handle) Config() types.ConnectionConfig { return h.config }

// Client returns the underlying driver client.
func (h *Handle) Client() *mongo.Client { return h.client }

// DialFunc establishes a driver client. Tests substitute it to exercise the
// manager without a live server.
type DialFunc func(ctx context.Context, uri string, maxPool uint64) (*mongo.Client, error)

// PingFunc probes a client for liveness.
type PingFunc func(ctx context.Context, client *mongo.Client) error

// Options configures a Manager. Nil Dial and Ping use the real driver.
type Options struct {
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	Logger         zerolog.Logger
	Dial           DialFunc
	Ping           PingFunc
}

// Manager owns the connection cache and the per-connection state machine.
// Cache mutations are serialized internally; distinct handles may be used
// concurrently by different queries.
type Manager struct {
	mu      sync.Mutex
	handles map[string]*Handle
	states  map[string]types.ConnectionState

	channel        core.ResultChannel
	log            zerolog.Logger
	connectTimeout time.Duration
	maxPoolSize    uint64

	dial DialFunc
	ping PingFunc
}

// NewManager creates a connection manager pushing state changes to channel.
func NewManager(channel core.ResultChannel, opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = core.DefaultConnectTimeout
	}
	if opts.Dial == nil {
		opts.Dial = mongoDial
	}
	if opts.Ping == nil {
		opts.Ping = mongoPing
	}
	return &Manager{
		handles:        make(map[string]*Handle),
		states:         make(map[string]types.ConnectionState),
		channel:        channel,
		log:            opts.Logger,
		connectTimeout: opts.ConnectTimeout,
		maxPoolSize:    opts.MaxPoolSize,
		dial:           opts.Dial,
		ping:           opts.Ping,
	}
}

func mongoDial(ctx context.Context, uri string, maxPool uint64) (*mongo.Client, error) {
	clientOpts := options.Client().ApplyURI(uri)
	if maxPool > 0 {
		clientOpts.SetMaxPoolSize(maxPool)
	}
	return mongo.Connect(ctx, clientOpts)
}

func mongoPing(ctx context.Context, client *mongo.Client) error {
	return client.Ping(ctx, nil)
}

// Connect establishes a connection or reuses a healthy cached one with the
// same signature. On failure the state transitions to failed and a typed
// error is returned; the state is never left in connecting.
func (m *Manager) Connect(cfg types.ConnectionConfig) (*Handle, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	sig := cfg.Signature()

	if h := m.cached(sig); h != nil {
		if m.HealthCheck(h) {
			m.log.Debug().Str("signature", sig).Msg("reusing cached connection")
			return h, nil
		}
		// Stale handle was evicted by the health check; fall through.
	}

	m.setState(sig, types.PhaseConnecting, "")
	m.log.Info().Str("target", cfg.DisplayName()).Msg("connecting")

	timeout := m.connectTimeout
	if cfg.ConnectTimeout > 0 {
		timeout = cfg.ConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := m.dial(ctx, BuildURI(cfg), m.maxPoolSize)
	if err != nil {
		return nil, m.failConnect(sig, cfg, err)
	}
	if err := m.ping(ctx, client); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, m.failConnect(sig, cfg, err)
	}

	h := &Handle{
		id:        uuid.New().String(),
		signature: sig,
		config:    cfg,
		client:    client,
	}

	m.mu.Lock()
	if existing, ok := m.handles[sig]; ok {
		// A concurrent connect with the same signature won; keep its handle.
		// Re-assert the connected state in case this call wrote connecting
		// after the winner already finished.
		m.mu.Unlock()
		_ = client.Disconnect(context.Background())
		m.setState(sig, types.PhaseConnected, "")
		return existing, nil
	}
	m.handles[sig] = h
	m.mu.Unlock()

	m.setState(sig, types.PhaseConnected, "")
	m.log.Info().Str("target", cfg.DisplayName()).Msg("connected")
	return h, nil
}

func (m *Manager) failConnect(sig string, cfg types.ConnectionConfig, err error) *core.ConnectionError {
	cerr := classifyConnectError(err)
	m.setState(sig, types.PhaseFailed, cerr.Reason)
	m.log.Warn().
		Str("target", cfg.DisplayName()).
		Str("kind", string(cerr.Kind)).
		Err(err).
		Msg("connect failed")
	return cerr
}

// Disconnect releases the connection and evicts it from the cache.
// Disconnecting an already-closed handle is a no-op.
func (m *Manager) Disconnect(h *Handle) {
	if h == nil || h.closed.Swap(true) {
		return
	}

	m.mu.Lock()
	if m.handles[h.signature] == h {
		delete(m.handles, h.signature)
	}
	m.mu.Unlock()

	if h.client != nil {
		ctx, cancel := core.ContextWithConnectTimeout()
		_ = h.client.Disconnect(ctx)
		cancel()
	}

	m.setState(h.signature, types.PhaseDisconnected, "")
	m.log.Info().Str("signature", h.signature).Msg("disconnected")
}

// HealthCheck probes the connection with a bounded ping. On failure the
// handle is evicted and the caller must reconnect.
func (m *Manager) HealthCheck(h *Handle) bool {
	if h == nil || h.closed.Load() {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), core.DefaultHealthCheckTimeout)
	defer cancel()

	if err := m.ping(ctx, h.client); err != nil {
		m.log.Warn().Str("signature", h.signature).Err(err).Msg("health check failed")
		m.evict(h, "health check failed: "+err.Error())
		return false
	}
	return true
}

// MarkLost records that the connection behind h dropped mid-operation. The
// handle is evicted and the state transitions to failed so subsequent work
// fails fast instead of hanging.
func (m *Manager) MarkLost(h *Handle, reason string) {
	if h == nil {
		return
	}
	m.evict(h, reason)
}

// Reset clears a failed state back to disconnected. Callers that swallow a
// connect failure, like the auto-connect path, use it so the connection does
// not present as broken before the user ever acted.
func (m *Manager) Reset(sig string) {
	m.mu.Lock()
	s, ok := m.states[sig]
	live := m.handles[sig] != nil
	m.mu.Unlock()

	if live || !ok || s.Phase != types.PhaseFailed {
		return
	}
	m.setState(sig, types.PhaseDisconnected, "")
}

// State returns the current state of the logical connection with the given
// signature. Unknown signatures report disconnected.
func (m *Manager) State(sig string) types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[sig]; ok {
		return s
	}
	return types.ConnectionState{Signature: sig, Phase: types.PhaseDisconnected}
}

// Handle returns the cached live handle for a signature, or nil.
func (m *Manager) Handle(sig string) *Handle {
	return m.cached(sig)
}

// Shutdown disconnects every cached connection.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.handles = make(map[string]*Handle)
	m.mu.Unlock()

	for _, h := range handles {
		if h.closed.Swap(true) {
			continue
		}
		if h.client != nil {
			_ = h.client.Disconnect(ctx)
		}
		m.setState(h.signature, types.PhaseDisconnected, "")
	}
}

func (m *Manager) cached(sig string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[sig]
}

func (m *Manager) evict(h *Handle, reason string) {
	if h.closed.Swap(true) {
		return
	}

	m.mu.Lock()
	if m.handles[h.signature] == h {
		delete(m.handles, h.signature)
	}
	m.mu.Unlock()

	if h.client != nil {
		ctx, cancel := core.ContextWithConnectTimeout()
		_ = h.client.Disconnect(ctx)
		cancel()
	}

	m.setState(h.signature, types.PhaseFailed, reason)
}

func (m *Manager) setState(sig string, phase types.ConnectionPhase, reason string) {
	state := types.ConnectionState{Signature: sig, Phase: phase, Reason: reason}
	m.mu.Lock()
	m.states[sig] = state
	m.mu.Unlock()
	if m.channel != nil {
		m.channel.ConnectionStateChanged(state)
	}
}

func validateConfig(cfg types.ConnectionConfig) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return core.NewConnectionError(core.ConnInvalidConfiguration, "host cannot be empty", nil)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return core.NewConnectionError(core.ConnInvalidConfiguration, "port outside [1, 65535]", nil)
	}
	return nil
}

// classifyConnectError maps a driver error onto the connection error
// taxonomy. Auth errors are detected by message because the driver does not
// expose a dedicated type for them.
func classifyConnectError(err error) *core.ConnectionError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "auth") || strings.Contains(msg, "sasl"):
		return core.NewConnectionError(core.ConnAuthenticationFailed, err.Error(), err)
	case mongo.IsTimeout(err) || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "server selection"):
		return core.NewConnectionError(core.ConnTimeout, err.Error(), err)
	default:
		return core.NewConnectionError(core.ConnNetworkUnreachable, err.Error(), err)
	}
}
