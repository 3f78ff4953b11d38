// Package pool guarantees at most one live runtime connection per session
// and serializes create/disconnect per session while keeping different
// sessions fully parallel.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/runtime"
	"github.com/wardenhq/warden/pkg/types"
)

var (
	// ErrClientExists is returned when a session already has a live client.
	ErrClientExists = errors.New("client already exists for session")
	// ErrClientNotFound is returned when no client is pooled for a session.
	ErrClientNotFound = errors.New("client not found for session")
)

const (
	// DefaultMaxAttempts is the total number of connection attempts.
	DefaultMaxAttempts = 3
	// DefaultBackoffBase is the initial retry delay.
	DefaultBackoffBase = 500 * time.Millisecond
	// DefaultBackoffMax caps the retry delay.
	DefaultBackoffMax = 10 * time.Second
	// connectMaxElapsed bounds the total time spent retrying one connect.
	connectMaxElapsed = 2 * time.Minute
)

// Client is the pooled handle to one session's runtime connection. Its
// context is canceled when the client is disconnected, which aborts any
// stream consumption tied to it.
type Client struct {
	SessionID string

	conn   runtime.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// Query submits a prompt on the pooled connection.
func (c *Client) Query(ctx context.Context, prompt string) (*runtime.EventStream, error) {
	return c.conn.Query(ctx, prompt)
}

// Context is canceled when the client is disconnected.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Pool owns the per-session clients.
type Pool struct {
	runtime runtime.Runtime
	cfg     types.PoolConfig
	log     zerolog.Logger

	mu      sync.RWMutex
	locks   map[string]*sync.Mutex
	clients map[string]*Client
}

// New creates a pool over the given runtime. A nil config uses defaults.
func New(rt runtime.Runtime, cfg *types.PoolConfig) *Pool {
	var c types.PoolConfig
	if cfg != nil {
		c = *cfg
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBaseMS <= 0 {
		c.BackoffBaseMS = int(DefaultBackoffBase / time.Millisecond)
	}
	if c.BackoffMaxMS <= 0 {
		c.BackoffMaxMS = int(DefaultBackoffMax / time.Millisecond)
	}
	return &Pool{
		runtime: rt,
		cfg:     c,
		log:     logging.Component("pool"),
		locks:   make(map[string]*sync.Mutex),
		clients: make(map[string]*Client),
	}
}

// lockFor returns the session's lock, creating it lazily.
func (p *Pool) lockFor(sessionID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[sessionID] = lock
	}
	return lock
}

// CreateClient connects the session to the runtime and registers the
// client. The session's runtime config supplies the connect options;
// authorize and notify are attached as the runtime callbacks. Fails with
// ErrClientExists when the session already has a client; a connection
// failure leaves no pool entry.
func (p *Pool) CreateClient(ctx context.Context, sess *types.Session, authorize runtime.AuthorizeFunc, notify runtime.NotifyFunc) (*Client, error) {
	lock := p.lockFor(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	p.mu.RLock()
	_, exists := p.clients[sess.ID]
	p.mu.RUnlock()
	if exists {
		return nil, ErrClientExists
	}

	opts := runtime.ConnectOptions{
		Model:           sess.Config.Model,
		SystemPrompt:    sess.Config.SystemPrompt,
		AllowedTools:    sess.Config.AllowedTools,
		DisallowedTools: sess.Config.DisallowedTools,
		PermissionMode:  sess.Config.PermissionMode,
		Directory:       sess.Directory,
		MCPServers:      sess.Config.MCPServers,
		Authorize:       authorize,
		Notify:          notify,
	}

	conn, err := p.connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	client := &Client{
		SessionID: sess.ID,
		conn:      conn,
		ctx:       clientCtx,
		cancel:    cancel,
	}

	p.mu.Lock()
	p.clients[sess.ID] = client
	p.mu.Unlock()

	p.log.Info().
		Str("sessionID", sess.ID).
		Str("model", sess.Config.Model).
		Msg("runtime client connected")
	return client, nil
}

// GetClient returns the pooled client for a session.
func (p *Pool) GetClient(sessionID string) (*Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	client, ok := p.clients[sessionID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return client, nil
}

// DisconnectClient closes and removes a session's client. Idempotent; a
// close failure is logged, not propagated.
func (p *Pool) DisconnectClient(sessionID string) {
	lock := p.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	client, ok := p.clients[sessionID]
	delete(p.clients, sessionID)
	delete(p.locks, sessionID)
	p.mu.Unlock()

	if !ok {
		return
	}

	client.cancel()
	if err := client.conn.Close(); err != nil {
		p.log.Warn().Err(err).
			Str("sessionID", sessionID).
			Msg("failed to close runtime connection")
	}
	p.log.Debug().Str("sessionID", sessionID).Msg("runtime client disconnected")
}

// CleanupAll disconnects every pooled client; per-session failures are
// isolated. Used at shutdown.
func (p *Pool) CleanupAll() {
	p.mu.RLock()
	ids := make([]string, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	for _, id := range ids {
		p.DisconnectClient(id)
	}
}

// Size returns the number of pooled clients.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// connect attempts the connection with exponential backoff on transient
// failures. Only *ConnectError is retried; anything else fails fast.
func (p *Pool) connect(ctx context.Context, opts runtime.ConnectOptions) (runtime.Conn, error) {
	bo := p.newConnectBackoff(ctx)

	attempt := 0
	for {
		attempt++
		conn, err := p.tryConnect(ctx, opts)
		if err == nil {
			return conn, nil
		}

		var ce *runtime.ConnectError
		if !errors.As(err, &ce) {
			return nil, err
		}

		next := bo.NextBackOff()
		if next == backoff.Stop {
			return nil, err
		}

		p.log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("retryIn", next).
			Msg("runtime connect failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(next):
		}
	}
}

// tryConnect runs a single attempt, bounded by timeout_seconds when set.
func (p *Pool) tryConnect(ctx context.Context, opts runtime.ConnectOptions) (runtime.Conn, error) {
	if p.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	return p.runtime.Connect(ctx, opts)
}

// newConnectBackoff creates an exponential backoff with jitter for
// connection retries, bounded by the configured attempt count and
// context-aware for cancellation.
func (p *Pool) newConnectBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(p.cfg.BackoffBaseMS) * time.Millisecond
	b.MaxInterval = time.Duration(p.cfg.BackoffMaxMS) * time.Millisecond
	b.MaxElapsedTime = connectMaxElapsed
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.MaxAttempts-1)), ctx)
}
