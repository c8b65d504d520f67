package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"todoctl/internal/claims"
	"todoctl/internal/credstore"
	"todoctl/internal/observability"
)

// DefaultRenewalWindow is how long before expiry an access token is renewed.
const DefaultRenewalWindow = 300 * time.Second

// errGenerationChanged means the session was replaced, ended or renewed while
// the caller was deciding to refresh.
var errGenerationChanged = errors.New("session generation changed")

// Option configures a Manager.
type Option func(*Manager)

// WithRenewalWindow sets the skew buffer before expiry.
func WithRenewalWindow(d time.Duration) Option {
	return func(m *Manager) { m.window = d }
}

// WithAlwaysRefresh renews on every ValidAccessToken call instead of only
// when the token is inside the renewal window.
func WithAlwaysRefresh() Option {
	return func(m *Manager) { m.always = true }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// Manager holds the session and renews its access token.
//
// Store writes happen with mu held so the store and the in-memory session
// never disagree. The refresh call itself runs without mu; the generation
// counter detects a logout, login or completed renewal that happened while it
// was in flight.
type Manager struct {
	store     credstore.Store
	decoder   claims.Decoder
	refresher Refresher
	window    time.Duration
	always    bool
	now       func() time.Time
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu    sync.Mutex
	state State
	cred  credstore.Credential
	user  *User
	gen   uint64
	// expiredGen is the last generation ended by a failed renewal or a
	// malformed token.
	expiredGen uint64

	flight singleflight.Group
}

// NewManager builds an anonymous manager. Call Init to restore a stored session.
func NewManager(store credstore.Store, decoder claims.Decoder, refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		decoder:   decoder,
		refresher: refresher,
		window:    DefaultRenewalWindow,
		now:       time.Now,
		logger:    zap.NewNop(),
		state:     Anonymous,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init restores the session from the store. A stored token that cannot be
// decoded is cleared and the manager stays anonymous.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credential: %w", err)
	}
	if c == nil {
		m.logger.Debug("no stored credential")
		return nil
	}

	cl, err := m.decoder.Decode(c.AccessToken)
	if err != nil {
		m.logger.Warn("stored access token is malformed, clearing", zap.Error(err))
		m.teardownLocked(ctx)
		return nil
	}

	m.cred = *c
	m.user = userFromClaims(cl)
	m.state = Authenticated
	m.gen++
	m.logger.Debug("session restored", zap.String("email", cl.Email), zap.Time("expires_at", cl.ExpiresAt))
	return nil
}

// Login starts a session with a freshly issued token pair. If the access
// token cannot be decoded the session is left unchanged and the error
// matches ErrInvalidCredential.
func (m *Manager) Login(ctx context.Context, accessToken, refreshToken string) error {
	cl, err := m.decoder.Decode(accessToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if refreshToken == "" {
		return fmt.Errorf("%w: missing refresh token", ErrInvalidCredential)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	m.state = Authenticating

	next := credstore.Credential{AccessToken: accessToken, RefreshToken: refreshToken}
	if err := m.store.Save(ctx, next); err != nil {
		m.state = prev
		return err
	}

	m.cred = next
	m.user = userFromClaims(cl)
	m.state = Authenticated
	m.gen++
	m.logger.Info("logged in", zap.String("email", cl.Email))
	return nil
}

// Logout ends the session and clears the store. It never fails and may be
// called any number of times.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked(ctx)
}

// Close releases the store if it holds resources such as a Redis client.
// The session itself is left as is.
func (m *Manager) Close() error {
	if c, ok := m.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Session{State: m.state}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ValidAccessToken returns an access token that is not about to expire,
// renewing it first if needed. Concurrent callers share one renewal.
//
// The error is ErrAnonymous without a session and ErrSessionExpired when the
// token was malformed or renewal failed; in the latter case the session has
// been torn down. Both match ErrNoToken.
func (m *Manager) ValidAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cred.AccessToken == "" {
		m.mu.Unlock()
		return "", ErrAnonymous
	}

	cl, err := m.decoder.Decode(m.cred.AccessToken)
	if err != nil {
		m.logger.Warn("access token is malformed, ending session", zap.Error(err))
		m.expiredGen = m.gen
		m.teardownLocked(ctx)
		m.mu.Unlock()
		return "", ErrSessionExpired
	}

	if !m.renewalDue(cl.ExpiresAt) {
		token := m.cred.AccessToken
		m.mu.Unlock()
		return token, nil
	}

	gen := m.gen
	m.mu.Unlock()

	return m.refresh(ctx, gen)
}

// renewalDue reports whether exp falls inside the renewal window.
// The boundary is inclusive: exp == now+window renews.
func (m *Manager) renewalDue(exp time.Time) bool {
	if m.always {
		return true
	}
	return !exp.After(m.now().Add(m.window))
}

func (m *Manager) refresh(ctx context.Context, gen uint64) (string, error) {
	key := strconv.FormatUint(gen, 10)
	v, err, _ := m.flight.Do(key, func() (any, error) {
		return m.doRefresh(context.WithoutCancel(ctx), gen)
	})
	if errors.Is(err, errGenerationChanged) {
		// A renewal for gen that failed ended the session before this caller
		// joined; report it the same way as to the callers that shared it.
		if m.expiredAt(gen) {
			return "", ErrSessionExpired
		}
		return m.ValidAccessToken(ctx)
	}
	if err != nil {
		return "", ErrSessionExpired
	}
	return v.(string), nil
}

// doRefresh performs one renewal for generation gen.
func (m *Manager) doRefresh(ctx context.Context, gen uint64) (string, error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return "", errGenerationChanged
	}
	refreshToken := m.cred.RefreshToken
	m.state = Refreshing
	m.mu.Unlock()

	m.logger.Debug("renewing access token")
	pair, err := m.refresher.Refresh(ctx, refreshToken)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		m.logger.Debug("discarding renewal for replaced session")
		return "", errGenerationChanged
	}

	if err != nil {
		m.logger.Warn("access token renewal failed, ending session", zap.Error(err))
		m.metrics.RecordRefresh(observability.RefreshFailure)
		m.expiredGen = gen
		m.teardownLocked(ctx)
		return "", err
	}

	cl, err := m.decoder.Decode(pair.AccessToken)
	if err != nil {
		m.logger.Warn("renewed access token is malformed, ending session", zap.Error(err))
		m.metrics.RecordRefresh(observability.RefreshFailure)
		m.expiredGen = gen
		m.teardownLocked(ctx)
		return "", err
	}

	next := credstore.Credential{AccessToken: pair.AccessToken, RefreshToken: refreshToken}
	if pair.RefreshToken != "" {
		next.RefreshToken = pair.RefreshToken
	}
	if err := m.saveRenewedLocked(ctx, next); err != nil {
		// The session goes on in memory; the next process may find a
		// refresh token the server has already rotated out.
		m.logger.Error("failed to persist renewed credential", zap.Error(err))
		m.metrics.RecordRefresh(observability.RefreshUnsaved)
	}

	m.cred = next
	m.user = userFromClaims(cl)
	m.state = Authenticated
	m.gen++
	m.metrics.RecordRefresh(observability.RefreshSuccess)
	m.logger.Debug("access token renewed",
		zap.Time("expires_at", cl.ExpiresAt),
		zap.Bool("refresh_token_rotated", pair.RefreshToken != "" && pair.RefreshToken != refreshToken))
	return next.AccessToken, nil
}

// saveRenewedLocked persists a renewed credential, retrying once.
func (m *Manager) saveRenewedLocked(ctx context.Context, c credstore.Credential) error {
	err := m.store.Save(ctx, c)
	if err == nil {
		return nil
	}
	m.logger.Warn("failed to persist renewed credential, retrying", zap.Error(err))
	return m.store.Save(ctx, c)
}

func (m *Manager) expiredAt(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiredGen == gen
}

func (m *Manager) teardownLocked(ctx context.Context) {
	m.cred = credstore.Credential{}
	m.user = nil
	m.state = Anonymous
	m.gen++
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear stored credential", zap.Error(err))
	}
}

func userFromClaims(cl claims.Claims) *User {
	name := cl.FullName()
	if name == "" {
		name = cl.Email
	}
	return &User{Name: name, Email: cl.Email}
}
