package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Refresher exchanges a refresh token for a new token set.
type Refresher func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// ConfigRefresher refreshes against the token endpoint of cfg.
func ConfigRefresher(cfg *oauth2.Config) Refresher {
	return func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		stale := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
		return cfg.TokenSource(ctx, stale).Token()
	}
}

// Provider hands out valid bearer tokens for one service.
type Provider struct {
	name    string
	store   TokenStore
	refresh Refresher
	now     func() time.Time
	logger  *log.Logger
	group   singleflight.Group

	mu      sync.RWMutex
	current *oauth2.Token
	loaded  bool
}

type ProviderOption func(*Provider)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

func WithLogger(l *log.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

func NewProvider(name string, store TokenStore, refresh Refresher, opts ...ProviderOption) *Provider {
	p := &Provider{
		name:    name,
		store:   store,
		refresh: refresh,
		now:     time.Now,
		logger:  shared.NewLogger(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string {
	return p.name
}

// State classifies the stored token without refreshing it.
func (p *Provider) State() (State, error) {
	tok, err := p.load()
	if err != nil {
		return nil, err
	}
	return Classify(tok, p.now()), nil
}

// Token returns a token that is valid right now, refreshing it if needed.
//
// Concurrent callers that all observe an expired token share a single refresh.
func (p *Provider) Token(ctx context.Context) (*oauth2.Token, error) {
	tok, err := p.load()
	if err != nil {
		return nil, err
	}

	switch s := Classify(tok, p.now()).(type) {
	case Unauthenticated:
		return nil, fmt.Errorf("%w: no %s token, run 'crate auth login --service %s'", shared.ErrUnauthenticated, p.name, p.name)
	case Authenticated:
		return s.Token, nil
	case Expired:
		return p.refreshShared(ctx, s.Token)
	default:
		return nil, fmt.Errorf("%w: unknown token state %T", shared.ErrUnauthenticated, s)
	}
}

func (p *Provider) refreshShared(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error) {
	if stale.RefreshToken == "" || p.refresh == nil {
		return nil, fmt.Errorf("%w: %w: %s token expired", shared.ErrUnauthenticated, shared.ErrNoRefreshToken, p.name)
	}

	v, err, joined := p.group.Do(p.name, func() (any, error) {
		// a previous flight may have finished between our load and Do
		if cur := p.cached(); cur != nil {
			if s, ok := Classify(cur, p.now()).(Authenticated); ok {
				return s.Token, nil
			}
		}

		p.logger.Debug("refreshing token", "service", p.name)
		tok, err := p.refresh(ctx, stale.RefreshToken)
		if err != nil {
			return nil, refreshError(p.name, err)
		}
		if tok.RefreshToken == "" {
			tok.RefreshToken = stale.RefreshToken
		}

		p.remember(tok)
		if err := p.store.Save(tok); err != nil {
			p.logger.Warn("failed to persist refreshed token", "service", p.name, "error", err)
		}
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	if joined {
		p.logger.Debug("joined in-flight refresh", "service", p.name)
	}
	return v.(*oauth2.Token), nil
}

// refreshError separates a rejected grant, which needs a new login, from a failed round trip to
// the token endpoint, which callers may retry.
func refreshError(service string, err error) error {
	var re *oauth2.RetrieveError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	case errors.As(err, &re):
		status := 0
		var header http.Header
		if re.Response != nil {
			status = re.Response.StatusCode
			header = re.Response.Header
		}
		switch {
		case status == http.StatusTooManyRequests:
			rl := &shared.RateLimitError{Service: service, RetryAfter: retryAfter(header.Get("Retry-After"))}
			return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, rl)
		case status >= 500:
			return fmt.Errorf("%w: %w: %s token endpoint returned %d", shared.ErrTransport, shared.ErrRefreshFailed, service, status)
		default:
			// invalid_grant, invalid_client and other 4xx answers
			return fmt.Errorf("%w: %w: %v", shared.ErrUnauthenticated, shared.ErrRefreshFailed, err)
		}
	default:
		return fmt.Errorf("%w: %w: %v", shared.ErrTransport, shared.ErrRefreshFailed, err)
	}
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Set stores a freshly issued token, typically right after login.
func (p *Provider) Set(tok *oauth2.Token) error {
	if err := p.store.Save(tok); err != nil {
		return err
	}
	p.remember(tok)
	return nil
}

// Clear forgets the stored token.
func (p *Provider) Clear() error {
	if err := p.store.Delete(); err != nil {
		return err
	}
	p.remember(nil)
	return nil
}

// Client returns an HTTP client that authorizes every request through [Provider.Token].
func (p *Provider) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, &tokenSource{ctx: ctx, provider: p})
}

func (p *Provider) load() (*oauth2.Token, error) {
	p.mu.RLock()
	if p.loaded {
		tok := p.current
		p.mu.RUnlock()
		return tok, nil
	}
	p.mu.RUnlock()

	tok, err := p.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s token: %w", p.name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		p.current = tok
		p.loaded = true
	}
	return p.current, nil
}

func (p *Provider) cached() *oauth2.Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *Provider) remember(tok *oauth2.Token) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = tok
	p.loaded = true
}

type tokenSource struct {
	ctx      context.Context
	provider *Provider
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	return s.provider.Token(s.ctx)
}
