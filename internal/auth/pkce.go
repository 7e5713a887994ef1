package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/oauth2"
)

// PKCEFlow is one authorization-code login attempt.
//
// The verifier and state are generated once and never leave the process until the exchange.
type PKCEFlow struct {
	config   *oauth2.Config
	verifier string
	state    string
}

func NewPKCEFlow(cfg *oauth2.Config) (*PKCEFlow, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}
	return &PKCEFlow{config: cfg, verifier: oauth2.GenerateVerifier(), state: state}, nil
}

func (f *PKCEFlow) State() string {
	return f.state
}

// AuthCodeURL is the URL the user opens in a browser.
func (f *PKCEFlow) AuthCodeURL() string {
	return f.config.AuthCodeURL(f.state, oauth2.S256ChallengeOption(f.verifier))
}

// Exchange verifies the callback state and trades the code for a token.
func (f *PKCEFlow) Exchange(ctx context.Context, state, code string) (*oauth2.Token, error) {
	if state != f.state {
		return nil, shared.ErrStateMismatch
	}
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	tok, err := f.config.Exchange(ctx, code, oauth2.VerifierOption(f.verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", shared.ErrUnauthenticated, err)
	}
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
