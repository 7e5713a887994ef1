package auth

import (
	"context"
	"fmt"

	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/oauth2"
)

// DevicePrompt shows the user where to approve the login.
type DevicePrompt func(resp *oauth2.DeviceAuthResponse)

// DeviceLogin runs the device authorization grant and blocks until the user approves,
// the code expires or ctx is done.
func DeviceLogin(ctx context.Context, cfg *oauth2.Config, prompt DevicePrompt) (*oauth2.Token, error) {
	resp, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: device authorization failed: %v", shared.ErrUnauthenticated, err)
	}

	if prompt != nil {
		prompt(resp)
	}

	tok, err := cfg.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("%w: device login failed: %v", shared.ErrUnauthenticated, err)
	}
	return tok, nil
}
