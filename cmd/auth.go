package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/crate/internal/auth"
	"github.com/desertthunder/crate/internal/server"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const loginTimeout = 5 * time.Minute

var oauthServices = []string{auth.ServiceSpotify, auth.ServiceTidal}

// AuthLogin stores a token set for a service: Spotify through PKCE with a loopback callback,
// TIDAL through the device authorization grant.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	service := cmd.StringArg("service")
	if service == "" {
		return fmt.Errorf("%w: service (spotify or tidal)", shared.ErrMissingArgument)
	}

	provider, err := auth.NewServiceProvider(r.config, service, r.logger)
	if err != nil {
		return err
	}
	oc, err := auth.OAuthConfig(r.config, service)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	var tok *oauth2.Token
	switch service {
	case auth.ServiceSpotify:
		tok, err = r.loopbackLogin(ctx, oc, service, !cmd.Bool("no-browser"))
	case auth.ServiceTidal:
		tok, err = auth.DeviceLogin(ctx, oc, func(resp *oauth2.DeviceAuthResponse) {
			link := resp.VerificationURIComplete
			if link == "" {
				link = resp.VerificationURI
			}
			r.writePlain("Open %s and enter code %s\n", link, r.painter.Title(resp.UserCode))
			r.writePlain("%s\n", r.painter.Help("Waiting for approval..."))
		})
	default:
		err = fmt.Errorf("%w: %s", shared.ErrUnsupported, service)
	}
	if err != nil {
		return err
	}

	if err := provider.Set(tok); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	r.logger.Info("authentication successful", "service", service)
	return r.writePlain("%s Connected to %s\n", r.painter.OK("✓"), service)
}

// loopbackLogin serves the redirect URI locally until the provider calls back once.
func (r *Runner) loopbackLogin(ctx context.Context, oc *oauth2.Config, service string, browser bool) (*oauth2.Token, error) {
	redirect, err := url.Parse(oc.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("%w: redirect_uri %q", shared.ErrInvalidConfig, oc.RedirectURL)
	}

	flow, err := auth.NewPKCEFlow(oc)
	if err != nil {
		return nil, err
	}
	handler := server.NewOAuthHandler(flow, service)

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}
	srv := &http.Server{Handler: server.CallbackRouter(handler), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("callback server failed", "error", err)
		}
	}()
	defer srv.Shutdown(context.Background())

	authURL := flow.AuthCodeURL()
	r.writePlain("Open this URL in your browser to authorize %s:\n\n%s\n\n", service, authURL)
	if browser {
		if err := r.openURL(authURL); err != nil {
			r.logger.Debug("could not open browser", "error", err)
		}
	}
	r.writePlain("%s\n", r.painter.Help("Waiting for the callback on "+redirect.Host+"..."))

	select {
	case res := <-handler.Result():
		if res.Error() != nil {
			return nil, res.Error()
		}
		return res.Token, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: login not completed: %v", shared.ErrUnauthenticated, ctx.Err())
	}
}

// AuthStatus shows the stored token state of every OAuth service.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	now := r.now()
	rows := [][]string{}
	for _, service := range oauthServices {
		provider, err := auth.NewServiceProvider(r.config, service, r.logger)
		if err != nil {
			rows = append(rows, []string{service, "not configured"})
			continue
		}
		state, err := provider.State()
		if err != nil {
			rows = append(rows, []string{service, "unreadable: " + err.Error()})
			continue
		}
		rows = append(rows, []string{service, auth.Describe(state, now)})
	}

	r.writePlainHeader("Authentication")
	return r.writePlain("%s\n", ui.Table([]string{"Service", "State"}, rows))
}

// AuthLogout deletes the stored token set for a service.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	service := cmd.StringArg("service")
	if service == "" {
		return fmt.Errorf("%w: service (spotify or tidal)", shared.ErrMissingArgument)
	}

	provider, err := auth.NewServiceProvider(r.config, service, r.logger)
	if err != nil {
		return err
	}
	if err := provider.Clear(); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return r.writePlain("%s Logged out of %s\n", r.painter.OK("✓"), service)
}
