package main

import (
	"context"
	"time"

	"github.com/desertthunder/crate/internal/server"
	"github.com/desertthunder/crate/internal/session"
	"github.com/urfave/cli/v3"
)

// Serve runs the transfer API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	lib, err := r.sourceLibrary(ctx)
	if err != nil {
		return err
	}
	engine, err := r.newEngine()
	if err != nil {
		return err
	}

	ttl := time.Duration(r.config.Transfer.SessionTTLMinutes) * time.Minute
	sessions := session.NewManager(ttl, r.now)

	srv := server.New(engine, sessions, r.destinations(ctx), lib,
		server.WithLogger(r.logger),
		server.WithUser(localUser),
		server.WithLockDir(r.lockDir()),
		server.WithPageSize(libraryPageSize),
		server.WithClock(r.now),
	)

	addr := r.config.Server.Addr()
	if a := cmd.String("addr"); a != "" {
		addr = a
	}
	r.writePlain("%s Serving the transfer API on http://%s/api\n", r.painter.OK("✓"), addr)
	return srv.Serve(ctx, addr)
}
