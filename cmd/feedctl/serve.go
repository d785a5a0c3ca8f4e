package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/statesync"
	"github.com/unkn0wn-root/statesync/internal/fakeapi"
)

const demoPassword = "secret1!"

func (c *cli) serveFakeCmd() *cobra.Command {
	var (
		addr string
		seed bool
	)
	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Run an in-memory social API for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			log, flush, err := newLogger(cfg.LogBackend, cfg.LogLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = flush() }()

			srv := fakeapi.New(fakeapi.WithLogger(log))
			if seed {
				if err := seedDemo(srv); err != nil {
					return err
				}
				fprintf(cmd.OutOrStdout(), "seeded users ada, bob, cid (password %q)\n", demoPassword)
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "listening on http://%s\n", ln.Addr())
			return serve(cmd.Context(), ln, srv, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "listen address")
	cmd.Flags().BoolVar(&seed, "seed", false, "create demo users and posts")
	return cmd
}

// serve runs h on ln until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, h http.Handler, log statesync.Logger) error {
	hs := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down fake api", statesync.Fields{"addr": ln.Addr().String()})
	sctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func seedDemo(srv *fakeapi.Server) error {
	users := []struct{ username, fullName string }{
		{"ada", "Ada Lovelace"},
		{"bob", "Bob Kahn"},
		{"cid", "Cid Moreau"},
	}
	for _, u := range users {
		if _, err := srv.SeedUser(u.username, u.fullName, u.username+"@example.com", demoPassword); err != nil {
			return fmt.Errorf("seed %s: %w", u.username, err)
		}
	}
	posts := []struct{ username, text string }{
		{"ada", "Notes on the analytical engine"},
		{"bob", "Packets, not circuits"},
		{"ada", "The engine weaves algebraic patterns"},
	}
	for _, p := range posts {
		if _, err := srv.SeedPost(p.username, p.text); err != nil {
			return err
		}
	}
	return nil
}
