package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/amp-labs/diagramfsm/editor"
	"github.com/amp-labs/diagramfsm/logger"
	"github.com/amp-labs/diagramfsm/server"
	"github.com/amp-labs/diagramfsm/settings"
	"github.com/spf13/cobra"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve editor sessions over HTTP",
		Long: `Starts an HTTP server hosting editor sessions. Editor tunables come from
the EDITOR_* environment variables. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			tunables, err := settings.LoadEditor(ctx)
			if err != nil {
				return err
			}

			sessions := server.New(editor.WithSettings(tunables))

			ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Handler:           sessions.Handler(),
				ReadHeaderTimeout: readHeaderTimeout,
				BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())

			errs := make(chan error, 1)

			go func() {
				errs <- srv.Serve(ln)
			}()

			select {
			case err := <-errs:
				sessions.Close(ctx)

				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Get(ctx).Warn("Graceful shutdown did not complete", "error", err)

				_ = srv.Close()
			}

			sessions.Close(shutdownCtx)

			if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	return cmd
}
