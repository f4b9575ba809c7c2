package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TwigBush/methodsec/internal/authz"
	"github.com/TwigBush/methodsec/internal/config"
	"github.com/TwigBush/methodsec/internal/di"
	"github.com/TwigBush/methodsec/internal/server"
	"github.com/TwigBush/methodsec/internal/token"
)

// Starts the sample document API behind the method pipeline.
func cmdServe() *cobra.Command {
	var listen string
	var cors bool

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sample document API with method authorization",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if listen != "" {
				f.Listen = listen
			}
			// One process-wide slot cannot hold two concurrent callers.
			if f.MethodSecurity.HolderStrategy == "global" {
				return &authz.InvalidConfigurationError{
					Field:  "method_security.holder_strategy",
					Reason: "global holders are shared by concurrent requests; serve needs context",
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := di.Build(ctx, f)
			if err != nil {
				return err
			}
			defer rt.Close()

			var verifier *token.Verifier
			if f.Bearer.Secret != "" {
				if verifier, err = token.NewVerifier([]byte(f.Bearer.Secret), f.Bearer.Issuer); err != nil {
					return err
				}
			} else {
				slog.Warn("bearer_disabled", "reason", "bearer.secret is empty")
			}

			var stream http.Handler
			if rt.Stream != nil {
				stream = rt.Stream
			}

			srv := &http.Server{
				Addr: f.Listen,
				Handler: server.BuildRouter(server.Deps{
					Pipeline:  rt.Pipeline,
					Documents: rt.Documents,
					Holders:   rt.Holders,
					Trust:     rt.Trust,
					Anonymous: rt.Anonymous,
					Verifier:  verifier,
					Stream:    stream,
				}, server.Options{EnableCORS: cors}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				slog.Info("listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				slog.Info("shutdown", "addr", srv.Addr)
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	c.Flags().StringVar(&listen, "listen", "", "listen address, overrides the config")
	c.Flags().BoolVar(&cors, "cors", true, "enable CORS")
	return c
}
