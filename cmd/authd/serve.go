package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, modeServe)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.engine.StartSweeper()
			logSecurityReport(rt)

			s := &server{
				engine:      rt.engine,
				logger:      rt.logger,
				loginURL:    rt.daemon.LoginURL,
				corsOrigins: rt.daemon.CORSOrigins,
			}
			srv := &http.Server{
				Addr:              rt.daemon.ListenAddr,
				Handler:           s.routes(),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				rt.logger.Info().
					Str("addr", srv.Addr).
					Str("session_backend", rt.daemon.SessionBackend).
					Msg("listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			rt.logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func logSecurityReport(rt *runtime) {
	r := rt.engine.SecurityReport()
	rt.logger.Info().
		Dur("session_ttl", r.SessionTTL).
		Int("max_sessions_per_user", r.MaxSessionsPerUser).
		Bool("cookie_secure", r.CookieSecure).
		Str("cookie_samesite", r.CookieSameSite).
		Bool("login_throttle", r.LoginThrottleActive).
		Bool("audit", r.AuditActive).
		Uint32("argon2_memory_kib", r.Argon2.Memory).
		Msg("security posture")
	if !r.CookieSecure {
		rt.logger.Warn().Msg("session cookie is not marked Secure")
	}
	if !r.LoginThrottleActive {
		rt.logger.Warn().Msg("failed logins are not throttled; set REDIS_ADDR to enable")
	}
}
