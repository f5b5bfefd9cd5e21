// Package webchat serves the support assistant over HTTP.
package webchat

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/geppetto/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const ShutdownTimeout = 30 * time.Second

// Server runs the HTTP listener next to the event router and shuts both down
// on SIGINT/SIGTERM or when the run context ends.
type Server struct {
	httpSrv *http.Server
	router  *events.EventRouter
	closers []io.Closer
}

// NewServer wraps handler in an http.Server on addr. router may be nil.
// closers are closed after the listener stops, in order.
func NewServer(addr string, handler http.Handler, router *events.EventRouter, closers ...io.Closer) (*Server, error) {
	if handler == nil {
		return nil, errors.New("webchat: handler is nil")
	}
	return &Server{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router:  router,
		closers: closers,
	}, nil
}

func (s *Server) HTTPServer() *http.Server { return s.httpSrv }

func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()
	eg, egCtx := errgroup.WithContext(srvCtx)

	if s.router != nil {
		eg.Go(func() error { return s.router.Run(egCtx) })
	}

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-egCtx.Done():
		}
		srvCancel()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		if s.router != nil {
			if err := s.router.Close(); err != nil {
				log.Error().Err(err).Msg("router close error")
			}
		}
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				log.Error().Err(err).Msg("close error")
			}
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting support server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
