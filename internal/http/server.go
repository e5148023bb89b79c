package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// StatusServer sirve /healthz y /progress mientras corre el job.
type StatusServer struct {
	logger *zap.Logger
	server *http.Server
}

func NewStatusServer(logger *zap.Logger, addr string, progress ProgressSource) *StatusServer {
	return &StatusServer{
		logger: logger,
		server: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(logger, progress),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start levanta el servidor en background; los errores de arranque solo se loguean.
func (s *StatusServer) Start() {
	go func() {
		s.logger.Info("starting status server", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", zap.Error(err))
		}
	}()
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
