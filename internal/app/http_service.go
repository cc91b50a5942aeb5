package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/config"
	"github.com/dokzlo13/fujitsud/internal/httpapi"
)

// HTTPService wraps the control API server.
type HTTPService struct {
	cfg    *config.Config
	server *httpapi.Server
}

// NewHTTPService creates a new HTTPService.
func NewHTTPService(cfg *config.Config, ctrl httpapi.Controller) *HTTPService {
	return &HTTPService{
		cfg:    cfg,
		server: httpapi.NewServer(cfg.HTTP.Host, cfg.HTTP.Port, ctrl, cfg.HTTP.CommandRate),
	}
}

// Start begins the control API server if enabled.
func (s *HTTPService) Start(ctx context.Context) {
	if !s.cfg.HTTP.Enabled {
		log.Debug().Msg("Control API disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("Control API server error")
		}
	}()
}
