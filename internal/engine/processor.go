package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor periodically triggers a matching pass across all pairs. It is
// optional: with it disabled the engine only matches on explicit requests,
// which is the default batch-auction behavior.
type Processor struct {
	service  *Service
	interval time.Duration
}

func NewProcessor(service *Service, interval time.Duration) *Processor {
	return &Processor{
		service:  service,
		interval: interval,
	}
}

// Start runs the matching loop until the context is cancelled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "match_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting match processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down match processor")
			return
		case <-ticker.C:
			trades, err := p.service.MatchAll()
			if err != nil {
				logger.Error().Err(err).Msg("scheduled matching pass failed")
				continue
			}
			if len(trades) > 0 {
				logger.Info().Int("trades", len(trades)).Msg("scheduled matching pass executed trades")
			}
		}
	}
}
