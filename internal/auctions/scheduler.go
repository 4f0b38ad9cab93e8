package auctions

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler periodically opens due auctions and closes expired ones.
type Scheduler struct {
	Service  *Service
	Interval time.Duration
}

func (sc *Scheduler) Run(ctx context.Context) error {
	interval := sc.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if _, err := sc.Service.Sweep(ctx); err != nil && ctx.Err() == nil {
			sc.Service.log().Warn("lifecycle sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
