package order

import (
	"context"
	"fmt"
	"time"
)

// RunExpirer sweeps expired pending orders on a fixed interval until the
// context is cancelled. Only one sweep runs per deployment; the conditional
// transition keeps it safe even if that assumption breaks.
func (s *Service) RunExpirer(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Logger.Info("EXPIRER", fmt.Sprintf("order expiry sweep started, interval %s", interval))

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("EXPIRER", "order expiry sweep stopped")
			return
		case <-ticker.C:
			if err := s.ExpireOrders(ctx); err != nil {
				s.Logger.Error("EXPIRER", fmt.Sprintf("expiry sweep failed: %v", err))
			}
		}
	}
}
