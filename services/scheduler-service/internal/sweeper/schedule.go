package sweeper

import (
	"context"
	"sync"
	"time"
)

// Schedule runs one sweep kind on a fixed interval.
type Schedule struct {
	Kind  Kind
	Every time.Duration
}

// RunSchedules drives each schedule from its own ticker until ctx is done.
// Schedules are independent; nothing serializes overlapping runs.
func (s *Sweeper) RunSchedules(ctx context.Context, schedules ...Schedule) {
	var wg sync.WaitGroup
	for _, sch := range schedules {
		if sch.Every <= 0 {
			s.logger.Warn("sweep schedule disabled", "kind", sch.Kind)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("sweep schedule started", "kind", sch.Kind, "every", sch.Every.String())
			ticker := time.NewTicker(sch.Every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := s.Run(ctx, sch.Kind); err != nil {
						s.logger.Error("reminder sweep failed", "kind", sch.Kind, "err", err)
					}
				}
			}
		}()
	}
	wg.Wait()
}
