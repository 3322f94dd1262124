package pipeline

import (
	"context"
	"sync"

	"github.com/meshforge/meshforge/internal/logging"
	"github.com/meshforge/meshforge/internal/metrics"
)

func (s *Sequencer) workerCount() int {
	if s.cfg.Run.Workers < 1 {
		return 1
	}
	return s.cfg.Run.Workers
}

// process fans the batch out over the worker pool. Assets already marked
// complete by a previous run are skipped. Cancellation drains the queue
// without starting new assets; in-flight assets run to completion so
// their artifacts stay consistent.
func (s *Sequencer) process(ctx context.Context, assets []Asset, done map[string]bool) {
	m := metrics.Get()
	tasks := make(chan Asset)

	var wg sync.WaitGroup
	for i := 0; i < s.workerCount(); i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log := logging.WorkerLogger(workerID)
			for a := range tasks {
				if m != nil {
					m.WorkerQueueDepth.Dec()
				}
				if ctx.Err() != nil {
					log.Warn("skipping asset, batch canceled", "asset_id", a.ID)
					continue
				}
				if m != nil {
					m.InFlightAssets.Inc()
				}
				if s.runAsset(ctx, a) {
					s.markCompleted(ctx, a.ID)
				}
				if m != nil {
					m.InFlightAssets.Dec()
				}
			}
		}(i)
	}

	for _, a := range assets {
		if done[a.ID] {
			s.log.Info("skipping already completed asset", "asset_id", a.ID)
			if m != nil {
				m.AssetsSkipped.Inc()
			}
			continue
		}
		if m != nil {
			m.WorkerQueueDepth.Inc()
		}
		tasks <- a
	}
	close(tasks)
	wg.Wait()
}
