package mining

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/defectmine/internal/workorder"
)

// MineAll mines every project of the work order on a bounded pool. A failed
// or panicking project is recorded in its Result and does not stop the
// others. Results keep work order order; the returned error is only the
// context's.
func (s *Service) MineAll(ctx context.Context, wo *workorder.WorkOrder) ([]*Result, error) {
	results := make([]*Result, len(wo.Projects))
	tracker := s.progress.NewTracker("projects", len(wo.Projects))

	p := pool.New().WithMaxGoroutines(min(s.workers(), max(1, len(wo.Projects))))
	for i, project := range wo.Projects {
		p.Go(func() {
			defer tracker.Tick()
			results[i] = s.mineContained(ctx, project)
		})
	}
	p.Wait()
	tracker.FinishSuccess()

	return results, ctx.Err()
}

func (s *Service) mineContained(ctx context.Context, project workorder.Project) (res *Result) {
	log := s.logger.WithField("project", project.Name)
	defer func() {
		if v := recover(); v != nil {
			log.Errorf("mining panicked: %v", v)
			if res == nil {
				res = &Result{Project: project.Name}
			}
			res.Err = fmt.Errorf("%s: panic: %v", project.Name, v)
		}
	}()

	res, err := s.Mine(ctx, project)
	if res == nil {
		res = &Result{Project: project.Name}
	}
	if err != nil {
		log.WithError(err).Error("mining failed")
		res.Err = err
		return res
	}
	log.WithField("elapsed", res.Duration).Info("mining finished")
	return res
}
