package pipeline

import (
	"context"
	"time"

	"github.com/harunnryd/bargein/pkg/runner"
)

// Runner ties a single pipeline to a lifecycle: Run blocks until ctx ends,
// then the pipeline is cleaned up within the drain timeout.
type Runner struct {
	ctrl *Controller
	lc   *runner.LifecycleRunner
}

func NewRunner(ctrl *Controller, hooks runner.Hooks, timeout time.Duration) *Runner {
	drainer := runner.DrainerFunc(func() error {
		ctrl.Cleanup()
		return nil
	})
	return &Runner{ctrl: ctrl, lc: runner.NewLifecycleRunner(drainer, hooks, timeout)}
}

func (r *Runner) Run(ctx context.Context) error { return r.lc.Run(ctx) }
func (r *Runner) Stop() error                   { return r.lc.Stop() }
func (r *Runner) State() runner.State           { return r.lc.State() }

// Lifecycle exposes the underlying runner, e.g. to silence the banner.
func (r *Runner) Lifecycle() *runner.LifecycleRunner { return r.lc }

var _ runner.Runner = (*Runner)(nil)
