package export

import (
	"context"
	"fmt"
	"image"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"cutroom/internal/compositor"
	"cutroom/internal/logging"
	"cutroom/internal/memory"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

type frameTask struct {
	index int
	buf   *image.RGBA
}

type frameResult struct {
	index  int
	buf    *image.RGBA
	report compositor.FrameReport
	err    error
}

// render runs the frame loop. Workers render into pooled buffers; the loop
// re-sequences their results and pushes frames to the sink in index order.
func (r *run) render() error {
	r.transition(StateRendering)
	if err := r.checkpoint(); err != nil {
		return err
	}

	loopCtx, stop := context.WithCancel(r.ctx)
	tasks := make(chan frameTask, r.window)
	results := make(chan frameResult, r.window)
	g, gctx := errgroup.WithContext(loopCtx)
	for range r.o.opts.Workers {
		g.Go(func() error {
			return r.renderWorker(gctx, tasks, results)
		})
	}

	var (
		once    sync.Once
		waitErr error
	)
	r.stopLoop = func() {
		once.Do(func() {
			stop()
			close(tasks)
			waitErr = g.Wait()
			close(results)
			for task := range tasks {
				r.pool.Put(task.buf)
			}
			for res := range results {
				r.pool.Put(res.buf)
			}
		})
	}
	defer r.stopLoop()

	r.logger.Debug("frame loop started",
		logging.Int("total_frames", r.total),
		logging.Int("workers", r.o.opts.Workers),
		logging.Int("window", r.window),
	)
	err := r.frameLoop(loopCtx, tasks, results)
	r.stopLoop()
	if err != nil && waitErr != nil && r.ctx.Err() == nil {
		// The first worker failure also cancels its siblings, whose results
		// only carry the cancellation.
		return waitErr
	}
	return err
}

// renderWorker renders tasks until the channel closes. A render failure is
// reported to the loop and returned so the group cancels the other workers.
func (r *run) renderWorker(ctx context.Context, tasks <-chan frameTask, results chan<- frameResult) error {
	for task := range tasks {
		res := r.renderTask(ctx, task)
		results <- res
		if res.err != nil && ctx.Err() == nil {
			return fmt.Errorf("render frame %d: %w", res.index, res.err)
		}
	}
	return nil
}

func (r *run) renderTask(ctx context.Context, task frameTask) (res frameResult) {
	res = frameResult{index: task.index, buf: task.buf}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}
	defer func() {
		if p := recover(); p != nil {
			res.err = panicError(StateRendering, p)
		}
	}()
	res.report, res.err = r.comp.RenderFrame(ctx, timeline.Frame(task.index, r.settings.FPS), task.buf)
	return res
}

// frameLoop keeps at most window frames in flight or buffered ahead of
// next. Under memory pressure the window shrinks and buffered frames
// beyond it are evicted and requeued.
func (r *run) frameLoop(ctx context.Context, tasks chan<- frameTask, results <-chan frameResult) error {
	window := r.window
	minWindow := r.o.opts.MinWindow
	degraded := window <= minWindow

	next, dispatched, outstanding := 0, 0, 0
	pending := make(map[int]frameResult, window)
	defer func() {
		for _, res := range pending {
			r.pool.Put(res.buf)
		}
	}()
	var requeue []int

	for next < r.total {
		if err := r.checkpoint(); err != nil {
			return err
		}

		switch r.tracker.Level() {
		case memory.LevelCritical:
			return r.memoryExceeded()
		case memory.LevelWarning:
			if !degraded {
				degraded = true
				window = minWindow
				r.pool.Shrink(window)
				evicted := r.evict(pending, next+window)
				requeue = append(requeue, evicted...)
				slices.Sort(requeue)
				r.memoryPressure(window, len(evicted))
			}
		}

		for outstanding+len(pending) < window {
			var index int
			switch {
			case len(requeue) > 0 && requeue[0] < next+window:
				index = requeue[0]
				requeue = requeue[1:]
			case len(requeue) == 0 && dispatched < r.total && dispatched < next+window:
				index = dispatched
				dispatched++
			default:
				index = -1
			}
			if index < 0 {
				break
			}
			buf, err := r.pool.Get(ctx)
			if err != nil {
				if cerr := r.checkpoint(); cerr != nil {
					return cerr
				}
				return fmt.Errorf("acquire frame buffer: %w", err)
			}
			tasks <- frameTask{index: index, buf: buf}
			outstanding++
		}

		if res, ok := pending[next]; ok {
			delete(pending, next)
			if err := r.push(ctx, res); err != nil {
				return err
			}
			next++
			continue
		}

		select {
		case res := <-results:
			outstanding--
			if res.err != nil {
				r.pool.Put(res.buf)
				if cerr := r.checkpoint(); cerr != nil {
					return cerr
				}
				return fmt.Errorf("render frame %d: %w", res.index, res.err)
			}
			if res.index >= next+window {
				r.pool.Put(res.buf)
				requeue = append(requeue, res.index)
				slices.Sort(requeue)
				continue
			}
			pending[res.index] = res
		case <-ctx.Done():
			if err := r.checkpoint(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
	return nil
}

// evict returns buffered frames at or beyond limit to the pool and reports
// their indices.
func (r *run) evict(pending map[int]frameResult, limit int) []int {
	var evicted []int
	for index, res := range pending {
		if index < limit {
			continue
		}
		r.pool.Put(res.buf)
		delete(pending, index)
		evicted = append(evicted, index)
	}
	return evicted
}

func (r *run) push(ctx context.Context, res frameResult) error {
	defer r.pool.Put(res.buf)
	r.failures.add(res.report.Failures...)
	if err := r.sink.PushFrame(ctx, res.buf, res.index); err != nil {
		if cerr := r.checkpoint(); cerr != nil {
			return cerr
		}
		return services.Wrap(services.ErrEncoding, "rendering", "push frame", fmt.Sprintf("frame %d", res.index), err)
	}
	r.pushed++
	r.progress.report(StateRendering.String(), float64(r.pushed)/float64(r.total),
		fmt.Sprintf("rendered frame %d of %d", r.pushed, r.total))
	return nil
}

func (r *run) memoryExceeded() error {
	usage := r.tracker.Usage()
	budget := r.tracker.Budget()
	logging.ErrorWithContext(r.logger, "memory budget exceeded", "memory_critical",
		logging.Uint64("usage_bytes", usage),
		logging.Uint64("critical_bytes", budget.CriticalBytes()),
		logging.Int("frames_pushed", r.pushed),
		logging.String(logging.FieldErrorHint, "lower the export quality or raise memory.budget_mb"),
	)
	return services.Wrap(services.ErrMemory, "rendering", "check memory",
		fmt.Sprintf("usage %d bytes reached critical threshold %d", usage, budget.CriticalBytes()), nil)
}

func (r *run) memoryPressure(window, evicted int) {
	r.warn(fmt.Sprintf("memory usage crossed the warning threshold at frame %d; window reduced to %d frames", r.pushed, window))
	logging.WarnWithContext(r.logger, "memory pressure; shrinking render window", "memory_pressure",
		logging.Uint64("usage_bytes", r.tracker.Usage()),
		logging.Uint64("warning_bytes", r.tracker.Budget().WarningBytes()),
		logging.Int("window", window),
		logging.Int("evicted_frames", evicted),
		logging.String(logging.FieldErrorHint, "lower the export quality or raise memory.budget_mb"),
		logging.String(logging.FieldImpact, "evicted frames are rendered again"),
	)
}
