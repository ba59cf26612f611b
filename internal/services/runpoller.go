package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GOGOSCHNO/assistantai1/internal/pkg/envutil"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

type PollerConfig struct {
	// PollInterval is the delay between status checks while the job runs.
	PollInterval time.Duration
	// ResumeDelay is the shorter re-poll delay after submitting side-effect
	// results.
	ResumeDelay time.Duration
	// RunTimeout is the wall-clock ceiling across all polling, measured from
	// job submission; the job is cancelled once it is exceeded.
	RunTimeout time.Duration
}

func PollerConfigFromEnv() PollerConfig {
	return PollerConfig{
		PollInterval: envutil.Seconds("RUN_POLL_INTERVAL_SECONDS", 2*time.Second),
		ResumeDelay:  time.Duration(envutil.Int("RUN_RESUME_DELAY_MS", 500)) * time.Millisecond,
		RunTimeout:   envutil.Seconds("RUN_TIMEOUT_SECONDS", 80*time.Second),
	}
}

func (c *PollerConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.ResumeDelay <= 0 {
		c.ResumeDelay = 500 * time.Millisecond
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 80 * time.Second
	}
}

// RunPoller drives one remote job to a terminal state: repeated status
// checks, dispatch of pending side-effect requests, cancellation on timeout.
type RunPoller struct {
	log      *logger.Logger
	backend  RunBackend
	registry *SideEffectRegistry
	cfg      PollerConfig
}

func NewRunPoller(log *logger.Logger, backend RunBackend, registry *SideEffectRegistry, cfg PollerConfig) *RunPoller {
	cfg.applyDefaults()
	return &RunPoller{
		log:      log.With("service", "RunPoller"),
		backend:  backend,
		registry: registry,
		cfg:      cfg,
	}
}

// Poll blocks until the job completes, fails, or exceeds the ceiling. Each
// wait is a timer, never a busy loop.
func (p *RunPoller) Poll(ctx context.Context, threadID string, runID string) (*TurnOutput, error) {
	started := time.Now()
	answered := make(map[string]bool)
	delay := time.Duration(0)

	for {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		status, err := p.backend.PollStatus(ctx, threadID, runID)
		if err != nil {
			return nil, fmt.Errorf("poll status: %w", err)
		}

		switch status.State {
		case RunStateCompleted:
			out, err := p.backend.FetchOutput(ctx, threadID)
			if err != nil {
				return nil, fmt.Errorf("fetch output: %w", err)
			}
			return out, nil

		case RunStateWaiting:
			results := p.answerPending(ctx, threadID, runID, status.PendingRequests, answered)
			if len(results) > 0 {
				if err := p.backend.SubmitResults(ctx, threadID, runID, results); err != nil {
					return nil, fmt.Errorf("submit side effect results: %w", err)
				}
			}
			delay = p.cfg.ResumeDelay

		case RunStateFailed:
			if status.Failure != "" {
				return nil, fmt.Errorf("assistant run failed: %s", status.Failure)
			}
			return nil, fmt.Errorf("assistant run failed")

		case RunStateCancelled:
			return nil, fmt.Errorf("assistant run cancelled")

		default:
			delay = p.cfg.PollInterval
		}

		if time.Since(started) >= p.cfg.RunTimeout {
			p.log.Error("Run exceeded polling ceiling, cancelling",
				"thread_id", threadID,
				"run_id", runID,
				"elapsed", time.Since(started).String(),
			)
			if err := p.backend.Cancel(ctx, threadID, runID); err != nil {
				p.log.Warn("Run cancel failed", "run_id", runID, "error", err.Error())
			}
			return nil, ErrRunTimeout
		}
	}
}

// answerPending invokes handlers for every not-yet-answered request and
// collects their results. Unknown function names are logged and skipped.
// Request ids already answered in this polling session are never re-invoked;
// a transiently failed submission can re-observe the same pending set.
func (p *RunPoller) answerPending(ctx context.Context, threadID string, runID string, requests []SideEffectRequest, answered map[string]bool) []SideEffectResult {
	todo := make([]SideEffectRequest, 0, len(requests))
	for _, req := range requests {
		if answered[req.ID] {
			continue
		}
		if !p.registry.Has(req.Name) {
			p.log.Warn("Unknown side effect function, skipping",
				"function", req.Name,
				"request_id", req.ID,
				"run_id", runID,
			)
			continue
		}
		todo = append(todo, req)
	}
	if len(todo) == 0 {
		return nil
	}

	results := make([]SideEffectResult, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, req := range todo {
		g.Go(func() error {
			results[i] = p.registry.Dispatch(gctx, req)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		answered[res.RequestID] = true
	}

	p.log.Debug("Side effect requests answered",
		"thread_id", threadID,
		"run_id", runID,
		"count", len(results),
	)
	return results
}
