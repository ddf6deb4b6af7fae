package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropcast/dropcast/internal/config"
)

// Runner fires pipeline runs for every configured account on a fixed
// interval in serve mode. Each tick is an ordinary run: the schedule
// evaluator still decides whether the instant is actually a publish slot.
type Runner struct {
	config   *config.RunnerConfig
	logger   *zap.Logger
	pipeline *Pipeline
	accounts []string
	ticker   *time.Ticker
	stopCh   chan struct{}
}

func NewRunner(cfg *config.RunnerConfig, pipeline *Pipeline, accounts []string, logger *zap.Logger) *Runner {
	return &Runner{
		config:   cfg,
		logger:   logger,
		pipeline: pipeline,
		accounts: accounts,
		stopCh:   make(chan struct{}),
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.config.Enabled {
		r.logger.Info("Runner is disabled")
		return nil
	}

	interval, err := time.ParseDuration(r.config.CheckInterval)
	if err != nil {
		r.logger.Error("Invalid check interval", zap.String("interval", r.config.CheckInterval), zap.Error(err))
		return err
	}

	r.logger.Info("Starting runner", zap.String("check_interval", r.config.CheckInterval))

	r.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-r.ticker.C:
				r.runAll(ctx)
			case <-r.stopCh:
				r.logger.Info("Runner stopped")
				return
			case <-ctx.Done():
				r.logger.Info("Runner context cancelled")
				return
			}
		}
	}()

	return nil
}

func (r *Runner) Stop() {
	if r.ticker != nil {
		r.ticker.Stop()
	}
	close(r.stopCh)
	r.logger.Info("Runner shutdown completed")
}

func (r *Runner) runAll(ctx context.Context) {
	for _, account := range r.accounts {
		start := time.Now()
		err := r.pipeline.Run(ctx, account)
		duration := time.Since(start)

		if errors.Is(err, ErrRunInProgress) {
			r.logger.Info("Run already in progress, skipping tick",
				zap.String("account", account))
			continue
		}
		if err != nil {
			r.logger.Error("Pipeline run failed",
				zap.String("account", account),
				zap.Error(err),
				zap.Duration("duration", duration))
			continue
		}

		r.logger.Info("Pipeline run completed",
			zap.String("account", account),
			zap.Duration("duration", duration))
	}
}
