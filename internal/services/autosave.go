package services

import (
	"context"
	"time"

	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

type AutosaveConfig struct {
	Interval    time.Duration
	Concurrency int
	IdleTTL     time.Duration
}

// Autosaver periodically flushes dirty drafts and evicts idle sessions.
type Autosaver struct {
	log    *logger.Logger
	drafts IndicatorDraftService
	cfg    AutosaveConfig
}

func NewAutosaver(baseLog *logger.Logger, drafts IndicatorDraftService, cfg AutosaveConfig) *Autosaver {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Autosaver{
		log:    baseLog.With("service", "Autosaver"),
		drafts: drafts,
		cfg:    cfg,
	}
}

// Run ticks until ctx is done, then makes one last flush.
func (a *Autosaver) Run(ctx context.Context) {
	t := time.NewTicker(a.cfg.Interval)
	defer t.Stop()
	a.log.Info("Autosaver started", "interval", a.cfg.Interval, "concurrency", a.cfg.Concurrency)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.Tick(flushCtx)
			cancel()
			a.log.Info("Autosaver stopped")
			return
		case <-t.C:
			a.Tick(ctx)
		}
	}
}

func (a *Autosaver) Tick(ctx context.Context) {
	saved, err := a.drafts.SaveDirty(ctx, a.cfg.Concurrency)
	if err != nil {
		a.log.Warn("Autosave finished with errors", "saved", saved, "error", err)
	} else if saved > 0 {
		a.log.Debug("Autosaved drafts", "saved", saved)
	}
	a.drafts.EvictIdle(a.cfg.IdleTTL)
}
