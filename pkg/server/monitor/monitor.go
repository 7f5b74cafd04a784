package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// InitializeMonitorContext starts the liveness probe and the session tick.
func InitializeMonitorContext(cfg MonitorConfig) *MonitorContext {
	slog.Debug(">>InitializeMonitorContext")
	defer slog.Debug("<<InitializeMonitorContext")

	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	mctx := MonitorContext{
		wg:                &wg,
		ctx:               ctx,
		monitorCancelFunc: cancel,
		cfg:               cfg,
	}

	mctx.startMonitorRoutines()

	return &mctx
}

// CancelAndWait for the monitor routines to exit.
func (mctx *MonitorContext) CancelAndWait() {
	mctx.monitorCancelFunc()
	mctx.wg.Wait()
}

func (mctx *MonitorContext) startMonitorRoutines() {
	mctx.wg.Add(1)
	go mctx.monitorLiveness()

	if mctx.cfg.Accruer != nil {
		mctx.wg.Add(1)
		go mctx.monitorSession()
	}
}

func (mctx *MonitorContext) monitorLiveness() {
	slog.Debug(">>monitorLiveness")
	defer slog.Debug("<<monitorLiveness")

	defer mctx.wg.Done()

	mctx.probe()

	ticker := time.NewTicker(mctx.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mctx.ctx.Done():
			slog.Debug("monitorLiveness: context done")
			return

		case <-ticker.C:
			mctx.probe()
		}
	}
}

func (mctx *MonitorContext) probe() {
	ctx, cancel := context.WithTimeout(mctx.ctx, mctx.cfg.ProbeTimeout)
	defer cancel()

	_, err := mctx.cfg.Prober.Ping(ctx)
	if err != nil && mctx.ctx.Err() != nil {
		return
	}

	up := err == nil

	// the flag must change before anyone is told
	if !mctx.cfg.Link.Set(up) {
		return
	}

	if up {
		slog.Info("pump service is reachable again")
		mctx.notify(MessageServiceUp)
	} else {
		slog.Warn("pump service check failed", "error", err)
		mctx.notify(MessageServiceDown)
	}

	mctx.refresh()
}

func (mctx *MonitorContext) monitorSession() {
	slog.Debug(">>monitorSession")
	defer slog.Debug("<<monitorSession")

	defer mctx.wg.Done()

	ticker := time.NewTicker(mctx.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mctx.ctx.Done():
			slog.Debug("monitorSession: context done")
			return

		case <-ticker.C:
			if mctx.cfg.Accruer.AccrueSecond() {
				slog.Info("session time ran out")
				mctx.refresh()
			}
		}
	}
}

func (mctx *MonitorContext) notify(message string) {
	if mctx.cfg.Notifier == nil {
		slog.Warn("Notifier is not registered for notifications", "message", message)
		return
	}

	mctx.cfg.Notifier.Notify(message)
}

func (mctx *MonitorContext) refresh() {
	if mctx.cfg.Refresher != nil {
		mctx.cfg.Refresher.RequestStatusUpdate()
	}
}
