package monitor

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultProbeInterval = 15 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
	DefaultTickInterval  = time.Second

	MessageServiceUp   = "Service is back up!"
	MessageServiceDown = "Service appears to be down!"
)

type (
	Prober interface {
		Ping(ctx context.Context) (string, error)
	}

	// Link is the shared reachability flag. Set reports a transition.
	Link interface {
		Up() bool
		Set(up bool) bool
	}

	Accruer interface {
		AccrueSecond() bool
	}

	Notifier interface {
		Notify(message string)
	}

	StatusRefresher interface {
		RequestStatusUpdate()
	}

	MonitorConfig struct {
		Prober    Prober
		Link      Link
		Accruer   Accruer
		Notifier  Notifier
		Refresher StatusRefresher

		ProbeInterval time.Duration
		ProbeTimeout  time.Duration
		TickInterval  time.Duration
	}

	MonitorContext struct {
		wg                *sync.WaitGroup
		ctx               context.Context
		monitorCancelFunc context.CancelFunc
		cfg               MonitorConfig
	}
)
