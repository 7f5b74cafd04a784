package commands

import (
	"context"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/accounting"
	"github.com/KyleBrandon/lbis-server/internal/latch"
	"github.com/KyleBrandon/lbis-server/internal/pump"
	"github.com/KyleBrandon/lbis-server/internal/state"
)

const (
	DefaultPumpDuration    = 30
	DefaultMaxSessionTotal = 14400
	DefaultDeviceTimeout   = 10 * time.Second

	PermissionDenied = "You do not have permission to use this command."
	LocationDM       = "Direct Messages"
)

type Tier int

const (
	TierPublic Tier = iota
	TierWearer
	TierPrivileged
)

type (
	Request struct {
		UserID        string            `json:"user_id"`
		UserName      string            `json:"user_name,omitempty"`
		Location      string            `json:"location,omitempty"`
		DirectMessage bool              `json:"direct_message"`
		Command       string            `json:"command"`
		Subcommand    string            `json:"subcommand,omitempty"`
		Options       map[string]string `json:"options,omitempty"`
	}

	Response struct {
		Message   string `json:"message"`
		Ephemeral bool   `json:"ephemeral"`
	}

	CommandFunc func(ctx context.Context, req Request) Response

	// Middleware wraps a command at registration time.
	Middleware func(next CommandFunc) CommandFunc

	Accounting interface {
		Limits() accounting.Limits
		Snapshot() state.Snapshot
		AddSessionTime(minutes int, maximum int) (accounting.Change, error)
		RemoveSessionTime(minutes int) (accounting.Change, error)
		SetSessionTime(minutes int) (accounting.Change, error)
		ResetSessionTime() (accounting.Change, error)
		BankAdd(seconds int) (accounting.Change, error)
		BankRemove(seconds int) (accounting.Change, error)
		BankSet(seconds int) (accounting.Change, error)
		BankReset() (accounting.Change, error)
		SetIntensity(ctx context.Context, intensity float64) (accounting.IntensityChange, error)
	}

	Latch interface {
		On(ctx context.Context, reason string, duration time.Duration) (latch.Result, error)
		Off() (latch.Result, error)
		Toggle(ctx context.Context) (latch.Result, error)
		SetReason(reason string) (latch.Result, error)
	}

	Pump interface {
		MaxPumpSeconds() int
		StartTimed(ctx context.Context, seconds int) (pump.StartResult, error)
		StartBanked(ctx context.Context, seconds int) (pump.StartResult, error)
		ManualOn(ctx context.Context) (float64, error)
		ManualOff(ctx context.Context) error
	}

	Device interface {
		Ping(ctx context.Context) (string, error)
		Restart(ctx context.Context) error
	}

	Describer interface {
		Describe(ctx context.Context) string
	}

	WearerStore interface {
		Snapshot() state.Snapshot
		Update(mutate func(*state.Snapshot) error) (state.Snapshot, error)
	}

	Notifier interface {
		Notify(message string)
	}

	StatusRefresher interface {
		RequestStatusUpdate()
	}

	Config struct {
		ApiKey              string
		WearerSecret        string
		PrivilegedIDs       []string
		DefaultPumpDuration int
		MaxSessionTotal     int
		DeviceTimeout       time.Duration
	}

	// Services are the components commands act on. Notifier and Refresher may be nil.
	Services struct {
		Accounting Accounting
		Latch      Latch
		Pump       Pump
		Device     Device
		Describer  Describer
		Wearers    WearerStore
		Notifier   Notifier
		Refresher  StatusRefresher
	}

	Handler struct {
		svc      Services
		cfg      Config
		registry map[string]CommandFunc
	}
)
