package status

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KyleBrandon/lbis-server/pkg/utils"
)

// NewBuilder assembles status from the live components. feed and reader may be nil.
func NewBuilder(state StateSource, tasks TaskSource, link LinkSource, feed FeedSource, reader LevelReader) *Builder {
	return &Builder{
		state:  state,
		tasks:  tasks,
		link:   link,
		feed:   feed,
		reader: reader,
		now:    time.Now,
	}
}

func (b *Builder) Build() SystemStatus {
	now := b.now()
	snap := b.state.Snapshot()

	status := SystemStatus{
		ServiceUp: b.link.Up(),
		Session: SessionStatus{
			SessionTimeRemaining: snap.SessionTimeRemaining,
			SessionTime:          utils.FormatTime(snap.SessionTimeRemaining),
			DefaultSessionTime:   snap.DefaultSessionTime,
			BankedTime:           snap.BankedTime,
			Banked:               utils.FormatTime(snap.BankedTime),
		},
		Pump: PumpStatus{
			Intensity:  snap.PumpIntensity,
			LastPumpAt: snap.LastPumpTime,
		},
		Latch: LatchStatus{
			Active:  snap.LatchActive,
			Reason:  snap.Reason(),
			EndTime: snap.LatchEndTime,
		},
	}

	if snap.LatchEndTime != nil {
		status.Latch.SecondsLeft = max(snap.LatchEndTime.Sub(now).Seconds(), 0)
	}

	if task, ok := b.tasks.Task(); ok {
		end := task.EndTime
		status.Pump.On = true
		status.Pump.TaskMode = string(task.Mode)
		status.Pump.TaskEndTime = &end
		status.Pump.SecondsLeft = max(end.Sub(now).Seconds(), 0)
	}

	// a connected feed knows better than the task bookkeeping
	if b.feed != nil {
		if reading, connected := b.feed.Reading(); connected && reading.Known {
			status.Pump.Known = true
			status.Pump.Level = reading.Level
			status.Pump.On = reading.IsOn()
		}
	}

	status.Presence = Presence(status)

	return status
}

// Presence is the one line summary shown as the bot's activity.
func Presence(s SystemStatus) string {
	if !s.ServiceUp {
		return PRESENCE_API_DOWN
	}

	pumpState := "OFF"
	if s.Pump.On {
		pumpState = "ON"
	}

	latch := ""
	if s.Latch.Active {
		latch = "🔒"
	}

	return fmt.Sprintf("%sPump: %s | Sess: %s | Bank: %s", latch, pumpState, s.Session.SessionTime, s.Session.Banked)
}

// Describe is the status command reply. With no run in progress the pump is
// asked for its level directly.
func (b *Builder) Describe(ctx context.Context) string {
	status := b.Build()

	service := "Reachable"
	if !status.ServiceUp {
		service = "Unreachable"
	}

	latch := "Unlatched"
	if status.Latch.Active {
		latch = "Latched"
		if len(status.Latch.Reason) != 0 {
			latch += fmt.Sprintf(" (%s)", status.Latch.Reason)
		}
		if status.Latch.EndTime != nil {
			latch += fmt.Sprintf(", %s left", utils.FormatTime(int(status.Latch.SecondsLeft)))
		}
	}

	pumpState := b.describePump(ctx, status)

	var sb strings.Builder
	sb.WriteString("lBIS Status\n")
	fmt.Fprintf(&sb, "API Service: %s\n", service)
	fmt.Fprintf(&sb, "Session Time: %s\n", status.Session.SessionTime)
	fmt.Fprintf(&sb, "Banked Time: %s\n", status.Session.Banked)
	fmt.Fprintf(&sb, "Latch: %s\n", latch)
	fmt.Fprintf(&sb, "Pump: %s\n", pumpState)
	fmt.Fprintf(&sb, "Intensity: %.2f", status.Pump.Intensity)

	return sb.String()
}

func (b *Builder) describePump(ctx context.Context, status SystemStatus) string {
	if len(status.Pump.TaskMode) != 0 {
		return fmt.Sprintf("ON (%s, %s left)", status.Pump.TaskMode, utils.FormatTime(int(status.Pump.SecondsLeft)))
	}

	if status.Pump.LastPumpAt == nil {
		return "OFF (Never run)"
	}

	if b.reader == nil {
		return onOff(status.Pump.On)
	}

	reading, err := b.reader.Level(ctx)
	if err != nil {
		slog.Warn("failed to read the pump state", "error", err)
		return "OFF (API check failed)"
	}

	if !reading.Known {
		return "UNKNOWN"
	}

	return onOff(reading.IsOn())
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
