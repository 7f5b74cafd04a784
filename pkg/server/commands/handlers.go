package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KyleBrandon/lbis-server/internal/accounting"
	"github.com/KyleBrandon/lbis-server/internal/latch"
	"github.com/KyleBrandon/lbis-server/internal/pump"
	"github.com/KyleBrandon/lbis-server/internal/state"
	"github.com/KyleBrandon/lbis-server/pkg/utils"
)

func (h *Handler) sessionAdd(ctx context.Context, req Request) Response {
	minutes, _, err := intOption(req, "minutes")
	if err != nil {
		return private(err.Error())
	}

	change, err := h.svc.Accounting.AddSessionTime(minutes, h.cfg.MaxSessionTotal)
	switch {
	case errors.Is(err, accounting.ErrNotPositive):
		return private("Please specify a positive number of minutes.")
	case errors.Is(err, accounting.ErrExceedsExtension):
		return private(fmt.Sprintf("Cannot add more than %d minutes at once (configurable limit).", h.svc.Accounting.Limits().MaxSessionExtension/60))
	case errors.Is(err, accounting.ErrSessionFull):
		return private(fmt.Sprintf("Session time is already at the maximum of %s.", utils.FormatTime(h.cfg.MaxSessionTotal)))
	case err != nil:
		return h.failed("session add", err)
	}

	msg := fmt.Sprintf("Added %s to session. %s remaining.", utils.FormatTime(change.Amount), utils.FormatTime(change.After))
	if change.Amount < minutes*60 {
		msg += " (Limited by the session maximum.)"
	}

	return private(msg)
}

func (h *Handler) sessionRemove(ctx context.Context, req Request) Response {
	minutes, _, err := intOption(req, "minutes")
	if err != nil {
		return private(err.Error())
	}

	change, err := h.svc.Accounting.RemoveSessionTime(minutes)
	if errors.Is(err, accounting.ErrNotPositive) {
		return private("Please specify a positive number of minutes.")
	} else if err != nil {
		return h.failed("session rem", err)
	}

	return private(fmt.Sprintf("Removed %s from session. %s remaining.", utils.FormatTime(change.Amount), utils.FormatTime(change.After)))
}

func (h *Handler) sessionSet(ctx context.Context, req Request) Response {
	minutes, ok, err := intOption(req, "minutes")
	if err != nil {
		return private(err.Error())
	}
	if !ok {
		return private("Please specify a non-negative number of minutes.")
	}

	change, err := h.svc.Accounting.SetSessionTime(minutes)
	switch {
	case errors.Is(err, accounting.ErrNegative):
		return private("Please specify a non-negative number of minutes.")
	case errors.Is(err, accounting.ErrExceedsMaximum):
		return private(fmt.Sprintf("Cannot set time higher than the configured maximum of %d minutes.", h.svc.Accounting.Limits().MaxSessionTime/60))
	case err != nil:
		return h.failed("session set", err)
	}

	return private(fmt.Sprintf("Session time set to %s.", utils.FormatTime(change.After)))
}

func (h *Handler) sessionReset(ctx context.Context, req Request) Response {
	change, err := h.svc.Accounting.ResetSessionTime()
	if err != nil {
		return h.failed("session reset", err)
	}

	return private(fmt.Sprintf("Session timer has been reset to the default: %s.", utils.FormatTime(change.After)))
}

func (h *Handler) bankAdd(ctx context.Context, req Request) Response {
	seconds, _, err := intOption(req, "seconds")
	if err != nil {
		return private(err.Error())
	}

	change, err := h.svc.Accounting.BankAdd(seconds)
	switch {
	case errors.Is(err, accounting.ErrNotPositive):
		return private("Please provide a positive number of seconds.")
	case errors.Is(err, accounting.ErrBankFull):
		return private(fmt.Sprintf("The bank is already full (%s).", utils.FormatTime(h.svc.Accounting.Limits().MaxBankedTime)))
	case err != nil:
		return h.failed("bank add", err)
	}

	return private(fmt.Sprintf("Added %s to the bank. Total banked time is now %s.", utils.FormatTime(change.Amount), utils.FormatTime(change.After)))
}

func (h *Handler) bankRemove(ctx context.Context, req Request) Response {
	seconds, _, err := intOption(req, "seconds")
	if err != nil {
		return private(err.Error())
	}

	change, err := h.svc.Accounting.BankRemove(seconds)
	if errors.Is(err, accounting.ErrNotPositive) {
		return private("Please provide a positive number of seconds.")
	} else if err != nil {
		return h.failed("bank rem", err)
	}

	return private(fmt.Sprintf("Removed %s from the bank. Total banked time is now %s.", utils.FormatTime(change.Amount), utils.FormatTime(change.After)))
}

func (h *Handler) bankSet(ctx context.Context, req Request) Response {
	seconds, ok, err := intOption(req, "seconds")
	if err != nil {
		return private(err.Error())
	}
	if !ok {
		return private("Please provide a non-negative number of seconds.")
	}

	change, err := h.svc.Accounting.BankSet(seconds)
	switch {
	case errors.Is(err, accounting.ErrNegative):
		return private("Please provide a non-negative number of seconds.")
	case errors.Is(err, accounting.ErrExceedsMaximum):
		return private(fmt.Sprintf("Cannot bank more than %s.", utils.FormatTime(h.svc.Accounting.Limits().MaxBankedTime)))
	case err != nil:
		return h.failed("bank set", err)
	}

	return private(fmt.Sprintf("Banked time set to %s.", utils.FormatTime(change.After)))
}

func (h *Handler) bankReset(ctx context.Context, req Request) Response {
	change, err := h.svc.Accounting.BankReset()
	if err != nil {
		return h.failed("bank reset", err)
	}

	return private(fmt.Sprintf("Banked time has been reset to 0 (was %s).", utils.FormatTime(change.Before)))
}

func (h *Handler) latchOn(ctx context.Context, req Request) Response {
	minutes, _, err := intOption(req, "minutes")
	if err != nil {
		return private(err.Error())
	}

	reason := strings.TrimSpace(req.Options["reason"])
	result, err := h.svc.Latch.On(ctx, reason, time.Duration(minutes)*time.Minute)
	if err != nil {
		return h.latchError("latch on", err)
	}

	msg := "Pump is now latched"
	if minutes > 0 {
		msg += fmt.Sprintf(" for %d minutes", minutes)
	}
	if len(result.Reason) != 0 {
		msg += fmt.Sprintf(" (Reason: %s)", result.Reason)
	}
	msg += "."

	return private(withLatchWarning(result, msg))
}

func (h *Handler) latchOff(ctx context.Context, req Request) Response {
	if _, err := h.svc.Latch.Off(); err != nil {
		return h.latchError("latch off", err)
	}

	return private("Pump is now unlatched.")
}

func (h *Handler) latchToggle(ctx context.Context, req Request) Response {
	result, err := h.svc.Latch.Toggle(ctx)
	if err != nil {
		return h.latchError("latch toggle", err)
	}

	if !result.Active {
		return private("Pump is now unlatched.")
	}

	return private(withLatchWarning(result, "Pump is now latched."))
}

func (h *Handler) latchReason(ctx context.Context, req Request) Response {
	result, err := h.svc.Latch.SetReason(strings.TrimSpace(req.Options["reason"]))
	if err != nil {
		return h.latchError("latch reason", err)
	}

	if len(result.Reason) == 0 {
		return private("Latch reason cleared.")
	}

	return private(fmt.Sprintf("Latch reason set to: %s", result.Reason))
}

func (h *Handler) latchError(name string, err error) Response {
	switch {
	case errors.Is(err, latch.ErrNotLatched):
		return private("The pump is not latched.")
	case errors.Is(err, latch.ErrReasonTooLong):
		return private(fmt.Sprintf("Latch reason must be %d characters or less.", latch.MaxReasonLength))
	case errors.Is(err, latch.ErrInvalidDuration):
		return private("Please specify a positive number of minutes.")
	}

	return h.failed(name, err)
}

func withLatchWarning(result latch.Result, msg string) string {
	if result.Warning == nil {
		return msg
	}

	return "Warning: Failed to turn pump off while latching. Latch applied anyway.\n" + msg
}

func (h *Handler) pumpOn(ctx context.Context, req Request) Response {
	intensity, err := h.svc.Pump.ManualOn(ctx)
	switch {
	case errors.Is(err, pump.ErrLatched):
		return private("Pump is latched, cannot turn it on.")
	case err != nil:
		slog.Error("manual pump on failed", "error", err)
		return private("Failed to set pump state via API.")
	}

	return private(fmt.Sprintf("Pump set to ON (Intensity: %.2f).", intensity))
}

func (h *Handler) pumpOff(ctx context.Context, req Request) Response {
	if err := h.svc.Pump.ManualOff(ctx); err != nil {
		slog.Error("manual pump off failed", "error", err)
		return private("Failed to set pump state via API.")
	}

	return private("Pump set to OFF.")
}

func (h *Handler) pumpIntensity(ctx context.Context, req Request) Response {
	intensity, ok, err := floatOption(req, "intensity")
	if err != nil || !ok {
		return private("Intensity must be between 0.0 and 1.0.")
	}

	change, err := h.svc.Accounting.SetIntensity(ctx, intensity)
	if errors.Is(err, accounting.ErrIntensityRange) {
		return private("Intensity must be between 0.0 and 1.0.")
	} else if err != nil {
		return h.failed("pump intensity", err)
	}

	msg := fmt.Sprintf("Default pump intensity set to %.2f.", change.Intensity)
	if change.Applied {
		msg += fmt.Sprintf("\nApplied intensity %.2f to the currently running pump.", change.Intensity)
	} else if change.ApplyErr != nil {
		msg += "\n⚠️ Failed to apply intensity to the currently running pump (API error)."
	}

	return private(msg)
}

func (h *Handler) inflate(ctx context.Context, req Request) Response {
	seconds, ok, err := intOption(req, "seconds")
	if err != nil {
		return private(err.Error())
	}

	if !ok {
		if h.isWearer(req.UserID) {
			return private("Please specify a duration in seconds.")
		}
		seconds = h.cfg.DefaultPumpDuration
	}

	result, err := h.svc.Pump.StartTimed(ctx, seconds)
	if err != nil {
		return h.pumpError(state.PumpModeTimed, err)
	}

	if result.Extended {
		msg := fmt.Sprintf("Pump timer already running. Extended by %s using session time.", utils.FormatTime(result.Granted))
		if result.Banked > 0 {
			msg += fmt.Sprintf(" Banked %s overflow (max session/pump duration or input limit reached).", utils.FormatTime(result.Banked))
		} else if result.Granted < seconds {
			msg += " Could not add full duration due to session/pump limits."
		}
		return public(msg)
	}

	msg := fmt.Sprintf("Pump started for %s at intensity %.2f using session time.", utils.FormatTime(result.Seconds), result.Intensity)
	if result.Seconds < seconds {
		msg += " (Limited by session time)."
	}

	return public(msg)
}

func (h *Handler) inflateDebt(ctx context.Context, req Request) Response {
	seconds, _, err := intOption(req, "seconds")
	if err != nil {
		return private(err.Error())
	}

	result, err := h.svc.Pump.StartBanked(ctx, seconds)
	if err != nil {
		return h.pumpError(state.PumpModeBanked, err)
	}

	msg := fmt.Sprintf("Pump started using banked time for %s at intensity %.2f.", utils.FormatTime(result.Seconds), result.Intensity)
	if result.Seconds < seconds {
		msg += " (Limited by bank, session time, or max duration)."
	}

	return public(msg)
}

func (h *Handler) pumpError(mode state.PumpMode, err error) Response {
	switch {
	case errors.Is(err, pump.ErrInvalidDuration):
		return private("Please provide a positive duration in seconds.")
	case errors.Is(err, pump.ErrExceedsMaximum):
		return private(fmt.Sprintf("Maximum duration allowed is %d seconds.", h.svc.Pump.MaxPumpSeconds()))
	case errors.Is(err, pump.ErrLatched):
		return private(fmt.Sprintf("Pump is latched, cannot start %s pump.", mode))
	case errors.Is(err, pump.ErrServiceDown):
		return private("API service is down, cannot control pump.")
	case errors.Is(err, pump.ErrTaskRunning):
		return private("Another pump operation is already running.")
	case errors.Is(err, pump.ErrNoBankedTime):
		return private("No time in the bank.")
	case errors.Is(err, pump.ErrNoSessionTime) && mode == state.PumpModeBanked:
		return private("No session time remaining (required to use bank).")
	case errors.Is(err, pump.ErrNoSessionTime):
		return private("No session time remaining.")
	case errors.Is(err, pump.ErrShutdown):
		return private("The pump is shutting down.")
	}

	slog.Error("failed to start pump", "mode", mode, "error", err)
	return private("Failed to start pump via API.")
}

func (h *Handler) reboot(ctx context.Context, req Request) Response {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.DeviceTimeout)
	defer cancel()

	err := h.svc.Device.Restart(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return private("Restart command sent, but no response received (server might be restarting).")
	case err != nil:
		slog.Error("failed to restart the pump service", "error", err)
		return private("Failed to reach server to send restart command.")
	}

	slog.Info("pump service restart requested", "user", req.UserID)
	return private("Restart command sent. Server may become temporarily unavailable.")
}

func (h *Handler) status(ctx context.Context, req Request) Response {
	return private(h.svc.Describer.Describe(ctx))
}

func (h *Handler) marco(ctx context.Context, req Request) Response {
	reply, err := h.svc.Device.Ping(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return private("Failed to reach server: Request timed out.")
	} else if err != nil {
		return private(fmt.Sprintf("Failed to reach server: %v", err))
	}

	return private(fmt.Sprintf("Server says: %s", reply))
}

// bindWearer registers the caller as the wearer when the secret matches.
func (h *Handler) bindWearer(ctx context.Context, req Request) Response {
	if !req.DirectMessage {
		return private("This command can only be used in DMs.")
	}

	secret := req.Options["secret"]
	if len(h.cfg.WearerSecret) == 0 || len(req.UserID) == 0 || secret != h.cfg.WearerSecret {
		slog.Warn("wearer registration rejected", "user", req.UserID)
		return private("Incorrect secret.")
	}

	_, err := h.svc.Wearers.Update(func(s *state.Snapshot) error {
		s.WearerID = req.UserID
		return nil
	})
	if err != nil {
		return h.failed("wearer", err)
	}

	slog.Info("wearer registered", "user", req.UserID)
	h.refresh()

	return private("You are now registered as this device's wearer!")
}

func (h *Handler) failed(name string, err error) Response {
	slog.Error("command failed", "command", name, "error", err)
	return private(fmt.Sprintf("Command `%s` failed.", name))
}
