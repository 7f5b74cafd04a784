package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/KyleBrandon/lbis-server/internal/auth"
	"github.com/KyleBrandon/lbis-server/pkg/utils"
)

func NewHandler(cfg Config, svc Services) *Handler {
	if cfg.DefaultPumpDuration <= 0 {
		cfg.DefaultPumpDuration = DefaultPumpDuration
	}
	if cfg.MaxSessionTotal <= 0 {
		cfg.MaxSessionTotal = DefaultMaxSessionTotal
	}
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = DefaultDeviceTimeout
	}

	h := &Handler{
		svc:      svc,
		cfg:      cfg,
		registry: make(map[string]CommandFunc),
	}

	h.registerCommands()

	return h
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/commands", h.handlerCommandPost)
}

func (h *Handler) registerCommands() {
	wearer := h.requireTier(TierWearer)
	privileged := h.requireTier(TierPrivileged)

	h.register("session add", h.sessionAdd, wearer)
	h.register("session rem", h.sessionRemove, wearer)
	h.register("session set", h.sessionSet, wearer)
	h.register("session reset", h.sessionReset, wearer)

	h.register("bank add", h.bankAdd, wearer)
	h.register("bank rem", h.bankRemove, wearer)
	h.register("bank set", h.bankSet, wearer)
	h.register("bank reset", h.bankReset, wearer)

	h.register("latch on", h.latchOn, wearer, h.notifyWearer("latch on"))
	h.register("latch off", h.latchOff, wearer, h.notifyWearer("latch off"))
	h.register("latch toggle", h.latchToggle, wearer, h.notifyWearer("latch toggle"))
	h.register("latch reason", h.latchReason, wearer, h.notifyWearer("latch reason"))

	h.register("pump on", h.pumpOn, privileged, h.notifyWearer("pump on"))
	h.register("pump off", h.pumpOff, privileged, h.notifyWearer("pump off"))
	h.register("pump intensity", h.pumpIntensity, privileged, h.notifyWearer("pump intensity"))

	h.register("inflate", h.inflate, h.notifyWearer("inflate"))
	h.register("inflate_debt", h.inflateDebt, wearer, h.notifyWearer("inflate_debt"))
	h.register("reboot", h.reboot, wearer, h.notifyWearer("reboot"))

	h.register("status", h.status)
	h.register("marco", h.marco)
	h.register("wearer", h.bindWearer)
}

// register stores fn wrapped by middleware. The first middleware runs first.
func (h *Handler) register(name string, fn CommandFunc, middleware ...Middleware) {
	for i := len(middleware) - 1; i >= 0; i-- {
		fn = middleware[i](fn)
	}

	h.registry[name] = fn
}

// Names lists the registered commands.
func (h *Handler) Names() []string {
	names := make([]string, 0, len(h.registry))
	for name := range h.registry {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Execute runs one command on behalf of the request's user.
func (h *Handler) Execute(ctx context.Context, req Request) Response {
	slog.Debug(">>Execute", "command", req.Command, "subcommand", req.Subcommand, "user", req.UserID)
	defer slog.Debug("<<Execute")

	fn, ok := h.registry[commandName(req)]
	if !ok {
		return private(fmt.Sprintf("Unknown command `%s`.", commandName(req)))
	}

	return fn(ctx, req)
}

func (h *Handler) handlerCommandPost(writer http.ResponseWriter, req *http.Request) {
	slog.Debug(">>handlerCommandPost")
	defer slog.Debug("<<handlerCommandPost")

	if err := auth.Authorize(req, h.cfg.ApiKey); err != nil {
		utils.RespondWithError(writer, http.StatusForbidden, "not authorized", err)
		return
	}

	var request Request
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		utils.RespondWithError(writer, http.StatusBadRequest, "could not parse body", err)
		return
	}

	if len(request.Command) == 0 {
		utils.RespondWithError(writer, http.StatusBadRequest, "command is required", nil)
		return
	}

	utils.RespondWithJSON(writer, http.StatusOK, h.Execute(req.Context(), request))
}

// requireTier rejects users below tier with one message for every case.
func (h *Handler) requireTier(tier Tier) Middleware {
	return func(next CommandFunc) CommandFunc {
		return func(ctx context.Context, req Request) Response {
			if !h.allowed(req.UserID, tier) {
				slog.Warn("command rejected", "command", commandName(req), "user", req.UserID)
				return private(PermissionDenied)
			}

			return next(ctx, req)
		}
	}
}

// notifyWearer tells the wearer when someone else runs the command.
func (h *Handler) notifyWearer(name string) Middleware {
	return func(next CommandFunc) CommandFunc {
		return func(ctx context.Context, req Request) Response {
			wearer := h.wearerID()
			if h.svc.Notifier != nil && len(wearer) != 0 && req.UserID != wearer {
				h.svc.Notifier.Notify(usageMessage(name, req))
			}

			return next(ctx, req)
		}
	}
}

func (h *Handler) allowed(userID string, tier Tier) bool {
	switch tier {
	case TierPublic:
		return true
	case TierWearer:
		return h.isWearer(userID)
	case TierPrivileged:
		return h.isWearer(userID) || (len(userID) != 0 && slices.Contains(h.cfg.PrivilegedIDs, userID))
	}

	return false
}

func (h *Handler) wearerID() string {
	return h.svc.Wearers.Snapshot().WearerID
}

func (h *Handler) isWearer(userID string) bool {
	wearer := h.wearerID()
	return len(wearer) != 0 && userID == wearer
}

func (h *Handler) refresh() {
	if h.svc.Refresher != nil {
		h.svc.Refresher.RequestStatusUpdate()
	}
}

func commandName(req Request) string {
	name := strings.TrimSpace(req.Command)
	if sub := strings.TrimSpace(req.Subcommand); len(sub) != 0 {
		name += " " + sub
	}

	return strings.ToLower(name)
}

func usageMessage(name string, req Request) string {
	keys := make([]string, 0, len(req.Options))
	for k := range req.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var params strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&params, " %s:%s", k, req.Options[k])
	}

	user := req.UserID
	if len(req.UserName) != 0 {
		user = fmt.Sprintf("%s (%s)", req.UserName, req.UserID)
	}

	location := req.Location
	if req.DirectMessage || len(location) == 0 {
		location = LocationDM
	}

	return fmt.Sprintf("Command `%s%s` used by %s in %s.", name, params.String(), user, location)
}

func private(message string) Response {
	return Response{Message: message, Ephemeral: true}
}

func public(message string) Response {
	return Response{Message: message}
}

// intOption returns the named option. ok is false when it is absent.
func intOption(req Request, name string) (value int, ok bool, err error) {
	raw, present := req.Options[name]
	raw = strings.TrimSpace(raw)
	if !present || len(raw) == 0 {
		return 0, false, nil
	}

	value, err = strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("option %s must be a whole number", name)
	}

	return value, true, nil
}

func floatOption(req Request, name string) (float64, bool, error) {
	raw := strings.TrimSpace(req.Options[name])
	if len(raw) == 0 {
		return 0, false, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, true, fmt.Errorf("option %s must be a number", name)
	}

	return value, true, nil
}
