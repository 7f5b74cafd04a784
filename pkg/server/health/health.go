package health

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/KyleBrandon/lbis-server/pkg/utils"
)

func NewHandler(loggerLevel *slog.LevelVar) *Handler {
	return &Handler{
		loggerLevel: loggerLevel,
	}
}

func (handler *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/health", handler.handlerHealthGet)
	mux.HandleFunc("GET /v1/loglevel", handler.handlerLogLevelGet)
	mux.HandleFunc("PUT /v1/loglevel", handler.handlerLogLevelPut)
}

func (handler *Handler) handlerHealthGet(writer http.ResponseWriter, req *http.Request) {
	slog.Debug("enter handlerGetHealth")
	response := struct {
		Status string `json:"status"`
	}{
		Status: "ok",
	}

	utils.RespondWithJSON(writer, http.StatusOK, response)
}

func (handler *Handler) handlerLogLevelGet(writer http.ResponseWriter, req *http.Request) {
	utils.RespondWithJSON(writer, http.StatusOK, LogLevelResponse{Level: handler.loggerLevel.Level().String()})
}

func (handler *Handler) handlerLogLevelPut(writer http.ResponseWriter, req *http.Request) {
	slog.Debug(">>handlerLogLevelPut")
	defer slog.Debug("<<handlerLogLevelPut")

	var request LogLevelRequest
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		utils.RespondWithError(writer, http.StatusBadRequest, "invalid log level request", err)
		return
	}

	level, err := utils.ParseLogLevel(request.Level)
	if err != nil {
		utils.RespondWithError(writer, http.StatusBadRequest, "invalid log level", err)
		return
	}

	handler.loggerLevel.Set(level)
	slog.Info("log level changed", "level", level.String())

	utils.RespondWithJSON(writer, http.StatusOK, LogLevelResponse{Level: level.String()})
}
