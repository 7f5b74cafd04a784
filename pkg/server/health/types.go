package health

import (
	"log/slog"
)

type (
	LogLevelRequest struct {
		Level string `json:"level"`
	}

	LogLevelResponse struct {
		Level string `json:"level"`
	}

	Handler struct {
		loggerLevel *slog.LevelVar
	}
)
