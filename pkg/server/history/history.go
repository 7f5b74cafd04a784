package history

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/KyleBrandon/lbis-server/internal/database"
	"github.com/KyleBrandon/lbis-server/internal/jobs"
	"github.com/KyleBrandon/lbis-server/pkg/utils"
)

func NewHandler(jobs JobSource) *Handler {
	return &Handler{
		jobs: jobs,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/jobs", h.handleJobsGet)
}

func (h *Handler) handleJobsGet(w http.ResponseWriter, r *http.Request) {
	slog.Debug(">>handleJobsGet")
	defer slog.Debug("<<handleJobsGet")

	if !h.jobs.Enabled() {
		utils.RespondWithError(w, http.StatusNotFound, "run history is not configured", database.ErrNoDatabase)
		return
	}

	limit := DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter", err)
			return
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
	}

	rows, err := h.jobs.Recent(r.Context(), limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to read run history", err)
		return
	}

	response := make([]JobResponse, 0, len(rows))
	for _, row := range rows {
		response = append(response, databaseJobToJob(row))
	}

	utils.RespondWithJSON(w, http.StatusOK, response)
}

func databaseJobToJob(job database.PumpJob) JobResponse {
	resp := JobResponse{
		ID:             job.ID,
		Mode:           job.Mode,
		Running:        job.Status == jobs.JOBSTATUS_STARTED,
		StartTime:      job.StartTime,
		PlannedEndTime: job.PlannedEndTime,
		SessionSeconds: int(job.SessionSeconds),
		BankSeconds:    int(job.BankSeconds),
		BankedSeconds:  int(job.BankedSeconds),
	}

	if job.EndTime.Valid {
		end := job.EndTime.Time
		resp.EndTime = &end
	}

	if job.Result.Valid {
		resp.Result = job.Result.String
	}

	return resp
}
