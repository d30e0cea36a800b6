package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kelani/settled/internal/errHandler"
	"github.com/kelani/settled/internal/repository"
	"github.com/kelani/settled/internal/request"
	"github.com/kelani/settled/internal/response"
	"github.com/kelani/settled/internal/validator"
)

type JobHandler struct {
	JobRepo    repository.ScheduledJobRepository
	ErrHandler *errHandler.ErrorHandler
}

func NewJobHandler(handler *JobHandler) *JobHandler {
	return &JobHandler{
		JobRepo:    handler.JobRepo,
		ErrHandler: handler.ErrHandler,
	}
}

func (h *JobHandler) HandleScheduleJob(w http.ResponseWriter, r *http.Request) {
	type ScheduleJobInput struct {
		JobType   string              `json:"job_type"`
		EntityID  string              `json:"entity_id"`
		Payload   map[string]any      `json:"payload"`
		ExecuteAt time.Time           `json:"execute_at"`
		Validator validator.Validator `json:"-"`
	}

	var input ScheduleJobInput

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(input.JobType != "", "Job type is required")
	input.Validator.Check(input.EntityID != "", "Entity is required")
	input.Validator.Check(!input.ExecuteAt.IsZero(), "Execute time is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	var payload []byte
	if input.Payload != nil {
		payload, err = encodePayload(input.Payload)
		if err != nil {
			h.ErrHandler.BadRequest(w, r, err)
			return
		}
	}

	job, err := h.JobRepo.Insert(&repository.ScheduledJob{
		JobType:   input.JobType,
		EntityID:  input.EntityID,
		Payload:   payload,
		ExecuteAt: input.ExecuteAt,
	})
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := map[string]any{
		"id":         job.ID,
		"job_type":   job.JobType,
		"entity_id":  job.EntityID,
		"execute_at": job.ExecuteAt,
		"status":     job.Status,
	}

	message := "Job scheduled successfully"
	err = response.JSONCreatedResponse(w, data, message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func encodePayload(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}

// HandleCancelJob cancels a pending job. Cancelling a job that already ran
// or was cancelled is a no-op, so the response is the same either way.
func (h *JobHandler) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	err := h.JobRepo.Cancel(jobID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, nil, "Job cancelled", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
