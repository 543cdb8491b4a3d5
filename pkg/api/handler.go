package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/CemAyyildiz/taskFlow/pkg/coordinator"
	"github.com/CemAyyildiz/taskFlow/pkg/event"
	"github.com/CemAyyildiz/taskFlow/pkg/settlement"
	"github.com/CemAyyildiz/taskFlow/pkg/task"
)

// Lifecycle is the coordinator surface the handler drives.
type Lifecycle interface {
	RequestTask(p task.CreateParams) (*task.Task, error)
	AcceptTask(taskID, worker string) (*task.Task, error)
	ReportResult(taskID, worker, result string) (*task.Task, error)
	FinalizeAndPay(ctx context.Context, taskID, requester string) (*task.Task, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	Wallet() string
}

// TaskReader defines the read-only registry operations needed by the handler.
type TaskReader interface {
	Get(taskID string) (*task.Task, error)
	List(status task.Status) []*task.Task
	Counts() map[task.Status]int
}

type Config struct {
	Lifecycle Lifecycle
	Tasks     TaskReader
	Events    *event.Broadcaster
}

// Handler handles HTTP requests
type Handler struct {
	lifecycle Lifecycle
	tasks     TaskReader
	events    *event.Broadcaster
}

// NewHandler creates a new handler
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Lifecycle == nil {
		return nil, fmt.Errorf("[API] Lifecycle not initialized")
	}
	if cfg.Tasks == nil {
		return nil, fmt.Errorf("[API] Task reader not initialized")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("[API] Event broadcaster not initialized")
	}
	return &Handler{
		lifecycle: cfg.Lifecycle,
		tasks:     cfg.Tasks,
		events:    cfg.Events,
	}, nil
}

// user create task params
type CreateTaskParams struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Reward      string `json:"reward"`
	Requester   string `json:"requester"`
	EscrowRef   string `json:"escrow_ref,omitempty"`
}

type ClaimParams struct {
	Worker string `json:"worker"`
}

type ResultParams struct {
	Worker string `json:"worker"`
	Result string `json:"result"`
}

type FinalizeParams struct {
	Requester string `json:"requester"`
}

type HealthResponse struct {
	Status  string         `json:"status"`
	Wallet  string         `json:"wallet,omitempty"`
	Balance string         `json:"balance,omitempty"`
	Tasks   map[string]int `json:"tasks"`
}

// CreateTask handles POST /tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var params CreateTaskParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if params.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if params.Requester == "" {
		writeError(w, http.StatusBadRequest, "Requester is required")
		return
	}
	reward, err := decimal.NewFromString(params.Reward)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid reward: %v", err))
		return
	}

	t, err := h.lifecycle.RequestTask(task.CreateParams{
		Title:       params.Title,
		Description: params.Description,
		Reward:      reward,
		Requester:   params.Requester,
		EscrowRef:   params.EscrowRef,
	})
	if err != nil {
		writeTaskError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListTasks handles GET /tasks with an optional status filter.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var status task.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = task.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown status: %s", raw))
			return
		}
	}
	list := h.tasks.List(status)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": list,
		"count": len(list),
	})
}

// GetTask handles GET /tasks/{taskID}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(chi.URLParam(r, "taskID"))
	if err != nil {
		writeTaskError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ClaimTask handles POST /tasks/{taskID}/claim
func (h *Handler) ClaimTask(w http.ResponseWriter, r *http.Request) {
	var params ClaimParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if params.Worker == "" {
		writeError(w, http.StatusBadRequest, "Worker is required")
		return
	}
	t, err := h.lifecycle.AcceptTask(chi.URLParam(r, "taskID"), params.Worker)
	if err != nil {
		writeTaskError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// SubmitResult handles POST /tasks/{taskID}/result
func (h *Handler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	var params ResultParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if params.Worker == "" {
		writeError(w, http.StatusBadRequest, "Worker is required")
		return
	}
	if params.Result == "" {
		writeError(w, http.StatusBadRequest, "Result is required")
		return
	}
	t, err := h.lifecycle.ReportResult(chi.URLParam(r, "taskID"), params.Worker, params.Result)
	if err != nil {
		writeTaskError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// FinalizeTask handles POST /tasks/{taskID}/finalize. When the payout
// fails the task body still carries the CONFIRMED snapshot so the
// caller can see the task is retryable.
func (h *Handler) FinalizeTask(w http.ResponseWriter, r *http.Request) {
	var params FinalizeParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if params.Requester == "" {
		writeError(w, http.StatusBadRequest, "Requester is required")
		return
	}
	t, err := h.lifecycle.FinalizeAndPay(r.Context(), chi.URLParam(r, "taskID"), params.Requester)
	if err != nil {
		writeTaskError(w, t, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Wallet: h.lifecycle.Wallet(),
		Tasks:  map[string]int{},
	}
	for status, n := range h.tasks.Counts() {
		resp.Tasks[string(status)] = n
	}
	if resp.Wallet != "" {
		if bal, err := h.lifecycle.Balance(r.Context()); err == nil {
			resp.Balance = bal.String()
		} else {
			log.Warn().Err(err).Msg("[API] Balance query failed")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeTaskError maps lifecycle errors onto HTTP statuses. Precondition
// failures are the caller's fault, settlement failures are ours.
func writeTaskError(w http.ResponseWriter, t *task.Task, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, task.ErrInvalidState),
		errors.Is(err, task.ErrUnauthorized),
		errors.Is(err, task.ErrSelfDealing),
		errors.Is(err, task.ErrInvalidReward),
		errors.Is(err, task.ErrMissingField):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, task.ErrPaymentInFlight):
		// Not a caller mistake: another payment attempt for the same
		// task is still running.
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, settlement.ErrNotConfigured),
		errors.Is(err, settlement.ErrTransferReverted),
		errors.Is(err, settlement.ErrNetworkFailure):
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Status: "error",
			Error:  err.Error(),
			Task:   t,
		})
	case errors.Is(err, coordinator.ErrInvariantViolation):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Error().Err(err).Msg("[API] Unexpected handler error")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
