package http

import (
	"net/http"
	"strconv"

	"github.com/curatd/curatd/internal/domain/assignment"
	"github.com/curatd/curatd/internal/domain/content"
	"github.com/curatd/curatd/internal/domain/decision"
	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Reviews *service.ReviewService
	Repairs *service.RepairService
}

// SubmitContent handles POST /api/v1/content
func (h *Handlers) SubmitContent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[content.SubmitRequest](w, r)
	if !ok {
		return
	}
	result, err := h.Reviews.Submit(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "content not found")
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// GetContent handles GET /api/v1/content/{id}
func (h *Handlers) GetContent(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	item, err := h.Reviews.Content(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "content not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ContentStatus handles GET /api/v1/content/{id}/status
func (h *Handlers) ContentStatus(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	status, err := h.Reviews.StatusByContent(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "content not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SubmitDecision handles POST /api/v1/content/{id}/decision
func (h *Handlers) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	sig, ok := readJSON[decision.ReviewSignal](w, r)
	if !ok {
		return
	}
	if err := h.Reviews.DecideByContent(r.Context(), id, &sig); err != nil {
		writeDomainError(w, err, "content not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAudit handles GET /api/v1/content/{id}/audit
func (h *Handlers) GetAudit(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	rec, err := h.Reviews.Audit(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "no audit record for this item")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RequeueRepair handles POST /api/v1/content/{id}/repair
func (h *Handlers) RequeueRepair(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	n, err := h.Repairs.Requeue(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "no side effects recorded for this item")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"requeued": n})
}

// InstanceStatus handles GET /api/v1/instances/{id}
func (h *Handlers) InstanceStatus(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	status, err := h.Reviews.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ListAttention handles GET /api/v1/attention
func (h *Handlers) ListAttention(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	instances, err := h.Reviews.Attention(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if instances == nil {
		instances = []instance.WorkflowInstance{}
	}
	writeJSON(w, http.StatusOK, instances)
}

// ListPendingReviews handles GET /api/v1/reviews/pending
func (h *Handlers) ListPendingReviews(w http.ResponseWriter, r *http.Request) {
	reviewerID := r.URL.Query().Get("reviewer_id")
	if !requireField(w, reviewerID, "reviewer_id") {
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	pending, err := h.Reviews.Pending(r.Context(), reviewerID, limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if pending == nil {
		pending = []assignment.ReviewAssignment{}
	}
	writeJSON(w, http.StatusOK, pending)
}
