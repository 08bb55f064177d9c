package web

import (
	"net/http"
)

// interpretPlanningRequest handles POST /api/ai/plan. The response is either
// a structured production order proposal for the caller to confirm and
// submit via POST /api/orders, or a clarification question.
func (h *Handler) interpretPlanningRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Text == "" {
		writeError(w, r, "text is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.InterpretPlanningRequest(r.Context(), body.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	type response struct {
		IsClarification      bool   `json:"is_clarification"`
		ClarificationMessage string `json:"clarification_message,omitempty"`
		Proposal             any    `json:"proposal,omitempty"`
	}
	resp := response{
		IsClarification:      result.IsClarification,
		ClarificationMessage: result.ClarificationMessage,
	}
	if result.Proposal != nil {
		resp.Proposal = result.Proposal
	}
	writeJSON(w, resp)
}
