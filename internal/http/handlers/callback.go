package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/genflow-backend/internal/http/response"
	"github.com/yungbote/genflow-backend/internal/services"
)

// CallbackHandler receives status pushes from the flow engine.
type CallbackHandler struct {
	reconciler services.StatusReconciler
}

func NewCallbackHandler(reconciler services.StatusReconciler) *CallbackHandler {
	return &CallbackHandler{reconciler: reconciler}
}

type callbackPayload struct {
	GenerationID string          `json:"generationId"`
	ExecutionID  string          `json:"executionId"`
	Status       string          `json:"status"`
	Progress     *int            `json:"progress"`
	Error        string          `json:"error"`
	ErrorMessage string          `json:"errorMessage"`
	Output       json.RawMessage `json:"output"`
}

// POST /api/webhooks/flow-engine
func (h *CallbackHandler) Receive(c *gin.Context) {
	var p callbackPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	id, err := uuid.Parse(strings.TrimSpace(p.GenerationID))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_generation_id", errors.New("generationId must be a uuid"))
		return
	}
	msg := p.Error
	if msg == "" {
		msg = p.ErrorMessage
	}
	res, err := h.reconciler.ApplyPush(c.Request.Context(), services.PushUpdate{
		GenerationID: id,
		ExecutionID:  p.ExecutionID,
		Status:       p.Status,
		Progress:     p.Progress,
		Error:        msg,
		Output:       p.Output,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}
