package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/http/response"
	"github.com/yungbote/genflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/genflow-backend/internal/services"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type GenerationHandler struct {
	generations services.GenerationService
	canceller   services.CancellationHandler
	reconciler  services.StatusReconciler
}

func NewGenerationHandler(generations services.GenerationService, canceller services.CancellationHandler, reconciler services.StatusReconciler) *GenerationHandler {
	return &GenerationHandler{generations: generations, canceller: canceller, reconciler: reconciler}
}

type startGenerationRequest struct {
	FlowID string          `json:"flowId"`
	Input  json.RawMessage `json:"input"`
}

// POST /api/generations
func (h *GenerationHandler) Start(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	var req startGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.FlowID) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("flowId is required"))
		return
	}
	g, err := h.generations.Start(c.Request.Context(), services.StartRequest{
		OwnerID: ownerID,
		FlowID:  req.FlowID,
		Input:   req.Input,
	})
	if err != nil {
		ae := mapError(err)
		if errors.Is(err, types.ErrDispatchFailure) && g != nil {
			ae = ae.WithDetails(map[string]any{"generationId": g.ID, "status": g.Status})
		}
		respondErr(c, ae)
		return
	}
	response.RespondCreated(c, gin.H{"generation": g})
}

// GET /api/generations
func (h *GenerationHandler) List(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	limit := defaultListLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}
	rows, err := h.generations.List(c.Request.Context(), ownerID, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	if rows == nil {
		rows = []*types.Generation{}
	}
	response.RespondOK(c, gin.H{"generations": rows})
}

// GET /api/generations/:id
func (h *GenerationHandler) Get(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := parseGenerationID(c)
	if !ok {
		return
	}
	g, err := h.generations.Get(c.Request.Context(), ownerID, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"generation": g})
}

// POST /api/generations/:id/cancel
func (h *GenerationHandler) Cancel(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := parseGenerationID(c)
	if !ok {
		return
	}
	res, err := h.canceller.Cancel(c.Request.Context(), id, ownerID)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/generations/:id/status
func (h *GenerationHandler) Status(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	id, ok := parseGenerationID(c)
	if !ok {
		return
	}
	if _, err := h.generations.Get(c.Request.Context(), ownerID, id); err != nil {
		respondErr(c, err)
		return
	}
	res, err := h.reconciler.Pull(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

func requireOwner(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.OwnerID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid token"))
		return uuid.Nil, false
	}
	return rd.OwnerID, true
}

func parseGenerationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_generation_id", err)
		return uuid.Nil, false
	}
	return id, true
}
